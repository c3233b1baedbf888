package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	BlocksDir string
	Network   string
	ConfFile  string

	SkipPrevout          bool
	SetSkipPrevout       bool
	MaxReorg             uint
	ChannelsSize         int
	StartAtHeight        uint
	StopAtHeight         int // -1 means unset
	SerializationVersion uint
	SetSerialization     bool

	UtxoBackend string
	UtxoDBPath  string

	LogLevel string
	LogFile  string
	LogJSON  bool
	SetJSON  bool

	Args []string
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{StopAtHeight: -1}
	fs := flag.NewFlagSet("blkstream", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.BlocksDir, "blocks-dir", "", "Directory containing blk*.dat files")
	fs.StringVar(&f.Network, "network", "", "mainnet, testnet, signet or regtest")
	fs.StringVar(&f.ConfFile, "config", "", "Config file path")
	fs.StringVar(&f.ConfFile, "c", "", "Config file path (shorthand)")

	fs.BoolVar(&f.SkipPrevout, "skip-prevout", false, "Bypass the UTXO joiner; prevout maps are left empty")
	fs.UintVar(&f.MaxReorg, "max-reorg", 0, "Descendant depth required to release a block")
	fs.IntVar(&f.ChannelsSize, "channels-size", -1, "Per-stage channel capacity (0 = rendezvous)")
	fs.UintVar(&f.StartAtHeight, "start-at-height", 0, "First height emitted downstream")
	fs.IntVar(&f.StopAtHeight, "stop-at-height", -1, "Last height emitted; pipeline terminates after")
	fs.UintVar(&f.SerializationVersion, "serialization-version", 0, "0 or 1 for the emitted record format")

	fs.StringVar(&f.UtxoBackend, "utxo-backend", "", "memory, badger or bolt")
	fs.StringVar(&f.UtxoDBPath, "utxo-db", "", "Path to the persistent UTXO database")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { printUsage() }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	f.SetSkipPrevout = isFlagSet(fs, "skip-prevout")
	f.SetJSON = isFlagSet(fs, "log-json")
	f.SetSerialization = isFlagSet(fs, "serialization-version")
	if !isFlagSet(fs, "channels-size") {
		f.ChannelsSize = -1
	}
	f.Args = fs.Args()
	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.BlocksDir != "" {
		cfg.BlocksDir = f.BlocksDir
	}
	if f.Network != "" {
		cfg.Network = Network(f.Network)
	}
	if f.SetSkipPrevout {
		cfg.SkipPrevout = f.SkipPrevout
	}
	if f.MaxReorg != 0 {
		cfg.MaxReorg = uint32(f.MaxReorg)
	}
	if f.ChannelsSize >= 0 {
		cfg.ChannelsSize = f.ChannelsSize
	}
	if f.StartAtHeight != 0 {
		cfg.StartAtHeight = uint32(f.StartAtHeight)
	}
	if f.StopAtHeight >= 0 {
		cfg.StopAtHeight = uint32(f.StopAtHeight)
		cfg.StopAtHeightSet = true
	}
	if f.SetSerialization {
		cfg.SerializationVersion = uint8(f.SerializationVersion)
	}
	if f.UtxoBackend != "" {
		cfg.UtxoBackend = UtxoBackend(f.UtxoBackend)
	}
	if f.UtxoDBPath != "" {
		cfg.UtxoDBPath = f.UtxoDBPath
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `blkstream - ordered, enriched Bitcoin block stream from blk*.dat files

Usage:
  blkstream --blocks-dir=/path/to/blocks [options] > records.bin
  blkstream --help

Core Options:
  --blocks-dir     Directory containing blk*.dat files (required)
  --network        mainnet (default), testnet, signet or regtest
  --config, -c     Config file path

Pipeline Options:
  --skip-prevout           Bypass the UTXO joiner; prevout maps are left empty
  --max-reorg              Descendant depth required to release a block (default 6;
                           100 on testnet, 1 on regtest)
  --channels-size          Per-stage channel capacity (default 0, rendezvous)
  --start-at-height        First height emitted downstream
  --stop-at-height         Last height emitted; pipeline terminates after
  --serialization-version  0 or 1 for the emitted record format (default 1)

UTXO Options:
  --utxo-backend  memory (default), badger or bolt
  --utxo-db       Path to the persistent UTXO database

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: none; logs go to stderr)
  --log-json      Output logs as JSON

Examples:
  blkstream --blocks-dir=$HOME/.bitcoin/blocks > out.bin
  blkstream --blocks-dir=$HOME/.bitcoin/testnet3/blocks --network=testnet \
    --utxo-backend=badger --utxo-db=./utxo | blkstream-fee
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. LOG_LEVEL environment variable (log level only)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("blkstream version 0.1.0")
		os.Exit(0)
	}

	network := Mainnet
	if flags.Network != "" {
		network = Network(flags.Network)
	}
	cfg := Default(network)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}

	if flags.ConfFile != "" {
		fileValues, err := LoadFile(flags.ConfFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config file: %w", err)
		}
		if err := ApplyFileConfig(cfg, fileValues); err != nil {
			return nil, nil, fmt.Errorf("applying config file: %w", err)
		}
	}

	ApplyFlags(cfg, flags)

	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}
