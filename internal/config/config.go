// Package config handles blkstream configuration.
//
// Configuration is loaded with the following precedence, lowest to
// highest: built-in defaults, the LOG_LEVEL environment variable (log
// level only), an optional `.conf` file, command-line flags.
package config

import (
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies which Bitcoin network's block files are being read.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Signet  Network = "signet"
	Regtest Network = "regtest"
)

// Params returns the btcsuite chain parameters (magic, genesis) for n.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case Mainnet, "":
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, &UnknownNetworkError{Network: string(n)}
	}
}

// UnknownNetworkError is returned by Network.Params for an unrecognized value.
type UnknownNetworkError struct{ Network string }

func (e *UnknownNetworkError) Error() string {
	return "unknown network: " + e.Network
}

// UtxoBackend selects which UtxoJoiner backend implementation to use.
type UtxoBackend string

const (
	BackendMemory UtxoBackend = "memory"
	BackendBadger UtxoBackend = "badger" // persistent, LSM-style
	BackendBolt   UtxoBackend = "bolt"   // persistent, B-tree
)

// Config holds every option the pipeline and CLI consult.
type Config struct {
	// Core
	BlocksDir string  `conf:"blocks_dir"`
	Network   Network `conf:"network"`

	// Pipeline behavior
	SkipPrevout          bool   `conf:"skip_prevout"`
	MaxReorg             uint32 `conf:"max_reorg"`
	ChannelsSize         int    `conf:"channels_size"`
	StartAtHeight        uint32 `conf:"start_at_height"`
	StopAtHeight         uint32 `conf:"stop_at_height"` // only meaningful when StopAtHeightSet is true
	StopAtHeightSet      bool
	SerializationVersion uint8 `conf:"serialization_version"`

	// UTXO backend (at most one persistent backend may be set)
	UtxoBackend UtxoBackend `conf:"utxo_backend"`
	UtxoDBPath  string      `conf:"utxo_db"`
	UtxoDirBase string      // not set or read here; DefaultUtxoDBPath derives its default from BlocksDir

	// Logging
	Log LogConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultUtxoDBPath returns the default on-disk location for a persistent
// UTXO backend, rooted alongside the block files directory.
func (c *Config) DefaultUtxoDBPath() string {
	if c.UtxoDBPath != "" {
		return c.UtxoDBPath
	}
	return filepath.Join(filepath.Dir(c.BlocksDir), "utxo")
}
