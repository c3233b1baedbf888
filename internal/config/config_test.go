package config

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/blkstream/internal/pipeerr"
)

func TestNetworkParams_KnownNetworks(t *testing.T) {
	cases := []Network{Mainnet, Testnet, Signet, Regtest, ""}
	for _, n := range cases {
		if _, err := n.Params(); err != nil {
			t.Errorf("Params(%q): unexpected error: %v", n, err)
		}
	}
}

func TestNetworkParams_UnknownNetwork(t *testing.T) {
	_, err := Network("doge").Params()
	if err == nil {
		t.Fatal("expected an error for an unrecognized network")
	}
	var unknown *UnknownNetworkError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownNetworkError, got %T", err)
	}
}

func TestDefault_PerNetworkMaxReorg(t *testing.T) {
	cases := []struct {
		network  Network
		maxReorg uint32
	}{
		{Mainnet, 6},
		{Testnet, 100},
		{Signet, 6},
		{Regtest, 1},
	}
	for _, c := range cases {
		cfg := Default(c.network)
		if cfg.Network != c.network {
			t.Errorf("Default(%q).Network = %q", c.network, cfg.Network)
		}
		if cfg.MaxReorg != c.maxReorg {
			t.Errorf("Default(%q).MaxReorg = %d, want %d", c.network, cfg.MaxReorg, c.maxReorg)
		}
	}
}

func TestDefaultUtxoDBPath(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.BlocksDir = "/data/bitcoin/blocks"
	if got, want := cfg.DefaultUtxoDBPath(), "/data/bitcoin/utxo"; got != want {
		t.Errorf("DefaultUtxoDBPath() = %q, want %q", got, want)
	}

	cfg.UtxoDBPath = "/custom/path"
	if got, want := cfg.DefaultUtxoDBPath(), "/custom/path"; got != want {
		t.Errorf("DefaultUtxoDBPath() with explicit UtxoDBPath = %q, want %q", got, want)
	}
}

func TestValidate_RejectsMissingBlocksDir(t *testing.T) {
	cfg := Default(Mainnet)
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when blocks_dir is empty")
	}
}

func TestValidate_RejectsUnknownNetwork(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.BlocksDir = "/data/blocks"
	cfg.Network = "doge"
	if err := Validate(cfg); !errors.Is(err, pipeerr.ErrConfigConflict) {
		t.Fatalf("expected ErrConfigConflict, got %v", err)
	}
}

func TestValidate_RejectsBadSerializationVersion(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.BlocksDir = "/data/blocks"
	cfg.SerializationVersion = 2
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an out-of-range serialization_version")
	}
}

func TestValidate_RejectsUnknownUtxoBackend(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.BlocksDir = "/data/blocks"
	cfg.UtxoBackend = "rocksdb"
	if err := Validate(cfg); !errors.Is(err, pipeerr.ErrConfigConflict) {
		t.Fatalf("expected ErrConfigConflict, got %v", err)
	}
}

func TestValidate_RejectsStopBeforeStart(t *testing.T) {
	cfg := Default(Mainnet)
	cfg.BlocksDir = "/data/blocks"
	cfg.StartAtHeight = 500_000
	cfg.StopAtHeight = 400_000
	cfg.StopAtHeightSet = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when stop_at_height < start_at_height")
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := Default(Testnet)
	cfg.BlocksDir = "/data/testnet/blocks"
	cfg.StartAtHeight = 100
	cfg.StopAtHeight = 200
	cfg.StopAtHeightSet = true
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
