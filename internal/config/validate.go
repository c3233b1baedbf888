package config

import (
	"fmt"

	"github.com/Klingon-tech/blkstream/internal/pipeerr"
)

// Validate checks config for internal consistency, surfacing ConfigConflict
// errors at startup rather than letting them manifest mid-pipeline.
func Validate(cfg *Config) error {
	if cfg.BlocksDir == "" {
		return fmt.Errorf("blocks_dir is required")
	}
	if _, err := cfg.Network.Params(); err != nil {
		return fmt.Errorf("%w: %v", pipeerr.ErrConfigConflict, err)
	}
	if cfg.SerializationVersion > 1 {
		return fmt.Errorf("serialization_version must be 0 or 1, got %d", cfg.SerializationVersion)
	}
	switch cfg.UtxoBackend {
	case BackendMemory, BackendBadger, BackendBolt:
	default:
		return fmt.Errorf("%w: unknown utxo backend %q", pipeerr.ErrConfigConflict, cfg.UtxoBackend)
	}
	if cfg.StopAtHeightSet && cfg.StopAtHeight < cfg.StartAtHeight {
		return fmt.Errorf("stop_at_height (%d) must be >= start_at_height (%d)", cfg.StopAtHeight, cfg.StartAtHeight)
	}
	return nil
}
