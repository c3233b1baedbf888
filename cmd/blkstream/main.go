// blkstream reads a directory of Bitcoin blk*.dat files and writes the
// blockchain to stdout as an ordered, deduplicated stream of enriched
// block records, one per block starting at genesis.
//
// Usage:
//
//	blkstream --blocks-dir=/path/to/blocks [flags] > blocks.enriched
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/config"
	blog "github.com/Klingon-tech/blkstream/internal/log"
	"github.com/Klingon-tech/blkstream/internal/pipeline"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger (to stderr, so stdout stays a clean record stream) ─
	if err := blog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := blog.WithComponent("main")

	logger.Info().
		Str("blocks_dir", cfg.BlocksDir).
		Str("network", string(cfg.Network)).
		Str("utxo_backend", string(cfg.UtxoBackend)).
		Bool("skip_prevout", cfg.SkipPrevout).
		Msg("starting blkstream")

	// ── 3. Construct and start the pipeline (opens the UTXO backend) ─────
	p, err := pipeline.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start pipeline")
	}

	// ── 4. Wait for an early shutdown signal in the background ───────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received, draining in-flight blocks")
		p.Stop()
	}()

	// ── 5. Drain the pipeline, writing each record to stdout ─────────────
	out := bufio.NewWriter(os.Stdout)
	var count uint64
	for eb := range p.Out {
		if eb == nil {
			break
		}
		if err := blockextra.Encode(out, eb, cfg.SerializationVersion); err != nil {
			logger.Fatal().Err(err).Uint32("height", eb.Height).Msg("failed to encode block")
		}
		count++
	}
	if err := out.Flush(); err != nil {
		logger.Fatal().Err(err).Msg("failed to flush stdout")
	}

	// ── 6. Join every stage and surface the first error, if any ──────────
	if err := p.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("pipeline stage failed")
	}

	logger.Info().Uint64("blocks_emitted", count).Msg("blkstream finished")
}
