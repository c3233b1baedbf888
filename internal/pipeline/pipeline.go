// Package pipeline wires the four stages — Scanner, Reorderer,
// TxidComputer, UtxoJoiner — into one running pipeline and owns their
// shared lifecycle: channel sizing, the early-stop flag, and joining
// every worker goroutine on shutdown.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/blockfile"
	"github.com/Klingon-tech/blkstream/internal/config"
	"github.com/Klingon-tech/blkstream/internal/log"
	"github.com/Klingon-tech/blkstream/internal/reorder"
	"github.com/Klingon-tech/blkstream/internal/txid"
	"github.com/Klingon-tech/blkstream/internal/utxo"
)

// Pipeline owns the four stage goroutines and the channel between each
// pair. Out is where the caller reads the final EnrichedBlock stream;
// a nil value marks end-of-stream, mirroring every internal channel.
type Pipeline struct {
	Out <-chan *blockextra.EnrichedBlock

	earlyStop *atomic.Bool
	wg        sync.WaitGroup
	errs      chan error
}

// New constructs and starts every stage goroutine per cfg, opening the
// configured UTXO backend if prevouts aren't being skipped. The
// returned Pipeline is already running; call Wait to block for
// completion and collect the first stage error, if any.
func New(cfg *config.Config) (*Pipeline, error) {
	network, err := cfg.Network.Params()
	if err != nil {
		return nil, err
	}

	size := cfg.ChannelsSize
	scanOut := make(chan *blockfile.Batch, size)
	reorderOut := make(chan *blockextra.EnrichedBlock, size)
	txidOut := make(chan *blockextra.EnrichedBlock, size)

	earlyStop := &atomic.Bool{}

	p := &Pipeline{earlyStop: earlyStop, errs: make(chan error, 4)}

	scanner := &blockfile.Scanner{
		BlocksDir:            cfg.BlocksDir,
		Magic:                uint32(network.Net),
		SerializationVersion: cfg.SerializationVersion,
		EarlyStop:            earlyStop,
		Out:                  scanOut,
	}
	p.spawn(scanner.Run)

	reorderer := &reorder.Reorderer{
		Network:         network,
		MaxReorg:        cfg.MaxReorg,
		StopAtHeight:    cfg.StopAtHeight,
		StopAtHeightSet: cfg.StopAtHeightSet,
		EarlyStop:       earlyStop,
		In:              scanOut,
		Out:             reorderOut,
	}
	p.spawn(reorderer.Run)

	computer := &txid.Computer{
		SkipPrevout:   cfg.SkipPrevout,
		StartAtHeight: cfg.StartAtHeight,
		In:            reorderOut,
		Out:           txidOut,
	}
	p.spawn(computer.Run)

	if cfg.SkipPrevout {
		// Stage 4 bypassed entirely: TxidComputer feeds the consumer directly.
		p.Out = txidOut
		return p, nil
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	joinOut := make(chan *blockextra.EnrichedBlock, size)
	joiner := &utxo.Joiner{
		Backend:       backend,
		StartAtHeight: cfg.StartAtHeight,
		In:            txidOut,
		Out:           joinOut,
	}
	p.spawn(func() error {
		defer backend.Close()
		return joiner.Run()
	})
	p.Out = joinOut

	return p, nil
}

// openBackend dispatches to the configured UTXO backend. Config holds a
// single backend choice, and config.Validate already rejects an unknown
// one, so this only selects among them.
func openBackend(cfg *config.Config) (utxo.Backend, error) {
	switch cfg.UtxoBackend {
	case config.BackendBadger:
		return utxo.OpenBadger(cfg.DefaultUtxoDBPath())
	case config.BackendBolt:
		return utxo.OpenBolt(cfg.DefaultUtxoDBPath())
	case config.BackendMemory, "":
		return utxo.NewMem(utxo.MemCapacityHint(cfg.Network)), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown utxo backend %q", cfg.UtxoBackend)
	}
}

// spawn runs fn in its own goroutine, tracked by the pipeline's
// WaitGroup, forwarding any returned error to errs.
func (p *Pipeline) spawn(fn func() error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(); err != nil {
			p.errs <- err
		}
	}()
}

// Stop sets the shared early-stop flag, asking every stage to drain
// and shut down at its next poll point rather than run to completion.
func (p *Pipeline) Stop() {
	p.earlyStop.Store(true)
}

// Wait blocks until every stage goroutine has exited, then returns the
// first error any of them reported, or nil if all exited cleanly.
func (p *Pipeline) Wait() error {
	p.wg.Wait()
	close(p.errs)
	var first error
	for err := range p.errs {
		log.Pipeline.Error().Err(err).Msg("stage exited with error")
		if first == nil {
			first = err
		}
	}
	return first
}
