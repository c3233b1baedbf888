package reorder

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/blockfile"
	"github.com/Klingon-tech/blkstream/internal/log"
	"github.com/Klingon-tech/blkstream/internal/periodic"
	"github.com/Klingon-tech/blkstream/internal/pipeerr"
)

// maxBlocksToReorder is a hard ceiling on the DAG's buffered-block count.
// Real reorgs rarely exceed a handful of blocks; 10,000 would only be hit
// by a corrupted or adversarially ordered corpus.
const maxBlocksToReorder = 10_000

// Reorderer is the pipeline's second stage. It buffers FileBlockRefs from
// the Scanner into a DAG and releases them in chain order as EnrichedBlocks,
// stamping each with its height.
type Reorderer struct {
	Network          *chaincfg.Params
	MaxReorg         uint32
	StopAtHeight     uint32
	StopAtHeightSet  bool
	EarlyStop        *atomic.Bool
	In               <-chan *blockfile.Batch
	Out              chan<- *blockextra.EnrichedBlock
}

// Run executes the reorder loop until the input closes (a nil Batch, or
// the channel closing), an unrecoverable parse error occurs, or the DAG
// grows past maxBlocksToReorder.
func (r *Reorderer) Run() error {
	logger := log.Reorder
	logger.Info().Msg("starting reorder")

	next := chainhash.Hash{}
	if r.Network.GenesisHash != nil {
		next = *r.Network.GenesisHash
	}

	dag := NewDAG(r.MaxReorg)
	var height uint32
	clock := periodic.New(60 * time.Second)
	bench := periodic.NewCounter(10 * time.Second)

outer:
	for {
		batch, ok := <-r.In
		if !ok || batch == nil {
			break
		}
		if r.EarlyStop.Load() {
			break
		}

		for _, ref := range batch.Refs {
			if clock.Elapsed() {
				logger.Info().
					Str("receive", ref.Hash.String()).
					Int("buffered", dag.Len()).
					Int("follows", dag.FollowsLen()).
					Str("next", next.String()).
					Msg("reorder")
			}

			if dag.Len() > maxBlocksToReorder {
				return fmt.Errorf("%w: reorder DAG grew past %d entries awaiting %s", pipeerr.ErrCorpusAnomaly, maxBlocksToReorder, next)
			}
			dag.Add(ref)

			for {
				released, fork, ok := dag.Release(next)
				if !ok {
					break
				}
				if fork {
					logger.Warn().Str("at", next.String()).Strs("candidates", hashStrings(released.Successors)).Msg("fork collapsed to single successor")
				}

				eb, err := materialize(released, height)
				if err != nil {
					return err
				}
				next = released.Successors[0]
				dag.ForgetFollows(released.Hash)
				dag.ForgetBlock(released.PrevHash)

				bench.CountBlock(uint64(eb.BlockTotalTxs()))
				if stats, ok := bench.PeriodElapsed(); ok {
					logger.Info().Uint32("height", height).Str("hash", eb.BlockHash.String()).Msg("released")
					logger.Info().Msg(stats.String())
				}

				r.Out <- eb
				height++
				if r.StopAtHeightSet && height > r.StopAtHeight {
					logger.Info().Uint32("height", r.StopAtHeight).Msg("reached configured stop height")
					r.EarlyStop.Store(true)
					break outer
				}
			}
		}
	}

	logger.Info().Int("pending", dag.Len()).Int("follows", dag.FollowsLen()).Str("next", next.String()).Msg("ending reorder")
	r.Out <- nil
	return nil
}

// materialize reads a released ref's payload, verifies its header still
// hashes to the value recorded at scan time, and builds the EnrichedBlock
// the rest of the pipeline operates on.
func materialize(ref *blockfile.FileBlockRef, height uint32) (*blockextra.EnrichedBlock, error) {
	payload, err := ref.Payload()
	if err != nil {
		return nil, err
	}

	msg := &wire.MsgBlock{}
	if err := msg.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: decode block %s: %v", pipeerr.ErrParseFailure, ref.Hash, err)
	}
	if got := msg.Header.BlockHash(); got != ref.Hash {
		return nil, fmt.Errorf("%w: block %s header hash mismatch after reorder (got %s)", pipeerr.ErrParseFailure, ref.Hash, got)
	}

	var totalIn, totalOut uint32
	for _, tx := range msg.Transactions {
		totalIn += uint32(len(tx.TxIn))
		totalOut += uint32(len(tx.TxOut))
	}

	return &blockextra.EnrichedBlock{
		Version:      ref.SerializationVersion,
		BlockBytes:   payload,
		BlockHash:    ref.Hash,
		Size:         uint32(len(payload)),
		Next:         append([]chainhash.Hash{}, ref.Successors...),
		Height:       height,
		TotalInputs:  totalIn,
		TotalOutputs: totalOut,
	}, nil
}

func hashStrings(hs []chainhash.Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}
