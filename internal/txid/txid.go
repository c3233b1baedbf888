// Package txid implements the TxidComputer stage: a stateless per-block
// transformation that fills in each EnrichedBlock's Txids.
package txid

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/log"
	"github.com/Klingon-tech/blkstream/internal/pipeerr"
)

// Computer is the pipeline's third stage. For each released block it
// decodes the transactions and computes their non-witness txids (the
// double-SHA256 of each transaction's legacy serialization), in block
// order. CPU-heavy and embarrassingly parallel within and across blocks,
// so it runs as its own stage to overlap with Scanner I/O and the
// UtxoJoiner's store cost.
type Computer struct {
	// SkipPrevout and StartAtHeight together implement the skip-condition:
	// below the configured start height, txids aren't needed downstream
	// (the UtxoJoiner stage is bypassed entirely), so computing them
	// would be wasted work on the pre-window prefix.
	SkipPrevout   bool
	StartAtHeight uint32

	In  <-chan *blockextra.EnrichedBlock
	Out chan<- *blockextra.EnrichedBlock
}

// Run drains In, computing txids for each block, until a nil sentinel
// arrives or the channel closes; it then forwards the sentinel and returns.
func (c *Computer) Run() error {
	logger := log.Txid
	logger.Info().Msg("starting txid")

	for {
		eb, ok := <-c.In
		if !ok || eb == nil {
			break
		}

		if c.SkipPrevout && eb.Height < c.StartAtHeight {
			c.Out <- eb
			continue
		}

		if err := compute(eb); err != nil {
			return err
		}
		c.Out <- eb
	}

	logger.Info().Msg("ending txid")
	c.Out <- nil
	return nil
}

// compute decodes eb's block and fills Txids with one entry per
// transaction, in the same order as the decoded transaction list.
func compute(eb *blockextra.EnrichedBlock) error {
	blk, err := eb.Block()
	if err != nil {
		return fmt.Errorf("%w: %v", pipeerr.ErrParseFailure, err)
	}
	txids := make([]chainhash.Hash, len(blk.Transactions))
	for i, tx := range blk.Transactions {
		txids[i] = tx.TxHash()
	}
	eb.Txids = txids
	return nil
}
