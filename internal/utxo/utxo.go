package utxo

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/log"
)

// coinbaseOutpoint is the null outpoint every coinbase transaction's sole
// input references.
var coinbaseOutpoint = wire.OutPoint{Hash: chainhash.Hash{}, Index: 0xffffffff}

// Joiner is the pipeline's fourth stage. Per block, it asks Backend to
// resolve every non-coinbase input's prevout and inserts the block's new
// outputs, then assembles eb.OutpointValues from the result plus a
// synthetic entry for the coinbase input — so a downstream consumer that
// naively sums inputs minus outputs over OutpointValues gets a correct
// fee for every transaction, coinbase included, without special-casing it.
type Joiner struct {
	Backend Backend

	// StartAtHeight withholds blocks below this height from Out. The
	// backend still joins every block regardless, since later heights'
	// UTXO correctness depends on every earlier output/input having been
	// recorded — only the emitted stream is truncated.
	StartAtHeight uint32

	In  <-chan *blockextra.EnrichedBlock
	Out chan<- *blockextra.EnrichedBlock
}

// Run drains In, joining each block against the UTXO backend, until a
// nil sentinel arrives or the channel closes.
func (j *Joiner) Run() error {
	logger := log.Utxo
	logger.Info().Msg("starting utxo join")

	for {
		eb, ok := <-j.In
		if !ok || eb == nil {
			break
		}
		if err := j.process(eb); err != nil {
			return err
		}
		if eb.Height < j.StartAtHeight {
			continue
		}
		j.Out <- eb
	}

	logger.Info().Msg(j.Backend.Stat())
	logger.Info().Msg("ending utxo join")
	j.Out <- nil
	return nil
}

func (j *Joiner) process(eb *blockextra.EnrichedBlock) error {
	prevouts, err := j.Backend.AddOutputsGetInputs(eb, eb.Height)
	if err != nil {
		return fmt.Errorf("utxo join at height %d: %w", eb.Height, err)
	}

	blk, err := eb.Block()
	if err != nil {
		return err
	}

	outpointValues := make(map[wire.OutPoint]wire.TxOut, len(prevouts)+1)
	if len(blk.Transactions) > 0 {
		var coinbaseTotal int64
		for _, out := range blk.Transactions[0].TxOut {
			coinbaseTotal += out.Value
		}
		outpointValues[coinbaseOutpoint] = wire.TxOut{Value: coinbaseTotal}

		i := 0
		for _, tx := range blk.Transactions[1:] {
			for _, in := range tx.TxIn {
				if i >= len(prevouts) {
					return fmt.Errorf("utxo join at height %d: backend returned %d prevouts, need more", eb.Height, len(prevouts))
				}
				outpointValues[in.PreviousOutPoint] = prevouts[i]
				i++
			}
		}
	}

	eb.OutpointValues = outpointValues
	return nil
}
