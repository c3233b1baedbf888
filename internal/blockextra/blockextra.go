// Package blockextra defines the EnrichedBlock record emitted by the
// pipeline, its derived statistics, and its external wire encoding.
package blockextra

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// EnrichedBlock is the record emitted once per block by the pipeline.
// It is born in the Reorderer, decorated by TxidComputer and UtxoJoiner,
// and consumed once by the caller.
type EnrichedBlock struct {
	// Version is the serialization format used for the external wire
	// encoding of this record (0 or 1); it does not affect in-memory use.
	Version uint8

	// BlockBytes is the raw serialized block, exactly as read from the
	// block file. Callers that only need header fields or a structural
	// decode call Block(); most of the pipeline's hot path never does.
	BlockBytes []byte

	// BlockHash is the double-SHA256 of the block header, cached at
	// scan time so downstream stages never recompute it.
	BlockHash chainhash.Hash

	// Size is len(BlockBytes).
	Size uint32

	// Next holds the hash(es) of the block(s) immediately following this
	// one. During reordering more than one entry may be buffered because
	// of pending forks; by the time a block is released this always
	// holds exactly one entry (or zero, for the current chain tip).
	Next []chainhash.Hash

	// Height is the number of blocks between this one and genesis.
	// 0 == genesis. Assigned monotonically by the Reorderer.
	Height uint32

	// OutpointValues maps every outpoint spent by this block's
	// non-coinbase inputs to the TxOut it referenced, plus one synthetic
	// entry for the coinbase's null outpoint whose value is the coinbase's
	// output total. Empty when the pipeline is configured with skip_prevout.
	OutpointValues map[wire.OutPoint]wire.TxOut

	// TotalInputs and TotalOutputs count every TxIn/TxOut across every
	// transaction in the block, including the coinbase.
	TotalInputs  uint32
	TotalOutputs uint32

	// Txids holds one entry per transaction, in block order: Txids[i]
	// is the txid of the i-th transaction in the decoded block.
	Txids []chainhash.Hash
}

// Block decodes BlockBytes into a structural wire.MsgBlock. This is an
// expensive operation — callers should cache the result rather than call
// it repeatedly.
func (b *EnrichedBlock) Block() (*wire.MsgBlock, error) {
	msg := &wire.MsgBlock{}
	if err := msg.Deserialize(bytes.NewReader(b.BlockBytes)); err != nil {
		return nil, fmt.Errorf("decode block %s: %w", b.BlockHash, err)
	}
	return msg, nil
}

// BlockTotalTxs returns the number of transactions in the block, derived
// from len(Txids) rather than stored separately.
func (b *EnrichedBlock) BlockTotalTxs() int {
	return len(b.Txids)
}

// Fee returns the total fee of the block: sum of every non-coinbase
// input's prevout value minus the sum of every non-coinbase output
// value. Returns (0, false) if a non-coinbase input has no entry in
// OutpointValues (so with skip_prevout, for any block with a non-coinbase
// transaction; a coinbase-only block yields (0, true)), if inputs total
// less than outputs, or if the block has no decodable transactions.
func (b *EnrichedBlock) Fee() (uint64, bool) {
	blk, err := b.Block()
	if err != nil || len(blk.Transactions) == 0 {
		return 0, false
	}
	var inputTotal, outputTotal int64
	for txi, tx := range blk.Transactions {
		isCoinbase := txi == 0 && isCoinbaseTx(tx)
		for _, out := range tx.TxOut {
			outputTotal += out.Value
		}
		if isCoinbase {
			continue
		}
		for _, in := range tx.TxIn {
			out, ok := b.OutpointValues[in.PreviousOutPoint]
			if !ok {
				return 0, false
			}
			inputTotal += out.Value
		}
	}
	// Coinbase output value is newly minted, not a fee component; offset it
	// back out since the loop above counted every tx's outputs.
	for _, out := range blk.Transactions[0].TxOut {
		outputTotal -= out.Value
	}
	if inputTotal < outputTotal {
		return 0, false
	}
	return uint64(inputTotal - outputTotal), true
}

// AverageFee returns Fee() divided by the number of transactions in the
// block, or (0, false) under the same conditions as Fee.
func (b *EnrichedBlock) AverageFee() (float64, bool) {
	total, ok := b.Fee()
	if !ok || b.BlockTotalTxs() == 0 {
		return 0, false
	}
	return float64(total) / float64(b.BlockTotalTxs()), true
}

// TxFee returns the fee paid by a single non-coinbase transaction, using
// this block's OutpointValues to resolve its inputs' prevouts.
func (b *EnrichedBlock) TxFee(tx *wire.MsgTx) (uint64, bool) {
	var outputTotal int64
	for _, out := range tx.TxOut {
		outputTotal += out.Value
	}
	var inputTotal int64
	for _, in := range tx.TxIn {
		out, ok := b.OutpointValues[in.PreviousOutPoint]
		if !ok {
			return 0, false
		}
		inputTotal += out.Value
	}
	if inputTotal < outputTotal {
		return 0, false
	}
	return uint64(inputTotal - outputTotal), true
}

// isCoinbaseTx reports whether tx has the single null-outpoint input that
// marks a coinbase transaction.
func isCoinbaseTx(tx *wire.MsgTx) bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prev := tx.TxIn[0].PreviousOutPoint
	return prev.Index == 0xffffffff && prev.Hash == (chainhash.Hash{})
}

// halvingInterval is the number of blocks between successive reward halvings.
const halvingInterval = 210_000

// initialReward is the coinbase subsidy at height 0, in satoshis.
const initialReward = 50 * 100_000_000

// BaseReward returns the consensus block subsidy at this block's height,
// ignoring fees. Halves every halvingInterval blocks.
func (b *EnrichedBlock) BaseReward() uint64 {
	halvings := b.Height / halvingInterval
	if halvings >= 64 {
		return 0
	}
	return initialReward >> halvings
}

// TxWithID pairs a decoded transaction with its precomputed txid.
type TxWithID struct {
	Txid chainhash.Hash
	Tx   *wire.MsgTx
}

// IterTx decodes the block and zips its transactions with their
// precomputed Txids. Requires a full block decode; prefer operating on
// Txids directly when the transaction bodies aren't needed.
func (b *EnrichedBlock) IterTx() ([]TxWithID, error) {
	blk, err := b.Block()
	if err != nil {
		return nil, err
	}
	n := len(blk.Transactions)
	if n > len(b.Txids) {
		n = len(b.Txids)
	}
	out := make([]TxWithID, n)
	for i := 0; i < n; i++ {
		out[i] = TxWithID{Txid: b.Txids[i], Tx: blk.Transactions[i]}
	}
	return out, nil
}
