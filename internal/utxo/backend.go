// Package utxo implements the UtxoJoiner stage and its three
// interchangeable backends: in-memory, badger-backed LSM, and
// bbolt-backed B-tree.
package utxo

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
)

// Backend is the UTXO store contract shared by all three implementations.
// AddOutputsGetInputs both inserts a block's new outputs and resolves the
// prevouts of its existing inputs, in one pass, because the two are
// coupled: an output created and spent within the same block is resolved
// in the same call (Badger and Bolt serve it from a per-block map and
// never write it to the store; Mem inserts it and removes it again).
type Backend interface {
	AddOutputsGetInputs(eb *blockextra.EnrichedBlock, height uint32) ([]wire.TxOut, error)
	Stat() string
	Close() error
}
