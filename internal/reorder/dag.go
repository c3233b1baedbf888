// Package reorder implements the Reorderer stage: buffering out-of-order
// FileBlockRefs into a DAG keyed by block hash and releasing them in
// chain order once enough descendants exist to make a fork unlikely.
package reorder

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/blkstream/internal/blockfile"
)

// DAG buffers blocks that have been scanned but not yet released in chain
// order. A block is released once a bounded depth-first walk down its
// successor chain reaches maxReorg hops; ties between sibling forks are
// broken by trying successors in the order they were discovered
// (first-path-wins) rather than by comparing chain work, which this
// system has no cheap way to compute.
type DAG struct {
	blocks   map[chainhash.Hash]*blockfile.FileBlockRef
	follows  map[chainhash.Hash][]chainhash.Hash
	maxReorg uint32
}

// NewDAG returns an empty DAG requiring maxReorg confirmations before release.
func NewDAG(maxReorg uint32) *DAG {
	return &DAG{
		blocks:   make(map[chainhash.Hash]*blockfile.FileBlockRef),
		follows:  make(map[chainhash.Hash][]chainhash.Hash),
		maxReorg: maxReorg,
	}
}

// Add inserts ref into the DAG, wiring it to both its parent (if already
// present) and any children that arrived claiming ref's hash as their
// parent before ref itself arrived.
func (d *DAG) Add(ref *blockfile.FileBlockRef) {
	prevHash := ref.PrevHash
	d.follows[prevHash] = append(d.follows[prevHash], ref.Hash)

	if waiting, ok := d.follows[ref.Hash]; ok {
		for _, h := range waiting {
			ref.AddSuccessor(h)
		}
		delete(d.follows, ref.Hash)
	}

	if prevRef, ok := d.blocks[prevHash]; ok {
		prevRef.AddSuccessor(ref.Hash)
	}

	d.blocks[ref.Hash] = ref
}

// Release removes and returns the block identified by hash if it has at
// least maxReorg confirmed descendants along some path, collapsing its
// successor set down to the single hash chosen by that path. fork
// reports whether more than one successor existed (a reorg candidate was
// pending at this block). ok is false if hash isn't ready yet (or unknown).
func (d *DAG) Release(hash chainhash.Hash) (ref *blockfile.FileBlockRef, fork bool, ok bool) {
	chosen, found := d.chosenSuccessor(hash)
	if !found {
		return nil, false, false
	}
	ref = d.blocks[hash]
	delete(d.blocks, hash)
	fork = len(ref.Successors) > 1
	ref.Successors = []chainhash.Hash{chosen}
	return ref, fork, true
}

// chosenSuccessor reports whether hash has a descendant chain at least
// maxReorg blocks deep, and if so, which immediate successor that chain
// starts with.
func (d *DAG) chosenSuccessor(hash chainhash.Hash) (chainhash.Hash, bool) {
	return d.walk(hash, 0, chainhash.Hash{})
}

func (d *DAG) walk(hash chainhash.Hash, depth uint32, first chainhash.Hash) (chainhash.Hash, bool) {
	if depth == d.maxReorg {
		return first, true
	}
	block, ok := d.blocks[hash]
	if !ok {
		return chainhash.Hash{}, false
	}
	for _, next := range block.Successors {
		nextFirst := first
		if depth == 0 {
			nextFirst = next
		}
		if found, ok := d.walk(next, depth+1, nextFirst); ok {
			return found, true
		}
	}
	return chainhash.Hash{}, false
}

// ForgetFollows drops any pending-children registration for hash; called
// after a release since that bookkeeping no longer serves a purpose.
func (d *DAG) ForgetFollows(hash chainhash.Hash) {
	delete(d.follows, hash)
}

// ForgetBlock drops hash from the block map without requiring it be
// ready for release; used to clean up a just-released block's parent
// entry, which release's own accounting doesn't otherwise reach.
func (d *DAG) ForgetBlock(hash chainhash.Hash) {
	delete(d.blocks, hash)
}

// Len is the number of buffered, not-yet-released blocks.
func (d *DAG) Len() int {
	return len(d.blocks)
}

// FollowsLen is the number of pending parent-hash registrations.
func (d *DAG) FollowsLen() int {
	return len(d.follows)
}
