package blockfile

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// FileBlockRef is everything the Scanner knows about one on-disk block
// before the Reorderer assigns it a height: where its payload lives, its
// own hash, its parent's hash, and (once the Reorderer has seen enough of
// the file) the hash(es) of blocks that claim it as their parent.
//
// The payload itself is never copied out of the block file during
// scanning; Start/End are byte offsets into File, read on demand.
type FileBlockRef struct {
	File *SharedFile

	// Start and End bound the block's serialized bytes (header + transactions)
	// within File, excluding the magic and length-prefix fields.
	Start int
	End   int

	Hash     chainhash.Hash
	PrevHash chainhash.Hash

	// Successors accumulates the hashes of blocks discovered to point at
	// this one via their PrevHash. Most entries never exceed length 1; a
	// length greater than 1 means a fork is pending at this height.
	Successors []chainhash.Hash

	// SerializationVersion is the wire format this ref's EnrichedBlock will
	// be encoded with once released (see blockextra.Encode).
	SerializationVersion uint8
}

// Payload reads the block's raw bytes from its backing file.
func (r *FileBlockRef) Payload() ([]byte, error) {
	return r.File.ReadAt(r.Start, r.End)
}

// AddSuccessor records that hash was seen to claim r as its parent, if it
// isn't already recorded.
func (r *FileBlockRef) AddSuccessor(hash chainhash.Hash) {
	for _, h := range r.Successors {
		if h == hash {
			return
		}
	}
	r.Successors = append(r.Successors, hash)
}
