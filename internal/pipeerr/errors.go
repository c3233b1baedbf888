// Package pipeerr defines the error taxonomy shared across pipeline stages.
package pipeerr

import "errors"

// Sentinel errors, wrapped with context via fmt.Errorf("...: %w", err).
var (
	// ErrCorpusAnomaly marks a fatal structural problem with the on-disk
	// corpus itself: a DAG grown past its bounded-reorg ceiling, or a
	// blocks directory with no blk*.dat files at all.
	ErrCorpusAnomaly = errors.New("corpus anomaly")

	// ErrIoFailure marks a fatal I/O problem: a block file became
	// unreadable mid-run, or a KV-store write failed.
	ErrIoFailure = errors.New("io failure")

	// ErrParseFailure (post-release) marks fatal payload corruption:
	// a header-hash mismatch or truncated payload after the scanner
	// already accepted the block's length field. Indicates a torn write.
	ErrParseFailure = errors.New("parse failure")

	// ErrConfigConflict marks a startup-time configuration error, e.g.
	// an unrecognized network or UTXO backend.
	ErrConfigConflict = errors.New("config conflict")
)

// DuplicateBlock is not an error — it is a silently-dropped condition
// signaled to callers that want to count it, not propagate it.
type DuplicateBlock struct {
	FingerprintHex string
}

func (d *DuplicateBlock) Error() string {
	return "duplicate block fingerprint " + d.FingerprintHex
}
