package blockfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	sha256simd "github.com/minio/sha256-simd"

	"github.com/Klingon-tech/blkstream/internal/log"
	"github.com/Klingon-tech/blkstream/internal/periodic"
	"github.com/Klingon-tech/blkstream/internal/pipeerr"
)

// RollingU32 is a 4-byte sliding window built one byte at a time, used to
// scan for the network's magic number without backtracking. After pushing
// bytes m0, m1, m2, m3 in stream order, As() equals the little-endian
// interpretation of [m0, m1, m2, m3] — the same value chaincfg's magic
// constants are expressed in.
type RollingU32 struct {
	v uint32
}

// Push folds the next stream byte into the window.
func (r *RollingU32) Push(b byte) {
	r.v = r.v>>8 | uint32(b)<<24
}

// As returns the window's current value.
func (r *RollingU32) As() uint32 {
	return r.v
}

// Seen deduplicates blocks across the whole scan using a 12-byte
// fingerprint of their hash, trading a small false-positive risk for a
// much smaller memory footprint than storing full 32-byte hashes.
type Seen struct {
	seen map[[12]byte]struct{}
}

// NewSeen returns an empty dedup set.
func NewSeen() *Seen {
	return &Seen{seen: make(map[[12]byte]struct{})}
}

// Insert reports whether hash was not previously seen, recording it either way.
func (s *Seen) Insert(hash chainhash.Hash) bool {
	var fp [12]byte
	copy(fp[:], hash[:12])
	if _, ok := s.seen[fp]; ok {
		return false
	}
	s.seen[fp] = struct{}{}
	return true
}

// detectedBlock is one magic-scan hit, with byte offsets relative to the
// buffer that was scanned.
type detectedBlock struct {
	start int
	end   int
	hash  chainhash.Hash
	prev  chainhash.Hash
}

// detect scans buf for every occurrence of magic followed by a length
// field and a structurally valid block whose size matches that length.
// It never backtracks over bytes that didn't pan out: on a structural
// parse failure the scan resumes from the byte immediately after the
// matched magic; on a structural parse success (even with a mismatched
// length) the scan resumes after the parsed block. A spurious magic match
// can occur anywhere inside a previous block's script or witness data, so
// both behaviors matter for throughput and for not missing a real block
// that happens to follow a false-positive match.
func detect(buf []byte, magic uint32) []detectedBlock {
	var out []detectedBlock
	var rolling RollingU32
	pos := 0

	for pos < len(buf) {
		rolling.Push(buf[pos])
		pos++
		if rolling.As() != magic {
			continue
		}
		posAfterMagic := pos
		if posAfterMagic+4 > len(buf) {
			break
		}
		declaredLen := binary.LittleEndian.Uint32(buf[posAfterMagic : posAfterMagic+4])
		blockStart := posAfterMagic + 4

		consumed, hash, prev, err := tryParseBlock(buf[blockStart:])
		if err != nil {
			pos = posAfterMagic
			continue
		}
		blockEnd := blockStart + consumed
		pos = blockEnd
		if uint32(consumed) != declaredLen {
			continue
		}
		out = append(out, detectedBlock{start: blockStart, end: blockEnd, hash: hash, prev: prev})
	}
	return out
}

// blockHeaderSize is the fixed wire size of a Bitcoin block header.
const blockHeaderSize = 80

// tryParseBlock attempts to structurally decode a block at the start of
// buf, returning the number of bytes it consumed and its header hash /
// parent hash. An error means buf doesn't begin with a well-formed block;
// the caller does not treat this as fatal.
//
// The header hash is computed directly from the raw header bytes with
// sha256-simd rather than via wire.BlockHeader.BlockHash(): this runs
// once per magic hit across the whole corpus, making it the hottest
// hashing call in the Scanner.
func tryParseBlock(buf []byte) (consumed int, hash, prev chainhash.Hash, err error) {
	if len(buf) < blockHeaderSize {
		return 0, hash, prev, fmt.Errorf("buffer shorter than a block header")
	}
	r := bytes.NewReader(buf)
	var hdr wire.BlockHeader
	if err := hdr.Deserialize(r); err != nil {
		return 0, hash, prev, err
	}
	txCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, hash, prev, err
	}
	for i := uint64(0); i < txCount; i++ {
		var tx wire.MsgTx
		if err := tx.Deserialize(r); err != nil {
			return 0, hash, prev, err
		}
	}
	consumed = len(buf) - r.Len()
	return consumed, doubleSHA256(buf[:blockHeaderSize]), hdr.PrevBlock, nil
}

// doubleSHA256 hashes b twice with the accelerated sha256-simd
// implementation, matching the double-SHA256 block/tx id definition.
func doubleSHA256(b []byte) chainhash.Hash {
	first := sha256simd.Sum256(b)
	return chainhash.Hash(sha256simd.Sum256(first[:]))
}

// Batch is one block file's worth of detected, deduplicated refs, or nil
// as the stage's shutdown sentinel.
type Batch struct {
	Path string
	Refs []*FileBlockRef
}

// Scanner is the pipeline's first stage: it walks every blk*.dat file in
// a directory, locates block boundaries by magic-number scanning, and
// emits one Batch per file over Out. It sends a final nil Batch to signal
// completion on every exit, including an early stop or an error.
type Scanner struct {
	BlocksDir            string
	Magic                uint32
	SerializationVersion uint8
	EarlyStop            *atomic.Bool
	Out                  chan<- *Batch
}

// Run executes the scan loop. It blocks until every block file has been
// processed, the early-stop flag is observed, or an unrecoverable I/O
// error occurs.
func (s *Scanner) Run() error {
	logger := log.Scanner
	paths, err := s.listBlockFiles()
	if err != nil {
		s.Out <- nil
		return err
	}
	if len(paths) == 0 {
		s.Out <- nil
		return fmt.Errorf("%w: no blk*.dat files found under %s", pipeerr.ErrCorpusAnomaly, s.BlocksDir)
	}

	seen := NewSeen()
	clock := periodic.New(60 * time.Second)
	var totalBlocks int

	for _, path := range paths {
		if s.EarlyStop != nil && s.EarlyStop.Load() {
			logger.Info().Msg("early stop observed, scanner exiting before end of corpus")
			break
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			s.Out <- nil
			return fmt.Errorf("%w: read %s: %v", pipeerr.ErrIoFailure, path, err)
		}

		hits := detect(raw, s.Magic)
		raw = nil // the buffer is no longer needed; refs read from the reopened handle

		shared, err := OpenSharedFile(path)
		if err != nil {
			s.Out <- nil
			return fmt.Errorf("%w: %v", pipeerr.ErrIoFailure, err)
		}

		refs := make([]*FileBlockRef, 0, len(hits))
		for _, h := range hits {
			if !seen.Insert(h.hash) {
				continue
			}
			refs = append(refs, &FileBlockRef{
				File:                 shared,
				Start:                h.start,
				End:                  h.end,
				Hash:                 h.hash,
				PrevHash:             h.prev,
				SerializationVersion: s.SerializationVersion,
			})
		}
		totalBlocks += len(refs)

		if clock.Elapsed() {
			logger.Info().Str("file", path).Int("blocks", len(refs)).Int("total", totalBlocks).Msg("scanning")
		}

		if s.EarlyStop != nil && s.EarlyStop.Load() {
			logger.Info().Msg("early stop observed, dropping partially scanned file")
			break
		}
		s.Out <- &Batch{Path: path, Refs: refs}
	}

	// Every early-stop exit above breaks out of the loop to here, and every
	// error return above sends the sentinel itself; the nil sentinel always
	// reaches downstream stages so a blocked Reorderer receive can never
	// deadlock on early stop.
	s.Out <- nil
	return nil
}

// listBlockFiles returns every blk*.dat path under BlocksDir, sorted
// lexicographically so files are scanned in the order Bitcoin Core wrote them.
func (s *Scanner) listBlockFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.BlocksDir, "blk*.dat"))
	if err != nil {
		return nil, fmt.Errorf("%w: glob %s: %v", pipeerr.ErrIoFailure, s.BlocksDir, err)
	}
	sort.Strings(matches)
	return matches, nil
}
