// Package pipeio lets a downstream consumer read EnrichedBlocks from a
// Unix-style pipe and optionally forward them unchanged to the next
// process in the chain, so pipeline stages can be composed as separate
// OS processes rather than only as goroutines in one binary.
package pipeio

import (
	"bufio"
	"fmt"
	"io"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
)

// maxEnrichedBlockSize is the capacity of the re-encode buffer allocated
// up front when tee-ing to an output writer; a block too large for it gets
// a larger buffer from growBuffer.
const maxEnrichedBlockSize = 10 * 1024 * 1024

// Reader decodes a stream of EnrichedBlocks from an underlying reader
// (typically os.Stdin), optionally re-encoding each one to an output
// writer (typically os.Stdout) as it's consumed.
type Reader struct {
	r       *bufio.Reader
	w       io.Writer
	version uint8
	buf     []byte
}

// NewReader wraps r. If w is non-nil, every block read through Next is
// re-encoded to w before being returned, at the given serialization
// version — letting a process sit transparently in the middle of a
// pipeline while still consuming the stream itself.
func NewReader(r io.Reader, w io.Writer, version uint8) *Reader {
	var buf []byte
	if w != nil {
		buf = make([]byte, 0, maxEnrichedBlockSize)
	}
	return &Reader{r: bufio.NewReader(r), w: w, version: version, buf: buf}
}

// Next decodes and returns the next EnrichedBlock, or io.EOF once the
// stream is exhausted.
func (p *Reader) Next() (*blockextra.EnrichedBlock, error) {
	if _, err := p.r.Peek(1); err == io.EOF {
		return nil, io.EOF
	}
	eb, err := blockextra.Decode(p.r)
	if err != nil {
		return nil, err
	}

	if p.w != nil {
		buf := growBuffer(p.buf, len(eb.BlockBytes))
		w := newBoundedWriter(buf)
		if err := blockextra.Encode(w, eb, p.version); err != nil {
			return nil, fmt.Errorf("pipeio: re-encode for passthrough: %w", err)
		}
		if _, err := p.w.Write(w.bytes()); err != nil {
			return nil, fmt.Errorf("pipeio: write passthrough: %w", err)
		}
	}

	return eb, nil
}

// growBuffer returns buf, or a larger replacement if the block alone
// would leave little headroom for the record's fixed-size fields.
func growBuffer(buf []byte, blockSize int) []byte {
	need := blockSize + 4096
	if cap(buf) < need {
		return make([]byte, 0, need)
	}
	return buf[:0]
}

// boundedWriter accumulates writes into a pre-sized slice without
// allocating per Write call, the same role self.buffer plays opposite
// a zero-copy stdout write.
type boundedWriter struct{ buf []byte }

func newBoundedWriter(buf []byte) *boundedWriter { return &boundedWriter{buf: buf} }

func (b *boundedWriter) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedWriter) bytes() []byte { return b.buf }
