package pipeio

import (
	"bytes"
	"io"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
)

func sampleBlock(height uint32) *blockextra.EnrichedBlock {
	return &blockextra.EnrichedBlock{
		BlockBytes:   make([]byte, 81), // all-zero 80-byte header plus a zero tx count, decodable at version 0
		BlockHash:    chainhash.Hash{0xaa},
		Height:       height,
		Next:         []chainhash.Hash{{0xbb}},
		TotalInputs:  1,
		TotalOutputs: 1,
		Txids:        []chainhash.Hash{{0xcc}},
	}
}

func TestReader_DecodesWithoutPassthrough(t *testing.T) {
	var wire bytes.Buffer
	if err := blockextra.Encode(&wire, sampleBlock(7), 1); err != nil {
		t.Fatalf("encode: %v", err)
	}

	r := NewReader(&wire, nil, 1)
	eb, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if eb.Height != 7 {
		t.Errorf("Height = %d, want 7", eb.Height)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("second Next() = %v, want io.EOF", err)
	}
}

func TestReader_PassthroughReencodesEveryBlock(t *testing.T) {
	var wire bytes.Buffer
	if err := blockextra.Encode(&wire, sampleBlock(3), 0); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out bytes.Buffer
	r := NewReader(&wire, &out, 1)
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	reDecoded, err := blockextra.Decode(&out)
	if err != nil {
		t.Fatalf("decode passthrough output: %v", err)
	}
	if reDecoded.Height != 3 {
		t.Errorf("passthrough Height = %d, want 3", reDecoded.Height)
	}
	if reDecoded.Version != 1 {
		t.Errorf("passthrough Version = %d, want 1 (the reader's output version)", reDecoded.Version)
	}
}

func TestReader_MultipleBlocksInSequence(t *testing.T) {
	var wire bytes.Buffer
	for h := uint32(0); h < 3; h++ {
		if err := blockextra.Encode(&wire, sampleBlock(h), 1); err != nil {
			t.Fatalf("encode %d: %v", h, err)
		}
	}

	r := NewReader(&wire, nil, 1)
	for h := uint32(0); h < 3; h++ {
		eb, err := r.Next()
		if err != nil {
			t.Fatalf("Next at %d: %v", h, err)
		}
		if eb.Height != h {
			t.Errorf("Height = %d, want %d", eb.Height, h)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("final Next() = %v, want io.EOF", err)
	}
}
