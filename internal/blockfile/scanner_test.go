package blockfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func TestRollingU32_SlidesInMagicByteOrder(t *testing.T) {
	var r RollingU32
	r.Push(0x0B)
	if r.As() != 0x0B000000 {
		t.Fatalf("after push(0x0B) = %#x, want 0x0B000000", r.As())
	}
	r.Push(0x11)
	if r.As() != 0x110B0000 {
		t.Fatalf("after push(0x11) = %#x, want 0x110B0000", r.As())
	}
	r.Push(0x09)
	if r.As() != 0x09110B00 {
		t.Fatalf("after push(0x09) = %#x, want 0x09110B00", r.As())
	}
	r.Push(0x07)
	if r.As() != 0x0709110B {
		t.Fatalf("after push(0x07) = %#x, want 0x0709110B", r.As())
	}
}

func TestRollingU32_MatchesMagicEncodedLittleEndian(t *testing.T) {
	const magic = uint32(0xD9B4BEF9)
	var magicBytes [4]byte
	binary.LittleEndian.PutUint32(magicBytes[:], magic)

	var r RollingU32
	for _, b := range magicBytes {
		r.Push(b)
	}
	if r.As() != magic {
		t.Fatalf("As() = %#x after pushing magic's LE bytes, want %#x", r.As(), magic)
	}
}

// buildRecord serializes a minimal zero-transaction block preceded by a
// magic number and length field, the same layout a blk*.dat file uses.
func buildRecord(t *testing.T, magic uint32) []byte {
	t.Helper()
	hdr := wire.BlockHeader{Timestamp: time.Unix(0, 0)}
	var hdrBuf bytes.Buffer
	if err := hdr.Serialize(&hdrBuf); err != nil {
		t.Fatalf("serialize header: %v", err)
	}
	block := append(append([]byte{}, hdrBuf.Bytes()...), 0x00) // 80-byte header + 0 txs (varint)

	var rec bytes.Buffer
	var magicBytes [4]byte
	binary.LittleEndian.PutUint32(magicBytes[:], magic)
	rec.Write(magicBytes[:])
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(block)))
	rec.Write(lenBytes[:])
	rec.Write(block)
	return rec.Bytes()
}

func TestDetect_SingleRecord(t *testing.T) {
	const magic = uint32(0xD9B4BEF9)
	buf := buildRecord(t, magic)

	hits := detect(buf, magic)
	if len(hits) != 1 {
		t.Fatalf("detect() found %d blocks, want 1", len(hits))
	}
	if hits[0].start != 8 {
		t.Errorf("start = %d, want 8", hits[0].start)
	}
	if hits[0].end != len(buf) {
		t.Errorf("end = %d, want %d", hits[0].end, len(buf))
	}
}

func TestDetect_SpuriousMagicInPaddingDoesNotDerail(t *testing.T) {
	const magic = uint32(0xD9B4BEF9)
	rec1 := buildRecord(t, magic)
	rec2 := buildRecord(t, magic)

	// Zero-padding between real records (as blk*.dat files have) happens
	// to contain a spurious occurrence of the magic bytes; it must not
	// prevent rec2 from being found afterward.
	var magicBytes [4]byte
	binary.LittleEndian.PutUint32(magicBytes[:], magic)
	var buf bytes.Buffer
	buf.Write(rec1)
	buf.Write(magicBytes[:])
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // not a valid length/block, scan must recover
	// 80 header bytes then a tx count of 1; that tx runs into rec2 and fails
	// to decode, so the spurious match is a parse failure.
	buf.Write(bytes.Repeat([]byte{0x01}, 81))
	buf.Write(rec2)

	hits := detect(buf.Bytes(), magic)
	if len(hits) != 2 {
		t.Fatalf("detect() found %d blocks, want 2 (got %+v)", len(hits), hits)
	}
}

func TestDetect_TruncatedTrailingRecordIgnored(t *testing.T) {
	const magic = uint32(0xD9B4BEF9)
	rec := buildRecord(t, magic)
	truncated := rec[:len(rec)-5]

	hits := detect(truncated, magic)
	if len(hits) != 0 {
		t.Fatalf("detect() found %d blocks in truncated input, want 0", len(hits))
	}
}

func TestSeen_DedupesByTwelveByteFingerprint(t *testing.T) {
	s := NewSeen()
	var h chainhash.Hash
	h[0] = 0xAB

	if !s.Insert(h) {
		t.Fatal("first Insert() of a new hash should return true")
	}
	if s.Insert(h) {
		t.Fatal("second Insert() of the same hash should return false")
	}

	var h2 chainhash.Hash
	h2[0] = 0xCD
	if !s.Insert(h2) {
		t.Fatal("Insert() of a distinct hash should return true")
	}
}

// writeBlkFile writes a single-record blk*.dat file under dir.
func writeBlkFile(t *testing.T, dir, name string, magic uint32) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), buildRecord(t, magic), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// TestScanner_SendsSentinelWhenEarlyStopSetBeforeFirstFile exercises the
// early-stop branch that runs before any file is read: Run must still
// reach its Out<-nil send, or a downstream stage blocked on <-In would
// deadlock forever on a graceful-shutdown request.
func TestScanner_SendsSentinelWhenEarlyStopSetBeforeFirstFile(t *testing.T) {
	const magic = uint32(0xD9B4BEF9)
	dir := t.TempDir()
	writeBlkFile(t, dir, "blk00000.dat", magic)

	earlyStop := &atomic.Bool{}
	earlyStop.Store(true)

	out := make(chan *Batch, 2)
	s := &Scanner{BlocksDir: dir, Magic: magic, EarlyStop: earlyStop, Out: out}

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	select {
	case batch := <-out:
		if batch != nil {
			t.Fatalf("expected a nil sentinel, got a batch with %d refs", len(batch.Refs))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() never sent a sentinel on Out; downstream would deadlock")
	}

	if err := <-done; err != nil {
		t.Fatalf("Run() returned an error: %v", err)
	}
}

// recvBatch reads one Batch from out, failing the test if none arrives
// within the timeout rather than hanging forever on a deadlock.
func recvBatch(t *testing.T, out <-chan *Batch) *Batch {
	t.Helper()
	select {
	case b := <-out:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a value on Out; downstream would deadlock")
		return nil
	}
}

// TestScanner_SendsSentinelWhenEarlyStopSetMidCorpus exercises the
// early-stop branch reached after at least one file has already been
// emitted, asserting the sentinel still follows.
func TestScanner_SendsSentinelWhenEarlyStopSetMidCorpus(t *testing.T) {
	const magic = uint32(0xD9B4BEF9)
	dir := t.TempDir()
	writeBlkFile(t, dir, "blk00000.dat", magic)
	writeBlkFile(t, dir, "blk00001.dat", magic)

	earlyStop := &atomic.Bool{}
	out := make(chan *Batch, 1)
	s := &Scanner{BlocksDir: dir, Magic: magic, EarlyStop: earlyStop, Out: out}

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	if first := recvBatch(t, out); first == nil {
		t.Fatal("expected the first file's batch before any sentinel")
	}
	earlyStop.Store(true)

	// A second real batch can legitimately race ahead of the flag being
	// observed; drain until the sentinel arrives, bounded by the total
	// number of files so a real deadlock still fails instead of looping.
	for i := 0; i < 2; i++ {
		if recvBatch(t, out) == nil {
			if err := <-done; err != nil {
				t.Fatalf("Run() returned an error: %v", err)
			}
			return
		}
	}
	t.Fatal("Run() never sent a sentinel on Out after early stop; downstream would deadlock")
}
