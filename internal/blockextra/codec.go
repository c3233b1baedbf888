package blockextra

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Encode writes b's external wire representation to w using the given
// serialization version (0 or 1). The two versions differ only in
// where the block's byte-size field sits relative to the block bytes
// themselves; version 1 puts it first, letting a reader allocate and
// read the block in one pass instead of decoding its structure to find
// where it ends.
//
//	version 0: version(1) block(var) block_hash(32) size(4) next height outpoint_values totals txids
//	version 1: version(1) size(4) block(var) block_hash(32) next height outpoint_values totals txids
//
// Integers are little-endian; every list is a 4-byte count followed by
// its elements; every map is a 4-byte count followed by (key, value) pairs.
func Encode(w io.Writer, b *EnrichedBlock, version uint8) error {
	if version > 1 {
		return fmt.Errorf("blockextra: unsupported serialization version %d", version)
	}
	if err := writeU8(w, version); err != nil {
		return err
	}
	size := uint32(len(b.BlockBytes))

	if version == 1 {
		if err := writeU32(w, size); err != nil {
			return err
		}
	}
	if _, err := w.Write(b.BlockBytes); err != nil {
		return fmt.Errorf("write block bytes: %w", err)
	}
	if _, err := w.Write(b.BlockHash[:]); err != nil {
		return fmt.Errorf("write block hash: %w", err)
	}
	if version == 0 {
		if err := writeU32(w, size); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(b.Next))); err != nil {
		return err
	}
	for _, h := range b.Next {
		if _, err := w.Write(h[:]); err != nil {
			return fmt.Errorf("write next hash: %w", err)
		}
	}

	if err := writeU32(w, b.Height); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(b.OutpointValues))); err != nil {
		return err
	}
	for op, out := range b.OutpointValues {
		if err := writeOutpoint(w, op); err != nil {
			return err
		}
		if err := writeTxOut(w, out); err != nil {
			return err
		}
	}

	if err := writeU32(w, b.TotalInputs); err != nil {
		return err
	}
	if err := writeU32(w, b.TotalOutputs); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(b.Txids))); err != nil {
		return err
	}
	for _, txid := range b.Txids {
		if _, err := w.Write(txid[:]); err != nil {
			return fmt.Errorf("write txid: %w", err)
		}
	}
	return nil
}

// Decode reads an EnrichedBlock previously written by Encode.
func Decode(r io.Reader) (*EnrichedBlock, error) {
	b := &EnrichedBlock{}

	version, err := readU8(r)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	b.Version = version

	switch version {
	case 1:
		size, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("read size: %w", err)
		}
		b.Size = size
		b.BlockBytes = make([]byte, size)
		if _, err := io.ReadFull(r, b.BlockBytes); err != nil {
			return nil, fmt.Errorf("read block bytes: %w", err)
		}
		if _, err := io.ReadFull(r, b.BlockHash[:]); err != nil {
			return nil, fmt.Errorf("read block hash: %w", err)
		}
	case 0:
		// No explicit length: decode the block structurally to find
		// where it ends, then keep its re-serialized bytes.
		blockBytes, err := decodeBlockPrefix(r)
		if err != nil {
			return nil, fmt.Errorf("read block: %w", err)
		}
		b.BlockBytes = blockBytes
		if _, err := io.ReadFull(r, b.BlockHash[:]); err != nil {
			return nil, fmt.Errorf("read block hash: %w", err)
		}
		size, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("read size: %w", err)
		}
		b.Size = size
	default:
		return nil, fmt.Errorf("blockextra: unsupported serialization version %d", version)
	}

	nextCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read next count: %w", err)
	}
	b.Next = make([]chainhash.Hash, nextCount)
	for i := range b.Next {
		if _, err := io.ReadFull(r, b.Next[i][:]); err != nil {
			return nil, fmt.Errorf("read next[%d]: %w", i, err)
		}
	}

	height, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read height: %w", err)
	}
	b.Height = height

	mapCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read outpoint_values count: %w", err)
	}
	b.OutpointValues = make(map[wire.OutPoint]wire.TxOut, mapCount)
	for i := uint32(0); i < mapCount; i++ {
		op, err := readOutpoint(r)
		if err != nil {
			return nil, fmt.Errorf("read outpoint %d: %w", i, err)
		}
		out, err := readTxOut(r)
		if err != nil {
			return nil, fmt.Errorf("read txout %d: %w", i, err)
		}
		b.OutpointValues[op] = out
	}

	totalInputs, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read total_inputs: %w", err)
	}
	b.TotalInputs = totalInputs

	totalOutputs, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read total_outputs: %w", err)
	}
	b.TotalOutputs = totalOutputs

	txidCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read txids count: %w", err)
	}
	b.Txids = make([]chainhash.Hash, txidCount)
	for i := range b.Txids {
		if _, err := io.ReadFull(r, b.Txids[i][:]); err != nil {
			return nil, fmt.Errorf("read txid[%d]: %w", i, err)
		}
	}

	return b, nil
}

// decodeBlockPrefix structurally decodes a wire.MsgBlock from r (consuming
// exactly its byte span, however long that is) and returns its
// re-serialized bytes. Used only by the version-0 codec path, which has
// no explicit length prefix ahead of the block bytes.
func decodeBlockPrefix(r io.Reader) ([]byte, error) {
	msg := &wire.MsgBlock{}
	if err := msg.Deserialize(r); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeOutpoint(w io.Writer, op wire.OutPoint) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	return writeU32(w, op.Index)
}

func readOutpoint(r io.Reader) (wire.OutPoint, error) {
	var op wire.OutPoint
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return op, err
	}
	idx, err := readU32(r)
	op.Index = idx
	return op, err
}

func writeTxOut(w io.Writer, out wire.TxOut) error {
	if err := writeU64(w, uint64(out.Value)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(out.PkScript))); err != nil {
		return err
	}
	_, err := w.Write(out.PkScript)
	return err
}

func readTxOut(r io.Reader) (wire.TxOut, error) {
	var out wire.TxOut
	val, err := readU64(r)
	if err != nil {
		return out, err
	}
	out.Value = int64(val)
	scriptLen, err := readU32(r)
	if err != nil {
		return out, err
	}
	out.PkScript = make([]byte, scriptLen)
	_, err = io.ReadFull(r, out.PkScript)
	return out, err
}

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
