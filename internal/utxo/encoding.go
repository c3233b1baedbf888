package utxo

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// Key-space prefixes shared by the two persistent backends. utxoPrefix
// holds currently-unspent outputs; prevoutsPrefix holds, per height, the
// ordered prevouts vector for replay; heightPrefix is a single key
// recording how far the store has been updated.
const (
	utxoPrefix     = 'U'
	prevoutsPrefix = 'P'
	heightPrefix   = 'H'
)

// outpointKey returns the UTXO-table key for op: prefix(1) ++ txid(32) ++ index(4 LE).
func outpointKey(op wire.OutPoint) []byte {
	buf := make([]byte, 37)
	buf[0] = utxoPrefix
	copy(buf[1:33], op.Hash[:])
	binary.LittleEndian.PutUint32(buf[33:37], op.Index)
	return buf
}

// prevoutsKey returns the replay-sidecar key for a given height.
func prevoutsKey(height uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = prevoutsPrefix
	binary.LittleEndian.PutUint32(buf[1:], height)
	return buf
}

var heightKey = []byte{heightPrefix}

// encodeTxOut serializes a single TxOut as value(8 LE) ++ scriptLen(4 LE) ++ script.
func encodeTxOut(out wire.TxOut) []byte {
	buf := make([]byte, 12+len(out.PkScript))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(out.Value))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(out.PkScript)))
	copy(buf[12:], out.PkScript)
	return buf
}

// decodeTxOut is the inverse of encodeTxOut.
func decodeTxOut(buf []byte) (wire.TxOut, error) {
	if len(buf) < 12 {
		return wire.TxOut{}, fmt.Errorf("utxo: txout record too short (%d bytes)", len(buf))
	}
	value := int64(binary.LittleEndian.Uint64(buf[0:8]))
	scriptLen := binary.LittleEndian.Uint32(buf[8:12])
	if uint32(len(buf)-12) != scriptLen {
		return wire.TxOut{}, fmt.Errorf("utxo: txout script length mismatch: declared %d, have %d", scriptLen, len(buf)-12)
	}
	script := make([]byte, scriptLen)
	copy(script, buf[12:])
	return wire.TxOut{Value: value, PkScript: script}, nil
}

// encodePrevouts serializes an ordered list of prevouts for the replay sidecar.
func encodePrevouts(prevouts []wire.TxOut) []byte {
	buf := make([]byte, 0, 4+len(prevouts)*16)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(prevouts)))
	buf = append(buf, countBuf[:]...)
	for _, out := range prevouts {
		buf = append(buf, encodeTxOut(out)...)
	}
	return buf
}

// decodePrevouts is the inverse of encodePrevouts.
func decodePrevouts(buf []byte) ([]wire.TxOut, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("utxo: prevouts record too short")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	out := make([]wire.TxOut, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 12 {
			return nil, fmt.Errorf("utxo: prevouts record truncated at entry %d", i)
		}
		scriptLen := binary.LittleEndian.Uint32(buf[8:12])
		end := 12 + int(scriptLen)
		if len(buf) < end {
			return nil, fmt.Errorf("utxo: prevouts record truncated at entry %d script", i)
		}
		txout, err := decodeTxOut(buf[:end])
		if err != nil {
			return nil, err
		}
		out[i] = txout
		buf = buf[end:]
	}
	return out, nil
}

func encodeHeight(height int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(height))
	return buf
}

func decodeHeight(buf []byte) int32 {
	if len(buf) != 4 {
		return -1
	}
	return int32(binary.LittleEndian.Uint32(buf))
}
