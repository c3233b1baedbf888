package utxo

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/cespare/xxhash/v2"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/config"
)

// mainnetCapacityHint pre-sizes the primary map to avoid rehashing while
// growing toward the full mainnet UTXO set.
const (
	mainnetCapacityHint = 98_959_418
	testnetCapacityHint = 28_038_982
	smallCapacityHint   = 1024
)

// MemCapacityHint returns a reasonable initial capacity for Mem's primary
// map given the target network, sized to avoid rehashes for the common
// case of scanning the whole chain from genesis.
func MemCapacityHint(network config.Network) int {
	switch network {
	case config.Mainnet:
		return mainnetCapacityHint
	case config.Testnet:
		return testnetCapacityHint
	default:
		return smallCapacityHint
	}
}

// memEntry is the compact value stored in Mem's primary map: a
// classified script plus the satoshi value, kept small so the common
// case never escapes to the heap beyond the Other variant's byte slice.
type memEntry struct {
	script compactScript
	value  int64
}

// Mem is the in-memory UTXO backend: a two-level map keyed by a 64-bit
// outpoint fingerprint, with a full-key fallback map for the rare
// collision. The primary map's key is already a hash, so Go's built-in
// map hashing over it does no additional mixing work worth avoiding.
type Mem struct {
	trunc map[uint64]memEntry
	full  map[wire.OutPoint]wire.TxOut

	scriptStack uint64
	scriptOther uint64
	unspendable uint64
}

// NewMem returns an empty in-memory backend whose primary map is
// pre-sized to capacityHint slots.
func NewMem(capacityHint int) *Mem {
	return &Mem{
		trunc: make(map[uint64]memEntry, capacityHint),
		full:  make(map[wire.OutPoint]wire.TxOut),
	}
}

// fingerprint collapses an outpoint to a 64-bit key.
func fingerprint(op wire.OutPoint) uint64 {
	var buf [36]byte
	copy(buf[:32], op.Hash[:])
	binary.LittleEndian.PutUint32(buf[32:], op.Index)
	return xxhash.Sum64(buf[:])
}

func (m *Mem) insert(op wire.OutPoint, out wire.TxOut) {
	cs := classifyScript(out.PkScript)
	if cs.kind == scriptOther {
		m.scriptOther++
	} else {
		m.scriptStack++
	}

	key := fingerprint(op)
	// Optimistic insert, since collisions should be rare: only on
	// collision do we pay for the full map.
	if old, ok := m.trunc[key]; ok {
		m.trunc[key] = old
		m.full[op] = out
		return
	}
	m.trunc[key] = memEntry{script: cs, value: out.Value}
}

func (m *Mem) remove(op wire.OutPoint) (wire.TxOut, bool) {
	if out, ok := m.full[op]; ok {
		delete(m.full, op)
		return out, true
	}
	key := fingerprint(op)
	if entry, ok := m.trunc[key]; ok {
		delete(m.trunc, key)
		return wire.TxOut{Value: entry.value, PkScript: entry.script.expand()}, true
	}
	return wire.TxOut{}, false
}

// AddOutputsGetInputs inserts every non-OP_RETURN output from eb's block
// and returns the prevouts of every non-coinbase input, in input-visitation
// order. Outputs created and spent within the same block resolve through
// this same map, so no separate in-block bypass bookkeeping is needed:
// the spend simply finds the entry this call just inserted.
func (m *Mem) AddOutputsGetInputs(eb *blockextra.EnrichedBlock, height uint32) ([]wire.TxOut, error) {
	blk, err := eb.Block()
	if err != nil {
		return nil, err
	}
	if len(blk.Transactions) == 0 {
		return nil, nil
	}

	for txi, tx := range blk.Transactions {
		txid := eb.Txids[txi]
		for i, out := range tx.TxOut {
			if isOpReturn(out.PkScript) {
				m.unspendable++
				continue
			}
			m.insert(wire.OutPoint{Hash: txid, Index: uint32(i)}, *out)
		}
	}

	nonCoinbase := blk.Transactions[1:]
	var totalInputs int
	for _, tx := range nonCoinbase {
		totalInputs += len(tx.TxIn)
	}

	prevouts := make([]wire.TxOut, 0, totalInputs)
	for _, tx := range nonCoinbase {
		for _, in := range tx.TxIn {
			out, ok := m.remove(in.PreviousOutPoint)
			if !ok {
				return nil, fmt.Errorf("utxo: missing prevout %s at height %d", in.PreviousOutPoint, height)
			}
			prevouts = append(prevouts, out)
		}
	}
	return prevouts, nil
}

// Stat reports the mem backend's size and load, the same shape as the
// scanner/reorderer progress lines.
func (m *Mem) Stat() string {
	scriptPct := 0.0
	if total := m.scriptStack + m.scriptOther; total > 0 {
		scriptPct = float64(m.scriptStack) / float64(total) * 100
	}
	return fmt.Sprintf(
		"(utxo, collision): (%d, %d) script on stack: %.1f%% unspendable:%d",
		len(m.trunc), len(m.full), scriptPct, m.unspendable,
	)
}

// Close is a no-op: Mem holds no external resources.
func (m *Mem) Close() error {
	return nil
}
