package utxo

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
)

var boltBucket = []byte("utxo")

// syncEveryNHeights is how often Bolt forces an fsync'd commit; between
// those, writes use NoSync for throughput, trading a small recovery
// window (at most this many heights of unflushed writes) for speed.
const syncEveryNHeights = 10

// Bolt is the persistent B-tree UTXO backend. Same three logical
// key-spaces as Badger, stored in one bucket; durability is relaxed
// except on every syncEveryNHeights-th height.
type Bolt struct {
	db                *bolt.DB
	updatedUpToHeight int32
	insertedOutputs   uint64
	heightsSinceSync  int
}

// OpenBolt opens (or creates) a bbolt store at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("utxo: open bolt store at %s: %w", path, err)
	}
	db.NoSync = true

	bk := &Bolt{db: db, updatedUpToHeight: -1}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return err
		}
		if v := b.Get(heightKey); v != nil {
			bk.updatedUpToHeight = decodeHeight(v)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("utxo: init bolt store: %w", err)
	}
	return bk, nil
}

// AddOutputsGetInputs implements Backend, with the same replay and
// in-block-spend-bypass semantics as Badger.
func (bk *Bolt) AddOutputsGetInputs(eb *blockextra.EnrichedBlock, height uint32) ([]wire.TxOut, error) {
	h := int32(height)
	if h <= bk.updatedUpToHeight {
		if eb.BlockTotalTxs() == 1 {
			return nil, nil
		}
		var prevouts []wire.TxOut
		err := bk.db.View(func(tx *bolt.Tx) error {
			v := tx.Bucket(boltBucket).Get(prevoutsKey(height))
			if v == nil {
				return fmt.Errorf("utxo: no replay sidecar at height %d", height)
			}
			var err error
			prevouts, err = decodePrevouts(v)
			return err
		})
		if err != nil {
			return nil, err
		}
		return prevouts, nil
	}

	blk, err := eb.Block()
	if err != nil {
		return nil, err
	}
	if len(blk.Transactions) == 0 {
		return nil, nil
	}

	blockOutputs := make(map[wire.OutPoint]wire.TxOut, eb.TotalOutputs)
	for txi, tx := range blk.Transactions {
		txid := eb.Txids[txi]
		for i, out := range tx.TxOut {
			if isOpReturn(out.PkScript) {
				continue
			}
			blockOutputs[wire.OutPoint{Hash: txid, Index: uint32(i)}] = *out
		}
	}

	nonCoinbase := blk.Transactions[1:]
	var totalInputs int
	for _, tx := range nonCoinbase {
		totalInputs += len(tx.TxIn)
	}
	prevouts := make([]wire.TxOut, 0, totalInputs)

	forceSync := bk.heightsSinceSync+1 >= syncEveryNHeights
	bk.db.NoSync = !forceSync

	err = bk.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for _, xtx := range nonCoinbase {
			for _, in := range xtx.TxIn {
				if out, ok := blockOutputs[in.PreviousOutPoint]; ok {
					delete(blockOutputs, in.PreviousOutPoint)
					prevouts = append(prevouts, out)
					continue
				}
				key := outpointKey(in.PreviousOutPoint)
				v := b.Get(key)
				if v == nil {
					return fmt.Errorf("missing prevout %s", in.PreviousOutPoint)
				}
				out, err := decodeTxOut(v)
				if err != nil {
					return err
				}
				if err := b.Delete(key); err != nil {
					return err
				}
				prevouts = append(prevouts, out)
			}
		}
		for op, out := range blockOutputs {
			if err := b.Put(outpointKey(op), encodeTxOut(out)); err != nil {
				return err
			}
			bk.insertedOutputs++
		}
		if len(prevouts) > 0 {
			if err := b.Put(prevoutsKey(height), encodePrevouts(prevouts)); err != nil {
				return err
			}
		}
		return b.Put(heightKey, encodeHeight(h))
	})
	if err != nil {
		return nil, fmt.Errorf("utxo: bolt commit at height %d: %w", height, err)
	}

	if forceSync {
		bk.heightsSinceSync = 0
	} else {
		bk.heightsSinceSync++
	}
	bk.updatedUpToHeight = h
	return prevouts, nil
}

// Stat reports the store's replay watermark and lifetime insert count.
func (bk *Bolt) Stat() string {
	return fmt.Sprintf("updated_up_to_height: %d inserted_outputs: %d", bk.updatedUpToHeight, bk.insertedOutputs)
}

// Close releases the underlying bolt database.
func (bk *Bolt) Close() error {
	return bk.db.Close()
}
