package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
	"github.com/Klingon-tech/blkstream/internal/config"
)

// writeBlockFile appends magic+length-prefixed records for each block to path.
func writeBlockFile(t *testing.T, path string, magic uint32, blocks []*wire.MsgBlock) {
	t.Helper()
	var buf bytes.Buffer
	for _, blk := range blocks {
		var blockBuf bytes.Buffer
		if err := blk.Serialize(&blockBuf); err != nil {
			t.Fatalf("serialize block: %v", err)
		}
		var magicBytes, lenBytes [4]byte
		binary.LittleEndian.PutUint32(magicBytes[:], magic)
		binary.LittleEndian.PutUint32(lenBytes[:], uint32(blockBuf.Len()))
		buf.Write(magicBytes[:])
		buf.Write(lenBytes[:])
		buf.Write(blockBuf.Bytes())
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// childBlock builds a structurally valid (not proof-of-work-valid) block
// extending parent, with a single coinbase transaction.
func childBlock(parent chainhash.Hash, nonce uint32) *wire.MsgBlock {
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}})
	coinbase.AddTxOut(wire.NewTxOut(5_000_000_000, []byte{0x51}))

	blk := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: parent,
			Timestamp: time.Unix(1_600_000_000, 0),
			Bits:      0x207fffff,
			Nonce:     nonce,
		},
	}
	blk.AddTransaction(coinbase)
	blk.Header.MerkleRoot = coinbase.TxHash()
	return blk
}

func TestPipeline_EndToEndReleasesGenesisAndOneChild(t *testing.T) {
	params := chaincfg.RegressionNetParams
	genesis := params.GenesisBlock
	child := childBlock(genesis.Header.BlockHash(), 1)
	grandchild := childBlock(child.Header.BlockHash(), 2)

	dir := t.TempDir()
	writeBlockFile(t, filepath.Join(dir, "blk00000.dat"), uint32(params.Net), []*wire.MsgBlock{genesis, child, grandchild})

	cfg := config.Default(config.Regtest)
	cfg.BlocksDir = dir
	cfg.MaxReorg = 1
	cfg.SkipPrevout = true // genesis's and child's only tx is their coinbase; nothing to join
	cfg.ChannelsSize = 4

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got []*blockextra.EnrichedBlock
	for eb := range p.Out {
		if eb == nil {
			break
		}
		got = append(got, eb)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("pipeline error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("released %d blocks, want 2 (genesis + child; grandchild never gets its own confirming descendant)", len(got))
	}
	if got[0].Height != 0 || got[0].BlockHash != genesis.Header.BlockHash() {
		t.Errorf("got[0] = height %d hash %s, want genesis at height 0", got[0].Height, got[0].BlockHash)
	}
	if got[1].Height != 1 || got[1].BlockHash != child.Header.BlockHash() {
		t.Errorf("got[1] = height %d hash %s, want child at height 1", got[1].Height, got[1].BlockHash)
	}
}
