package txid

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/blkstream/internal/blockextra"
)

func buildBlock(t *testing.T, nTx int) []byte {
	t.Helper()
	blk := &wire.MsgBlock{}
	for i := 0; i < nTx; i++ {
		tx := wire.NewMsgTx(wire.TxVersion)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: uint32(i)}})
		tx.AddTxOut(wire.NewTxOut(int64(i), []byte{0x51}))
		blk.AddTransaction(tx)
	}
	var buf bytes.Buffer
	if err := blk.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func TestCompute_FillsOneTxidPerTransaction(t *testing.T) {
	eb := &blockextra.EnrichedBlock{BlockBytes: buildBlock(t, 3)}
	if err := compute(eb); err != nil {
		t.Fatalf("compute() error: %v", err)
	}
	if len(eb.Txids) != 3 {
		t.Fatalf("len(Txids) = %d, want 3", len(eb.Txids))
	}
	// distinct inputs/outputs per tx should yield distinct txids.
	if eb.Txids[0] == eb.Txids[1] || eb.Txids[1] == eb.Txids[2] {
		t.Error("expected distinct txids for distinct transactions")
	}
}

func TestRun_SkipsComputationBelowStartHeightWhenSkippingPrevout(t *testing.T) {
	in := make(chan *blockextra.EnrichedBlock, 2)
	out := make(chan *blockextra.EnrichedBlock, 2)
	c := &Computer{SkipPrevout: true, StartAtHeight: 100, In: in, Out: out}

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	eb := &blockextra.EnrichedBlock{BlockBytes: buildBlock(t, 1), Height: 5}
	in <- eb
	in <- nil

	got := <-out
	if got.Txids != nil {
		t.Error("Txids should be left unset below start_at_height under skip_prevout")
	}
	if sentinel := <-out; sentinel != nil {
		t.Error("expected sentinel nil after input closes")
	}
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestRun_ComputesAboveStartHeight(t *testing.T) {
	in := make(chan *blockextra.EnrichedBlock, 2)
	out := make(chan *blockextra.EnrichedBlock, 2)
	c := &Computer{SkipPrevout: true, StartAtHeight: 100, In: in, Out: out}

	go func() { c.Run() }()

	eb := &blockextra.EnrichedBlock{BlockBytes: buildBlock(t, 2), Height: 150}
	in <- eb
	in <- nil

	got := <-out
	if len(got.Txids) != 2 {
		t.Errorf("len(Txids) = %d, want 2", len(got.Txids))
	}
	<-out // drain sentinel
}
