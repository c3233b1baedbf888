package utxo

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func p2pkhScript(hash [20]byte) []byte {
	out := make([]byte, 0, 25)
	out = append(out, txscript.OP_DUP, txscript.OP_HASH160, 0x14)
	out = append(out, hash[:]...)
	out = append(out, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)
	return out
}

func p2shScript(hash [20]byte) []byte {
	out := make([]byte, 0, 23)
	out = append(out, txscript.OP_HASH160, 0x14)
	out = append(out, hash[:]...)
	out = append(out, txscript.OP_EQUAL)
	return out
}

func p2wpkhScript(hash [20]byte) []byte {
	out := make([]byte, 0, 22)
	out = append(out, txscript.OP_0, 0x14)
	out = append(out, hash[:]...)
	return out
}

func TestClassifyScript_RoundTrips(t *testing.T) {
	var hash [20]byte
	for i := range hash {
		hash[i] = byte(i + 1)
	}

	cases := []struct {
		name   string
		script []byte
		kind   scriptKind
	}{
		{"p2pkh", p2pkhScript(hash), scriptP2PKH},
		{"p2sh", p2shScript(hash), scriptP2SH},
		{"p2wpkh", p2wpkhScript(hash), scriptP2WPKH},
		{"bare multisig falls back to other", []byte{txscript.OP_2, 0x21, 0, 0, 0x52, txscript.OP_CHECKMULTISIG}, scriptOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := classifyScript(tc.script)
			if cs.kind != tc.kind {
				t.Fatalf("kind = %v, want %v", cs.kind, tc.kind)
			}
			if got := cs.expand(); !bytes.Equal(got, tc.script) {
				t.Errorf("expand() = %x, want %x", got, tc.script)
			}
		})
	}
}

func TestIsOpReturn(t *testing.T) {
	if !isOpReturn([]byte{txscript.OP_RETURN, 0x04, 'd', 'a', 't', 'a'}) {
		t.Error("OP_RETURN-prefixed script should be recognized as unspendable")
	}
	if isOpReturn(p2pkhScript([20]byte{})) {
		t.Error("P2PKH script misclassified as OP_RETURN")
	}
	if isOpReturn(nil) {
		t.Error("empty script misclassified as OP_RETURN")
	}
}
