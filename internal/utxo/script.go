package utxo

import "github.com/btcsuite/btcd/txscript"

// scriptKind tags which of the three common script shapes a compactScript
// holds, or that it fell back to the general case.
type scriptKind uint8

const (
	scriptOther scriptKind = iota
	scriptP2PKH
	scriptP2SH
	scriptP2WPKH
)

// compactScript inlines the three common script shapes as their 20-byte
// hash, keeping the common case entry small; only scriptOther carries a
// heap-allocated byte slice.
type compactScript struct {
	kind  scriptKind
	hash  [20]byte
	other []byte
}

// classifyScript recognizes P2PKH, P2SH and P2WPKH by their fixed byte
// patterns, falling back to storing the raw script for anything else.
func classifyScript(pkScript []byte) compactScript {
	switch {
	case len(pkScript) == 25 &&
		pkScript[0] == txscript.OP_DUP && pkScript[1] == txscript.OP_HASH160 &&
		pkScript[2] == 0x14 && pkScript[23] == txscript.OP_EQUALVERIFY && pkScript[24] == txscript.OP_CHECKSIG:
		var cs compactScript
		cs.kind = scriptP2PKH
		copy(cs.hash[:], pkScript[3:23])
		return cs

	case len(pkScript) == 23 &&
		pkScript[0] == txscript.OP_HASH160 && pkScript[1] == 0x14 && pkScript[22] == txscript.OP_EQUAL:
		var cs compactScript
		cs.kind = scriptP2SH
		copy(cs.hash[:], pkScript[2:22])
		return cs

	case len(pkScript) == 22 && pkScript[0] == txscript.OP_0 && pkScript[1] == 0x14:
		var cs compactScript
		cs.kind = scriptP2WPKH
		copy(cs.hash[:], pkScript[2:22])
		return cs

	default:
		other := make([]byte, len(pkScript))
		copy(other, pkScript)
		return compactScript{kind: scriptOther, other: other}
	}
}

// expand reconstructs the original pkScript bytes from a compactScript.
func (c compactScript) expand() []byte {
	switch c.kind {
	case scriptP2PKH:
		out := make([]byte, 25)
		out[0], out[1], out[2] = txscript.OP_DUP, txscript.OP_HASH160, 0x14
		copy(out[3:23], c.hash[:])
		out[23], out[24] = txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG
		return out
	case scriptP2SH:
		out := make([]byte, 23)
		out[0], out[1] = txscript.OP_HASH160, 0x14
		copy(out[2:22], c.hash[:])
		out[22] = txscript.OP_EQUAL
		return out
	case scriptP2WPKH:
		out := make([]byte, 22)
		out[0], out[1] = txscript.OP_0, 0x14
		copy(out[2:22], c.hash[:])
		return out
	default:
		return c.other
	}
}

// isOpReturn reports whether pkScript is a provably-unspendable OP_RETURN
// output, which the UtxoJoiner counts but never stores.
func isOpReturn(pkScript []byte) bool {
	return len(pkScript) > 0 && pkScript[0] == txscript.OP_RETURN
}
