// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"github.com/decred/dcrd/crypto/ripemd160"
	"lukechampine.com/blake3"

	"github.com/solidus-chain/solidusd/wire"
)

// P2PKH and P2SH are recognized structurally and fast-pathed; everything
// else falls through to the generic interpreter.

// isP2PKH reports whether script is
// OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG.
func isP2PKH(script []byte) bool {
	return len(script) == 25 &&
		script[0] == OP_DUP &&
		script[1] == OP_HASH160 &&
		script[2] == 20 &&
		script[23] == OP_EQUALVERIFY &&
		script[24] == OP_CHECKSIG
}

// extractP2PKHHash returns the embedded 20-byte pubkey hash.
func extractP2PKHHash(script []byte) []byte {
	return script[3:23]
}

// isP2SH reports whether script is OP_HASH160 <20> OP_EQUAL.
func isP2SH(script []byte) bool {
	return len(script) == 23 &&
		script[0] == OP_HASH160 &&
		script[1] == 20 &&
		script[22] == OP_EQUAL
}

func extractP2SHHash(script []byte) []byte {
	return script[2:22]
}

// hash160 is RIPEMD160(Blake3(x)), the same digest primitives.Hash160
// derives addresses from.
func hash160(b []byte) []byte {
	s := blake3.Sum256(b)
	h := ripemd160.New()
	h.Write(s[:])
	return h.Sum(nil)
}

// verifyP2PKH runs the ordinary two-script execution through the generic
// interpreter, with a zero previous value and zero VerifyParams; Verify has
// already matched the P2PKH template before calling it.
func verifyP2PKH(pkScript, sigScript []byte, tx *wire.MsgTx, inputIndex int, cache *SigCache) error {
	return verifyGeneric(pkScript, sigScript, tx, inputIndex, 0, cache, VerifyParams{})
}

// verifyP2SH executes sigScript to build the stack, separately hashes the
// final pushed item (the serialized redeem script) and checks it against
// the embedded script hash, then executes the redeem script against the
// remaining stack, the standard P2SH evaluation order.
func verifyP2SH(pkScript, sigScript []byte, tx *wire.MsgTx, inputIndex int, cache *SigCache, params VerifyParams) error {
	pushes, err := extractPushes(sigScript)
	if err != nil || len(pushes) == 0 {
		return fail(FailMalformedScript, "P2SH sigScript must be pushes only, ending with the redeem script")
	}
	redeemScript := pushes[len(pushes)-1]
	wantHash := extractP2SHHash(pkScript)
	if !bytesEq(hash160(redeemScript), wantHash) {
		return fail(FailBadSignature, "redeem script does not match P2SH hash")
	}

	e := &vm{tx: tx, inputIndex: inputIndex, cache: cache, params: params}
	for _, p := range pushes[:len(pushes)-1] {
		if err := e.push(p); err != nil {
			return err
		}
	}
	if err := e.push(redeemScript); err != nil {
		return err
	}
	if _, err := e.pop(); err != nil { // drop the redeem script itself before executing it
		return err
	}
	if err := e.run(redeemScript); err != nil {
		return err
	}
	if len(e.ifStack) != 0 {
		return fail(FailUnbalancedIf, "")
	}
	if len(e.stack) != 1 {
		return fail(FailFinalStackFalse, "")
	}
	top, _ := e.top()
	if !asBool(top) {
		return fail(FailFinalStackFalse, "")
	}
	return nil
}

// extractPushes decodes a data-pushes-only script into its pushed items,
// the form a standard P2SH/P2PKH scriptSig must take.
func extractPushes(script []byte) ([][]byte, error) {
	var out [][]byte
	i := 0
	for i < len(script) {
		payload, consumed, ok := pushDataLen(script, i)
		if !ok {
			if script[i] == OP_0 {
				out = append(out, nil)
				i++
				continue
			}
			if script[i] == OP_1NEGATE || (script[i] >= OP_1 && script[i] <= OP_16) {
				return nil, fail(FailMalformedScript, "numeric push not allowed in signature script")
			}
			return nil, fail(FailMalformedScript, "non-push opcode in signature script")
		}
		i += consumed
		if i+payload > len(script) {
			return nil, fail(FailMalformedScript, "push beyond script end")
		}
		out = append(out, script[i:i+payload])
		i += payload
	}
	return out, nil
}

func bytesEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PayToPubKeyHash builds a standard P2PKH locking script for a 20-byte
// pubkey hash.
func PayToPubKeyHash(pkHash []byte) []byte {
	s := make([]byte, 0, 25)
	s = append(s, OP_DUP, OP_HASH160, 20)
	s = append(s, pkHash...)
	s = append(s, OP_EQUALVERIFY, OP_CHECKSIG)
	return s
}

// PayToScriptHash builds a standard P2SH locking script for a 20-byte
// redeem script hash.
func PayToScriptHash(scriptHash []byte) []byte {
	s := make([]byte, 0, 23)
	s = append(s, OP_HASH160, 20)
	s = append(s, scriptHash...)
	s = append(s, OP_EQUAL)
	return s
}
