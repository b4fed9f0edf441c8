// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txscript is the pure predicate script verifier: a
// deterministic, side-effect-free function from (scriptPubKey, scriptSig,
// tx, input index, previous UTXO) to pass/fail. P2PKH and P2SH are
// template-recognized (templates.go): a P2PKH spend runs through the
// generic interpreter below, and a P2SH spend has its redeem-script hash
// checked before the redeem script is interpreted; everything else goes
// straight to the bounded generic interpreter. SigCache
// (sigcache.go) avoids re-verifying a signature across mempool and block
// validation.
package txscript

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/crypto/ripemd160"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"lukechampine.com/blake3"

	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/wire"
)

// Resource bounds enforced identically on every node.
const (
	MaxScriptLength    = 10000
	MaxOpcodeCount     = 201
	MaxStackDepth      = 1000
	MaxSigOpsPerScript = 80
)

// FailureReason is a typed reason a script failed to verify.
type FailureReason string

const (
	FailScriptTooLong    FailureReason = "script exceeds max length"
	FailTooManyOpcodes   FailureReason = "script exceeds max opcode count"
	FailStackOverflow    FailureReason = "stack exceeds max depth"
	FailTooManySigOps    FailureReason = "script exceeds max signature operations"
	FailMalformedScript  FailureReason = "malformed script encoding"
	FailStackUnderflow   FailureReason = "stack underflow"
	FailVerifyFalse      FailureReason = "OP_VERIFY/OP_EQUALVERIFY encountered a false top"
	FailOpReturn         FailureReason = "OP_RETURN immediately fails spending"
	FailUnbalancedIf     FailureReason = "unbalanced conditional"
	FailFinalStackFalse  FailureReason = "final stack top is not true, or stack is not exactly one element"
	FailBadSignature     FailureReason = "signature verification failed"
	FailBadLockTime      FailureReason = "locktime verification failed"
	FailUnknownOpcode    FailureReason = "unknown or disabled opcode"
)

// Error is returned by Verify when script execution fails. It carries a
// stable, typed Reason a caller can branch on without string matching.
type Error struct {
	Reason FailureReason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func fail(reason FailureReason, detail string) error {
	return &Error{Reason: reason, Detail: detail}
}

// VerifyParams carries the block-relative context a handful of opcodes
// need (CHECKLOCKTIMEVERIFY / CHECKSEQUENCEVERIFY). Script execution may
// consult only these externally supplied values, never wall-clock time or
// mutable chain state, so verification is identical on every node.
type VerifyParams struct {
	CurrentHeight     uint32
	MedianPastTime    int64
	LockTimeThreshold uint32
}

// Verify runs the pure predicate: does sigScript unlock pkScript for this
// transaction's input at inputIndex? It has no side effects and produces
// the same result on every node given the same inputs.
func Verify(pkScript, sigScript []byte, tx *wire.MsgTx, inputIndex int, prevValue int64, cache *SigCache, params VerifyParams) error {
	if len(pkScript) > MaxScriptLength || len(sigScript) > MaxScriptLength {
		return fail(FailScriptTooLong, "")
	}
	if isP2PKH(pkScript) {
		return verifyP2PKH(pkScript, sigScript, tx, inputIndex, cache)
	}
	if isP2SH(pkScript) {
		return verifyP2SH(pkScript, sigScript, tx, inputIndex, cache, params)
	}
	return verifyGeneric(pkScript, sigScript, tx, inputIndex, prevValue, cache, params)
}

// sigHashFor returns the signature hash this input's signatures are made
// over: the tagged-union transaction's canonical form with signatures and
// witnesses cleared.
func sigHashFor(tx *wire.MsgTx) chainhash.Hash {
	return tx.SigHash()
}

type vm struct {
	stack    [][]byte
	altStack [][]byte
	ifStack  []bool // true = currently executing, tracked per nesting level
	skip     int    // depth of a false branch currently being skipped

	opCount int
	sigOps  int

	tx         *wire.MsgTx
	inputIndex int
	prevValue  int64
	cache      *SigCache
	params     VerifyParams
}

func (e *vm) push(b []byte) error {
	if len(e.stack) >= MaxStackDepth {
		return fail(FailStackOverflow, "")
	}
	e.stack = append(e.stack, b)
	return nil
}

func (e *vm) pop() ([]byte, error) {
	if len(e.stack) == 0 {
		return nil, fail(FailStackUnderflow, "")
	}
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v, nil
}

func (e *vm) top() ([]byte, error) {
	if len(e.stack) == 0 {
		return nil, fail(FailStackUnderflow, "")
	}
	return e.stack[len(e.stack)-1], nil
}

func asBool(b []byte) bool {
	for i, v := range b {
		if v != 0 {
			if i == len(b)-1 && v == 0x80 {
				return false // negative zero
			}
			return true
		}
	}
	return false
}

func boolBytes(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{}
}

func scriptNum(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var n int64
	for i, v := range b {
		n |= int64(v) << uint(8*i)
	}
	// sign-extend from the high bit of the top byte
	if b[len(b)-1]&0x80 != 0 {
		n &^= int64(0x80) << uint(8*(len(b)-1))
		n = -n
	}
	return n
}

func numBytes(n int64) []byte {
	if n == 0 {
		return []byte{}
	}
	neg := n < 0
	abs := n
	if neg {
		abs = -n
	}
	var b []byte
	for abs > 0 {
		b = append(b, byte(abs&0xff))
		abs >>= 8
	}
	if b[len(b)-1]&0x80 != 0 {
		if neg {
			b = append(b, 0x80)
		} else {
			b = append(b, 0)
		}
	} else if neg {
		b[len(b)-1] |= 0x80
	}
	return b
}

// verifyGeneric interprets pkScript and sigScript on a shared VM,
// executing scriptSig then scriptPubKey over one continuous stack (no
// P2SH wrapping here; that's handled by verifyP2SH).
func verifyGeneric(pkScript, sigScript []byte, tx *wire.MsgTx, inputIndex int, prevValue int64, cache *SigCache, params VerifyParams) error {
	e := &vm{tx: tx, inputIndex: inputIndex, prevValue: prevValue, cache: cache, params: params}
	if err := e.run(sigScript); err != nil {
		return err
	}
	if err := e.run(pkScript); err != nil {
		return err
	}
	if len(e.ifStack) != 0 {
		return fail(FailUnbalancedIf, "")
	}
	if len(e.stack) != 1 {
		return fail(FailFinalStackFalse, "stack must hold exactly one element")
	}
	top, _ := e.top()
	if !asBool(top) {
		return fail(FailFinalStackFalse, "")
	}
	return nil
}

func (e *vm) executing() bool {
	return e.skip == 0
}

func (e *vm) run(script []byte) error {
	if len(script) > MaxScriptLength {
		return fail(FailScriptTooLong, "")
	}
	i := 0
	for i < len(script) {
		op := script[i]

		if op == OP_RETURN && e.executing() {
			return fail(FailOpReturn, "")
		}

		if payload, consumed, ok := pushDataLen(script, i); ok {
			i += consumed
			if i+payload > len(script) {
				return fail(FailMalformedScript, "push beyond script end")
			}
			if e.executing() {
				if err := e.push(script[i : i+payload]); err != nil {
					return err
				}
			}
			i += payload
			continue
		}

		e.opCount++
		if e.opCount > MaxOpcodeCount {
			return fail(FailTooManyOpcodes, "")
		}

		switch {
		case op == OP_0:
			if e.executing() {
				if err := e.push(nil); err != nil {
					return err
				}
			}
			i++
			continue
		case op == OP_1NEGATE:
			if e.executing() {
				if err := e.push(numBytes(-1)); err != nil {
					return err
				}
			}
			i++
			continue
		case op >= OP_1 && op <= OP_16:
			if e.executing() {
				if err := e.push(numBytes(int64(op - OP_1 + 1))); err != nil {
					return err
				}
			}
			i++
			continue
		}

		// Conditional flow is tracked regardless of whether the current
		// branch is executing, using a skip-depth counter so nested
		// IF/NOTIF/ELSE/ENDIF pair up correctly inside a false branch.
		switch op {
		case OP_IF, OP_NOTIF:
			var cond bool
			if e.executing() {
				v, err := e.pop()
				if err != nil {
					return err
				}
				cond = asBool(v)
				if op == OP_NOTIF {
					cond = !cond
				}
			}
			e.ifStack = append(e.ifStack, cond)
			if !e.executing() || !cond {
				e.skip++
			}
			i++
			continue
		case OP_ELSE:
			if len(e.ifStack) == 0 {
				return fail(FailUnbalancedIf, "")
			}
			top := e.ifStack[len(e.ifStack)-1]
			if e.skip > 0 && e.skip == 1 {
				// We're only skipping because of this level's branch.
				e.skip = 0
			} else if e.skip == 0 {
				e.skip = 1
			}
			e.ifStack[len(e.ifStack)-1] = !top
			i++
			continue
		case OP_ENDIF:
			if len(e.ifStack) == 0 {
				return fail(FailUnbalancedIf, "")
			}
			if e.skip > 0 {
				e.skip--
			}
			e.ifStack = e.ifStack[:len(e.ifStack)-1]
			i++
			continue
		}

		if !e.executing() {
			i++
			continue
		}

		if err := e.execOp(op); err != nil {
			return err
		}
		i++
	}
	return nil
}

func (e *vm) execOp(op byte) error {
	switch op {
	case OP_NOP:
		return nil
	case OP_VERIFY:
		v, err := e.pop()
		if err != nil {
			return err
		}
		if !asBool(v) {
			return fail(FailVerifyFalse, "")
		}
		return nil
	case OP_TOALTSTACK:
		v, err := e.pop()
		if err != nil {
			return err
		}
		e.altStack = append(e.altStack, v)
		return nil
	case OP_FROMALTSTACK:
		if len(e.altStack) == 0 {
			return fail(FailStackUnderflow, "")
		}
		v := e.altStack[len(e.altStack)-1]
		e.altStack = e.altStack[:len(e.altStack)-1]
		return e.push(v)
	case OP_DROP:
		_, err := e.pop()
		return err
	case OP_DUP:
		v, err := e.top()
		if err != nil {
			return err
		}
		return e.push(append([]byte(nil), v...))
	case OP_SWAP:
		if len(e.stack) < 2 {
			return fail(FailStackUnderflow, "")
		}
		n := len(e.stack)
		e.stack[n-1], e.stack[n-2] = e.stack[n-2], e.stack[n-1]
		return nil
	case OP_EQUAL, OP_EQUALVERIFY:
		b, err := e.pop()
		if err != nil {
			return err
		}
		a, err := e.pop()
		if err != nil {
			return err
		}
		eq := bytes.Equal(a, b)
		if op == OP_EQUALVERIFY {
			if !eq {
				return fail(FailVerifyFalse, "")
			}
			return nil
		}
		return e.push(boolBytes(eq))
	case OP_1ADD, OP_1SUB:
		v, err := e.pop()
		if err != nil {
			return err
		}
		n := scriptNum(v)
		if op == OP_1ADD {
			n++
		} else {
			n--
		}
		return e.push(numBytes(n))
	case OP_ADD, OP_SUB, OP_BOOLAND, OP_BOOLOR, OP_NUMEQUAL, OP_LESSTHAN, OP_GREATERTHAN:
		b, err := e.pop()
		if err != nil {
			return err
		}
		a, err := e.pop()
		if err != nil {
			return err
		}
		na, nb := scriptNum(a), scriptNum(b)
		switch op {
		case OP_ADD:
			return e.push(numBytes(na + nb))
		case OP_SUB:
			return e.push(numBytes(na - nb))
		case OP_BOOLAND:
			return e.push(boolBytes(na != 0 && nb != 0))
		case OP_BOOLOR:
			return e.push(boolBytes(na != 0 || nb != 0))
		case OP_NUMEQUAL:
			return e.push(boolBytes(na == nb))
		case OP_LESSTHAN:
			return e.push(boolBytes(na < nb))
		case OP_GREATERTHAN:
			return e.push(boolBytes(na > nb))
		}
		return nil
	case OP_WITHIN:
		max, err := e.pop()
		if err != nil {
			return err
		}
		min, err := e.pop()
		if err != nil {
			return err
		}
		v, err := e.pop()
		if err != nil {
			return err
		}
		n, lo, hi := scriptNum(v), scriptNum(min), scriptNum(max)
		return e.push(boolBytes(n >= lo && n < hi))
	case OP_RIPEMD160:
		return e.hash1(func(b []byte) []byte { h := ripemd160.New(); h.Write(b); return h.Sum(nil) })
	case OP_SHA1:
		return e.hash1(func(b []byte) []byte { h := sha1.Sum(b); return h[:] })
	case OP_SHA256:
		return e.hash1(func(b []byte) []byte { h := sha256.Sum256(b); return h[:] })
	case OP_HASH160:
		// RIPEMD160(Blake3(x)), matching primitives.PublicKey.Hash160 so
		// P2PKH scripts verify against the same digest addresses encode.
		return e.hash1(func(b []byte) []byte {
			s := blake3.Sum256(b)
			h := ripemd160.New()
			h.Write(s[:])
			return h.Sum(nil)
		})
	case OP_HASH256:
		return e.hash1(func(b []byte) []byte {
			s1 := sha256.Sum256(b)
			s2 := sha256.Sum256(s1[:])
			return s2[:]
		})
	case OP_BLAKE3160:
		return e.hash1(func(b []byte) []byte {
			full := blake3.Sum256(b)
			return full[12:]
		})
	case OP_CHECKSIG, OP_CHECKSIGVERIFY:
		return e.checkSig(op == OP_CHECKSIGVERIFY)
	case OP_CHECKMULTISIG, OP_CHECKMULTISIGVERIFY:
		return e.checkMultiSig(op == OP_CHECKMULTISIGVERIFY)
	case OP_CHECKTHRESHOLDSIG:
		return e.checkThresholdSig()
	case OP_CHECKLOCKTIMEVERIFY:
		return e.checkLockTimeVerify()
	case OP_CHECKSEQUENCEVERIFY:
		return e.checkSequenceVerify()
	}
	return fail(FailUnknownOpcode, fmt.Sprintf("0x%02x", op))
}

func (e *vm) hash1(f func([]byte) []byte) error {
	v, err := e.pop()
	if err != nil {
		return err
	}
	return e.push(f(v))
}

func (e *vm) checkSig(verify bool) error {
	e.sigOps++
	if e.sigOps > MaxSigOpsPerScript {
		return fail(FailTooManySigOps, "")
	}
	pubKeyBytes, err := e.pop()
	if err != nil {
		return err
	}
	sigBytes, err := e.pop()
	if err != nil {
		return err
	}
	ok := verifySingleSig(pubKeyBytes, sigBytes, e.tx, e.cache)
	if verify {
		if !ok {
			return fail(FailBadSignature, "")
		}
		return nil
	}
	return e.push(boolBytes(ok))
}

func verifySingleSig(pubKeyBytes, sigBytes []byte, tx *wire.MsgTx, cache *SigCache) bool {
	pubKey, err := primitives.ParsePublicKey(pubKeyBytes)
	if err != nil {
		return false
	}
	sig, err := primitives.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	sigHash := sigHashFor(tx)
	rawSig, sigErr := ecdsa.ParseDERSignature(sigBytes)
	rawPub, pubErr := secp256k1.ParsePubKey(pubKeyBytes)
	haveRaw := sigErr == nil && pubErr == nil
	if cache != nil && haveRaw && cache.Exists(sigHash, rawSig, rawPub) {
		return true
	}
	if !pubKey.Verify(sigHash, sig) {
		return false
	}
	if cache != nil && haveRaw {
		cache.Add(sigHash, rawSig, rawPub, tx)
	}
	return true
}

func (e *vm) checkMultiSig(verify bool) error {
	nBytes, err := e.pop()
	if err != nil {
		return err
	}
	n := int(scriptNum(nBytes))
	if n < 0 || n > 20 {
		return fail(FailMalformedScript, "bad pubkey count")
	}
	pubKeys := make([][]byte, n)
	for i := n - 1; i >= 0; i-- {
		pubKeys[i], err = e.pop()
		if err != nil {
			return err
		}
	}
	mBytes, err := e.pop()
	if err != nil {
		return err
	}
	m := int(scriptNum(mBytes))
	if m < 0 || m > n {
		return fail(FailMalformedScript, "bad signature count")
	}
	sigs := make([][]byte, m)
	for i := m - 1; i >= 0; i-- {
		sigs[i], err = e.pop()
		if err != nil {
			return err
		}
	}
	e.sigOps += m
	if e.sigOps > MaxSigOpsPerScript {
		return fail(FailTooManySigOps, "")
	}

	pkIdx := 0
	matched := 0
	for _, sig := range sigs {
		for pkIdx < len(pubKeys) {
			cand := pubKeys[pkIdx]
			pkIdx++
			if verifySingleSig(cand, sig, e.tx, e.cache) {
				matched++
				break
			}
		}
	}
	ok := matched == m
	if verify {
		if !ok {
			return fail(FailBadSignature, "")
		}
		return nil
	}
	return e.push(boolBytes(ok))
}

// checkThresholdSig verifies a federation threshold signature share set
// against an embedded ThresholdPublicKey envelope, used by peg-in/peg-out
// locking scripts used by the peg federation. The stack carries:
// [memberIndex, pubkey, sig]*count, sigShareCount, groupKey,
// memberPubkeys..., N, T (bottom to top), mirroring OP_CHECKMULTISIG's
// shape but verifying against a DKG-produced envelope rather than an
// ad-hoc pubkey list.
func (e *vm) checkThresholdSig() error {
	tBytes, err := e.pop()
	if err != nil {
		return err
	}
	t := uint32(scriptNum(tBytes))
	nBytes, err := e.pop()
	if err != nil {
		return err
	}
	n := int(scriptNum(nBytes))
	if n < 0 || n > 64 {
		return fail(FailMalformedScript, "bad federation size")
	}
	members := make([]*primitives.PublicKey, n)
	for i := n - 1; i >= 0; i-- {
		b, err := e.pop()
		if err != nil {
			return err
		}
		pk, err := primitives.ParsePublicKey(b)
		if err != nil {
			return fail(FailMalformedScript, "bad member pubkey")
		}
		members[i] = pk
	}
	groupKey, err := e.pop()
	if err != nil {
		return err
	}

	shareCountBytes, err := e.pop()
	if err != nil {
		return err
	}
	shareCount := int(scriptNum(shareCountBytes))
	shares := make([]*primitives.SignatureShare, 0, shareCount)
	for i := 0; i < shareCount; i++ {
		sigBytes, err := e.pop()
		if err != nil {
			return err
		}
		pubBytes, err := e.pop()
		if err != nil {
			return err
		}
		idxBytes, err := e.pop()
		if err != nil {
			return err
		}
		pub, err := primitives.ParsePublicKey(pubBytes)
		if err != nil {
			continue
		}
		sig, err := primitives.ParseSignature(sigBytes)
		if err != nil {
			continue
		}
		shares = append(shares, &primitives.SignatureShare{
			MemberIndex: uint32(scriptNum(idxBytes)),
			PubKey:      pub,
			Sig:         sig,
		})
	}

	tpk := &primitives.ThresholdPublicKey{GroupKey: groupKey, Members: members, N: uint32(n), T: t}
	ok := primitives.VerifyThreshold(tpk, sigHashFor(e.tx), shares)
	return e.push(boolBytes(ok))
}

// LockTimeThresholdDefault is the cutoff between a locktime interpreted
// as a block height and one interpreted as a unix timestamp.
const LockTimeThresholdDefault = 500000000

func (e *vm) checkLockTimeVerify() error {
	top, err := e.top()
	if err != nil {
		return err
	}
	locktime := scriptNum(top)
	if locktime < 0 {
		return fail(FailBadLockTime, "negative locktime")
	}
	threshold := e.params.LockTimeThreshold
	if threshold == 0 {
		threshold = LockTimeThresholdDefault
	}
	txLock := int64(e.tx.LockTime)
	if (locktime < int64(threshold)) != (txLock < int64(threshold)) {
		return fail(FailBadLockTime, "locktime type mismatch")
	}
	if locktime > txLock {
		return fail(FailBadLockTime, "locktime requirement not satisfied")
	}
	if e.tx.TxIn[e.inputIndex].Sequence == 0xffffffff {
		return fail(FailBadLockTime, "locktime disabled by final sequence")
	}
	return nil
}

func (e *vm) checkSequenceVerify() error {
	top, err := e.top()
	if err != nil {
		return err
	}
	seq := scriptNum(top)
	if seq < 0 {
		return fail(FailBadLockTime, "negative sequence")
	}
	const sequenceLockTimeDisabled = 1 << 31
	if uint32(seq)&sequenceLockTimeDisabled != 0 {
		return nil
	}
	txSeq := e.tx.TxIn[e.inputIndex].Sequence
	if txSeq&sequenceLockTimeDisabled != 0 {
		return fail(FailBadLockTime, "sequence verify requires input sequence to enable relative locktime")
	}
	const typeMask = 1 << 22
	const valueMask = 0x0000ffff
	if uint32(seq)&typeMask != txSeq&typeMask {
		return fail(FailBadLockTime, "sequence type mismatch")
	}
	if uint32(seq)&valueMask > txSeq&valueMask {
		return fail(FailBadLockTime, "sequence requirement not satisfied")
	}
	return nil
}

