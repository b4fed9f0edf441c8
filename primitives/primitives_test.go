// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package primitives

import (
	"testing"

	"github.com/solidus-chain/solidusd/chainhash"
)

func mustKey(t *testing.T) *PrivateKey {
	t.Helper()
	k, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	return k
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv := mustKey(t)
	pub := priv.PubKey()
	msg := chainhash.HashH([]byte("vote for proposal 7"))

	sig := priv.Sign(msg)
	if !pub.Verify(msg, sig) {
		t.Fatal("valid signature failed to verify")
	}

	other := chainhash.HashH([]byte("a different message"))
	if pub.Verify(other, sig) {
		t.Fatal("signature verified against the wrong message")
	}
}

func TestSerializeParseSignature(t *testing.T) {
	priv := mustKey(t)
	msg := chainhash.HashH([]byte("ticket redemption"))
	sig := priv.Sign(msg)

	der := sig.Serialize()
	parsed, err := ParseSignature(der)
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if !priv.PubKey().Verify(msg, parsed) {
		t.Fatal("reparsed signature does not verify")
	}
}

func TestHash160Deterministic(t *testing.T) {
	priv := mustKey(t)
	pub := priv.PubKey()
	a := pub.Hash160()
	b := pub.Hash160()
	if len(a) != 20 {
		t.Fatalf("hash160 length = %d, want 20", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("Hash160 not deterministic")
		}
	}
}

func TestVerifyThresholdQuorum(t *testing.T) {
	const n, threshold = 5, 3
	members := make([]*PublicKey, n)
	privs := make([]*PrivateKey, n)
	for i := 0; i < n; i++ {
		privs[i] = mustKey(t)
		members[i] = privs[i].PubKey()
	}
	tpk := &ThresholdPublicKey{
		GroupKey: []byte("group-key-placeholder"),
		Members:  members,
		N:        n,
		T:        threshold,
	}

	msg := chainhash.HashH([]byte("peg-id-42"))

	// Below threshold: fails.
	shares := []*SignatureShare{
		{MemberIndex: 0, PubKey: members[0], Sig: privs[0].Sign(msg)},
		{MemberIndex: 1, PubKey: members[1], Sig: privs[1].Sign(msg)},
	}
	if VerifyThreshold(tpk, msg, shares) {
		t.Fatal("threshold satisfied with too few shares")
	}

	// At threshold: passes.
	shares = append(shares, &SignatureShare{MemberIndex: 2, PubKey: members[2], Sig: privs[2].Sign(msg)})
	if !VerifyThreshold(tpk, msg, shares) {
		t.Fatal("threshold not satisfied with exactly T shares")
	}

	// Duplicate member index does not count twice.
	dup := []*SignatureShare{
		{MemberIndex: 0, PubKey: members[0], Sig: privs[0].Sign(msg)},
		{MemberIndex: 0, PubKey: members[0], Sig: privs[0].Sign(msg)},
		{MemberIndex: 1, PubKey: members[1], Sig: privs[1].Sign(msg)},
	}
	if VerifyThreshold(tpk, msg, dup) {
		t.Fatal("duplicate member index satisfied threshold")
	}

	// A share signed by a non-member key does not count.
	impostor := mustKey(t)
	bad := []*SignatureShare{
		{MemberIndex: 3, PubKey: impostor.PubKey(), Sig: impostor.Sign(msg)},
		{MemberIndex: 1, PubKey: members[1], Sig: privs[1].Sign(msg)},
		{MemberIndex: 2, PubKey: members[2], Sig: privs[2].Sign(msg)},
	}
	if VerifyThreshold(tpk, msg, bad) {
		t.Fatal("impostor share counted toward threshold")
	}
}
