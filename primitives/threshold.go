// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package primitives

import (
	"github.com/solidus-chain/solidusd/chainhash"
)

// ThresholdPublicKey is the opaque group public key produced by the DKG
// protocol run among the current federation. The DKG protocol itself (key
// generation, Feldman VSS commitments, complaint resolution) is an
// external primitive; this type only carries its output.
type ThresholdPublicKey struct {
	GroupKey []byte
	Members  []*PublicKey
	N        uint32 // total federation size this key was generated for
	T        uint32 // signature threshold required to authorize an action
}

// SignatureShare is one federation member's partial signature over a
// message, produced after a successful DKG round. Aggregation of shares into
// a single group signature is also a DKG-protocol concern; the consensus
// core only needs to know how many distinct, individually-valid shares were
// presented.
type SignatureShare struct {
	MemberIndex uint32
	PubKey      *PublicKey
	Sig         *Signature
}

// VerifyThreshold reports whether shares contains at least tpk.T shares from
// distinct, recognized members of tpk, each a valid signature over message.
// This is the consensus-visible half of threshold signing: the core does
// not reconstruct or verify a single aggregate signature (that operation
// belongs to the DKG/signing primitive), it verifies that a quorum of
// individually-valid shares was actually produced.
func VerifyThreshold(tpk *ThresholdPublicKey, message chainhash.Hash, shares []*SignatureShare) bool {
	if tpk == nil || uint32(len(shares)) < tpk.T {
		return false
	}

	seen := make(map[uint32]bool, len(shares))
	valid := uint32(0)
	for _, share := range shares {
		if share == nil || share.PubKey == nil || share.Sig == nil {
			continue
		}
		if share.MemberIndex >= tpk.N || seen[share.MemberIndex] {
			continue
		}
		if !memberRecognized(tpk, share.MemberIndex, share.PubKey) {
			continue
		}
		if !share.PubKey.Verify(message, share.Sig) {
			continue
		}
		seen[share.MemberIndex] = true
		valid++
	}

	return valid >= tpk.T
}

func memberRecognized(tpk *ThresholdPublicKey, index uint32, pub *PublicKey) bool {
	if int(index) >= len(tpk.Members) {
		return false
	}
	return tpk.Members[index].IsEqual(pub)
}
