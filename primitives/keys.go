// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package primitives collects the cryptographic building blocks the rest of
// the consensus core is built from: hashing is in chainhash, this package
// adds keypairs, signatures, and the threshold-signature-share envelope used
// by the masternode federation. The DKG protocol that produces a threshold
// public key and per-member signature shares is treated as an external
// primitive; this package only models its output, not the protocol itself.
package primitives

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/crypto/ripemd160"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/solidus-chain/solidusd/chainhash"
)

// PrivateKeySize is the size, in bytes, of a serialized secp256k1 private key.
const PrivateKeySize = 32

// PublicKeySize is the size, in bytes, of a serialized compressed secp256k1
// public key.
const PublicKeySize = 33

// PrivateKey wraps a secp256k1 scalar used by stakers, masternode operators,
// governance proposers and voters, and federation members.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps a secp256k1 point.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// Signature wraps a deterministic ECDSA signature over a sighash.
type Signature struct {
	sig *ecdsa.Signature
}

// GeneratePrivateKey creates a new private key using a cryptographically
// secure random source.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivKeyFromBytes parses a 32-byte scalar into a PrivateKey. The caller is
// responsible for ensuring the bytes were generated by a secure source.
func PrivKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d, want %d", len(b), PrivateKeySize)
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: priv}, nil
}

// Serialize returns the raw 32-byte scalar.
func (p *PrivateKey) Serialize() []byte {
	return p.key.Serialize()
}

// PubKey derives the public key corresponding to this private key.
func (p *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: p.key.PubKey()}
}

// Sign produces a deterministic ECDSA signature over the given sighash.
func (p *PrivateKey) Sign(sigHash chainhash.Hash) *Signature {
	sig := ecdsa.Sign(p.key, sigHash[:])
	return &Signature{sig: sig}
}

// ParsePublicKey parses a compressed or uncompressed secp256k1 public key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("malformed public key: %w", err)
	}
	return &PublicKey{key: key}, nil
}

// SerializeCompressed returns the 33-byte compressed encoding.
func (p *PublicKey) SerializeCompressed() []byte {
	return p.key.SerializeCompressed()
}

// Hash160 returns RIPEMD160(Blake3(pubkey)), the digest used to derive
// payout hashes and P2PKH locking scripts. Using Blake3 rather than
// SHA-256 as the inner round keeps every consensus-visible digest on the
// same hash family.
func (p *PublicKey) Hash160() []byte {
	blakeSum := chainhash.HashB(p.SerializeCompressed())
	r := ripemd160.New()
	r.Write(blakeSum)
	return r.Sum(nil)
}

// IsEqual reports whether two public keys are the same point.
func (p *PublicKey) IsEqual(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key.IsEqual(other.key)
}

// Verify checks that sig is a valid signature over sigHash by this key.
func (p *PublicKey) Verify(sigHash chainhash.Hash, sig *Signature) bool {
	if sig == nil {
		return false
	}
	return sig.sig.Verify(sigHash[:], p.key)
}

// ParseSignature parses a DER-encoded ECDSA signature.
func ParseSignature(b []byte) (*Signature, error) {
	sig, err := ecdsa.ParseDERSignature(b)
	if err != nil {
		return nil, fmt.Errorf("malformed signature: %w", err)
	}
	return &Signature{sig: sig}, nil
}

// Serialize returns the DER encoding of the signature.
func (s *Signature) Serialize() []byte {
	return s.sig.Serialize()
}

// RandomNonce returns a cryptographically random 32-byte value.
func RandomNonce() (chainhash.Hash, error) {
	var h chainhash.Hash
	if _, err := rand.Read(h[:]); err != nil {
		return h, err
	}
	return h, nil
}

// ErrInvalidThresholdShare describes a signature share that cannot be
// attributed to a known federation member. VerifyThreshold does not return
// it; it skips such shares.
var ErrInvalidThresholdShare = errors.New("primitives: signature share from unknown member")
