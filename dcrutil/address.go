// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dcrutil

import (
	"bytes"
	"errors"

	"github.com/decred/base58"

	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
)

// ErrMalformedAddress describes an address string that does not decode to
// a recognized payload.
var ErrMalformedAddress = errors.New("malformed address")

// Address is a human-readable encoding of a payment destination: a one
// byte network/type magic, a 20-byte hash, and a 4-byte Blake3 checksum,
// base58 encoded.
type Address struct {
	netID byte
	hash  [20]byte
}

// NewAddressPubKeyHash returns the pay-to-pubkey-hash address for a
// 20-byte public key hash on the given network.
func NewAddressPubKeyHash(pkHash []byte, net *chaincfg.Params) (*Address, error) {
	if len(pkHash) != 20 {
		return nil, ErrMalformedAddress
	}
	a := &Address{netID: net.PubKeyHashAddrID}
	copy(a.hash[:], pkHash)
	return a, nil
}

// NewAddressScriptHash returns the pay-to-script-hash address for a
// 20-byte script hash on the given network.
func NewAddressScriptHash(scriptHash []byte, net *chaincfg.Params) (*Address, error) {
	if len(scriptHash) != 20 {
		return nil, ErrMalformedAddress
	}
	a := &Address{netID: net.ScriptHashAddrID}
	copy(a.hash[:], scriptHash)
	return a, nil
}

// DecodeAddress parses an address string, verifying its checksum. The
// address may be for any network; callers match the returned magic against
// the expected one via IsForNet.
func DecodeAddress(addr string) (*Address, error) {
	decoded := base58.Decode(addr)
	if len(decoded) != 1+20+4 {
		return nil, ErrMalformedAddress
	}
	cksum := chainhash.HashB(decoded[:21])[:4]
	if !bytes.Equal(cksum, decoded[21:]) {
		return nil, ErrChecksumMismatch
	}
	a := &Address{netID: decoded[0]}
	copy(a.hash[:], decoded[1:21])
	return a, nil
}

// IsForNet reports whether the address carries one of net's magics.
func (a *Address) IsForNet(net *chaincfg.Params) bool {
	return a.netID == net.PubKeyHashAddrID || a.netID == net.ScriptHashAddrID
}

// Hash160 returns the 20-byte hash the address pays to.
func (a *Address) Hash160() []byte {
	return a.hash[:]
}

// String returns the base58 encoding of the address.
func (a *Address) String() string {
	b := make([]byte, 0, 1+20+4)
	b = append(b, a.netID)
	b = append(b, a.hash[:]...)
	cksum := chainhash.HashB(b)[:4]
	return base58.Encode(append(b, cksum...))
}
