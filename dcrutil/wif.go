// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dcrutil

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/base58"

	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
)

var (
	// ErrMalformedPrivateKey describes an error where a WIF-encoded
	// private key cannot be decoded due to being improperly formatted.
	// This may occur if the byte length is incorrect or an unexpected
	// magic number was encountered.
	ErrMalformedPrivateKey = errors.New("malformed private key")

	// ErrChecksumMismatch describes an error where decoding failed due to
	// a bad checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

const (
	// privKeyBytesLen is the size of a serialized private key in bytes.
	privKeyBytesLen = 32

	// cksumBytesLen is the size of the appended checksum in bytes.
	cksumBytesLen = 4
)

// ErrWrongWIFNetwork describes an error in which the provided WIF is not
// for the expected network.
type ErrWrongWIFNetwork byte

// Error implements the error interface.
func (e ErrWrongWIFNetwork) Error() string {
	return fmt.Sprintf("WIF is not for the network identified by %#02x",
		byte(e))
}

// WIF contains the individual components described by the Wallet Import
// Format (WIF).  A WIF string is typically used to represent a private key
// and its associated address in a way that may be easily copied and
// imported into or exported from wallet software.
type WIF struct {
	// PrivKey is the private key being imported or exported.
	PrivKey *primitives.PrivateKey

	// netID is the network identifier byte used when encoding the WIF
	// string.
	netID byte
}

// NewWIF creates a new WIF structure to export an address and its private
// key as a string encoded in the Wallet Import Format.
func NewWIF(privKey *primitives.PrivateKey, net *chaincfg.Params) (*WIF, error) {
	if net == nil {
		return nil, errors.New("no network")
	}
	return &WIF{PrivKey: privKey, netID: net.PrivateKeyID}, nil
}

// DecodeWIF creates a new WIF structure by decoding the string encoding of
// the import format which is required to be for the provided network.
//
// The WIF string must be a base58-encoded of the following byte sequence:
//
//   - 1 byte identifying the network
//   - 32 bytes of a binary-encoded, big-endian, zero-padded private key
//   - 4 bytes of checksum, taken from the leading bytes of the Blake3 hash
//     of the preceding bytes
func DecodeWIF(wif string, net byte) (*WIF, error) {
	decoded := base58.Decode(wif)
	decodedLen := len(decoded)

	if decodedLen != 1+privKeyBytesLen+cksumBytesLen {
		return nil, ErrMalformedPrivateKey
	}
	if decoded[0] != net {
		return nil, ErrWrongWIFNetwork(net)
	}

	// Checksum is the leading bytes of Blake3(netID || privkey).
	cksum := chainhash.HashB(decoded[:decodedLen-cksumBytesLen])[:cksumBytesLen]
	if !bytes.Equal(cksum, decoded[decodedLen-cksumBytesLen:]) {
		return nil, ErrChecksumMismatch
	}

	privKeyBytes := decoded[1 : 1+privKeyBytesLen]
	privKey, err := primitives.PrivKeyFromBytes(privKeyBytes)
	if err != nil {
		return nil, ErrMalformedPrivateKey
	}
	return &WIF{PrivKey: privKey, netID: decoded[0]}, nil
}

// String creates the Wallet Import Format string encoding of a WIF
// structure.  See DecodeWIF for a detailed breakdown of the format and
// requirements of a valid WIF string.
func (w *WIF) String() string {
	a := make([]byte, 0, 1+privKeyBytesLen+cksumBytesLen)
	a = append(a, w.netID)
	a = append(a, w.PrivKey.Serialize()...)

	cksum := chainhash.HashB(a)[:cksumBytesLen]
	a = append(a, cksum...)
	return base58.Encode(a)
}

// SerializePubKey serializes the associated public key of the imported or
// exported private key in compressed format.
func (w *WIF) SerializePubKey() []byte {
	return w.PrivKey.PubKey().SerializeCompressed()
}
