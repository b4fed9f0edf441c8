// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainhash provides the 32-byte Blake3 digest type used throughout
// the consensus core to identify transactions, blocks, trie nodes and
// tickets.
package chainhash

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the size, in bytes, of a hash produced by this package.
const HashSize = 32

// MaxHashStringSize is the maximum length of a Hash hash string.
const MaxHashStringSize = HashSize * 2

// ErrHashStrSize describes an error that indicates the caller specified a
// hash string that has too many characters.
var ErrHashStrSize = fmt.Errorf("max hash string length is %v bytes", MaxHashStringSize)

// Hash is used in several of the consensus messages and common structures.
// It typically represents the Blake3 digest of data.
type Hash [HashSize]byte

// ZeroHash is the zero value for a Hash and is defined for convenience. It is
// the sentinel value used for "no predecessor" (e.g. the coinbase's spent
// outpoint and the genesis block's previous-block hash).
var ZeroHash = Hash{}

// String returns the Hash as the hexadecimal string of the byte-reversed
// hash, the usual display convention for block and transaction
// hashes so tooling built against this repo reads big-endian hex.
func (h Hash) String() string {
	var reversed Hash
	for i, b := range h[:HashSize/2] {
		reversed[i], reversed[HashSize-1-i] = h[HashSize-1-i], b
	}
	if HashSize%2 == 1 {
		reversed[HashSize/2] = h[HashSize/2]
	}
	return hex.EncodeToString(reversed[:])
}

// CloneBytes returns a copy of the bytes of the hash. This is mainly useful
// to enable code to pass the bytes to functions that expect a slice
// without worrying about mutation since any changes to the returned slice
// will not affect the hash.
func (h *Hash) CloneBytes() []byte {
	newHash := make([]byte, HashSize)
	copy(newHash, h[:])
	return newHash
}

// SetBytes sets the bytes which represent the hash. An error is returned if
// the number of bytes passed in is not HashSize.
func (h *Hash) SetBytes(newHash []byte) error {
	if len(newHash) != HashSize {
		return fmt.Errorf("invalid hash length of %v, want %v", len(newHash), HashSize)
	}
	copy(h[:], newHash)
	return nil
}

// IsEqual returns true if the target hash is the same as the hash. If the
// target is nil the comparison is treated as false.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil && target == nil {
		return true
	}
	if h == nil || target == nil {
		return false
	}
	return *h == *target
}

// NewHash returns a new Hash from a byte slice.
func NewHash(newHash []byte) (*Hash, error) {
	var sh Hash
	if err := sh.SetBytes(newHash); err != nil {
		return nil, err
	}
	return &sh, nil
}

// NewHashFromStr creates a Hash from a big-endian hash string.
func NewHashFromStr(hash string) (*Hash, error) {
	var ret Hash
	if err := Decode(&ret, hash); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Decode decodes the big-endian hex string encoding of a Hash into dst.
func Decode(dst *Hash, src string) error {
	if len(src) > MaxHashStringSize {
		return ErrHashStrSize
	}

	var srcBytes []byte
	if len(src)%2 == 0 {
		srcBytes = []byte(src)
	} else {
		srcBytes = make([]byte, 1+len(src))
		srcBytes[0] = '0'
		copy(srcBytes[1:], src)
	}

	var reversedHash Hash
	_, err := hex.Decode(reversedHash[HashSize-hex.DecodedLen(len(srcBytes)):], srcBytes)
	if err != nil {
		return err
	}

	for i, b := range reversedHash[:HashSize/2] {
		dst[i], dst[HashSize-1-i] = reversedHash[HashSize-1-i], b
	}
	return nil
}

// HashB calculates the Blake3 hash of the passed byte slice and returns it
// as a byte slice.
func HashB(b []byte) []byte {
	h := blake3.Sum256(b)
	return h[:]
}

// HashH calculates the Blake3 hash of the passed byte slice and returns it
// as a Hash.
func HashH(b []byte) Hash {
	return blake3.Sum256(b)
}

// Hash160 variants live in the primitives package since they combine a
// different digest family (used for P2PKH addresses, not consensus hashing).
