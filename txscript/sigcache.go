// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2020 The Decred developers
// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/dchest/siphash"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/wire"
)

// ProactiveEvictionDepth is the depth of the block at which the
// signatures for the transactions within it are nearly guaranteed to no
// longer be useful.
const ProactiveEvictionDepth = 2

// shortTxHashKeySize is the size of the byte array required for key
// material for the SipHash keyed shortTxHash function.
const shortTxHashKeySize = 16

// sigCacheEntry represents an entry in the SigCache. Entries are keyed by
// the sigHash of the signature; a cache hit still compares the signature
// and public key to guard against sigHash collisions.
type sigCacheEntry struct {
	sig         *ecdsa.Signature
	pubKey      *secp256k1.PublicKey
	shortTxHash uint64
}

// SigCache implements an ECDSA signature verification cache with a
// randomized entry eviction policy, so the Block Processor can avoid
// re-verifying a signature it has already checked once (e.g. when a
// transaction was seen in the mempool and then included in a block).
type SigCache struct {
	sync.RWMutex
	validSigs      map[chainhash.Hash]sigCacheEntry
	maxEntries     uint
	shortTxHashKey [shortTxHashKeySize]byte
}

// NewSigCache creates and initializes a new instance of SigCache holding at
// most maxEntries signatures. Entries are evicted at random to make room
// for new ones once full.
func NewSigCache(maxEntries uint) (*SigCache, error) {
	shortTxHashKey, err := createShortTxHashKey()
	if err != nil {
		return nil, err
	}
	return &SigCache{
		validSigs:      make(map[chainhash.Hash]sigCacheEntry, maxEntries),
		maxEntries:     maxEntries,
		shortTxHashKey: shortTxHashKey,
	}, nil
}

// Exists reports whether a matching (sigHash, sig, pubKey) triple was
// previously added to the cache.
func (s *SigCache) Exists(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *secp256k1.PublicKey) bool {
	s.RLock()
	entry, ok := s.validSigs[sigHash]
	s.RUnlock()

	return ok && entry.pubKey.IsEqual(pubKey) && entry.sig.IsEqual(sig)
}

// Add records that sig is a valid signature by pubKey over sigHash, found
// while validating tx.
func (s *SigCache) Add(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *secp256k1.PublicKey, tx *wire.MsgTx) {
	s.Lock()
	defer s.Unlock()

	if s.maxEntries == 0 {
		return
	}
	if uint(len(s.validSigs)+1) > s.maxEntries {
		for sigEntry := range s.validSigs {
			delete(s.validSigs, sigEntry)
			break
		}
	}
	s.validSigs[sigHash] = sigCacheEntry{sig, pubKey, shortTxHash(tx, s.shortTxHashKey)}
}

func createShortTxHashKey() ([shortTxHashKeySize]byte, error) {
	var key [shortTxHashKeySize]byte
	_, err := rand.Read(key[:])
	return key, err
}

// shortTxHash generates a short, keyed SipHash-2-4 digest of a transaction
// hash so EvictEntries can match cache entries against a block's
// transactions without storing the full hash twice.
func shortTxHash(msg *wire.MsgTx, key [shortTxHashKeySize]byte) uint64 {
	k0 := binary.LittleEndian.Uint64(key[0:8])
	k1 := binary.LittleEndian.Uint64(key[8:16])
	txHash := msg.Hash()
	return siphash.Hash(k0, k1, txHash[:])
}

// EvictEntries removes every cache entry belonging to a transaction in
// block. block should be ProactiveEvictionDepth blocks deep, the point at
// which its signatures are nearly guaranteed to no longer be useful.
func (s *SigCache) EvictEntries(block *wire.Block) {
	s.RLock()
	if len(s.validSigs) == 0 {
		s.RUnlock()
		return
	}
	s.RUnlock()

	go s.evictEntries(block)
}

func (s *SigCache) evictEntries(block *wire.Block) {
	shortTxHashSet := make(map[uint64]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		shortTxHashSet[shortTxHash(tx, s.shortTxHashKey)] = struct{}{}
	}

	s.Lock()
	for sigHash, sigEntry := range s.validSigs {
		if _, ok := shortTxHashSet[sigEntry.shortTxHash]; ok {
			delete(s.validSigs, sigHash)
		}
	}
	s.Unlock()
}
