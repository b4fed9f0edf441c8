// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"encoding/binary"

	"github.com/jrick/bitset"

	"github.com/solidus-chain/solidusd/chainhash"
)

// registrySnapshot is a deep copy of everything a Registry mutates while a
// block is applied.
type registrySnapshot struct {
	entries          map[chainhash.Hash]*Entry
	pendingProbation map[uint32][]chainhash.Hash
	failureReset     map[uint32][]chainhash.Hash
	rounds           map[chainhash.Hash]*ChallengeRound
}

// Snapshot returns an opaque deep copy of the registry's mutable state.
func (r *Registry) Snapshot() interface{} {
	snap := &registrySnapshot{
		entries:          copyEntries(r.entries),
		pendingProbation: copyHeightIndex(r.pendingProbation),
		failureReset:     copyHeightIndex(r.failureReset),
		rounds:           copyRounds(r.rounds),
	}
	return snap
}

// Restore replaces the registry's mutable state with a snapshot previously
// returned by Snapshot and clears the dirty set.
func (r *Registry) Restore(snapshot interface{}) {
	snap := snapshot.(*registrySnapshot)
	r.entries = copyEntries(snap.entries)
	r.pendingProbation = copyHeightIndex(snap.pendingProbation)
	r.failureReset = copyHeightIndex(snap.failureReset)
	r.rounds = copyRounds(snap.rounds)
	r.dirty = make(map[chainhash.Hash]struct{})
}

func copyEntries(in map[chainhash.Hash]*Entry) map[chainhash.Hash]*Entry {
	out := make(map[chainhash.Hash]*Entry, len(in))
	for id, e := range in {
		c := *e
		c.OperatorPubKey = append([]byte(nil), e.OperatorPubKey...)
		out[id] = &c
	}
	return out
}

func copyHeightIndex(in map[uint32][]chainhash.Hash) map[uint32][]chainhash.Hash {
	out := make(map[uint32][]chainhash.Hash, len(in))
	for h, ids := range in {
		out[h] = append([]chainhash.Hash(nil), ids...)
	}
	return out
}

func copyRounds(in map[chainhash.Hash]*ChallengeRound) map[chainhash.Hash]*ChallengeRound {
	out := make(map[chainhash.Hash]*ChallengeRound, len(in))
	for nonce, round := range in {
		c := *round
		c.Targets = append([]chainhash.Hash(nil), round.Targets...)
		c.Responded = append(bitset.Bytes(nil), round.Responded...)
		out[nonce] = &c
	}
	return out
}

// TakeDirty returns the ids of every entry mutated since the previous call
// and resets the set.
func (r *Registry) TakeDirty() []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	r.dirty = make(map[chainhash.Hash]struct{})
	return ids
}

// SerializeEntry returns the canonical byte encoding of a masternode entry
// for the state trie, or ok=false if the id is no longer registered (its
// trie entry, if any, should be deleted).
func (r *Registry) SerializeEntry(id chainhash.Hash) ([]byte, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, e.ID[:]...)
	buf = append(buf, e.CollateralOutpoint.Hash[:]...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], e.CollateralOutpoint.Index)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(e.OperatorPubKey)))
	buf = append(buf, u32[:]...)
	buf = append(buf, e.OperatorPubKey...)
	buf = append(buf, e.PayoutHash[:]...)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(e.NetworkAddress)))
	buf = append(buf, u32[:]...)
	buf = append(buf, e.NetworkAddress...)
	binary.LittleEndian.PutUint32(u32[:], e.RegistrationHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], e.LastSeenHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], e.PoSeFailureCount)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], e.LastFailureHeight)
	buf = append(buf, u32[:]...)
	buf = append(buf, byte(e.Status))
	return buf, true
}
