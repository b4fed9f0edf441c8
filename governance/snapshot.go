// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package governance

import (
	"encoding/binary"

	"github.com/solidus-chain/solidusd/chainhash"
)

// registrySnapshot is a deep copy of everything a Registry mutates while a
// block is applied.
type registrySnapshot struct {
	proposals         map[chainhash.Hash]*Proposal
	pendingEval       map[uint32][]chainhash.Hash
	pendingActivation map[uint32][]chainhash.Hash
}

// Snapshot returns an opaque deep copy of the registry's mutable state.
func (r *Registry) Snapshot() interface{} {
	return &registrySnapshot{
		proposals:         copyProposals(r.proposals),
		pendingEval:       copyHeightIndex(r.pendingEval),
		pendingActivation: copyHeightIndex(r.pendingActivation),
	}
}

// Restore replaces the registry's mutable state with a snapshot previously
// returned by Snapshot and clears the dirty set.
func (r *Registry) Restore(snapshot interface{}) {
	snap := snapshot.(*registrySnapshot)
	r.proposals = copyProposals(snap.proposals)
	r.pendingEval = copyHeightIndex(snap.pendingEval)
	r.pendingActivation = copyHeightIndex(snap.pendingActivation)
	r.dirty = make(map[chainhash.Hash]struct{})
}

func copyProposals(in map[chainhash.Hash]*Proposal) map[chainhash.Hash]*Proposal {
	out := make(map[chainhash.Hash]*Proposal, len(in))
	for id, p := range in {
		c := *p
		c.ProposerPubKey = append([]byte(nil), p.ProposerPubKey...)
		c.NewValue = append([]byte(nil), p.NewValue...)
		c.votedTicket = copyVoterSet(p.votedTicket)
		c.votedMasternode = copyVoterSet(p.votedMasternode)
		out[id] = &c
	}
	return out
}

func copyVoterSet(in map[chainhash.Hash]struct{}) map[chainhash.Hash]struct{} {
	out := make(map[chainhash.Hash]struct{}, len(in))
	for id := range in {
		out[id] = struct{}{}
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

// TakeDirty returns the ids of every proposal mutated since the previous
// call and resets the set.
func (r *Registry) TakeDirty() []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	r.dirty = make(map[chainhash.Hash]struct{})
	return ids
}

// SerializeEntry returns the canonical byte encoding of a proposal for the
// state trie, or ok=false if the id is unknown.
func (r *Registry) SerializeEntry(id chainhash.Hash) ([]byte, bool) {
	p, ok := r.proposals[id]
	if !ok {
		return nil, false
	}
	buf := make([]byte, 0, 160)
	buf = append(buf, p.ID[:]...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(p.ProposerPubKey)))
	buf = append(buf, u32[:]...)
	buf = append(buf, p.ProposerPubKey...)
	buf = append(buf, byte(p.Type))
	binary.LittleEndian.PutUint32(u32[:], p.StartHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], p.EndHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(p.ParamName)))
	buf = append(buf, u32[:]...)
	buf = append(buf, p.ParamName...)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(p.NewValue)))
	buf = append(buf, u32[:]...)
	buf = append(buf, p.NewValue...)
	for _, v := range []uint32{p.TicketYes, p.TicketNo, p.MNYes, p.MNNo} {
		binary.LittleEndian.PutUint32(u32[:], v)
		buf = append(buf, u32[:]...)
	}
	buf = append(buf, byte(p.Outcome))
	binary.LittleEndian.PutUint32(u32[:], p.ActivationHeight)
	buf = append(buf, u32[:]...)
	return buf, true
}
