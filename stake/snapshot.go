// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stake

import (
	"encoding/binary"

	"github.com/solidus-chain/solidusd/chainhash"
)

// poolSnapshot is a deep copy of everything a Pool mutates while a block
// is applied, taken by the block processor before connecting a block so a
// failed apply or a reorg restores the pool byte-identically.
type poolSnapshot struct {
	tickets           map[chainhash.Hash]*Ticket
	pendingByMaturity map[uint32][]chainhash.Hash
	liveByExpiry      map[uint32][]chainhash.Hash
	currentPrice      int64
}

// Snapshot returns an opaque deep copy of the pool's mutable state.
func (p *Pool) Snapshot() interface{} {
	snap := &poolSnapshot{
		tickets:           make(map[chainhash.Hash]*Ticket, len(p.tickets)),
		pendingByMaturity: copyHeightIndex(p.pendingByMaturity),
		liveByExpiry:      copyHeightIndex(p.liveByExpiry),
		currentPrice:      p.currentPrice,
	}
	for id, t := range p.tickets {
		c := *t
		c.StakerPubKey = append([]byte(nil), t.StakerPubKey...)
		snap.tickets[id] = &c
	}
	return snap
}

// Restore replaces the pool's mutable state with a snapshot previously
// returned by Snapshot. The dirty set is cleared: the caller restoring a
// snapshot is also rolling back the trie entries those ids referred to.
func (p *Pool) Restore(snapshot interface{}) {
	snap := snapshot.(*poolSnapshot)
	p.tickets = make(map[chainhash.Hash]*Ticket, len(snap.tickets))
	for id, t := range snap.tickets {
		c := *t
		c.StakerPubKey = append([]byte(nil), t.StakerPubKey...)
		p.tickets[id] = &c
	}
	p.pendingByMaturity = copyHeightIndex(snap.pendingByMaturity)
	p.liveByExpiry = copyHeightIndex(snap.liveByExpiry)
	p.currentPrice = snap.currentPrice
	p.dirty = make(map[chainhash.Hash]struct{})
}

func copyHeightIndex(in map[uint32][]chainhash.Hash) map[uint32][]chainhash.Hash {
	out := make(map[uint32][]chainhash.Hash, len(in))
	for h, ids := range in {
		out[h] = append([]chainhash.Hash(nil), ids...)
	}
	return out
}

// TakeDirty returns the ids of every ticket mutated since the previous
// call and resets the set. The block processor uses it to refresh the
// state trie's ticket entries for exactly the tickets this block touched.
func (p *Pool) TakeDirty() []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(p.dirty))
	for id := range p.dirty {
		ids = append(ids, id)
	}
	p.dirty = make(map[chainhash.Hash]struct{})
	return ids
}

// SerializeEntry returns the canonical byte encoding of a ticket for the
// state trie, or ok=false if the id is unknown (the trie entry, if any,
// should be deleted).
func (p *Pool) SerializeEntry(id chainhash.Hash) ([]byte, bool) {
	t, ok := p.tickets[id]
	if !ok {
		return nil, false
	}
	buf := make([]byte, 0, chainhash.HashSize+1+len(t.StakerPubKey)+8+4+8+4)
	buf = append(buf, t.ID[:]...)
	buf = append(buf, byte(t.Status))
	var u32 [4]byte
	var u64 [8]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(t.StakerPubKey)))
	buf = append(buf, u32[:]...)
	buf = append(buf, t.StakerPubKey...)
	binary.LittleEndian.PutUint64(u64[:], uint64(t.StakeAmount))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint32(u32[:], t.PurchaseHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], t.TransitionHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(t.RewardCredit))
	buf = append(buf, u64[:]...)
	return buf, true
}
