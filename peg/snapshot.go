// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peg

import (
	"encoding/binary"

	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
)

// managerSnapshot is a deep copy of everything a Manager mutates while a
// block is applied. Federation keys are immutable once set, so the inner
// ThresholdPublicKey pointers are shared rather than copied.
type managerSnapshot struct {
	operations     map[chainhash.Hash]*Operation
	pendingTimeout map[uint32][]chainhash.Hash
	federations    map[uint32]*primitives.ThresholdPublicKey
	epochStarts    []uint32
}

// Snapshot returns an opaque deep copy of the manager's mutable state.
func (m *Manager) Snapshot() interface{} {
	return &managerSnapshot{
		operations:     copyOperations(m.operations),
		pendingTimeout: copyHeightIndex(m.pendingTimeout),
		federations:    copyFederations(m.federations),
		epochStarts:    append([]uint32(nil), m.epochStarts...),
	}
}

// Restore replaces the manager's mutable state with a snapshot previously
// returned by Snapshot.
func (m *Manager) Restore(snapshot interface{}) {
	snap := snapshot.(*managerSnapshot)
	m.operations = copyOperations(snap.operations)
	m.pendingTimeout = copyHeightIndex(snap.pendingTimeout)
	m.federations = copyFederations(snap.federations)
	m.epochStarts = append([]uint32(nil), snap.epochStarts...)
	m.dirty = make(map[chainhash.Hash]struct{})
}

// TakeDirty returns the ids of every operation mutated since the previous
// call and resets the set.
func (m *Manager) TakeDirty() []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	m.dirty = make(map[chainhash.Hash]struct{})
	return ids
}

func copyOperations(in map[chainhash.Hash]*Operation) map[chainhash.Hash]*Operation {
	out := make(map[chainhash.Hash]*Operation, len(in))
	for id, op := range in {
		c := *op
		c.Recipient = append([]byte(nil), op.Recipient...)
		c.Proof = append([]byte(nil), op.Proof...)
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

func copyFederations(in map[uint32]*primitives.ThresholdPublicKey) map[uint32]*primitives.ThresholdPublicKey {
	out := make(map[uint32]*primitives.ThresholdPublicKey, len(in))
	for h, tpk := range in {
		out[h] = tpk
	}
	return out
}

// SerializeEntry returns the canonical byte encoding of a peg operation
// for persistence, or ok=false if the id is unknown.
func (m *Manager) SerializeEntry(id chainhash.Hash) ([]byte, bool) {
	op, ok := m.operations[id]
	if !ok {
		return nil, false
	}
	buf := make([]byte, 0, 192)
	buf = append(buf, op.ID[:]...)
	buf = append(buf, byte(op.Direction))
	var u32 [4]byte
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(op.Amount))
	buf = append(buf, u64[:]...)
	buf = append(buf, op.AssetID[:]...)
	buf = append(buf, op.SourceChainID[:]...)
	buf = append(buf, op.DestChainID[:]...)
	binary.LittleEndian.PutUint32(u32[:], uint32(len(op.Recipient)))
	buf = append(buf, u32[:]...)
	buf = append(buf, op.Recipient...)
	buf = append(buf, byte(op.Status))
	binary.LittleEndian.PutUint32(u32[:], op.InitiatedHeight)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], op.Confirmations)
	buf = append(buf, u32[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(op.CreditAmount))
	buf = append(buf, u64[:]...)
	return buf, true
}
