// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fraudproof

import (
	"github.com/solidus-chain/solidusd/chainhash"
)

// managerSnapshot is a deep copy of everything a Manager mutates while a
// block is applied.
type managerSnapshot struct {
	challenges       map[chainhash.Hash]*Challenge
	responseDeadline map[uint32][]chainhash.Hash
}

// Snapshot returns an opaque deep copy of the manager's mutable state.
func (m *Manager) Snapshot() interface{} {
	return &managerSnapshot{
		challenges:       copyChallenges(m.challenges),
		responseDeadline: copyHeightIndex(m.responseDeadline),
	}
}

// Restore replaces the manager's mutable state with a snapshot previously
// returned by Snapshot.
func (m *Manager) Restore(snapshot interface{}) {
	snap := snapshot.(*managerSnapshot)
	m.challenges = copyChallenges(snap.challenges)
	m.responseDeadline = copyHeightIndex(snap.responseDeadline)
}

func copyChallenges(in map[chainhash.Hash]*Challenge) map[chainhash.Hash]*Challenge {
	out := make(map[chainhash.Hash]*Challenge, len(in))
	for id, c := range in {
		cc := *c
		cc.Evidence = append([]byte(nil), c.Evidence...)
		cc.ResponseEvidence = append([]byte(nil), c.ResponseEvidence...)
		out[id] = &cc
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
