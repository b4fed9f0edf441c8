// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"testing"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/wire"
)

func testKey(t *testing.T, seed byte) *primitives.PrivateKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = seed + byte(i) + 1
	}
	key, err := primitives.PrivKeyFromBytes(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func register(t *testing.T, r *Registry, seed byte, height uint32) (chainhash.Hash, *primitives.PrivateKey) {
	key := testKey(t, seed)
	id := chainhash.HashH([]byte{seed})
	collateral := wire.OutPoint{Hash: chainhash.HashH([]byte{seed, seed}), Index: 0}
	var payout [20]byte
	r.Register(id, collateral, key.PubKey().SerializeCompressed(), payout, "192.0.2.1:9555", height)
	return id, key
}

func TestRegistrationProbation(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id, _ := register(t, r, 1, 10)

	if info, ok := r.Masternode(id); !ok || info.Status != blockchain.MasternodeRegistered {
		t.Fatalf("fresh entry status = %v", info.Status)
	}
	if r.ActiveCount() != 0 {
		t.Fatal("registered entry counted active")
	}

	r.AdvanceBlock(10 + params.MasternodeProbationBlocks)
	if info, _ := r.Masternode(id); info.Status != blockchain.MasternodeActive {
		t.Fatalf("post-probation status = %v", info.Status)
	}
	if r.ActiveCount() != 1 {
		t.Fatal("active entry not counted")
	}
}

func TestPoSeChallengeResponse(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)

	keys := make(map[chainhash.Hash]*primitives.PrivateKey)
	for i := byte(1); i <= 4; i++ {
		id, key := register(t, r, i, 0)
		keys[id] = key
	}
	r.AdvanceBlock(params.MasternodeProbationBlocks)

	height := params.PoSeChallengePeriod * 4
	prev := chainhash.HashH([]byte("prev block"))
	rounds := r.IssueChallenges(prev, height)
	if len(rounds) == 0 {
		t.Fatal("no challenges issued on a challenge boundary")
	}
	if r.IssueChallenges(prev, height+1) != nil {
		t.Fatal("challenges issued off the boundary")
	}

	// A valid response by the target's operator key clears the round.
	round := rounds[0]
	target := round.Targets[0]
	blockHash := chainhash.HashH([]byte("current block"))
	digest := chainhash.HashH(append(append([]byte{}, round.Nonce[:]...), blockHash[:]...))
	sig := keys[target].Sign(digest)
	if err := r.RecordResponse(round.Nonce, target, sig.Serialize(), blockHash, height+1); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	// A signature by the wrong key is rejected.
	if len(rounds) > 1 {
		other := rounds[1]
		wrongSig := keys[target].Sign(digest)
		err := r.RecordResponse(other.Nonce, other.Targets[0], wrongSig.Serialize(), blockHash, height+1)
		if err == nil {
			t.Fatal("response signed by the wrong operator accepted")
		}
	}

	// Unanswered rounds become failures after the timeout.
	timeoutBlocks := uint32(params.PoSeResponseTimeoutSecs / params.TargetBlockTimeSeconds)
	r.ProcessTimeouts(height + timeoutBlocks)
	if info, _ := r.Masternode(target); info.Status != blockchain.MasternodeActive {
		t.Fatal("responding masternode was penalized")
	}
}

func TestPoSeFailuresLeadToProbationAndReset(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id, _ := register(t, r, 1, 0)
	r.AdvanceBlock(params.MasternodeProbationBlocks)

	// Drive recordFailure via repeated unanswered rounds against a
	// hand-built round so the target is deterministic.
	var height uint32 = 100
	for i := uint32(0); i < params.MaxPoSeFailures; i++ {
		nonce := chainhash.HashH([]byte{byte(i)})
		r.rounds[nonce] = &ChallengeRound{
			Nonce:        nonce,
			ChallengerID: id,
			Targets:      []chainhash.Hash{id},
			IssuedHeight: height,
			Responded:    make([]byte, 1),
		}
		height += 10
		r.ProcessTimeouts(height)
	}
	if info, _ := r.Masternode(id); info.Status != blockchain.MasternodeProbation {
		t.Fatalf("status after %d failures = %v, want probation", params.MaxPoSeFailures, info.Status)
	}

	// After the reset period without further failures the entry
	// recovers. The reset was scheduled when the final failure was
	// recorded at the last timeout height.
	r.AdvanceBlock(height + params.PoSeResetFailuresPeriod)
	if info, _ := r.Masternode(id); info.Status != blockchain.MasternodeActive {
		t.Fatalf("status after reset period = %v, want active", info.Status)
	}
}

func TestFailureDuringProbationRestartsResetWindow(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id, _ := register(t, r, 1, 0)
	r.AdvanceBlock(params.MasternodeProbationBlocks)

	// Enough failures to reach probation, the last one at lastFail.
	var lastFail uint32 = 100
	for i := uint32(0); i < params.MaxPoSeFailures; i++ {
		lastFail = 100 + i*10
		r.recordFailure(id, lastFail)
	}
	if info, _ := r.Masternode(id); info.Status != blockchain.MasternodeProbation {
		t.Fatalf("status = %v, want probation", info.Status)
	}

	// A further failure during probation restarts the window: the reset
	// scheduled by the earlier failure is stale and must not fire.
	extraFail := lastFail + 2
	r.recordFailure(id, extraFail)
	r.AdvanceBlock(lastFail + params.PoSeResetFailuresPeriod)
	if info, _ := r.Masternode(id); info.Status != blockchain.MasternodeProbation {
		t.Fatal("stale reset schedule restored the masternode to active")
	}

	// The most recent failure's schedule is the one that fires.
	r.AdvanceBlock(extraFail + params.PoSeResetFailuresPeriod)
	info, _ := r.Masternode(id)
	if info.Status != blockchain.MasternodeActive {
		t.Fatalf("status after the restarted window = %v, want active", info.Status)
	}
	if r.entries[id].PoSeFailureCount != 0 {
		t.Fatal("failure count not cleared by the reset")
	}
}

func TestSlashAndCollateralSpent(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id1, _ := register(t, r, 1, 0)
	id2, _ := register(t, r, 2, 0)

	r.Slash(id1)
	if _, ok := r.Masternode(id1); ok {
		t.Fatal("slashed entry still present")
	}

	if op, ok := r.CollateralOf(id2); !ok || op == (wire.OutPoint{}) {
		t.Fatal("CollateralOf failed for a registered entry")
	}
	r.CollateralSpent(id2)
	if _, ok := r.Masternode(id2); ok {
		t.Fatal("entry with spent collateral still present")
	}
}

func TestFederationCandidateOrdering(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	for i := byte(1); i <= 5; i++ {
		register(t, r, i, uint32(10-i)) // later seeds registered earlier
	}
	r.AdvanceBlock(9 + params.MasternodeProbationBlocks)
	// Not all entries activate at the same height; advance far enough
	// for every probation window.
	for h := uint32(5); h <= 12; h++ {
		r.AdvanceBlock(h)
	}

	candidates := r.TopByCollateralAge(3)
	if len(candidates) != 3 {
		t.Fatalf("candidate count = %d, want 3", len(candidates))
	}
	// Oldest registration heights first.
	var prevHeight uint32
	for i, c := range candidates {
		e := r.entries[c.ID]
		if i > 0 && e.RegistrationHeight < prevHeight {
			t.Fatal("candidates not ordered by collateral age")
		}
		prevHeight = e.RegistrationHeight
	}
}

func TestSnapshotRestore(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id, _ := register(t, r, 1, 0)
	r.AdvanceBlock(params.MasternodeProbationBlocks)

	snap := r.Snapshot()
	r.Slash(id)
	register(t, r, 2, 50)

	r.Restore(snap)
	if info, ok := r.Masternode(id); !ok || info.Status != blockchain.MasternodeActive {
		t.Fatal("restore did not reinstate the slashed entry")
	}
	if _, ok := r.Masternode(chainhash.HashH([]byte{2})); ok {
		t.Fatal("post-snapshot registration survives restore")
	}
}
