// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package governance

import (
	"encoding/binary"
	"testing"

	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/wire"
)

func proposalID(b byte) chainhash.Hash {
	return chainhash.HashH([]byte{b})
}

func voterID(b byte) chainhash.Hash {
	return chainhash.HashH([]byte{0x70, b})
}

func paramValue(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func addParamProposal(r *Registry, id chainhash.Hash, start, end uint32) {
	r.AddProposal(id, []byte{0x02, 0x01}, uint8(ProposalTypeParameter), start, end, "HalvingInterval", paramValue(300_000))
}

func TestValidateParameterChange(t *testing.T) {
	if err := ValidateParameterChange("HalvingInterval", paramValue(300_000)); err != nil {
		t.Fatalf("in-bounds change rejected: %v", err)
	}
	if err := ValidateParameterChange("NoSuchParameter", paramValue(1)); err != ErrUnknownParameter {
		t.Fatalf("unknown parameter error = %v", err)
	}
	if err := ValidateParameterChange("HalvingInterval", paramValue(1)); err != ErrParameterOutOfBounds {
		t.Fatalf("out-of-bounds error = %v", err)
	}
	if err := ValidateParameterChange("HalvingInterval", []byte{1, 2}); err != ErrMalformedParameter {
		t.Fatalf("malformed value error = %v", err)
	}
}

func TestProposalPassesAndActivates(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id := proposalID(1)
	addParamProposal(r, id, 10, 20)

	r.ApplyVote(id, wire.VoterTicket, voterID(1), true)
	r.ApplyVote(id, wire.VoterMasternode, voterID(2), true)
	if !r.HasVoted(id, voterID(1)) || !r.HasVoted(id, voterID(2)) {
		t.Fatal("votes not recorded")
	}

	// Both quorums met (1 of 2 live tickets = 50% >= 20%; 1 of 1
	// masternodes), both approvals unanimous.
	if changes := r.AdvanceBlock(20, 2, 1); len(changes) != 0 {
		t.Fatal("activation fired at the evaluation height")
	}
	if outcome, _ := r.ProposalOutcome(id); outcome != OutcomePassed {
		t.Fatalf("outcome = %v, want passed", outcome)
	}

	activationHeight := 20 + params.GovernanceActivationDelay
	changes := r.AdvanceBlock(activationHeight, 2, 1)
	if len(changes) != 1 || changes[0].Name != "HalvingInterval" || changes[0].Value != 300_000 {
		t.Fatalf("activation changes = %+v", changes)
	}
	if outcome, _ := r.ProposalOutcome(id); outcome != OutcomeActivated {
		t.Fatalf("outcome = %v, want activated", outcome)
	}

	// Activation happens exactly once.
	if changes := r.AdvanceBlock(activationHeight, 2, 1); len(changes) != 0 {
		t.Fatal("activation fired twice")
	}
}

func TestProposalRejectedOnApprovalFailure(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id := proposalID(2)
	addParamProposal(r, id, 10, 20)

	// Quorums met, but ticket approval is 50% < 60%.
	r.ApplyVote(id, wire.VoterTicket, voterID(1), true)
	r.ApplyVote(id, wire.VoterTicket, voterID(2), false)
	r.ApplyVote(id, wire.VoterMasternode, voterID(3), true)
	r.AdvanceBlock(20, 2, 1)
	if outcome, _ := r.ProposalOutcome(id); outcome != OutcomeRejected {
		t.Fatalf("outcome = %v, want rejected", outcome)
	}
}

func TestProposalExpiresWithoutQuorum(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id := proposalID(3)
	addParamProposal(r, id, 10, 20)

	// One ticket vote out of 100 live tickets, no masternode votes:
	// neither quorum is met.
	r.ApplyVote(id, wire.VoterTicket, voterID(1), true)
	r.AdvanceBlock(20, 100, 50)
	if outcome, _ := r.ProposalOutcome(id); outcome != OutcomeExpired {
		t.Fatalf("outcome = %v, want expired", outcome)
	}
}

func TestExplicitActivate(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id := proposalID(4)
	addParamProposal(r, id, 10, 20)
	r.ApplyVote(id, wire.VoterTicket, voterID(1), true)
	r.ApplyVote(id, wire.VoterMasternode, voterID(2), true)
	r.AdvanceBlock(20, 1, 1)

	activationHeight := 20 + params.GovernanceActivationDelay

	// Too early.
	if _, _, err := r.Activate(id, activationHeight-1); err == nil {
		t.Fatal("activation before the delay elapsed succeeded")
	}

	change, ok, err := r.Activate(id, activationHeight)
	if err != nil || !ok || change.Name != "HalvingInterval" {
		t.Fatalf("Activate = (%+v, %v, %v)", change, ok, err)
	}
	// A second explicit activation fails.
	if _, _, err := r.Activate(id, activationHeight); err == nil {
		t.Fatal("double activation succeeded")
	}
}

func TestSnapshotRestore(t *testing.T) {
	params := chaincfg.SimNetParams()
	r := New(params)
	id := proposalID(5)
	addParamProposal(r, id, 10, 20)

	snap := r.Snapshot()
	r.ApplyVote(id, wire.VoterTicket, voterID(1), true)
	addParamProposal(r, proposalID(6), 30, 40)

	r.Restore(snap)
	if r.HasVoted(id, voterID(1)) {
		t.Fatal("post-snapshot vote survives restore")
	}
	if _, ok := r.ProposalOutcome(proposalID(6)); ok {
		t.Fatal("post-snapshot proposal survives restore")
	}
}
