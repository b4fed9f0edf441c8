// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package governance implements the proposal/vote/activation registry:
// proposals accumulate ticket and masternode votes across their voting
// window, are tallied against dual quorum and approval thresholds at
// their end height, and passed parameter changes are applied after a
// fixed activation delay. Pending evaluation and pending activation are
// each indexed by the height they occur at, like stake.Pool's
// maturity/expiry indices, so advancing a block never scans the whole
// registry.
package governance

import (
	"encoding/binary"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/wire"
)

// ProposalType distinguishes a consensus-parameter change from a feature
// upgrade flag.
type ProposalType uint8

const (
	ProposalTypeParameter ProposalType = iota
	ProposalTypeUpgrade
)

// Outcome is a proposal's terminal tally result.
type Outcome uint8

const (
	OutcomeActive Outcome = iota
	OutcomePassed
	OutcomeRejected
	OutcomeExpired
	OutcomeActivated
)

// Proposal is one governance proposal's full lifecycle record.
type Proposal struct {
	ID             chainhash.Hash
	ProposerPubKey []byte
	Type           ProposalType
	StartHeight    uint32
	EndHeight      uint32
	ParamName      string
	NewValue       []byte

	TicketYes, TicketNo uint32
	MNYes, MNNo         uint32
	votedTicket         map[chainhash.Hash]struct{}
	votedMasternode     map[chainhash.Hash]struct{}

	Outcome          Outcome
	ActivationHeight uint32
}

// Registry tracks every proposal from submission through activation.
type Registry struct {
	params *chaincfg.Params

	proposals map[chainhash.Hash]*Proposal

	pendingEval       map[uint32][]chainhash.Hash // by EndHeight
	pendingActivation map[uint32][]chainhash.Hash // by ActivationHeight

	// dirty collects the ids mutated since the last TakeDirty call so the
	// block processor can refresh exactly those state-trie entries.
	dirty map[chainhash.Hash]struct{}
}

// New returns an empty governance registry.
func New(params *chaincfg.Params) *Registry {
	return &Registry{
		params:            params,
		proposals:         make(map[chainhash.Hash]*Proposal),
		pendingEval:       make(map[uint32][]chainhash.Hash),
		pendingActivation: make(map[uint32][]chainhash.Hash),
		dirty:             make(map[chainhash.Hash]struct{}),
	}
}

// Proposal implements blockchain.GovernanceRegistry.
func (r *Registry) Proposal(id chainhash.Hash) (blockchain.ProposalInfo, bool) {
	p, ok := r.proposals[id]
	if !ok {
		return blockchain.ProposalInfo{}, false
	}
	return blockchain.ProposalInfo{StartHeight: p.StartHeight, EndHeight: p.EndHeight}, true
}

// ProposalOutcome reports a proposal's current lifecycle outcome.
func (r *Registry) ProposalOutcome(id chainhash.Hash) (Outcome, bool) {
	p, ok := r.proposals[id]
	if !ok {
		return 0, false
	}
	return p.Outcome, true
}

// HasVoted implements blockchain.GovernanceRegistry.
func (r *Registry) HasVoted(proposalID, voterID chainhash.Hash) bool {
	p, ok := r.proposals[proposalID]
	if !ok {
		return false
	}
	if _, ok := p.votedTicket[voterID]; ok {
		return true
	}
	_, ok = p.votedMasternode[voterID]
	return ok
}

// ErrUnknownParameter / ErrParameterOutOfBounds are returned by
// ValidateParameterChange.
type validationError string

func (e validationError) Error() string { return string(e) }

const (
	ErrUnknownParameter      = validationError("parameter is not governance-overridable")
	ErrParameterOutOfBounds  = validationError("new parameter value is outside its registered bounds")
	ErrMalformedParameter    = validationError("new parameter value is not a valid 8-byte little-endian integer")
)

// ValidateParameterChange checks a parameter proposal's target and value
// against chaincfg.GovernanceOverridable before the proposal is accepted,
// so a malformed proposal can never occupy a voting slot.
func ValidateParameterChange(paramName string, newValue []byte) error {
	bounds, ok := chaincfg.GovernanceOverridable[paramName]
	if !ok {
		return ErrUnknownParameter
	}
	if len(newValue) != 8 {
		return ErrMalformedParameter
	}
	v := int64(binary.LittleEndian.Uint64(newValue))
	if v < bounds.Min || v > bounds.Max {
		return ErrParameterOutOfBounds
	}
	return nil
}

// AddProposal records a newly confirmed GovernanceProposal transaction.
// blockchain.ValidateTransaction has already checked the stake, window and
// signature and, for parameter proposals, the same target and bounds rule
// that ValidateParameterChange applies.
func (r *Registry) AddProposal(id chainhash.Hash, proposerPubKey []byte, typ uint8, startHeight, endHeight uint32, paramName string, newValue []byte) {
	p := &Proposal{
		ID:              id,
		ProposerPubKey:  proposerPubKey,
		Type:            ProposalType(typ),
		StartHeight:     startHeight,
		EndHeight:       endHeight,
		ParamName:       paramName,
		NewValue:        newValue,
		votedTicket:     make(map[chainhash.Hash]struct{}),
		votedMasternode: make(map[chainhash.Hash]struct{}),
		Outcome:         OutcomeActive,
	}
	r.proposals[id] = p
	r.dirty[id] = struct{}{}
	r.pendingEval[endHeight] = append(r.pendingEval[endHeight], id)
}

// ApplyVote records a ticket's or masternode's vote on an open proposal.
// The caller (blockchain.ValidateTransaction) has already checked the
// voting window, voter eligibility, signature, and non-duplication.
func (r *Registry) ApplyVote(proposalID chainhash.Hash, kind wire.VoterKind, voterID chainhash.Hash, approve bool) {
	p, ok := r.proposals[proposalID]
	if !ok {
		return
	}
	switch kind {
	case wire.VoterTicket:
		p.votedTicket[voterID] = struct{}{}
		if approve {
			p.TicketYes++
		} else {
			p.TicketNo++
		}
	case wire.VoterMasternode:
		p.votedMasternode[voterID] = struct{}{}
		if approve {
			p.MNYes++
		} else {
			p.MNNo++
		}
	}
	r.dirty[proposalID] = struct{}{}
}

// AdvanceBlock evaluates proposals reaching their end height and
// activates passed proposals reaching their activation height. The caller
// supplies the live-ticket and active-masternode counts the quorum
// fractions are computed over, and receives the parameter changes this
// height's activations produce; the block processor applies them to its
// owned consensus parameters atomically with the block that crossed the
// activation height.
func (r *Registry) AdvanceBlock(height uint32, liveTickets, activeMasternodes int) []blockchain.ParamChange {
	for _, id := range r.pendingEval[height] {
		p, ok := r.proposals[id]
		if !ok {
			continue
		}
		r.evaluate(p, liveTickets, activeMasternodes)
		r.dirty[id] = struct{}{}
		if p.Outcome == OutcomePassed {
			p.ActivationHeight = p.EndHeight + r.params.GovernanceActivationDelay
			r.pendingActivation[p.ActivationHeight] = append(r.pendingActivation[p.ActivationHeight], id)
		}
	}
	delete(r.pendingEval, height)

	var changes []blockchain.ParamChange
	for _, id := range r.pendingActivation[height] {
		change, ok := r.activate(id)
		if ok {
			changes = append(changes, change)
		}
	}
	delete(r.pendingActivation, height)
	return changes
}

// activate marks a passed proposal Activated and returns its parameter
// change, if it carries one. A proposal is activated at most once; a
// second attempt is a no-op.
func (r *Registry) activate(id chainhash.Hash) (blockchain.ParamChange, bool) {
	p, ok := r.proposals[id]
	if !ok || p.Outcome != OutcomePassed {
		return blockchain.ParamChange{}, false
	}
	p.Outcome = OutcomeActivated
	r.dirty[id] = struct{}{}
	if p.Type != ProposalTypeParameter || len(p.NewValue) != 8 {
		return blockchain.ParamChange{}, false
	}
	v := int64(binary.LittleEndian.Uint64(p.NewValue))
	return blockchain.ParamChange{Name: p.ParamName, Value: v}, true
}

// Activate applies an explicit ActivateProposal transaction: the proposal
// must have Passed and its activation height must have been reached. The
// returned change (if any) is applied by the block processor the same way
// as an automatic activation.
func (r *Registry) Activate(id chainhash.Hash, height uint32) (blockchain.ParamChange, bool, error) {
	p, ok := r.proposals[id]
	if !ok {
		return blockchain.ParamChange{}, false, blockchain.RuleError{Code: blockchain.ErrInvalidProposal, Description: "activation references unknown proposal"}
	}
	if p.Outcome == OutcomeActivated {
		return blockchain.ParamChange{}, false, blockchain.RuleError{Code: blockchain.ErrInvalidProposal, Description: "proposal already activated"}
	}
	if p.Outcome != OutcomePassed {
		return blockchain.ParamChange{}, false, blockchain.RuleError{Code: blockchain.ErrInvalidProposal, Description: "proposal did not pass"}
	}
	if height < p.ActivationHeight {
		return blockchain.ParamChange{}, false, blockchain.RuleError{Code: blockchain.ErrInvalidProposal, Description: "proposal activation delay has not elapsed"}
	}
	change, ok := r.activate(id)
	return change, ok, nil
}

func (r *Registry) evaluate(p *Proposal, liveTickets, activeMasternodes int) {
	ticketCast := p.TicketYes + p.TicketNo
	mnCast := p.MNYes + p.MNNo

	ticketQuorum := percentageMet(int64(ticketCast), int64(liveTickets), r.params.PoSVotingQuorumPercentage)
	mnQuorum := percentageMet(int64(mnCast), int64(activeMasternodes), r.params.MNVotingQuorumPercentage)

	if !ticketQuorum && !mnQuorum {
		p.Outcome = OutcomeExpired
		return
	}

	ticketApproval := percentageMet(int64(p.TicketYes), int64(ticketCast), r.params.PoSApprovalPercentage)
	mnApproval := percentageMet(int64(p.MNYes), int64(mnCast), r.params.MNApprovalPercentage)

	if ticketQuorum && mnQuorum && ticketApproval && mnApproval {
		p.Outcome = OutcomePassed
		log.Infof("Proposal %v passed (tickets %d/%d yes, masternodes %d/%d yes)",
			p.ID, p.TicketYes, ticketCast, p.MNYes, mnCast)
		return
	}
	p.Outcome = OutcomeRejected
	log.Infof("Proposal %v rejected", p.ID)
}

// percentageMet reports whether num/denom*100 >= pct, without floating
// point: num*100 >= pct*denom. A zero denominator (no eligible voters)
// never meets a positive threshold.
func percentageMet(num, denom, pct int64) bool {
	if denom <= 0 {
		return false
	}
	return num*100 >= pct*denom
}
