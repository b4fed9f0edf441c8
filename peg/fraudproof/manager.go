// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fraudproof implements the fraud-proof challenge, response and
// verdict lifecycle: a bonded challenge against an allegedly invalid peg
// operation moves through Open to a terminal Proven or Disproven state.
// The verdict is not an external input: when the accused responds, the
// manager re-executes the challenged operation's acceptance guards
// against its recorded pre-completion state (the commitment the
// challenge's claimed pre-state pinned at validation time) and rules
// Proven exactly when the re-execution fails. An unanswered challenge
// auto-resolves to Proven when its response window lapses. Shaped the
// same way as masternode.Registry's ChallengeRound (height-indexed
// pending-transition maps, a single map of live records keyed by id).
package fraudproof

import (
	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/wire"
)

// OperationReplayer re-executes a challenged peg operation's acceptance
// guards against its recorded pre-completion state, returning nil when
// the operation re-validates. Satisfied by peg.Manager.
type OperationReplayer interface {
	ReplayOperation(pegID chainhash.Hash, shares []wire.FederationSigShare) error
}

// State is a filed challenge's current position in its verdict lifecycle.
type State uint8

const (
	// StateOpen is a freshly filed challenge awaiting the accused's response.
	StateOpen State = iota
	// StateProven is a challenge whose re-execution verdict went the
	// challenger's way, or that nobody answered in time.
	StateProven
	// StateDisproven is a challenge whose re-execution verdict cleared
	// the accused.
	StateDisproven
)

// Challenge is one fraud accusation's full record.
type Challenge struct {
	ID           chainhash.Hash
	ChallengerID chainhash.Hash // masternode or ticket identity filing the accusation
	TargetPegID  chainhash.Hash // the peg operation alleged invalid

	// ClaimedPreState is the pre-completion commitment the challenger
	// named; the transaction validator has already matched it against
	// the recorded operation, so the verdict replays that exact state.
	ClaimedPreState chainhash.Hash

	Bond             int64
	Evidence         []byte
	ResponseEvidence []byte
	IssuedHeight     uint32
	RespondedHeight  uint32
	State            State
}

// Manager tracks every filed fraud-proof challenge from filing through its
// final verdict.
type Manager struct {
	params *chaincfg.Params
	replay OperationReplayer

	challenges map[chainhash.Hash]*Challenge

	// responseDeadline indexes Open challenges by the height at which an
	// unanswered challenge auto-resolves to Proven.
	responseDeadline map[uint32][]chainhash.Hash
}

// New returns an empty fraud-proof manager. replay re-executes challenged
// operations for the verdict; the chain wires peg.Manager here.
func New(params *chaincfg.Params, replay OperationReplayer) *Manager {
	return &Manager{
		params:           params,
		replay:           replay,
		challenges:       make(map[chainhash.Hash]*Challenge),
		responseDeadline: make(map[uint32][]chainhash.Hash),
	}
}

// ChallengeInfo is the subset of a challenge's state exposed to callers
// outside this package.
type ChallengeInfo struct {
	State       State
	TargetPegID chainhash.Hash
}

// Challenge reports a filed challenge's current state.
func (m *Manager) Challenge(id chainhash.Hash) (ChallengeInfo, bool) {
	c, ok := m.challenges[id]
	if !ok {
		return ChallengeInfo{}, false
	}
	return ChallengeInfo{State: c.State, TargetPegID: c.TargetPegID}, true
}

// ChallengeExists implements blockchain.FraudProofRegistry.
func (m *Manager) ChallengeExists(id chainhash.Hash) bool {
	_, ok := m.challenges[id]
	return ok
}

// ChallengeOpen reports whether id names a challenge still awaiting its
// response.
func (m *Manager) ChallengeOpen(id chainhash.Hash) bool {
	c, ok := m.challenges[id]
	return ok && c.State == StateOpen
}

// HasOpenChallenge reports whether targetPegID is already the subject of
// an unresolved challenge, the one-at-a-time rule that keeps an operation
// from being contested by concurrent accusations.
func (m *Manager) HasOpenChallenge(targetPegID chainhash.Hash) bool {
	for _, c := range m.challenges {
		if c.TargetPegID == targetPegID && c.State == StateOpen {
			return true
		}
	}
	return false
}

// Open files a new fraud-proof challenge. The challenger's bond must meet
// the network's configured minimum. The manager records the bond amount
// only: the bond output stays in the UTXO set as the challenge transaction
// created it, and neither this package nor the block processor moves it
// on either verdict.
func (m *Manager) Open(id, challengerID, targetPegID, claimedPreState chainhash.Hash, bond int64, evidence []byte, height uint32) error {
	if _, exists := m.challenges[id]; exists {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "fraud-proof challenge id already in use"}
	}
	if bond < m.params.FraudProofBondAmount {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "challenger bond below required amount"}
	}
	if m.HasOpenChallenge(targetPegID) {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "target already has an unresolved challenge"}
	}
	if len(evidence) == 0 {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "challenge filed without evidence"}
	}

	c := &Challenge{
		ID:              id,
		ChallengerID:    challengerID,
		TargetPegID:     targetPegID,
		ClaimedPreState: claimedPreState,
		Bond:            bond,
		Evidence:        evidence,
		IssuedHeight:    height,
		State:           StateOpen,
	}
	m.challenges[id] = c
	deadline := height + m.params.FraudProofResponseBlocks
	m.responseDeadline[deadline] = append(m.responseDeadline[deadline], id)
	return nil
}

// Respond records the accused's rebuttal and immediately computes the
// verdict: the challenged operation is re-executed against its recorded
// pre-completion state with the response's federation signature shares.
// Re-execution failure proves the challenge; success disproves it.
func (m *Manager) Respond(id chainhash.Hash, responseEvidence []byte, shares []wire.FederationSigShare, height uint32) error {
	c, ok := m.challenges[id]
	if !ok {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "unknown fraud-proof challenge"}
	}
	if c.State != StateOpen {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "challenge is not awaiting a response"}
	}
	c.ResponseEvidence = responseEvidence
	c.RespondedHeight = height

	if err := m.replay.ReplayOperation(c.TargetPegID, shares); err != nil {
		c.State = StateProven
		return nil
	}
	c.State = StateDisproven
	return nil
}

// AdvanceBlock resolves challenges whose response window lapsed at
// height: an Open challenge the accused never answered auto-resolves to
// Proven (silence is taken as an admission).
func (m *Manager) AdvanceBlock(height uint32) {
	for _, id := range m.responseDeadline[height] {
		c, ok := m.challenges[id]
		if !ok || c.State != StateOpen {
			continue
		}
		c.State = StateProven
	}
	delete(m.responseDeadline, height)
}
