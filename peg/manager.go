// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peg implements the two-way peg state machine: peg-in and
// peg-out operations between the mainchain and the sidechain, secured by
// a rotating federation's threshold signatures. The
// status-enum-with-height-indexed-pending-transitions shape follows the
// same idiom as stake.Pool and masternode.Registry.
package peg

import (
	"encoding/binary"
	"math/bits"
	"sort"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/wire"
)

// Direction distinguishes a mainchain-to-sidechain credit from its mirror.
type Direction uint8

const (
	// DirectionIn credits the sidechain from an observed mainchain lock.
	DirectionIn Direction = iota
	// DirectionOut releases mainchain funds for an observed sidechain burn.
	DirectionOut
)

// Status is a peg operation's current position in its lifecycle.
type Status uint8

const (
	StatusInitiated Status = iota
	StatusWaitingConfirmations
	StatusWaitingFederationSignatures
	StatusCompleted
	StatusTimedOut
	StatusFailed
)

// Operation is one peg-in or peg-out's full lifecycle record.
type Operation struct {
	ID            chainhash.Hash
	Direction     Direction
	Amount        int64
	AssetID       chainhash.Hash
	SourceChainID chainhash.Hash
	DestChainID   chainhash.Hash
	Recipient     []byte // sidechain address (peg-in) or mainchain address (peg-out)
	Proof         []byte

	Status          Status
	InitiatedHeight uint32
	Confirmations   uint32

	// CreditAmount is the amount actually paid out once Completed: Amount
	// for a peg-in, Amount minus the peg fee for a peg-out.
	CreditAmount int64
}

// Manager tracks every peg operation from initiation through completion,
// timeout, or failure, and the federation's rotating threshold key.
type Manager struct {
	params *chaincfg.Params

	operations map[chainhash.Hash]*Operation

	// pendingTimeout indexes not-yet-terminal operations by the height at
	// which they time out, mirroring stake.Pool's maturity/expiry indices.
	pendingTimeout map[uint32][]chainhash.Hash

	// federations maps an epoch's first height to the threshold public
	// key the (external) DKG protocol produced for that epoch's
	// federation membership.
	federations map[uint32]*primitives.ThresholdPublicKey
	epochStarts []uint32 // kept sorted ascending

	// dirty collects the operation ids mutated since the last TakeDirty
	// call so the block processor can persist exactly those entries.
	dirty map[chainhash.Hash]struct{}
}

// New returns an empty peg manager.
func New(params *chaincfg.Params) *Manager {
	return &Manager{
		params:         params,
		operations:     make(map[chainhash.Hash]*Operation),
		pendingTimeout: make(map[uint32][]chainhash.Hash),
		federations:    make(map[uint32]*primitives.ThresholdPublicKey),
		dirty:          make(map[chainhash.Hash]struct{}),
	}
}

// PegInfo is the subset of a peg operation's state exposed to the
// transaction validator.
type PegInfo struct {
	Status Status
}

// Peg reports a peg operation's current status.
func (m *Manager) Peg(id chainhash.Hash) (PegInfo, bool) {
	op, ok := m.operations[id]
	if !ok {
		return PegInfo{}, false
	}
	return PegInfo{Status: op.Status}, true
}

// PegExists implements blockchain.PegRegistry: any record with this id,
// whatever its status, has already claimed it.
func (m *Manager) PegExists(id chainhash.Hash) bool {
	_, ok := m.operations[id]
	return ok
}

// IsFederationEpochBoundary reports whether height begins a new
// federation epoch.
func (m *Manager) IsFederationEpochBoundary(height uint32) bool {
	return m.params.FederationEpochBlocks > 0 && height%m.params.FederationEpochBlocks == 0
}

// SetFederation records the threshold public key the DKG protocol produced
// for the federation epoch starting at height, once the (external) DKG
// round completes. The block processor does not call it: at an epoch
// boundary it only logs. The candidate membership that round is run over is
// masternode.Registry.TopByCollateralAge(params.FederationSize).
func (m *Manager) SetFederation(epochStartHeight uint32, tpk *primitives.ThresholdPublicKey) {
	if _, exists := m.federations[epochStartHeight]; !exists {
		m.epochStarts = append(m.epochStarts, epochStartHeight)
		sort.Slice(m.epochStarts, func(i, j int) bool { return m.epochStarts[i] < m.epochStarts[j] })
	}
	m.federations[epochStartHeight] = tpk
}

// Federation returns the threshold public key active at height: the
// federation from the latest epoch boundary at or before height, or nil if
// none has been set yet (e.g. before the first DKG round completes).
func (m *Manager) Federation(height uint32) *primitives.ThresholdPublicKey {
	var active *primitives.ThresholdPublicKey
	for _, start := range m.epochStarts {
		if start > height {
			break
		}
		active = m.federations[start]
	}
	return active
}

// VerifyFederationThreshold implements blockchain.PegRegistry: it parses
// the wire-level signature shares and checks they meet the threshold
// required by the federation active at height.
func (m *Manager) VerifyFederationThreshold(height uint32, pegID chainhash.Hash, shares []wire.FederationSigShare) bool {
	tpk := m.Federation(height)
	if tpk == nil {
		return false
	}
	parsed := make([]*primitives.SignatureShare, 0, len(shares))
	for _, s := range shares {
		pub, err := primitives.ParsePublicKey(s.PubKey)
		if err != nil {
			continue
		}
		sig, err := primitives.ParseSignature(s.Signature)
		if err != nil {
			continue
		}
		parsed = append(parsed, &primitives.SignatureShare{MemberIndex: s.MemberIndex, PubKey: pub, Sig: sig})
	}
	return primitives.VerifyThreshold(tpk, pegID, parsed)
}

// checkAmount enforces the configured peg amount bounds, the peg-level
// parallel of the UTXO dust limit.
func (m *Manager) checkAmount(amount int64) error {
	if amount < m.params.MinPegAmount || amount > m.params.MaxPegAmount {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "peg amount outside configured bounds"}
	}
	return nil
}

// Initiate records a newly observed mainchain lock (peg-in) or sidechain
// burn (peg-out). The operation starts at StatusInitiated;
// RecordConfirmations advances it once enough confirmations are
// observed.
func (m *Manager) Initiate(id chainhash.Hash, dir Direction, amount int64, assetID, srcChain, destChain chainhash.Hash, recipient, proof []byte, height uint32) error {
	if m.PegExists(id) {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "peg operation id already in use"}
	}
	if err := m.checkAmount(amount); err != nil {
		return err
	}
	op := &Operation{
		ID:              id,
		Direction:       dir,
		Amount:          amount,
		AssetID:         assetID,
		SourceChainID:   srcChain,
		DestChainID:     destChain,
		Recipient:       recipient,
		Proof:           proof,
		Status:          StatusInitiated,
		InitiatedHeight: height,
	}
	m.operations[id] = op
	m.dirty[id] = struct{}{}
	timeoutAt := height + m.params.PegTimeoutBlocks
	m.pendingTimeout[timeoutAt] = append(m.pendingTimeout[timeoutAt], id)
	return nil
}

func (m *Manager) requiredConfirmations(dir Direction) uint32 {
	if dir == DirectionIn {
		return m.params.MinPegInConfirmations
	}
	return m.params.MinPegOutConfirmations
}

// RecordConfirmations updates an operation's observed confirmation count
// and advances it to StatusWaitingFederationSignatures once the direction's
// required confirmation depth is reached.
func (m *Manager) RecordConfirmations(id chainhash.Hash, confirmations uint32) error {
	op, ok := m.operations[id]
	if !ok {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "unknown peg operation"}
	}
	if op.Status != StatusInitiated && op.Status != StatusWaitingConfirmations {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "operation is not awaiting confirmations"}
	}
	op.Confirmations = confirmations
	if confirmations >= m.requiredConfirmations(op.Direction) {
		op.Status = StatusWaitingFederationSignatures
	} else {
		op.Status = StatusWaitingConfirmations
	}
	m.dirty[id] = struct{}{}
	return nil
}

// pegFee computes the fee a peg-out release deducts.
func pegFee(amount int64, feeRatePPM int64) int64 {
	const million = 1_000_000
	hi, lo := bits.Mul64(uint64(amount), uint64(feeRatePPM))
	q, _ := bits.Div64(hi, lo, million)
	return int64(q)
}

// SubmitFederationSignatures verifies that shares meet the threshold
// required by the federation active at the operation's initiation height
// and, on success, completes the operation: a peg-in credits its full
// amount, a peg-out credits amount minus the configured peg fee. No
// state is mutated if the threshold is not met.
func (m *Manager) SubmitFederationSignatures(id chainhash.Hash, shares []wire.FederationSigShare) (creditAmount int64, recipient []byte, err error) {
	op, ok := m.operations[id]
	if !ok {
		return 0, nil, blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "unknown peg operation"}
	}
	if op.Status != StatusWaitingFederationSignatures {
		return 0, nil, blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "operation is not awaiting federation signatures"}
	}
	if !m.VerifyFederationThreshold(op.InitiatedHeight, id, shares) {
		return 0, nil, blockchain.RuleError{Code: blockchain.ErrFederationThresholdNotMet, Description: "federation signatures do not meet the required threshold"}
	}

	credit := op.Amount
	if op.Direction == DirectionOut {
		credit -= pegFee(op.Amount, m.params.PegFeeRatePPM)
	}
	op.Status = StatusCompleted
	op.CreditAmount = credit
	m.dirty[id] = struct{}{}
	return credit, op.Recipient, nil
}

// ApplyPegIn is the block processor's single-shot entry point for a
// validated TxPegIn: by the time ValidateTransaction has accepted it, the
// embedded proof and federation signatures have already been checked, so
// Initiate, RecordConfirmations and SubmitFederationSignatures run back to
// back rather than across separate blocks: the external mainchain's
// confirmation count is not independently observable by this package, so
// the vetted proof stands in for it.
func (m *Manager) ApplyPegIn(p *wire.PegInPayload, height uint32) (creditAmount int64, recipient []byte, err error) {
	if err := m.Initiate(p.PegID, DirectionIn, p.Amount, p.AssetID, p.SourceChainID, p.DestChainID, p.SidechainRecipient, p.InclusionProof, height); err != nil {
		return 0, nil, err
	}
	if err := m.RecordConfirmations(p.PegID, m.params.MinPegInConfirmations); err != nil {
		return 0, nil, err
	}
	return m.SubmitFederationSignatures(p.PegID, p.FederationSigShares)
}

// ApplyPegOut mirrors ApplyPegIn for a validated TxPegOut.
func (m *Manager) ApplyPegOut(p *wire.PegOutPayload, height uint32) (creditAmount int64, recipient []byte, err error) {
	if err := m.Initiate(p.PegID, DirectionOut, p.Amount, p.AssetID, p.SourceChainID, p.DestChainID, p.MainchainRecipient, p.BurnProof, height); err != nil {
		return 0, nil, err
	}
	if err := m.RecordConfirmations(p.PegID, m.params.MinPegOutConfirmations); err != nil {
		return 0, nil, err
	}
	return m.SubmitFederationSignatures(p.PegID, p.FederationSigShares)
}

// preStateCommitment hashes the fields of op that were fixed before any
// federation member signed: the pre-completion state a fraud challenge
// claims to re-execute against.
func preStateCommitment(op *Operation) chainhash.Hash {
	buf := make([]byte, 0, 5*chainhash.HashSize+len(op.Recipient)+len(op.Proof)+16)
	buf = append(buf, op.ID[:]...)
	buf = append(buf, byte(op.Direction))
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(op.Amount))
	buf = append(buf, u64[:]...)
	buf = append(buf, op.AssetID[:]...)
	buf = append(buf, op.SourceChainID[:]...)
	buf = append(buf, op.DestChainID[:]...)
	buf = append(buf, op.Recipient...)
	buf = append(buf, op.Proof...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], op.InitiatedHeight)
	buf = append(buf, u32[:]...)
	return chainhash.HashH(buf)
}

// PreStateCommitment implements blockchain.PegRegistry for fraud
// challenges: the commitment of the operation's recorded pre-completion
// state a challenger must name in its claimed pre-state.
func (m *Manager) PreStateCommitment(id chainhash.Hash) (chainhash.Hash, bool) {
	op, ok := m.operations[id]
	if !ok {
		return chainhash.Hash{}, false
	}
	return preStateCommitment(op), true
}

// ReplayOperation re-executes a challenged peg operation's acceptance
// guards against its recorded pre-completion state: the amount bounds,
// the direction's confirmation requirement, and the federation threshold
// (at the operation's initiation height) over the presented signature
// shares. A nil return means the operation re-validates; an error names
// the guard that fails, which a fraud-proof verdict takes as proof the
// operation should never have completed.
func (m *Manager) ReplayOperation(id chainhash.Hash, shares []wire.FederationSigShare) error {
	op, ok := m.operations[id]
	if !ok {
		return blockchain.RuleError{Code: blockchain.ErrInvalidFraudProof, Description: "challenged peg operation is unknown"}
	}
	if err := m.checkAmount(op.Amount); err != nil {
		return err
	}
	if op.Confirmations < m.requiredConfirmations(op.Direction) {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPegOperation, Description: "operation lacks the required confirmations"}
	}
	if !m.VerifyFederationThreshold(op.InitiatedHeight, id, shares) {
		return blockchain.RuleError{Code: blockchain.ErrFederationThresholdNotMet, Description: "federation signatures do not meet the threshold required at initiation"}
	}
	return nil
}

// AdvanceBlock times out any operation unresolved after PegTimeoutBlocks.
// Funds are recoverable via the federation's escape hatch; the
// escape-hatch payout itself is a wallet-side action, so this only
// records the terminal state a recovery transaction would later
// reference.
func (m *Manager) AdvanceBlock(height uint32) {
	for _, id := range m.pendingTimeout[height] {
		op, ok := m.operations[id]
		if !ok {
			continue
		}
		if op.Status == StatusCompleted || op.Status == StatusTimedOut || op.Status == StatusFailed {
			continue
		}
		op.Status = StatusTimedOut
		m.dirty[id] = struct{}{}
		log.Warnf("Peg operation %v timed out awaiting resolution", id)
	}
	delete(m.pendingTimeout, height)
}
