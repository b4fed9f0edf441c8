// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"
	"fmt"

	"github.com/solidus-chain/solidusd/blockchain/utxoset"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/txscript"
	"github.com/solidus-chain/solidusd/wire"
)

// TicketState mirrors the ticket pool's lifecycle states, surfaced here
// so the transaction validator can enforce per-state spending rules
// without importing the stake package (it depends on blockchain, not vice
// versa).
type TicketState uint8

const (
	TicketLive TicketState = iota
	TicketVoted
	TicketExpired
	TicketRevoked

	// TicketPending is the pre-maturity state: purchased but not yet
	// selectable by the lottery.
	TicketPending
)

// TicketInfo is the subset of a ticket pool entry the validator needs.
type TicketInfo struct {
	State          TicketState
	StakerPubKey   []byte
	PurchaseHeight uint32

	// TransitionHeight is the height at which the ticket left Live
	// (voted or expired); zero while the ticket is Pending or Live. The
	// redemption maturity window is measured from here.
	TransitionHeight uint32

	// RewardCredit is the voting reward this ticket accumulated; a
	// redemption may mint up to this much on top of the returned stake.
	RewardCredit int64
}

// TicketPool is the read-only view of the ticket pool the transaction
// validator consults.
type TicketPool interface {
	Ticket(id chainhash.Hash) (TicketInfo, bool)
	CurrentTicketPrice() int64
}

// MasternodeStatus mirrors the masternode registry's lifecycle states.
type MasternodeStatus uint8

const (
	MasternodeRegistered MasternodeStatus = iota
	MasternodeActive
	MasternodeProbation
	MasternodeBanned
)

// MasternodeInfo is the subset of a masternode registry entry the validator
// needs.
type MasternodeInfo struct {
	Status MasternodeStatus
}

// MasternodeRegistry is the read-only view of the masternode registry.
type MasternodeRegistry interface {
	Masternode(id chainhash.Hash) (MasternodeInfo, bool)
}

// ProposalInfo is the subset of a governance proposal the validator needs.
type ProposalInfo struct {
	StartHeight uint32
	EndHeight   uint32
}

// GovernanceRegistry is the read-only view of the governance registry.
type GovernanceRegistry interface {
	Proposal(id chainhash.Hash) (ProposalInfo, bool)
	HasVoted(proposalID, voterID chainhash.Hash) bool
}

// PegRegistry is the read-only view of the peg manager the
// transaction validator consults: whether a peg id has already been
// claimed, whether a set of federation signature shares meets the
// threshold required at a given height, and the commitment a fraud
// challenge must name as the operation's pre-completion state.
type PegRegistry interface {
	PegExists(id chainhash.Hash) bool
	VerifyFederationThreshold(height uint32, pegID chainhash.Hash, shares []wire.FederationSigShare) bool
	PreStateCommitment(id chainhash.Hash) (chainhash.Hash, bool)
}

// FraudProofRegistry is the read-only view of the fraud-proof manager.
type FraudProofRegistry interface {
	ChallengeExists(id chainhash.Hash) bool
	ChallengeOpen(id chainhash.Hash) bool
	HasOpenChallenge(targetPegID chainhash.Hash) bool
}

// TxValidationContext carries everything ValidateTransaction needs beyond
// the transaction and the UTXO batch: network parameters, the block height
// being built or checked, and read-only views of the other registries a
// transaction's variant may reference.
type TxValidationContext struct {
	Params         *chaincfg.Params
	Height         uint32
	MedianPastTime int64
	SigCache       *txscript.SigCache
	Tickets        TicketPool
	Masternodes    MasternodeRegistry
	Governance     GovernanceRegistry
	Peg            PegRegistry
	FraudProofs    FraudProofRegistry

	// SeenTxHashes detects duplicate transaction inclusion within a block.
	// The caller (the block processor) owns and resets this map per block.
	SeenTxHashes map[chainhash.Hash]struct{}
}

// TicketID computes the deterministic ticket identifier for a ticket
// purchase's output: Blake3(tx_hash || LE32(output_index)).
func TicketID(txHash chainhash.Hash, outputIndex uint32) chainhash.Hash {
	buf := make([]byte, chainhash.HashSize+4)
	copy(buf, txHash[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], outputIndex)
	return chainhash.HashH(buf)
}

// ValidateTransaction runs the full per-transaction validation contract
// against tx, staging its input spends (and, for a passing standard
// transaction, nothing else; callers stage new outputs themselves once
// the whole block's accounting is known) into batch. It returns the
// transaction's fee (sum(inputs) - sum(outputs); zero for a coinbase,
// whose reward is checked by the caller against the full block's
// subsidy+fees rather than here, since that figure isn't known per-tx).
func ValidateTransaction(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (fee int64, err error) {
	if err := validateStructure(tx, ctx.Params); err != nil {
		return 0, err
	}

	txHash := tx.Hash()
	if _, dup := ctx.SeenTxHashes[txHash]; dup {
		return 0, ruleError(ErrDuplicateTransaction, "duplicate transaction in block")
	}

	if err := checkLockTime(tx, ctx); err != nil {
		return 0, err
	}

	switch tx.Type {
	case TxTypeCoinbase:
		if err := validateCoinbaseShape(tx); err != nil {
			return 0, err
		}
		ctx.SeenTxHashes[txHash] = struct{}{}
		return 0, nil

	case TxTypeStandard:
		fee, err = validateStandard(tx, batch, ctx)

	case TxTypeTicketPurchase:
		fee, err = validateTicketPurchase(tx, batch, ctx)

	case TxTypeTicketRedemption:
		fee, err = validateTicketRedemption(tx, batch, ctx)

	case TxTypeMasternodeRegister:
		fee, err = validateMasternodeRegister(tx, batch, ctx)

	case TxTypeGovernanceProposal:
		fee, err = validateGovernanceProposal(tx, batch, ctx)

	case TxTypeGovernanceVote:
		fee, err = validateGovernanceVote(tx, batch, ctx)

	case wire.TxMasternodeSlash:
		fee, err = validateMasternodeSlash(tx, batch, ctx)

	case wire.TxPegIn:
		fee, err = validatePegIn(tx, batch, ctx)

	case wire.TxPegOut:
		fee, err = validatePegOut(tx, batch, ctx)

	case wire.TxFraudChallenge:
		fee, err = validateFraudChallenge(tx, batch, ctx)

	case wire.TxFraudResponse:
		fee, err = validateFraudResponse(tx, batch, ctx)

	default:
		// Activate-proposal carries no UTXO-spending economics of its own
		// beyond the generic input checks; its registry-specific effect
		// (marking the proposal Activated) is applied by the governance
		// registry once the block processor has staged this transaction.
		fee, err = validateStandard(tx, batch, ctx)
	}
	if err != nil {
		return 0, err
	}

	ctx.SeenTxHashes[txHash] = struct{}{}
	return fee, nil
}

// Local aliases so this file reads against the wire.TxType names without a
// package-qualified repetition on every case label.
const (
	TxTypeStandard           = wire.TxStandard
	TxTypeCoinbase           = wire.TxCoinbase
	TxTypeTicketPurchase     = wire.TxTicketPurchase
	TxTypeTicketRedemption   = wire.TxTicketRedemption
	TxTypeMasternodeRegister = wire.TxMasternodeRegister
	TxTypeGovernanceProposal = wire.TxGovernanceProposal
	TxTypeGovernanceVote     = wire.TxGovernanceVote
)

func validateStructure(tx *wire.MsgTx, params *chaincfg.Params) error {
	if uint32(tx.SerializeSize()) > params.MaxTxSize {
		return ruleError(ErrInvalidBlock, "transaction exceeds max size")
	}
	if len(tx.TxOut) == 0 {
		return ruleError(ErrInvalidBlock, "transaction has no outputs")
	}
	if _, err := tx.SumOutputsChecked(); err != nil {
		return ruleError(ErrInvalidBlock, "transaction output total overflows")
	}
	for _, out := range tx.TxOut {
		if out.Value < params.DustLimit {
			return ruleError(ErrInvalidBlock, "output value below dust limit")
		}
	}
	return nil
}

func validateCoinbaseShape(tx *wire.MsgTx) error {
	if len(tx.TxIn) != 1 || !tx.TxIn[0].PreviousOutPoint.IsNull() {
		return ruleError(ErrInvalidBlock, "coinbase must have exactly one input spending the null outpoint")
	}
	return nil
}

func checkLockTime(tx *wire.MsgTx, ctx *TxValidationContext) error {
	if tx.LockTime == 0 {
		return nil
	}
	threshold := ctx.Params.LockTimeThreshold
	var now int64
	if tx.LockTime < threshold {
		now = int64(ctx.Height)
	} else {
		now = ctx.MedianPastTime
	}
	if int64(tx.LockTime) > now {
		allFinal := true
		for _, in := range tx.TxIn {
			if in.Sequence != 0xffffffff {
				allFinal = false
				break
			}
		}
		if !allFinal {
			return ruleError(ErrInvalidLockTime, "transaction lock time not yet reached")
		}
	}
	return nil
}

// inputSum stages every non-coinbase input's prior outpoint as spent and
// returns the total value it carried, the set of spent entries (same order
// as tx.TxIn), and any missing-outpoint or maturity error.
func inputSum(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, []*utxoset.Entry, error) {
	entries := make([]*utxoset.Entry, len(tx.TxIn))
	var total int64
	for i, in := range tx.TxIn {
		if batch.SpentInBatch(in.PreviousOutPoint) {
			return 0, nil, ruleError(ErrDoubleSpend, fmt.Sprintf(
				"output %v is spent twice within the block", in.PreviousOutPoint))
		}
		e, err := batch.StageRemove(in.PreviousOutPoint)
		if err != nil {
			return 0, nil, ruleError(ErrMissingPreviousOutput, err.Error())
		}
		if e.IsCoinbase && ctx.Height-e.BlockHeight < ctx.Params.CoinbaseMaturity {
			return 0, nil, ruleError(ErrImmatureCoinbase, "spent output has not reached coinbase maturity")
		}
		entries[i] = e
		total += e.Value
	}
	return total, entries, nil
}

func checkScripts(tx *wire.MsgTx, entries []*utxoset.Entry, ctx *TxValidationContext) error {
	for i, in := range tx.TxIn {
		err := txscript.Verify(entries[i].PkScript, in.SignatureScript, tx, i, entries[i].Value, ctx.SigCache, txscript.VerifyParams{
			CurrentHeight:     ctx.Height,
			MedianPastTime:    ctx.MedianPastTime,
			LockTimeThreshold: ctx.Params.LockTimeThreshold,
		})
		if err != nil {
			return ruleError(ErrScriptVerificationFailed, err.Error())
		}
	}
	return nil
}

func minRelayFee(tx *wire.MsgTx, params *chaincfg.Params) int64 {
	sizeKB := (int64(tx.SerializeSize()) + 999) / 1000
	if sizeKB == 0 {
		sizeKB = 1
	}
	return params.MinRelayFeePerKB * sizeKB
}

// validateStandard checks the plain value-transfer rules (inputs exist
// and are mature, scripts verify, fee suffices) and is reused as the
// input-spending baseline for transaction types whose variant-specific
// payload is validated elsewhere (masternode slash, proposal activation,
// peg operations).
func validateStandard(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	inTotal, entries, err := inputSum(tx, batch, ctx)
	if err != nil {
		return 0, err
	}
	outTotal, err := tx.SumOutputsChecked()
	if err != nil {
		return 0, ruleError(ErrInvalidBlock, "output total overflows")
	}
	if inTotal < outTotal {
		return 0, ruleError(ErrInsufficientFee, "inputs do not cover outputs")
	}
	fee := inTotal - outTotal
	if fee < minRelayFee(tx, ctx.Params) {
		return 0, ruleError(ErrInsufficientFee, "fee below minimum relay fee")
	}
	if err := checkScripts(tx, entries, ctx); err != nil {
		return 0, err
	}
	return fee, nil
}

func validateTicketPurchase(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.TicketPurchase
	if p == nil {
		return 0, ruleError(ErrInvalidBlock, "ticket purchase missing payload")
	}
	if len(tx.TxOut) != 1 {
		return 0, ruleError(ErrInvalidBlock, "ticket purchase must have exactly one output")
	}
	if tx.TxOut[0].Value != ctx.Tickets.CurrentTicketPrice() {
		return 0, ruleError(ErrInvalidBlock, "ticket purchase output does not match current ticket price")
	}
	if _, err := primitives.ParsePublicKey(p.StakerPubKey); err != nil {
		return 0, ruleError(ErrInvalidBlock, "ticket purchase staker pubkey malformed")
	}
	return validateStandard(tx, batch, ctx)
}

func validateTicketRedemption(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.TicketRedemption
	if p == nil {
		return 0, ruleError(ErrInvalidBlock, "ticket redemption missing payload")
	}
	info, ok := ctx.Tickets.Ticket(p.TicketID)
	if !ok {
		return 0, ruleError(ErrInvalidBlock, "ticket redemption references unknown ticket")
	}
	if info.State != TicketVoted && info.State != TicketExpired {
		return 0, ruleError(ErrInvalidBlock, "ticket is not in a redeemable state")
	}
	// The window runs from the block that moved the ticket out of Live
	// (the vote it was drawn for, or its expiry), not from the purchase.
	if ctx.Height < info.TransitionHeight+ctx.Params.TicketRedemptionMaturity {
		return 0, ruleError(ErrInvalidBlock, "ticket redemption before maturity window")
	}

	if len(tx.TxIn) == 0 {
		return 0, ruleError(ErrInvalidBlock, "ticket redemption has no inputs")
	}
	inTotal, _, err := inputSum(tx, batch, ctx)
	if err != nil {
		return 0, err
	}
	stakerKey, err := primitives.ParsePublicKey(info.StakerPubKey)
	if err != nil {
		return 0, ruleError(ErrInvalidBlock, "ticket's recorded staker pubkey malformed")
	}
	sigHash := tx.SigHash()
	sig, err := primitives.ParseSignature(tx.TxIn[0].SignatureScript)
	if err != nil || !stakerKey.Verify(sigHash, sig) {
		return 0, ruleError(ErrInvalidTicketSignature, "ticket redemption signature does not match staker pubkey")
	}

	outTotal, err := tx.SumOutputsChecked()
	if err != nil {
		return 0, ruleError(ErrInvalidBlock, "output total overflows")
	}
	// A redemption mints the ticket's accumulated voting reward on top of
	// the returned stake.
	available := inTotal + info.RewardCredit
	if available < outTotal {
		return 0, ruleError(ErrInsufficientFee, "redemption outputs exceed stake plus earned reward")
	}
	return available - outTotal, nil
}

func validateMasternodeRegister(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.MasternodeRegister
	if p == nil {
		return 0, ruleError(ErrInvalidBlock, "masternode register missing payload")
	}
	if _, exists := ctx.Masternodes.Masternode(tx.Hash()); exists {
		return 0, ruleError(ErrInvalidBlock, "masternode already registered for this transaction")
	}
	if _, err := primitives.ParsePublicKey(p.OperatorPubKey); err != nil {
		return 0, ruleError(ErrInvalidBlock, "masternode operator pubkey malformed")
	}

	inTotal, entries, err := inputSum(tx, batch, ctx)
	if err != nil {
		return 0, err
	}
	collateralMet := false
	for _, e := range entries {
		if e.Value >= ctx.Params.MasternodeCollateral {
			collateralMet = true
			break
		}
	}
	if !collateralMet {
		return 0, ruleError(ErrInvalidBlock, "no spent outpoint meets masternode collateral")
	}
	collateralLocked := false
	for _, out := range tx.TxOut {
		if out.Value >= ctx.Params.MasternodeCollateral {
			collateralLocked = true
			break
		}
	}
	if !collateralLocked {
		return 0, ruleError(ErrInvalidBlock, "masternode register does not lock the collateral in an output")
	}
	if err := checkScripts(tx, entries, ctx); err != nil {
		return 0, err
	}

	outTotal, err := tx.SumOutputsChecked()
	if err != nil {
		return 0, ruleError(ErrInvalidBlock, "output total overflows")
	}
	if inTotal < outTotal {
		return 0, ruleError(ErrInsufficientFee, "inputs do not cover outputs")
	}
	fee := inTotal - outTotal
	if fee < minRelayFee(tx, ctx.Params) {
		return 0, ruleError(ErrInsufficientFee, "fee below minimum relay fee")
	}
	return fee, nil
}

func validateMasternodeSlash(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.MasternodeSlash
	if p == nil {
		return 0, ruleError(ErrInvalidBlock, "masternode slash missing payload")
	}
	if _, ok := ctx.Masternodes.Masternode(p.MasternodeID); !ok {
		return 0, ruleError(ErrMasternodeNotFound, "slash references unknown masternode")
	}
	if len(p.WitnessSigs) < ctx.Params.MinWitnessSignatures {
		return 0, ruleError(ErrInvalidBlock, "too few witness signatures for masternode slash")
	}
	return validateStandard(tx, batch, ctx)
}

func validateGovernanceProposal(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.GovernanceProposal
	if p == nil {
		return 0, ruleError(ErrInvalidBlock, "governance proposal missing payload")
	}
	if p.StartHeight <= ctx.Height {
		return 0, ruleError(ErrInvalidProposal, "proposal start height must be in the future")
	}
	if p.EndHeight <= p.StartHeight {
		return 0, ruleError(ErrInvalidProposal, "proposal end height must follow start height")
	}
	proposerKey, err := primitives.ParsePublicKey(p.ProposerPubKey)
	if err != nil {
		return 0, ruleError(ErrInvalidProposal, "proposer pubkey malformed")
	}
	sig, err := primitives.ParseSignature(p.ProposerSignature)
	if err != nil || !proposerKey.Verify(tx.SigHash(), sig) {
		return 0, ruleError(ErrInvalidProposal, "proposer signature does not verify")
	}

	stakeMet := false
	for _, out := range tx.TxOut {
		if out.Value >= ctx.Params.ProposalStakeAmount {
			stakeMet = true
			break
		}
	}
	if !stakeMet {
		return 0, ruleError(ErrInvalidProposal, "no output meets the proposal stake amount")
	}

	if p.ProposalType == 0 {
		bounds, ok := chaincfg.GovernanceOverridable[p.ParamName]
		if !ok {
			return 0, ruleError(ErrInvalidProposal, "parameter is not governance-overridable")
		}
		if len(p.NewValue) != 8 {
			return 0, ruleError(ErrInvalidProposal, "new parameter value must be an 8-byte integer")
		}
		v := int64(binary.LittleEndian.Uint64(p.NewValue))
		if v < bounds.Min || v > bounds.Max {
			return 0, ruleError(ErrInvalidProposal, "new parameter value is outside its registered bounds")
		}
	}

	return validateStandard(tx, batch, ctx)
}

func validateGovernanceVote(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.GovernanceVote
	if p == nil {
		return 0, ruleError(ErrInvalidBlock, "governance vote missing payload")
	}
	proposal, ok := ctx.Governance.Proposal(p.ProposalID)
	if !ok {
		return 0, ruleError(ErrInvalidProposal, "vote references unknown proposal")
	}
	if ctx.Height < proposal.StartHeight || ctx.Height > proposal.EndHeight {
		return 0, ruleError(ErrInvalidProposal, "vote outside the proposal's voting window")
	}
	if ctx.Governance.HasVoted(p.ProposalID, p.VoterID) {
		return 0, ruleError(ErrDuplicateVote, "voter has already voted on this proposal")
	}

	var voterKey *primitives.PublicKey
	var err error
	switch p.VoterKind {
	case wire.VoterTicket:
		info, ok := ctx.Tickets.Ticket(p.VoterID)
		if !ok || info.State != TicketLive {
			return 0, ruleError(ErrInvalidProposal, "voting ticket is not live")
		}
		voterKey, err = primitives.ParsePublicKey(info.StakerPubKey)
	case wire.VoterMasternode:
		mn, ok := ctx.Masternodes.Masternode(p.VoterID)
		if !ok || mn.Status != MasternodeActive {
			return 0, ruleError(ErrInvalidProposal, "voting masternode is not active")
		}
		// The masternode's operator key is not part of MasternodeInfo (the
		// registry only reports status to this package); signature
		// verification for masternode votes is the registry's
		// responsibility once it applies this transaction, matching the
		// same division of labor as MasternodeSlash's witness signatures.
		return validateStandard(tx, batch, ctx)
	default:
		return 0, ruleError(ErrInvalidProposal, "unknown voter kind")
	}
	if err != nil || voterKey == nil || !voterKey.Verify(tx.SigHash(), mustParseSig(p.VoterSig)) {
		return 0, ruleError(ErrInvalidTicketSignature, "vote signature does not verify")
	}
	return validateStandard(tx, batch, ctx)
}

// validatePegIn checks the peg-in leg: a vetted mainchain inclusion
// proof plus federation signature shares credit a sidechain recipient.
// The proof's external-chain validity is not something this processor can
// check directly (the mainchain itself is not modeled), so the federation
// threshold signature over the peg id is the consensus-visible
// attestation that the proof was already vetted.
func validatePegIn(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.PegIn
	if p == nil {
		return 0, ruleError(ErrInvalidPegOperation, "peg-in missing payload")
	}
	if ctx.Peg.PegExists(p.PegID) {
		return 0, ruleError(ErrInvalidPegOperation, "duplicate peg operation id")
	}
	if p.Amount < ctx.Params.MinPegAmount || p.Amount > ctx.Params.MaxPegAmount {
		return 0, ruleError(ErrInvalidPegOperation, "peg amount outside configured bounds")
	}
	if len(p.InclusionProof) == 0 {
		return 0, ruleError(ErrInvalidPegOperation, "peg-in missing mainchain inclusion proof")
	}
	if len(p.SidechainRecipient) == 0 {
		return 0, ruleError(ErrInvalidPegOperation, "peg-in missing sidechain recipient")
	}
	if !ctx.Peg.VerifyFederationThreshold(ctx.Height, p.PegID, p.FederationSigShares) {
		return 0, ruleError(ErrFederationThresholdNotMet, "peg-in federation signatures do not meet threshold")
	}
	return validateStandard(tx, batch, ctx)
}

// validatePegOut mirrors validatePegIn for the peg-out leg: a vetted
// sidechain burn proof plus federation signature shares release mainchain
// funds, less the peg fee the peg manager deducts at completion.
func validatePegOut(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.PegOut
	if p == nil {
		return 0, ruleError(ErrInvalidPegOperation, "peg-out missing payload")
	}
	if ctx.Peg.PegExists(p.PegID) {
		return 0, ruleError(ErrInvalidPegOperation, "duplicate peg operation id")
	}
	if p.Amount < ctx.Params.MinPegAmount || p.Amount > ctx.Params.MaxPegAmount {
		return 0, ruleError(ErrInvalidPegOperation, "peg amount outside configured bounds")
	}
	if len(p.BurnProof) == 0 {
		return 0, ruleError(ErrInvalidPegOperation, "peg-out missing sidechain burn proof")
	}
	if len(p.MainchainRecipient) == 0 {
		return 0, ruleError(ErrInvalidPegOperation, "peg-out missing mainchain recipient")
	}
	if !ctx.Peg.VerifyFederationThreshold(ctx.Height, p.PegID, p.FederationSigShares) {
		return 0, ruleError(ErrFederationThresholdNotMet, "peg-out federation signatures do not meet threshold")
	}
	return validateStandard(tx, batch, ctx)
}

// validateFraudChallenge checks a bonded fraud accusation against a
// completed peg operation: the target must exist and not already be under
// challenge, the claimed pre-state must match the operation's recorded
// pre-completion commitment (so the verdict re-executes against the state
// the challenger actually named), and an output must lock the bond.
func validateFraudChallenge(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.FraudChallenge
	if p == nil {
		return 0, ruleError(ErrInvalidFraudProof, "fraud challenge missing payload")
	}
	if ctx.FraudProofs.ChallengeExists(p.ChallengeID) {
		return 0, ruleError(ErrInvalidFraudProof, "duplicate fraud challenge id")
	}
	if !ctx.Peg.PegExists(p.TargetPegID) {
		return 0, ruleError(ErrInvalidFraudProof, "challenge references unknown peg operation")
	}
	if ctx.FraudProofs.HasOpenChallenge(p.TargetPegID) {
		return 0, ruleError(ErrInvalidFraudProof, "peg operation already has an unresolved challenge")
	}
	commit, ok := ctx.Peg.PreStateCommitment(p.TargetPegID)
	if !ok || commit != p.ClaimedPreState {
		return 0, ruleError(ErrInvalidFraudProof, "claimed pre-state does not match the recorded operation")
	}
	if len(p.Evidence) == 0 {
		return 0, ruleError(ErrInvalidFraudProof, "challenge filed without evidence")
	}
	bondMet := false
	for _, out := range tx.TxOut {
		if out.Value >= ctx.Params.FraudProofBondAmount {
			bondMet = true
			break
		}
	}
	if !bondMet {
		return 0, ruleError(ErrInvalidFraudProof, "no output locks the challenger bond")
	}
	return validateStandard(tx, batch, ctx)
}

// validateFraudResponse checks the accused side's answer: the challenge
// must still be open and the response must carry the federation signature
// shares the verdict replays the operation with.
func validateFraudResponse(tx *wire.MsgTx, batch *utxoset.Batch, ctx *TxValidationContext) (int64, error) {
	p := tx.FraudResponse
	if p == nil {
		return 0, ruleError(ErrInvalidFraudProof, "fraud response missing payload")
	}
	if !ctx.FraudProofs.ChallengeOpen(p.ChallengeID) {
		return 0, ruleError(ErrInvalidFraudProof, "response to a challenge that is not open")
	}
	if len(p.FederationSigShares) == 0 {
		return 0, ruleError(ErrInvalidFraudProof, "response carries no federation signature shares")
	}
	return validateStandard(tx, batch, ctx)
}

func mustParseSig(b []byte) *primitives.Signature {
	sig, err := primitives.ParseSignature(b)
	if err != nil {
		return nil
	}
	return sig
}
