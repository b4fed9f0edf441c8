// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/solidus-chain/solidusd/chainhash"
)

// TxType tags which of the transaction variants a MsgTx carries. Shared
// fields (inputs, outputs, lock time) are common to every variant; the
// fields specific to a variant live in that variant's payload pointer field
// on MsgTx rather than in a type hierarchy.
type TxType uint8

const (
	// TxStandard is a plain value-transfer transaction.
	TxStandard TxType = iota
	// TxCoinbase mints the block subsidy plus fees.
	TxCoinbase
	// TxTicketPurchase locks stake to enter the live-ticket pool.
	TxTicketPurchase
	// TxTicketRedemption spends a voted or expired ticket.
	TxTicketRedemption
	// TxMasternodeRegister locks collateral to register a masternode.
	TxMasternodeRegister
	// TxMasternodeSlash penalizes a masternode for a proven fault.
	TxMasternodeSlash
	// TxGovernanceProposal locks a proposal stake and opens a vote.
	TxGovernanceProposal
	// TxGovernanceVote casts a ticket's or masternode's vote.
	TxGovernanceVote
	// TxActivateProposal applies a passed proposal after its delay.
	TxActivateProposal
	// TxPegIn credits a sidechain address from a mainchain lock.
	TxPegIn
	// TxPegOut releases mainchain funds for a sidechain burn.
	TxPegOut
	// TxFraudChallenge posts a bonded fraud-proof challenge against a
	// completed peg operation.
	TxFraudChallenge
	// TxFraudResponse answers an open fraud-proof challenge with the
	// evidence the verdict is computed over.
	TxFraudResponse
)

// String names the transaction type for logging.
func (t TxType) String() string {
	switch t {
	case TxStandard:
		return "standard"
	case TxCoinbase:
		return "coinbase"
	case TxTicketPurchase:
		return "ticket-purchase"
	case TxTicketRedemption:
		return "ticket-redemption"
	case TxMasternodeRegister:
		return "masternode-register"
	case TxMasternodeSlash:
		return "masternode-slash"
	case TxGovernanceProposal:
		return "governance-proposal"
	case TxGovernanceVote:
		return "governance-vote"
	case TxActivateProposal:
		return "activate-proposal"
	case TxPegIn:
		return "peg-in"
	case TxPegOut:
		return "peg-out"
	case TxFraudChallenge:
		return "fraud-challenge"
	case TxFraudResponse:
		return "fraud-response"
	default:
		return "unknown"
	}
}

// TicketPurchasePayload is carried by a TxTicketPurchase transaction.
type TicketPurchasePayload struct {
	StakerPubKey []byte
}

// TicketRedemptionPayload is carried by a TxTicketRedemption transaction.
type TicketRedemptionPayload struct {
	TicketID chainhash.Hash
}

// MasternodeRegisterPayload is carried by a TxMasternodeRegister transaction.
type MasternodeRegisterPayload struct {
	OperatorPubKey []byte
	PayoutHash     [20]byte
	NetworkAddress string
}

// MasternodeSlashPayload is carried by a TxMasternodeSlash transaction.
type MasternodeSlashPayload struct {
	MasternodeID    chainhash.Hash // the ProRegTx hash identifying the entry
	ProofType       uint8          // 0 = non-participation, 1 = malicious action
	WitnessSigs     [][]byte
	EvidencePayload []byte
}

// GovernanceProposalPayload is carried by a TxGovernanceProposal transaction.
type GovernanceProposalPayload struct {
	ProposalID        chainhash.Hash
	ProposerPubKey    []byte
	ProposalType      uint8
	StartHeight       uint32
	EndHeight         uint32
	ParamName         string
	NewValue          []byte
	ProposerSignature []byte
}

// VoterKind distinguishes a ticket voter from a masternode voter for
// governance votes.
type VoterKind uint8

const (
	// VoterTicket identifies a live ticket casting a governance vote.
	VoterTicket VoterKind = iota
	// VoterMasternode identifies an active masternode casting a governance vote.
	VoterMasternode
)

// GovernanceVotePayload is carried by a TxGovernanceVote transaction.
type GovernanceVotePayload struct {
	ProposalID chainhash.Hash
	VoterKind  VoterKind
	VoterID    chainhash.Hash // ticket id or masternode ProRegTx hash
	Approve    bool
	VoterSig   []byte
}

// ActivateProposalPayload is carried by a TxActivateProposal transaction.
type ActivateProposalPayload struct {
	ProposalID chainhash.Hash
}

// PegInPayload is carried by a TxPegIn transaction.
type PegInPayload struct {
	PegID               chainhash.Hash
	SourceChainID       chainhash.Hash
	DestChainID         chainhash.Hash
	AssetID             chainhash.Hash
	Amount              int64
	SidechainRecipient  []byte
	InclusionProof      []byte
	FederationSigShares []FederationSigShare
}

// PegOutPayload is carried by a TxPegOut transaction.
type PegOutPayload struct {
	PegID               chainhash.Hash
	SourceChainID       chainhash.Hash
	DestChainID         chainhash.Hash
	AssetID             chainhash.Hash
	Amount              int64
	MainchainRecipient  []byte
	BurnProof           []byte
	FederationSigShares []FederationSigShare
}

// FraudChallengePayload is carried by a TxFraudChallenge transaction. The
// challenger's bond is locked in one of the transaction's outputs.
type FraudChallengePayload struct {
	ChallengeID  chainhash.Hash
	TargetPegID  chainhash.Hash // the peg operation alleged invalid
	ChallengerID chainhash.Hash // masternode or ticket identity filing the accusation
	// ClaimedPreState commits to the challenged operation's recorded
	// pre-completion state; the verdict re-executes the operation
	// against it.
	ClaimedPreState chainhash.Hash
	Evidence        []byte
}

// FraudResponsePayload is carried by a TxFraudResponse transaction. The
// federation signature shares are the defense the verdict replays the
// challenged operation with.
type FraudResponsePayload struct {
	ChallengeID         chainhash.Hash
	ResponseEvidence    []byte
	FederationSigShares []FederationSigShare
}

// FederationSigShare is one federation member's threshold-signature share
// over a peg operation id.
type FederationSigShare struct {
	MemberIndex uint32
	PubKey      []byte
	Signature   []byte
}

// MsgTx is the canonical, tagged-union transaction. Inputs, outputs and lock
// time are shared by every variant; the one payload pointer field matching
// Type (TicketPurchase through FraudResponse) carries the fields specific to
// that variant, and all of them are nil for TxStandard and TxCoinbase.
type MsgTx struct {
	Version  uint16
	Type     TxType
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
	Expiry   uint32

	TicketPurchase     *TicketPurchasePayload
	TicketRedemption   *TicketRedemptionPayload
	MasternodeRegister *MasternodeRegisterPayload
	MasternodeSlash    *MasternodeSlashPayload
	GovernanceProposal *GovernanceProposalPayload
	GovernanceVote     *GovernanceVotePayload
	ActivateProposal   *ActivateProposalPayload
	PegIn              *PegInPayload
	PegOut             *PegOutPayload
	FraudChallenge     *FraudChallengePayload
	FraudResponse      *FraudResponsePayload

	// Witnesses holds per-input unlocking witness data for segregated
	// signature schemes. Cleared by SigHash.
	Witnesses [][]byte
}

// IsCoinbase reports whether this transaction is the block's coinbase: a
// single input spending the sentinel null outpoint.
func (tx *MsgTx) IsCoinbase() bool {
	return tx.Type == TxCoinbase && len(tx.TxIn) == 1 && tx.TxIn[0].PreviousOutPoint.IsNull()
}

// TotalOut returns the sum of all output values. Callers needing overflow
// protection should use SumOutputsChecked.
func (tx *MsgTx) TotalOut() int64 {
	var total int64
	for _, out := range tx.TxOut {
		total += out.Value
	}
	return total
}

// SumOutputsChecked returns the sum of all output values, failing if any
// value is negative or the running total overflows int64.
func (tx *MsgTx) SumOutputsChecked() (int64, error) {
	var total int64
	for _, out := range tx.TxOut {
		if out.Value < 0 {
			return 0, ErrMalformedWire
		}
		next := total + out.Value
		if next < total {
			return 0, ErrMalformedWire
		}
		total = next
	}
	return total, nil
}

// SerializeSize returns an upper bound on the canonical encoding size,
// useful for fee-rate calculations before the final encode.
func (tx *MsgTx) SerializeSize() int {
	return len(tx.Serialize())
}

// Serialize returns the canonical byte encoding of the transaction,
// including signatures/witnesses. tx_hash = Blake3(Serialize()).
func (tx *MsgTx) Serialize() []byte {
	return tx.encode(false)
}

// SerializeSigHash returns the canonical encoding with signature and witness
// fields cleared, used to produce the signature-hash form a signer signs
// over and a verifier checks against.
func (tx *MsgTx) SerializeSigHash() []byte {
	return tx.encode(true)
}

// Hash returns the Blake3 digest of the canonical serialization.
func (tx *MsgTx) Hash() chainhash.Hash {
	return chainhash.HashH(tx.Serialize())
}

// SigHash returns the Blake3 digest of the signature-hash form.
func (tx *MsgTx) SigHash() chainhash.Hash {
	return chainhash.HashH(tx.SerializeSigHash())
}

func (tx *MsgTx) encode(clearSigs bool) []byte {
	e := &encoder{}
	e.writeUint16(tx.Version)
	e.writeUint8(uint8(tx.Type))

	e.writeUint32(uint32(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		cp := *in
		if clearSigs {
			cp.SignatureScript = nil
		}
		cp.encode(e)
	}

	e.writeUint32(uint32(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		out.encode(e)
	}

	e.writeUint32(tx.LockTime)
	e.writeUint32(tx.Expiry)

	if !clearSigs {
		e.writeUint32(uint32(len(tx.Witnesses)))
		for _, w := range tx.Witnesses {
			e.writeVarBytes(w)
		}
	} else {
		e.writeUint32(0)
	}

	tx.encodePayload(e, clearSigs)
	return e.bytes()
}

func (tx *MsgTx) encodePayload(e *encoder, clearSigs bool) {
	switch tx.Type {
	case TxTicketPurchase:
		p := tx.TicketPurchase
		e.writeVarBytes(p.StakerPubKey)
	case TxTicketRedemption:
		p := tx.TicketRedemption
		e.writeHash(p.TicketID)
	case TxMasternodeRegister:
		p := tx.MasternodeRegister
		e.writeVarBytes(p.OperatorPubKey)
		e.buf = append(e.buf, p.PayoutHash[:]...)
		e.writeVarBytes([]byte(p.NetworkAddress))
	case TxMasternodeSlash:
		p := tx.MasternodeSlash
		e.writeHash(p.MasternodeID)
		e.writeUint8(p.ProofType)
		e.writeUint32(uint32(len(p.WitnessSigs)))
		for _, s := range p.WitnessSigs {
			e.writeVarBytes(s)
		}
		e.writeVarBytes(p.EvidencePayload)
	case TxGovernanceProposal:
		p := tx.GovernanceProposal
		e.writeHash(p.ProposalID)
		e.writeVarBytes(p.ProposerPubKey)
		e.writeUint8(p.ProposalType)
		e.writeUint32(p.StartHeight)
		e.writeUint32(p.EndHeight)
		e.writeVarBytes([]byte(p.ParamName))
		e.writeVarBytes(p.NewValue)
		if !clearSigs {
			e.writeVarBytes(p.ProposerSignature)
		} else {
			e.writeVarBytes(nil)
		}
	case TxGovernanceVote:
		p := tx.GovernanceVote
		e.writeHash(p.ProposalID)
		e.writeUint8(uint8(p.VoterKind))
		e.writeHash(p.VoterID)
		e.writeBool(p.Approve)
		if !clearSigs {
			e.writeVarBytes(p.VoterSig)
		} else {
			e.writeVarBytes(nil)
		}
	case TxActivateProposal:
		p := tx.ActivateProposal
		e.writeHash(p.ProposalID)
	case TxPegIn:
		p := tx.PegIn
		e.writeHash(p.PegID)
		e.writeHash(p.SourceChainID)
		e.writeHash(p.DestChainID)
		e.writeHash(p.AssetID)
		e.writeInt64(p.Amount)
		e.writeVarBytes(p.SidechainRecipient)
		e.writeVarBytes(p.InclusionProof)
		if !clearSigs {
			encodeFedShares(e, p.FederationSigShares)
		} else {
			e.writeUint32(0)
		}
	case TxPegOut:
		p := tx.PegOut
		e.writeHash(p.PegID)
		e.writeHash(p.SourceChainID)
		e.writeHash(p.DestChainID)
		e.writeHash(p.AssetID)
		e.writeInt64(p.Amount)
		e.writeVarBytes(p.MainchainRecipient)
		e.writeVarBytes(p.BurnProof)
		if !clearSigs {
			encodeFedShares(e, p.FederationSigShares)
		} else {
			e.writeUint32(0)
		}
	case TxFraudChallenge:
		p := tx.FraudChallenge
		e.writeHash(p.ChallengeID)
		e.writeHash(p.TargetPegID)
		e.writeHash(p.ChallengerID)
		e.writeHash(p.ClaimedPreState)
		e.writeVarBytes(p.Evidence)
	case TxFraudResponse:
		// The shares are evidence the verdict replays, not signatures
		// over this transaction, so the sig-hash form keeps them.
		p := tx.FraudResponse
		e.writeHash(p.ChallengeID)
		e.writeVarBytes(p.ResponseEvidence)
		encodeFedShares(e, p.FederationSigShares)
	}
}

func encodeFedShares(e *encoder, shares []FederationSigShare) {
	e.writeUint32(uint32(len(shares)))
	for _, s := range shares {
		e.writeUint32(s.MemberIndex)
		e.writeVarBytes(s.PubKey)
		e.writeVarBytes(s.Signature)
	}
}

func decodeFedShares(d *decoder) ([]FederationSigShare, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	shares := make([]FederationSigShare, 0, n)
	for i := uint32(0); i < n; i++ {
		var s FederationSigShare
		if s.MemberIndex, err = d.readUint32(); err != nil {
			return nil, err
		}
		if s.PubKey, err = d.readVarBytes(); err != nil {
			return nil, err
		}
		if s.Signature, err = d.readVarBytes(); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, nil
}

// DeserializeTx decodes a transaction previously produced by Serialize or
// SerializeSigHash. Witnesses are empty when decoding a sig-hash form.
func DeserializeTx(b []byte) (*MsgTx, error) {
	d := newDecoder(b)
	tx := &MsgTx{}
	var err error

	if tx.Version, err = d.readUint16(); err != nil {
		return nil, err
	}
	typ, err := d.readUint8()
	if err != nil {
		return nil, err
	}
	tx.Type = TxType(typ)

	numIn, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	tx.TxIn = make([]*TxIn, 0, numIn)
	for i := uint32(0); i < numIn; i++ {
		in, err := decodeTxIn(d)
		if err != nil {
			return nil, err
		}
		tx.TxIn = append(tx.TxIn, in)
	}

	numOut, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	tx.TxOut = make([]*TxOut, 0, numOut)
	for i := uint32(0); i < numOut; i++ {
		out, err := decodeTxOut(d)
		if err != nil {
			return nil, err
		}
		tx.TxOut = append(tx.TxOut, out)
	}

	if tx.LockTime, err = d.readUint32(); err != nil {
		return nil, err
	}
	if tx.Expiry, err = d.readUint32(); err != nil {
		return nil, err
	}

	numWit, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	tx.Witnesses = make([][]byte, 0, numWit)
	for i := uint32(0); i < numWit; i++ {
		w, err := d.readVarBytes()
		if err != nil {
			return nil, err
		}
		tx.Witnesses = append(tx.Witnesses, w)
	}

	if err := tx.decodePayload(d); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *MsgTx) decodePayload(d *decoder) error {
	switch tx.Type {
	case TxTicketPurchase:
		p := &TicketPurchasePayload{}
		var err error
		if p.StakerPubKey, err = d.readVarBytes(); err != nil {
			return err
		}
		tx.TicketPurchase = p
	case TxTicketRedemption:
		p := &TicketRedemptionPayload{}
		var err error
		if p.TicketID, err = d.readHash(); err != nil {
			return err
		}
		tx.TicketRedemption = p
	case TxMasternodeRegister:
		p := &MasternodeRegisterPayload{}
		var err error
		if p.OperatorPubKey, err = d.readVarBytes(); err != nil {
			return err
		}
		if d.remaining() < 20 {
			return ErrMalformedWire
		}
		copy(p.PayoutHash[:], d.buf[d.off:d.off+20])
		d.off += 20
		addr, err := d.readVarBytes()
		if err != nil {
			return err
		}
		p.NetworkAddress = string(addr)
		tx.MasternodeRegister = p
	case TxMasternodeSlash:
		p := &MasternodeSlashPayload{}
		var err error
		if p.MasternodeID, err = d.readHash(); err != nil {
			return err
		}
		if p.ProofType, err = d.readUint8(); err != nil {
			return err
		}
		n, err := d.readUint32()
		if err != nil {
			return err
		}
		p.WitnessSigs = make([][]byte, 0, n)
		for i := uint32(0); i < n; i++ {
			s, err := d.readVarBytes()
			if err != nil {
				return err
			}
			p.WitnessSigs = append(p.WitnessSigs, s)
		}
		if p.EvidencePayload, err = d.readVarBytes(); err != nil {
			return err
		}
		tx.MasternodeSlash = p
	case TxGovernanceProposal:
		p := &GovernanceProposalPayload{}
		var err error
		if p.ProposalID, err = d.readHash(); err != nil {
			return err
		}
		if p.ProposerPubKey, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.ProposalType, err = d.readUint8(); err != nil {
			return err
		}
		if p.StartHeight, err = d.readUint32(); err != nil {
			return err
		}
		if p.EndHeight, err = d.readUint32(); err != nil {
			return err
		}
		name, err := d.readVarBytes()
		if err != nil {
			return err
		}
		p.ParamName = string(name)
		if p.NewValue, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.ProposerSignature, err = d.readVarBytes(); err != nil {
			return err
		}
		tx.GovernanceProposal = p
	case TxGovernanceVote:
		p := &GovernanceVotePayload{}
		var err error
		if p.ProposalID, err = d.readHash(); err != nil {
			return err
		}
		kind, err := d.readUint8()
		if err != nil {
			return err
		}
		p.VoterKind = VoterKind(kind)
		if p.VoterID, err = d.readHash(); err != nil {
			return err
		}
		if p.Approve, err = d.readBool(); err != nil {
			return err
		}
		if p.VoterSig, err = d.readVarBytes(); err != nil {
			return err
		}
		tx.GovernanceVote = p
	case TxActivateProposal:
		p := &ActivateProposalPayload{}
		var err error
		if p.ProposalID, err = d.readHash(); err != nil {
			return err
		}
		tx.ActivateProposal = p
	case TxPegIn:
		p := &PegInPayload{}
		var err error
		if p.PegID, err = d.readHash(); err != nil {
			return err
		}
		if p.SourceChainID, err = d.readHash(); err != nil {
			return err
		}
		if p.DestChainID, err = d.readHash(); err != nil {
			return err
		}
		if p.AssetID, err = d.readHash(); err != nil {
			return err
		}
		if p.Amount, err = d.readInt64(); err != nil {
			return err
		}
		if p.SidechainRecipient, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.InclusionProof, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.FederationSigShares, err = decodeFedShares(d); err != nil {
			return err
		}
		tx.PegIn = p
	case TxPegOut:
		p := &PegOutPayload{}
		var err error
		if p.PegID, err = d.readHash(); err != nil {
			return err
		}
		if p.SourceChainID, err = d.readHash(); err != nil {
			return err
		}
		if p.DestChainID, err = d.readHash(); err != nil {
			return err
		}
		if p.AssetID, err = d.readHash(); err != nil {
			return err
		}
		if p.Amount, err = d.readInt64(); err != nil {
			return err
		}
		if p.MainchainRecipient, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.BurnProof, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.FederationSigShares, err = decodeFedShares(d); err != nil {
			return err
		}
		tx.PegOut = p
	case TxFraudChallenge:
		p := &FraudChallengePayload{}
		var err error
		if p.ChallengeID, err = d.readHash(); err != nil {
			return err
		}
		if p.TargetPegID, err = d.readHash(); err != nil {
			return err
		}
		if p.ChallengerID, err = d.readHash(); err != nil {
			return err
		}
		if p.ClaimedPreState, err = d.readHash(); err != nil {
			return err
		}
		if p.Evidence, err = d.readVarBytes(); err != nil {
			return err
		}
		tx.FraudChallenge = p
	case TxFraudResponse:
		p := &FraudResponsePayload{}
		var err error
		if p.ChallengeID, err = d.readHash(); err != nil {
			return err
		}
		if p.ResponseEvidence, err = d.readVarBytes(); err != nil {
			return err
		}
		if p.FederationSigShares, err = decodeFedShares(d); err != nil {
			return err
		}
		tx.FraudResponse = p
	}
	return nil
}
