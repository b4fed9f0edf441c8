// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the per-network consensus parameter sets.
// Parameters that on-chain governance may retarget are also registered in
// the GovernanceOverridable set so the governance package can validate
// and apply a passed parameter-change proposal against them.
package chaincfg

import (
	"math/big"
	"time"

	"github.com/solidus-chain/solidusd/chainhash"
)

// Params holds every consensus constant a node needs to validate blocks on
// a given network.
type Params struct {
	Name        string
	GenesisHash chainhash.Hash
	GenesisTime time.Time

	// PoW / difficulty.
	TargetBlockTimeSeconds int64
	LWMAWindow             int64
	PowLimit               *big.Int // maximum allowed target (minimum difficulty)
	PowLimitBits           uint32
	MaxTimeAdjustSeconds   int64 // "network-adjusted now + 2 hours"

	// Subsidy.
	InitialSubsidy  int64
	HalvingInterval int64
	MaxHalvings     int64

	// UTXO / tx validation.
	CoinbaseMaturity  uint32
	MaxBlockSize      uint32
	MinRelayFeePerKB  int64
	DustLimit         int64
	MaxTxSize         uint32
	LockTimeThreshold uint32

	// Ticket lifecycle.
	TicketMaturity           uint32
	TicketExpiry             uint32
	TicketRedemptionMaturity uint32
	TicketPriceInitial       int64
	TicketsPerBlock          int
	MinPoSVotesPerBlock      int
	PoSFinalityDepth         uint32
	PoSRewardRatioPPM        int64 // parts per million of total_reward paid to stakers

	// Masternode / Proof-of-Service.
	MasternodeCollateral      int64
	MasternodeProbationBlocks uint32
	PoSeChallengePeriod       uint32
	PoSeResponseTimeoutSecs   int64
	MaxPoSeFailures           uint32
	PoSeResetFailuresPeriod   uint32
	MinWitnessSignatures      int

	// Governance.
	GovernanceActivationDelay uint32
	GovernanceVotingPeriod    uint32
	ProposalStakeAmount       int64
	PoSVotingQuorumPercentage int64 // percent, e.g. 20 for 20%
	MNVotingQuorumPercentage  int64
	PoSApprovalPercentage     int64
	MNApprovalPercentage      int64

	// Two-way peg / sidechain. Federation membership rotates every
	// FederationEpochBlocks; peg amounts are bounded the same way outputs
	// are bounded by the dust limit.
	MinPegInConfirmations  uint32
	MinPegOutConfirmations uint32
	FederationThreshold    uint32
	FederationSize         uint32 // top-N active masternodes by collateral age eligible for the federation
	FederationEpochBlocks  uint32
	PegTimeoutBlocks       uint32
	PegFeeRatePPM          int64
	MinPegAmount           int64
	MaxPegAmount           int64
	ChallengePeriodBlocks  uint32

	// Fraud proofs: a bonded challenge/response/verdict lifecycle.
	FraudProofBondAmount     int64
	FraudProofResponseBlocks uint32

	// Address and WIF encoding magics.
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	PrivateKeyID     byte
}

// bigOne is 1 represented as a big.Int, defined once to avoid repeated
// allocation in PowLimit construction.
var bigOne = big.NewInt(1)

func powLimitFor(bits uint) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(bigOne, bits), bigOne)
}

// MainNetParams returns the consensus parameters for the production
// network.
func MainNetParams() *Params {
	return &Params{
		Name:                      "mainnet",
		GenesisTime:               time.Unix(1700000000, 0),
		TargetBlockTimeSeconds:    150,
		LWMAWindow:                90,
		PowLimit:                  powLimitFor(224),
		MaxTimeAdjustSeconds:      2 * 60 * 60,
		InitialSubsidy:            50_000_000_000,
		HalvingInterval:           210_000,
		MaxHalvings:               64,
		CoinbaseMaturity:          100,
		MaxBlockSize:              1 << 20,
		MinRelayFeePerKB:          100_000,
		DustLimit:                 546,
		MaxTxSize:                 1 << 20,
		LockTimeThreshold:         500_000_000,
		TicketMaturity:            256,
		TicketExpiry:              40_960,
		TicketRedemptionMaturity:  256,
		TicketPriceInitial:        1_000_000_000,
		TicketsPerBlock:           5,
		MinPoSVotesPerBlock:       3,
		PoSFinalityDepth:          6,
		PoSRewardRatioPPM:         300_000,
		MasternodeCollateral:      26_000_000_000_000,
		MasternodeProbationBlocks: 2_000,
		PoSeChallengePeriod:       10,
		PoSeResponseTimeoutSecs:   300,
		MaxPoSeFailures:           3,
		PoSeResetFailuresPeriod:   576,
		MinWitnessSignatures:      3,
		GovernanceActivationDelay: 1008,
		GovernanceVotingPeriod:    4032,
		ProposalStakeAmount:       100_000_000_000,
		PoSVotingQuorumPercentage: 20,
		MNVotingQuorumPercentage:  20,
		PoSApprovalPercentage:     60,
		MNApprovalPercentage:      60,
		MinPegInConfirmations:     100,
		MinPegOutConfirmations:    6,
		FederationThreshold:       5,
		FederationSize:            7,
		FederationEpochBlocks:     20_160,
		PegTimeoutBlocks:          40_320,
		PegFeeRatePPM:             2_000,
		MinPegAmount:              100_000,
		MaxPegAmount:              1_000_000_000_000,
		ChallengePeriodBlocks:     1_440,
		FraudProofBondAmount:      1_000_000_000,
		FraudProofResponseBlocks:  1_440,
		PubKeyHashAddrID:          0x3f,
		ScriptHashAddrID:          0x7a,
		PrivateKeyID:              0xbf,
	}
}

// TestNetParams returns the consensus parameters for the public test
// network: identical rules, shorter maturity/activation windows so test
// scenarios don't need tens of thousands of blocks.
func TestNetParams() *Params {
	p := MainNetParams()
	p.Name = "testnet"
	p.PubKeyHashAddrID = 0x8b
	p.ScriptHashAddrID = 0xc4
	p.PrivateKeyID = 0xef
	p.CoinbaseMaturity = 16
	p.TicketMaturity = 16
	p.TicketExpiry = 1024
	p.TicketRedemptionMaturity = 16
	p.MasternodeProbationBlocks = 50
	p.GovernanceActivationDelay = 64
	p.GovernanceVotingPeriod = 256
	p.MinPegInConfirmations = 6
	p.MinPegOutConfirmations = 2
	p.FederationEpochBlocks = 144
	p.FraudProofResponseBlocks = 64
	return p
}

// SimNetParams returns consensus parameters tuned for fast local
// simulation: trivial difficulty, minimal maturity windows.
func SimNetParams() *Params {
	p := MainNetParams()
	p.Name = "simnet"
	p.PubKeyHashAddrID = 0x73
	p.ScriptHashAddrID = 0x7b
	p.PrivateKeyID = 0x9d
	p.PowLimit = powLimitFor(255)
	p.TargetBlockTimeSeconds = 1
	p.CoinbaseMaturity = 2
	p.MinPoSVotesPerBlock = 1
	p.MasternodeCollateral = 10_000_000_000
	p.ProposalStakeAmount = 5_000_000_000
	p.MinWitnessSignatures = 2
	p.PoSeChallengePeriod = 5
	p.PoSeResponseTimeoutSecs = 2
	p.PoSeResetFailuresPeriod = 16
	p.TicketMaturity = 2
	p.TicketExpiry = 32
	p.TicketRedemptionMaturity = 2
	p.MasternodeProbationBlocks = 2
	p.GovernanceActivationDelay = 4
	p.GovernanceVotingPeriod = 16
	p.MinPegInConfirmations = 1
	p.MinPegOutConfirmations = 1
	p.FederationThreshold = 2
	p.FederationSize = 3
	p.FederationEpochBlocks = 8
	p.FraudProofResponseBlocks = 4
	return p
}

// RegNetParams returns consensus parameters for deterministic regression
// tests: same shape as SimNet but with its own genesis so the two never
// share a chain.
func RegNetParams() *Params {
	p := SimNetParams()
	p.Name = "regnet"
	return p
}

// GovernanceOverridable lists the only parameter names a passed
// governance proposal may retarget. The transaction validator checks a
// parameter proposal's ParamName against this set and its declared bounds
// when the proposal is accepted (governance.ValidateParameterChange applies
// the same rule).
var GovernanceOverridable = map[string]struct{ Min, Max int64 }{
	"HalvingInterval":           {Min: 1000, Max: 10_000_000},
	"InitialSubsidy":            {Min: 0, Max: 1_000_000_000_000},
	"MaxBlockSize":              {Min: 1 << 16, Max: 32 << 20},
	"MinRelayFeePerKB":          {Min: 0, Max: 10_000_000},
	"TicketMaturity":            {Min: 1, Max: 1_000_000},
	"TicketExpiry":              {Min: 1, Max: 10_000_000},
	"TicketPriceInitial":        {Min: 1, Max: 1_000_000_000_000},
	"MinPoSVotesPerBlock":       {Min: 1, Max: 64},
	"PoSeChallengePeriod":       {Min: 1, Max: 100_000},
	"MaxPoSeFailures":           {Min: 1, Max: 1_000},
	"GovernanceActivationDelay": {Min: 1, Max: 1_000_000},
	"GovernanceVotingPeriod":    {Min: 1, Max: 1_000_000},
}
