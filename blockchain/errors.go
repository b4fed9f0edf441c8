// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import "fmt"

// ErrorCode identifies a specific consensus rule violation, one constant
// per rule this processor enforces.
type ErrorCode int

const (
	ErrInvalidBlock ErrorCode = iota
	ErrInvalidHeader
	ErrInvalidPoW
	ErrInvalidMerkleRoot
	ErrInvalidStateRoot
	ErrInvalidPoSQuorum
	ErrInsufficientPoSVotes
	ErrInvalidTicketSignature
	ErrDuplicateTransaction
	ErrDoubleSpend
	ErrMissingPreviousOutput
	ErrImmatureCoinbase
	ErrInsufficientFee
	ErrInvalidCoinbaseReward
	ErrScriptVerificationFailed
	ErrInvalidLockTime
	ErrMasternodeNotFound
	ErrInvalidPoSeResponse
	ErrInvalidProposal
	ErrDuplicateVote
	ErrInvalidPegOperation
	ErrFederationThresholdNotMet
	ErrInvalidFraudProof
)

var errorCodeNames = map[ErrorCode]string{
	ErrInvalidBlock:              "InvalidBlock",
	ErrInvalidHeader:             "InvalidHeader",
	ErrInvalidPoW:                "InvalidPoW",
	ErrInvalidMerkleRoot:         "InvalidMerkleRoot",
	ErrInvalidStateRoot:          "InvalidStateRoot",
	ErrInvalidPoSQuorum:          "InvalidPoSQuorum",
	ErrInsufficientPoSVotes:      "InsufficientPoSVotes",
	ErrInvalidTicketSignature:    "InvalidTicketSignature",
	ErrDuplicateTransaction:      "DuplicateTransaction",
	ErrDoubleSpend:               "DoubleSpend",
	ErrMissingPreviousOutput:     "MissingPreviousOutput",
	ErrImmatureCoinbase:          "ImmatureCoinbase",
	ErrInsufficientFee:           "InsufficientFee",
	ErrInvalidCoinbaseReward:     "InvalidCoinbaseReward",
	ErrScriptVerificationFailed:  "ScriptVerificationFailed",
	ErrInvalidLockTime:           "InvalidLockTime",
	ErrMasternodeNotFound:        "MasternodeNotFound",
	ErrInvalidPoSeResponse:       "InvalidPoSeResponse",
	ErrInvalidProposal:           "InvalidProposal",
	ErrDuplicateVote:             "DuplicateVote",
	ErrInvalidPegOperation:       "InvalidPegOperation",
	ErrFederationThresholdNotMet: "FederationThresholdNotMet",
	ErrInvalidFraudProof:         "InvalidFraudProof",
}

func (e ErrorCode) String() string {
	if s, ok := errorCodeNames[e]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(e))
}

// RuleError is a typed, non-fatal validation failure: the block or
// transaction that triggered it is rejected and no state is mutated.
// Callers (the P2P layer, in a full node) may use Code to score the peer
// that relayed it.
type RuleError struct {
	Code        ErrorCode
	Description string
}

func (e RuleError) Error() string {
	return e.Description
}

// Is reports whether target is a RuleError with the same Code, supporting
// errors.Is(err, ruleError(ErrDoubleSpend, "")).
func (e RuleError) Is(target error) bool {
	other, ok := target.(RuleError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

func ruleError(code ErrorCode, desc string) RuleError {
	return RuleError{Code: code, Description: desc}
}

// AssertionError marks an invariant violation (a missing trie node, an
// accounting mismatch after commit). It is never recovered from; the
// caller halts the writer.
type AssertionError string

func (e AssertionError) Error() string {
	return "consensus invariant violated: " + string(e)
}
