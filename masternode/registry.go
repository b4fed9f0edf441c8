// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package masternode implements the masternode registry and its
// Proof-of-Service liveness protocol: registration with locked
// collateral, probation before activation, deterministic challenge
// rounds, failure counting with scheduled resets, and slashing. PoSe
// challenge rounds record which targets have replied in a
// github.com/jrick/bitset bitmap rather than a slice of bools.
package masternode

import (
	"sort"

	"github.com/jrick/bitset"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/wire"
)

// Entry is one masternode's full registry record.
type Entry struct {
	ID                 chainhash.Hash // the ProRegTx hash
	CollateralOutpoint wire.OutPoint
	OperatorPubKey     []byte
	PayoutHash         [20]byte
	NetworkAddress     string
	RegistrationHeight uint32
	LastSeenHeight     uint32
	PoSeFailureCount   uint32

	// LastFailureHeight anchors the "without further failures" reset
	// window: only the reset scheduled by the most recent failure may
	// fire.
	LastFailureHeight uint32

	Status blockchain.MasternodeStatus
}

// ChallengeRound is one PoSe challenge issued by a challenger masternode
// against a set of targets at a given height; Responded tracks which
// targets (by index into Targets) have replied.
type ChallengeRound struct {
	Nonce        chainhash.Hash
	ChallengerID chainhash.Hash
	Targets      []chainhash.Hash
	IssuedHeight uint32
	Responded    bitset.Bytes
}

// Registry tracks every masternode from registration through ban.
type Registry struct {
	params *chaincfg.Params

	entries map[chainhash.Hash]*Entry

	// pendingProbation indexes entries still serving probation, by the
	// height at which they become Active.
	pendingProbation map[uint32][]chainhash.Hash
	// failureReset indexes Probation entries by the height at which their
	// failure count resets (if no further failure occurred in between).
	failureReset map[uint32][]chainhash.Hash

	rounds map[chainhash.Hash]*ChallengeRound

	// dirty collects the ids mutated since the last TakeDirty call so the
	// block processor can refresh exactly those state-trie entries.
	dirty map[chainhash.Hash]struct{}
}

// New returns an empty masternode registry.
func New(params *chaincfg.Params) *Registry {
	return &Registry{
		params:           params,
		entries:          make(map[chainhash.Hash]*Entry),
		pendingProbation: make(map[uint32][]chainhash.Hash),
		failureReset:     make(map[uint32][]chainhash.Hash),
		rounds:           make(map[chainhash.Hash]*ChallengeRound),
		dirty:            make(map[chainhash.Hash]struct{}),
	}
}

// Masternode implements blockchain.MasternodeRegistry.
func (r *Registry) Masternode(id chainhash.Hash) (blockchain.MasternodeInfo, bool) {
	e, ok := r.entries[id]
	if !ok {
		return blockchain.MasternodeInfo{}, false
	}
	return blockchain.MasternodeInfo{Status: e.Status}, true
}

// Register enrolls a newly confirmed MasternodeRegister transaction. The
// entry starts Registered and becomes Active after MasternodeProbationBlocks.
func (r *Registry) Register(id chainhash.Hash, collateral wire.OutPoint, operatorPubKey []byte, payoutHash [20]byte, networkAddress string, height uint32) {
	e := &Entry{
		ID:                 id,
		CollateralOutpoint: collateral,
		OperatorPubKey:     operatorPubKey,
		PayoutHash:         payoutHash,
		NetworkAddress:     networkAddress,
		RegistrationHeight: height,
		LastSeenHeight:     height,
		Status:             blockchain.MasternodeRegistered,
	}
	r.entries[id] = e
	r.dirty[id] = struct{}{}
	activeAt := height + r.params.MasternodeProbationBlocks
	r.pendingProbation[activeAt] = append(r.pendingProbation[activeAt], id)
}

// AdvanceBlock promotes masternodes that finished probation and resets
// failure counts for ones that have gone ResetFailuresPeriod blocks
// without a further missed challenge, for the block at height.
func (r *Registry) AdvanceBlock(height uint32) {
	for _, id := range r.pendingProbation[height] {
		e, ok := r.entries[id]
		if !ok || e.Status != blockchain.MasternodeRegistered {
			continue
		}
		e.Status = blockchain.MasternodeActive
		r.dirty[id] = struct{}{}
	}
	delete(r.pendingProbation, height)

	for _, id := range r.failureReset[height] {
		e, ok := r.entries[id]
		if !ok || e.Status != blockchain.MasternodeProbation {
			continue
		}
		if e.LastFailureHeight+r.params.PoSeResetFailuresPeriod != height {
			// A later failure superseded this schedule; its own reset
			// entry fires instead.
			continue
		}
		e.PoSeFailureCount = 0
		e.Status = blockchain.MasternodeActive
		r.dirty[id] = struct{}{}
	}
	delete(r.failureReset, height)
}

// ActiveCount returns the number of Active masternodes, the count the
// governance registry's quorum is computed over.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, e := range r.entries {
		if e.Status == blockchain.MasternodeActive {
			n++
		}
	}
	return n
}

// FederationCandidate is the subset of a masternode entry the peg
// manager's federation rotation needs: an identity and the operator key
// that will sign the DKG round producing that epoch's threshold key.
type FederationCandidate struct {
	ID             chainhash.Hash
	OperatorPubKey []byte
}

// TopByCollateralAge returns up to n active masternodes ordered by
// ascending registration height (oldest collateral first), the candidate
// set each federation epoch's DKG round is run over. Ties are broken by
// id for determinism.
func (r *Registry) TopByCollateralAge(n int) []FederationCandidate {
	active := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status == blockchain.MasternodeActive {
			active = append(active, e)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].RegistrationHeight != active[j].RegistrationHeight {
			return active[i].RegistrationHeight < active[j].RegistrationHeight
		}
		return compareHash(active[i].ID, active[j].ID) < 0
	})
	if n > len(active) {
		n = len(active)
	}
	out := make([]FederationCandidate, n)
	for i := 0; i < n; i++ {
		out[i] = FederationCandidate{ID: active[i].ID, OperatorPubKey: active[i].OperatorPubKey}
	}
	return out
}

func activeIDs(entries map[chainhash.Hash]*Entry) []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(entries))
	for id, e := range entries {
		if e.Status == blockchain.MasternodeActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return compareHash(ids[i], ids[j]) < 0 })
	return ids
}

func compareHash(a, b chainhash.Hash) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// IssueChallenges runs the PoSe challenge protocol for the block at
// height: every PoSeChallengePeriod blocks, a pseudo-random subset of
// active masternodes (keyed off prevBlockHash) each challenge a
// pseudo-random subset of the remaining active set. It returns nil
// outside a challenge height.
func (r *Registry) IssueChallenges(prevBlockHash chainhash.Hash, height uint32) []*ChallengeRound {
	if r.params.PoSeChallengePeriod == 0 || height%r.params.PoSeChallengePeriod != 0 {
		return nil
	}
	active := activeIDs(r.entries)
	if len(active) < 2 {
		return nil
	}

	seed := chainhash.HashH(append(append([]byte{}, prevBlockHash[:]...), byte(height), byte(height>>8), byte(height>>16), byte(height>>24)))
	sort.Slice(active, func(i, j int) bool {
		return compareHash(challengeScore(seed, active[i]), challengeScore(seed, active[j])) < 0
	})

	half := len(active) / 2
	if half == 0 {
		return nil
	}
	challengers := active[:half]
	targets := active[half:]

	rounds := make([]*ChallengeRound, 0, len(challengers))
	for i, challenger := range challengers {
		target := targets[i%len(targets)]
		// The nonce must be reproducible on every node, like the
		// ticket lottery's seed.
		nonceBuf := make([]byte, 0, chainhash.HashSize*3)
		nonceBuf = append(nonceBuf, seed[:]...)
		nonceBuf = append(nonceBuf, challenger[:]...)
		nonceBuf = append(nonceBuf, target[:]...)
		nonce := chainhash.HashH(nonceBuf)
		round := &ChallengeRound{
			Nonce:        nonce,
			ChallengerID: challenger,
			Targets:      []chainhash.Hash{target},
			IssuedHeight: height,
			Responded:    bitset.NewBytes(1),
		}
		r.rounds[nonce] = round
		rounds = append(rounds, round)
	}
	return rounds
}

func challengeScore(seed, id chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, chainhash.HashSize*2)
	buf = append(buf, seed[:]...)
	buf = append(buf, id[:]...)
	return chainhash.HashH(buf)
}

// RecordResponse applies a target's signed reply to an outstanding
// challenge: a valid signature by the target's operator key over
// (nonce || blockHash) marks the round answered and sets LastSeenHeight to
// height.
func (r *Registry) RecordResponse(nonce chainhash.Hash, targetID chainhash.Hash, sig []byte, blockHash chainhash.Hash, height uint32) error {
	round, ok := r.rounds[nonce]
	if !ok {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPoSeResponse, Description: "response to unknown challenge"}
	}
	idx := -1
	for i, t := range round.Targets {
		if t == targetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPoSeResponse, Description: "responder was not challenged in this round"}
	}
	target, ok := r.entries[targetID]
	if !ok {
		return blockchain.RuleError{Code: blockchain.ErrMasternodeNotFound, Description: "unknown masternode"}
	}
	operatorKey, err := primitives.ParsePublicKey(target.OperatorPubKey)
	if err != nil {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPoSeResponse, Description: "operator pubkey malformed"}
	}
	challengeDigest := chainhash.HashH(append(append([]byte{}, nonce[:]...), blockHash[:]...))
	parsedSig, err := primitives.ParseSignature(sig)
	if err != nil || !operatorKey.Verify(challengeDigest, parsedSig) {
		return blockchain.RuleError{Code: blockchain.ErrInvalidPoSeResponse, Description: "challenge response signature does not verify"}
	}
	round.Responded.Set(idx)
	target.LastSeenHeight = height
	r.dirty[targetID] = struct{}{}
	return nil
}

// ProcessTimeouts penalizes any target that did not answer its challenge
// within PoSeResponseTimeoutSecs / TargetBlockTimeSeconds blocks of being
// issued. Rounds are forgotten
// once resolved one way or the other.
func (r *Registry) ProcessTimeouts(height uint32) {
	timeoutBlocks := uint32(r.params.PoSeResponseTimeoutSecs / r.params.TargetBlockTimeSeconds)
	for nonce, round := range r.rounds {
		if height < round.IssuedHeight+timeoutBlocks {
			continue
		}
		for i, target := range round.Targets {
			if !round.Responded.Get(i) {
				r.recordFailure(target, height)
			}
		}
		delete(r.rounds, nonce)
	}
}

func (r *Registry) recordFailure(id chainhash.Hash, height uint32) {
	e, ok := r.entries[id]
	if !ok || e.Status == blockchain.MasternodeBanned {
		return
	}
	e.PoSeFailureCount++
	e.LastFailureHeight = height
	r.dirty[id] = struct{}{}
	log.Debugf("Masternode %v missed a PoSe challenge (failures %d)", id, e.PoSeFailureCount)
	if e.PoSeFailureCount >= r.params.MaxPoSeFailures {
		e.Status = blockchain.MasternodeProbation
	}
	if e.Status == blockchain.MasternodeProbation {
		// Every failure restarts the reset window. Earlier scheduled
		// entries become stale; AdvanceBlock skips them via the
		// LastFailureHeight check.
		resetAt := height + r.params.PoSeResetFailuresPeriod
		r.failureReset[resetAt] = append(r.failureReset[resetAt], id)
	}
}

// Slash bans a masternode following a verified MasternodeSlash
// transaction: the entry is removed from the registry at this block. The
// collateral output is not marked or changed; it stays in the UTXO set.
func (r *Registry) Slash(id chainhash.Hash) {
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	r.dirty[id] = struct{}{}
	log.Infof("Masternode %v banned and removed following a verified slash", id)
}

// CollateralSpent bans and removes a masternode whose collateral outpoint
// was spent by an ordinary (non-slash) transaction.
func (r *Registry) CollateralSpent(id chainhash.Hash) {
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	r.dirty[id] = struct{}{}
}

// CollateralOf returns the collateral outpoint a registered masternode
// locked, so the block processor can watch for it being spent.
func (r *Registry) CollateralOf(id chainhash.Hash) (wire.OutPoint, bool) {
	e, ok := r.entries[id]
	if !ok {
		return wire.OutPoint{}, false
	}
	return e.CollateralOutpoint, true
}

// RunChallengeRound issues this height's PoSe challenges (if height is on
// a challenge boundary) and returns how many were issued. The rounds
// themselves are delivered to their targets by the P2P collaborator via
// IssueChallenges' return value; the block processor only needs the
// protocol advanced.
func (r *Registry) RunChallengeRound(prevBlockHash chainhash.Hash, height uint32) int {
	return len(r.IssueChallenges(prevBlockHash, height))
}
