// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package stake maintains the live/voted/expired/revoked ticket pool and
// the per-block PoS voting lottery. Winners are derived from a seed keyed
// off prior chain state (the previous block hash and the height being
// voted at) rather than stored, so every node reproduces the same
// selection; the PRF is a Blake3 score-and-sort over the live set.
package stake

import (
	"sort"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/wire"
)

// Ticket is one entry in the pool.
type Ticket struct {
	ID             chainhash.Hash
	StakerPubKey   []byte
	StakeAmount    int64
	PurchaseHeight uint32
	Status         blockchain.TicketState

	// TransitionHeight is the height of the block that moved the ticket
	// out of Live (carrying its vote, or expiring it). The redemption
	// window is measured from here, not from the purchase.
	TransitionHeight uint32

	// RewardCredit accumulates the per-voter reward share this ticket
	// earned by voting; a redemption may mint up to this much on top of
	// the returned stake.
	RewardCredit int64
}

// Pool tracks every ticket from purchase through its terminal
// transition. It is not safe for concurrent use; the block processor is
// its single owner and serializes access.
type Pool struct {
	params *chaincfg.Params

	tickets map[chainhash.Hash]*Ticket

	// pendingByMaturity indexes not-yet-live tickets by the height at which
	// they mature, so maturation is a O(matured-this-block) lookup rather
	// than a scan of every pending ticket on every block.
	pendingByMaturity map[uint32][]chainhash.Hash
	// liveByExpiry indexes live tickets by purchase_height+expiry so
	// AdvanceBlock can expire them without scanning the whole live set.
	liveByExpiry map[uint32][]chainhash.Hash

	currentPrice int64

	// dirty collects the ids mutated since the last TakeDirty call so the
	// block processor can refresh exactly those state-trie entries.
	dirty map[chainhash.Hash]struct{}
}

// New returns an empty ticket pool priced at the network's initial ticket
// price.
func New(params *chaincfg.Params) *Pool {
	return &Pool{
		params:            params,
		tickets:           make(map[chainhash.Hash]*Ticket),
		pendingByMaturity: make(map[uint32][]chainhash.Hash),
		liveByExpiry:      make(map[uint32][]chainhash.Hash),
		currentPrice:      params.TicketPriceInitial,
		dirty:             make(map[chainhash.Hash]struct{}),
	}
}

// CurrentTicketPrice implements blockchain.TicketPool.
func (p *Pool) CurrentTicketPrice() int64 {
	return p.currentPrice
}

// Ticket implements blockchain.TicketPool.
func (p *Pool) Ticket(id chainhash.Hash) (blockchain.TicketInfo, bool) {
	t, ok := p.tickets[id]
	if !ok {
		return blockchain.TicketInfo{}, false
	}
	return blockchain.TicketInfo{
		State:            t.Status,
		StakerPubKey:     t.StakerPubKey,
		PurchaseHeight:   t.PurchaseHeight,
		TransitionHeight: t.TransitionHeight,
		RewardCredit:     t.RewardCredit,
	}, true
}

// AddPurchase registers a newly confirmed ticket purchase. The ticket is
// not yet Live; it matures (and becomes selectable by the lottery) at
// purchaseHeight + TicketMaturity.
func (p *Pool) AddPurchase(id chainhash.Hash, stakerPubKey []byte, stakeAmount int64, purchaseHeight uint32) {
	t := &Ticket{
		ID:             id,
		StakerPubKey:   stakerPubKey,
		StakeAmount:    stakeAmount,
		PurchaseHeight: purchaseHeight,
		Status:         blockchain.TicketPending,
	}
	p.tickets[id] = t
	p.dirty[id] = struct{}{}
	maturesAt := purchaseHeight + p.params.TicketMaturity
	p.pendingByMaturity[maturesAt] = append(p.pendingByMaturity[maturesAt], id)
}

// AdvanceBlock matures tickets purchased far enough in the past and expires
// live tickets that were never drawn, for the block at height.
func (p *Pool) AdvanceBlock(height uint32) {
	for _, id := range p.pendingByMaturity[height] {
		t, ok := p.tickets[id]
		if !ok || t.Status != blockchain.TicketPending {
			continue
		}
		t.Status = blockchain.TicketLive
		p.dirty[id] = struct{}{}
		expiresAt := t.PurchaseHeight + p.params.TicketExpiry
		p.liveByExpiry[expiresAt] = append(p.liveByExpiry[expiresAt], id)
	}
	delete(p.pendingByMaturity, height)

	for _, id := range p.liveByExpiry[height] {
		t, ok := p.tickets[id]
		if !ok || t.Status != blockchain.TicketLive {
			continue
		}
		t.Status = blockchain.TicketExpired
		t.TransitionHeight = height
		p.dirty[id] = struct{}{}
	}
	delete(p.liveByExpiry, height)
}

// LiveCount returns the number of Live tickets, the count the governance
// registry's quorum is computed over.
func (p *Pool) LiveCount() int {
	n := 0
	for _, t := range p.tickets {
		if t.Status == blockchain.TicketLive {
			n++
		}
	}
	return n
}

// liveIDs returns every ticket id currently Live and maturity-indexed as
// selectable (AdvanceBlock must have run for the current height first).
func (p *Pool) liveIDs() []chainhash.Hash {
	ids := make([]chainhash.Hash, 0, len(p.tickets))
	for id, t := range p.tickets {
		if t.Status == blockchain.TicketLive {
			ids = append(ids, id)
		}
	}
	return ids
}

// quorumScore is the deterministic per-ticket lottery weight: sorting live
// tickets by this score and taking the lowest n is equivalent to an equal
// weight draw keyed by the block's PRF seed, with ties (which never occur
// in practice since the score is a hash) broken by ticket id.
func quorumScore(seed, ticketID chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, chainhash.HashSize*2)
	buf = append(buf, seed[:]...)
	buf = append(buf, ticketID[:]...)
	return chainhash.HashH(buf)
}

// SelectQuorum draws the voting quorum for the block following
// (prevBlockHash, height) deterministically: every node computes the same
// seed and the same sort, so the same winners are selected everywhere.
// The result is already sorted by ticket id, the canonical order
// TicketHash expects.
func (p *Pool) SelectQuorum(prevBlockHash chainhash.Hash, height uint32) []chainhash.Hash {
	seed := seedFor(prevBlockHash, height)
	ids := p.liveIDs()

	type scored struct {
		id    chainhash.Hash
		score chainhash.Hash
	}
	candidates := make([]scored, len(ids))
	for i, id := range ids {
		candidates[i] = scored{id: id, score: quorumScore(seed, id)}
	}
	sort.Slice(candidates, func(i, j int) bool {
		cmp := compareHash(candidates[i].score, candidates[j].score)
		if cmp != 0 {
			return cmp < 0
		}
		return compareHash(candidates[i].id, candidates[j].id) < 0
	})

	n := p.params.TicketsPerBlock
	if n > len(candidates) {
		n = len(candidates)
	}
	winners := make([]chainhash.Hash, n)
	for i := 0; i < n; i++ {
		winners[i] = candidates[i].id
	}
	sort.Slice(winners, func(i, j int) bool { return compareHash(winners[i], winners[j]) < 0 })
	return winners
}

func seedFor(prevBlockHash chainhash.Hash, height uint32) chainhash.Hash {
	buf := make([]byte, chainhash.HashSize+4)
	copy(buf, prevBlockHash[:])
	buf[chainhash.HashSize+0] = byte(height)
	buf[chainhash.HashSize+1] = byte(height >> 8)
	buf[chainhash.HashSize+2] = byte(height >> 16)
	buf[chainhash.HashSize+3] = byte(height >> 24)
	return chainhash.HashH(buf)
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

// TicketHash computes the quorum commitment the block header must carry:
// Blake3 over the concatenation of the quorum's sorted ticket ids.
func TicketHash(sortedQuorum []chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, len(sortedQuorum)*chainhash.HashSize)
	for _, id := range sortedQuorum {
		buf = append(buf, id[:]...)
	}
	return chainhash.HashH(buf)
}

// ApplyVotes validates and applies the PoS votes carried by a block's
// header against its quorum. On success every
// voted ticket transitions Live to Voted, recording height (the block
// carrying the votes) as its transition height. It fails the whole block
// (no partial application) if any vote is invalid, duplicated, or not in
// the quorum, or if fewer than MinPoSVotesPerBlock valid votes are
// present.
func (p *Pool) ApplyVotes(votes []*wire.PoSVote, quorum []chainhash.Hash, blockHash chainhash.Hash, height uint32) error {
	inQuorum := make(map[chainhash.Hash]struct{}, len(quorum))
	for _, id := range quorum {
		inQuorum[id] = struct{}{}
	}

	seen := make(map[chainhash.Hash]struct{}, len(votes))
	for _, v := range votes {
		if _, ok := inQuorum[v.TicketID]; !ok {
			return blockchain.RuleError{Code: blockchain.ErrInvalidPoSQuorum, Description: "vote from a ticket outside the selected quorum"}
		}
		if _, dup := seen[v.TicketID]; dup {
			return blockchain.RuleError{Code: blockchain.ErrDuplicateVote, Description: "duplicate PoS vote for the same ticket"}
		}
		if v.BlockHash != blockHash {
			return blockchain.RuleError{Code: blockchain.ErrInvalidTicketSignature, Description: "PoS vote does not reference this block"}
		}
		t, ok := p.tickets[v.TicketID]
		if !ok {
			return blockchain.RuleError{Code: blockchain.ErrInvalidTicketSignature, Description: "vote references unknown ticket"}
		}
		stakerKey, err := primitives.ParsePublicKey(t.StakerPubKey)
		if err != nil {
			return blockchain.RuleError{Code: blockchain.ErrInvalidTicketSignature, Description: "ticket staker pubkey malformed"}
		}
		sig, err := primitives.ParseSignature(v.Signature)
		if err != nil || !stakerKey.Verify(blockHash, sig) {
			return blockchain.RuleError{Code: blockchain.ErrInvalidTicketSignature, Description: "PoS vote signature does not verify"}
		}
		seen[v.TicketID] = struct{}{}
	}

	// A young chain whose live pool cannot yet fill a full quorum is not
	// required to produce votes it has no tickets for.
	required := p.params.MinPoSVotesPerBlock
	if len(quorum) < required {
		required = len(quorum)
	}
	if len(seen) < required {
		return blockchain.RuleError{Code: blockchain.ErrInsufficientPoSVotes, Description: "fewer than the minimum required PoS votes"}
	}

	for id := range seen {
		t := p.tickets[id]
		t.Status = blockchain.TicketVoted
		t.TransitionHeight = height
		p.dirty[id] = struct{}{}
	}
	return nil
}

// CreditVoters adds the per-voter reward share earned by this block's
// voting tickets; the credit is minted when the ticket is redeemed.
func (p *Pool) CreditVoters(ids []chainhash.Hash, share int64) {
	for _, id := range ids {
		t, ok := p.tickets[id]
		if !ok {
			continue
		}
		t.RewardCredit += share
		p.dirty[id] = struct{}{}
	}
}

// Redeem records a confirmed redemption of a voted or expired ticket: its
// single terminal transition, after which it can never be spent again.
func (p *Pool) Redeem(id chainhash.Hash) {
	t, ok := p.tickets[id]
	if !ok {
		return
	}
	t.Status = blockchain.TicketRevoked
	p.dirty[id] = struct{}{}
}
