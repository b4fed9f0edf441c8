// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/database"
	"github.com/solidus-chain/solidusd/governance"
	"github.com/solidus-chain/solidusd/masternode"
	"github.com/solidus-chain/solidusd/peg"
	"github.com/solidus-chain/solidusd/peg/fraudproof"
	"github.com/solidus-chain/solidusd/primitives"
	"github.com/solidus-chain/solidusd/stake"
	"github.com/solidus-chain/solidusd/txscript"
	"github.com/solidus-chain/solidusd/wire"
)

// harness drives a simnet chain through scripted block sequences. Every
// key it generates is deterministic so two harnesses built from the same
// seed produce byte-identical genesis blocks and can exchange blocks
// (used by the reorganization scenarios).
type harness struct {
	t      *testing.T
	params *chaincfg.Params
	chain  *blockchain.BlockChain

	pool   *stake.Pool
	mnreg  *masternode.Registry
	gov    *governance.Registry
	pegMgr *peg.Manager
	fraud  *fraudproof.Manager

	keyA    *primitives.PrivateKey
	scriptA []byte

	genesis *wire.Block

	// headers tracks every block this harness has built or accepted so
	// parents can be resolved when extending side chains.
	headers map[chainhash.Hash]*wire.BlockHeader

	// stakerKeys maps ticket ids to the keys that may vote with them.
	stakerKeys map[chainhash.Hash]*primitives.PrivateKey

	now int64
}

// fixedKey derives a deterministic private key from a single seed byte.
func fixedKey(t *testing.T, seed byte) *primitives.PrivateKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = seed ^ byte(i*7+1)
	}
	key, err := primitives.PrivKeyFromBytes(raw[:])
	if err != nil {
		t.Fatalf("fixedKey(%d): %v", seed, err)
	}
	return key
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDB(t, database.NewMemDB())
}

func newHarnessWithDB(t *testing.T, db database.DB) *harness {
	t.Helper()
	params := chaincfg.SimNetParams()

	h := &harness{
		t:          t,
		params:     params,
		pool:       stake.New(params),
		mnreg:      masternode.New(params),
		gov:        governance.New(params),
		pegMgr:     peg.New(params),
		headers:    make(map[chainhash.Hash]*wire.BlockHeader),
		stakerKeys: make(map[chainhash.Hash]*primitives.PrivateKey),
	}
	h.fraud = fraudproof.New(params, h.pegMgr)
	h.keyA = fixedKey(t, 0xA1)
	h.scriptA = txscript.PayToPubKeyHash(h.keyA.PubKey().Hash160())
	h.genesis = blockchain.GenesisBlock(params, h.scriptA)
	h.now = params.GenesisTime.Unix() + 100000

	chain, err := blockchain.New(&blockchain.Config{
		Params:  params,
		DB:      db,
		Genesis: h.genesis,
		Registries: &blockchain.RegistryBundle{
			Tickets:     h.pool,
			Masternodes: h.mnreg,
			Governance:  h.gov,
			Peg:         h.pegMgr,
			FraudProofs: h.fraud,
		},
		TimeSource: func() time.Time { return time.Unix(h.now, 0) },
	})
	if err != nil {
		t.Fatalf("blockchain.New: %v", err)
	}
	h.chain = chain
	gh := h.genesis.Header
	h.headers[gh.Hash()] = &gh
	return h
}

// genesisOutpoint is the genesis coinbase's single output.
func (h *harness) genesisOutpoint() wire.OutPoint {
	return wire.OutPoint{Hash: h.genesis.Transactions[0].Hash(), Index: 0}
}

func ticketCommitment(ids []chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, len(ids)*chainhash.HashSize)
	for _, id := range ids {
		buf = append(buf, id[:]...)
	}
	return chainhash.HashH(buf)
}

func pushData(script []byte, data ...[]byte) []byte {
	for _, d := range data {
		script = append(script, byte(len(d)))
		script = append(script, d...)
	}
	return script
}

// signP2PKH fills every input's signature script with key's signature over
// the transaction's sig hash.
func signP2PKH(tx *wire.MsgTx, key *primitives.PrivateKey) {
	sigHash := tx.SigHash()
	sig := key.Sign(sigHash)
	for _, in := range tx.TxIn {
		in.SignatureScript = pushData(nil, sig.Serialize(), key.PubKey().SerializeCompressed())
	}
}

// spendTx builds a standard transaction spending op (owned by key) into
// the given output values/scripts; the difference is the fee.
func (h *harness) spendTx(op wire.OutPoint, key *primitives.PrivateKey, values []int64, scripts [][]byte) *wire.MsgTx {
	tx := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxStandard,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: op, Sequence: 0xffffffff}},
	}
	for i, v := range values {
		tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: v, PkScript: scripts[i]})
	}
	signP2PKH(tx, key)
	return tx
}

// makeVotes produces exactly the minimum required PoS votes for the next
// block, signed by the quorum tickets' staker keys over the parent hash.
func (h *harness) makeVotes(parentHash chainhash.Hash, quorum []chainhash.Hash) []*wire.PoSVote {
	required := h.params.MinPoSVotesPerBlock
	if len(quorum) < required {
		required = len(quorum)
	}
	votes := make([]*wire.PoSVote, 0, required)
	for _, id := range quorum {
		if len(votes) == required {
			break
		}
		key, ok := h.stakerKeys[id]
		if !ok {
			h.t.Fatalf("no staker key for quorum ticket %v", id)
		}
		sig := key.Sign(parentHash)
		votes = append(votes, &wire.PoSVote{
			TicketID:  id,
			BlockHash: parentHash,
			Signature: sig.Serialize(),
		})
	}
	return votes
}

// buildBlock assembles, roots and mines a block extending the current tip
// with the given non-coinbase transactions and their total fees.
func (h *harness) buildBlock(txs []*wire.MsgTx, fees int64) *wire.Block {
	h.t.Helper()
	best := h.chain.BestSnapshot()
	parentHdr, ok := h.headers[best.Hash]
	if !ok {
		h.t.Fatalf("no header recorded for tip %v", best.Hash)
	}
	height := best.Height + 1

	quorum := h.chain.NextQuorum()
	votes := h.makeVotes(best.Hash, quorum)

	split := blockchain.CalcRewardSplit(height, fees, len(votes), h.params)
	coinbase := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxCoinbase,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.ZeroHash, Index: wire.NullIndex},
			SignatureScript:  []byte{byte(height), byte(height >> 8)},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{Value: split.PoWMinerShare, PkScript: h.scriptA}},
	}
	all := append([]*wire.MsgTx{coinbase}, txs...)

	bits := h.chain.NextRequiredDifficulty()
	block := &wire.Block{
		Header: wire.BlockHeader{
			Version:        wire.BlockVersion,
			PrevHash:       best.Hash,
			MerkleRoot:     wire.MerkleRoot(all),
			Timestamp:      parentHdr.Timestamp + 10,
			Bits:           bits,
			Height:         height,
			CumulativeWork: blockchain.AddWork(parentHdr.CumulativeWork, bits),
			TicketHash:     ticketCommitment(quorum),
		},
		Transactions: all,
		Votes:        votes,
	}

	root, err := h.chain.PrepareStateRoot(block)
	if err != nil {
		h.t.Fatalf("PrepareStateRoot(height %d): %v", height, err)
	}
	block.Header.StateRoot = root
	h.mine(block)
	return block
}

func (h *harness) mine(block *wire.Block) {
	for !blockchain.CheckProofOfWork(&block.Header) {
		block.Header.Nonce++
	}
}

// accept processes block and requires it to land on the main chain.
func (h *harness) accept(block *wire.Block) {
	h.t.Helper()
	onMain, err := h.chain.ProcessBlock(block)
	if err != nil {
		h.t.Fatalf("ProcessBlock(height %d): %v", block.Header.Height, err)
	}
	if !onMain {
		h.t.Fatalf("block at height %d did not extend the main chain", block.Header.Height)
	}
	hdr := block.Header
	h.headers[hdr.Hash()] = &hdr
}

// extend builds and accepts one block.
func (h *harness) extend(txs []*wire.MsgTx, fees int64) *wire.Block {
	h.t.Helper()
	block := h.buildBlock(txs, fees)
	h.accept(block)
	return block
}

// extendEmpty builds and accepts n coinbase-only blocks.
func (h *harness) extendEmpty(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.extend(nil, 0)
	}
}

func assertRuleError(t *testing.T, err error, want blockchain.ErrorCode) {
	t.Helper()
	var rerr blockchain.RuleError
	if !errors.As(err, &rerr) {
		t.Fatalf("error is not a RuleError: %v", spew.Sdump(err))
	}
	if rerr.Code != want {
		t.Fatalf("got rule error %v (%q), want %v", rerr.Code, rerr.Description, want)
	}
}

const (
	coin   = int64(1_000_000_000)
	stdFee = int64(1_000_000)
)

// TestS1SingleBlockHappyPath covers scenario S1: once the genesis coinbase
// matures, a block carrying a standard A->B payment is accepted and both
// the payment and change outputs appear in the UTXO set.
func TestS1SingleBlockHappyPath(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)
	workBefore := h.chain.BestSnapshot().CumulativeWork

	keyB := fixedKey(t, 0xB2)
	scriptB := txscript.PayToPubKeyHash(keyB.PubKey().Hash160())
	send := 10 * coin
	change := 50*coin - send - stdFee
	tx := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{send, change}, [][]byte{scriptB, h.scriptA})
	h.extend([]*wire.MsgTx{tx}, stdFee)

	best := h.chain.BestSnapshot()
	if best.Height != 3 {
		t.Fatalf("tip height = %d, want 3", best.Height)
	}
	txHash := tx.Hash()
	if e, ok := h.chain.FetchUtxoEntry(wire.OutPoint{Hash: txHash, Index: 0}); !ok || e.Value != send {
		t.Fatalf("B's output missing or wrong value: %v", spew.Sdump(e))
	}
	if e, ok := h.chain.FetchUtxoEntry(wire.OutPoint{Hash: txHash, Index: 1}); !ok || e.Value != change {
		t.Fatalf("A's change output missing or wrong value: %v", spew.Sdump(e))
	}
	if _, ok := h.chain.FetchUtxoEntry(h.genesisOutpoint()); ok {
		t.Fatal("spent genesis output still in the UTXO set")
	}
	workAfter := blockchain.CumulativeWorkBig(best.CumulativeWork)
	if workAfter.Cmp(blockchain.CumulativeWorkBig(workBefore)) <= 0 {
		t.Fatal("cumulative work did not increase")
	}
}

// TestS2CoinbaseMaturity covers scenario S2: spending a coinbase before it
// matures fails with ImmatureCoinbase; after maturity it succeeds.
func TestS2CoinbaseMaturity(t *testing.T) {
	h := newHarness(t)

	tx := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{50*coin - stdFee}, [][]byte{h.scriptA})
	early := h.buildBlockUnchecked([]*wire.MsgTx{tx}, stdFee)
	_, err := h.chain.ProcessBlock(early)
	assertRuleError(t, err, blockchain.ErrImmatureCoinbase)

	// One more block brings the coinbase to maturity depth; the same
	// spend is then accepted.
	h.extendEmpty(1)
	h.extend([]*wire.MsgTx{tx}, stdFee)
}

// buildBlockUnchecked assembles a block whose state root is not expected to
// validate: the transactions themselves may be invalid, so the root of the
// honest application cannot be computed. The recorded root is the parent's
// (any value works, since validation fails before the root comparison).
func (h *harness) buildBlockUnchecked(txs []*wire.MsgTx, fees int64) *wire.Block {
	h.t.Helper()
	best := h.chain.BestSnapshot()
	parentHdr := h.headers[best.Hash]
	height := best.Height + 1
	quorum := h.chain.NextQuorum()
	votes := h.makeVotes(best.Hash, quorum)
	split := blockchain.CalcRewardSplit(height, fees, len(votes), h.params)
	coinbase := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxCoinbase,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.ZeroHash, Index: wire.NullIndex},
			SignatureScript:  []byte{byte(height)},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{Value: split.PoWMinerShare, PkScript: h.scriptA}},
	}
	all := append([]*wire.MsgTx{coinbase}, txs...)
	bits := h.chain.NextRequiredDifficulty()
	block := &wire.Block{
		Header: wire.BlockHeader{
			Version:        wire.BlockVersion,
			PrevHash:       best.Hash,
			MerkleRoot:     wire.MerkleRoot(all),
			StateRoot:      best.StateRoot,
			Timestamp:      parentHdr.Timestamp + 10,
			Bits:           bits,
			Height:         height,
			CumulativeWork: blockchain.AddWork(parentHdr.CumulativeWork, bits),
			TicketHash:     ticketCommitment(quorum),
		},
		Transactions: all,
		Votes:        votes,
	}
	h.mine(block)
	return block
}

// TestS3DoubleSpendWithinBlock covers scenario S3: two transactions in one
// block spending the same outpoint are rejected with DoubleSpend and no
// state is mutated.
func TestS3DoubleSpendWithinBlock(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)
	before := h.chain.BestSnapshot()

	keyB := fixedKey(t, 0xB2)
	scriptB := txscript.PayToPubKeyHash(keyB.PubKey().Hash160())
	tx1 := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{10 * coin, 40*coin - 10*coin - stdFee}, [][]byte{scriptB, h.scriptA})
	tx2 := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{20 * coin, 50*coin - 20*coin - stdFee}, [][]byte{scriptB, h.scriptA})

	bad := h.buildBlockUnchecked([]*wire.MsgTx{tx1, tx2}, 2*stdFee)
	_, err := h.chain.ProcessBlock(bad)
	assertRuleError(t, err, blockchain.ErrDoubleSpend)

	after := h.chain.BestSnapshot()
	if after.Hash != before.Hash || after.StateRoot != before.StateRoot {
		t.Fatalf("rejected block mutated state:\nbefore %s\nafter %s",
			spew.Sdump(before), spew.Sdump(after))
	}
	if _, ok := h.chain.FetchUtxoEntry(h.genesisOutpoint()); !ok {
		t.Fatal("genesis output missing after rejected double spend")
	}
}

// buyTicket builds a ticket purchase funded by op, registering the staker
// key with the harness, and returns the purchase tx and ticket id.
func (h *harness) buyTicket(op wire.OutPoint, fundingKey *primitives.PrivateKey, stakerSeed byte) (*wire.MsgTx, chainhash.Hash) {
	stakerKey := fixedKey(h.t, stakerSeed)
	tx := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxTicketPurchase,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: op, Sequence: 0xffffffff}},
		TxOut: []*wire.TxOut{{
			Value:    h.pool.CurrentTicketPrice(),
			PkScript: txscript.PayToPubKeyHash(stakerKey.PubKey().Hash160()),
		}},
		TicketPurchase: &wire.TicketPurchasePayload{
			StakerPubKey: stakerKey.PubKey().SerializeCompressed(),
		},
	}
	signP2PKH(tx, fundingKey)
	id := blockchain.TicketID(tx.Hash(), 0)
	h.stakerKeys[id] = stakerKey
	return tx, id
}

// TestS4TicketLifecycle covers scenario S4: purchase, maturation, lottery
// selection, voting, and redemption minting stake plus the voter reward.
func TestS4TicketLifecycle(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)

	// Height 3: buy one ticket; the rest of the genesis output is fee.
	purchase, ticketID := h.buyTicket(h.genesisOutpoint(), h.keyA, 0x51)
	purchaseFee := 50*coin - h.pool.CurrentTicketPrice()
	h.extend([]*wire.MsgTx{purchase}, purchaseFee)

	info, ok := h.pool.Ticket(ticketID)
	if !ok || info.State != blockchain.TicketPending {
		t.Fatalf("ticket not pending after purchase: %v", spew.Sdump(info))
	}

	// Heights 4, 5: the ticket matures during block 5 (3 + maturity 2).
	h.extendEmpty(2)
	if info, _ := h.pool.Ticket(ticketID); info.State != blockchain.TicketLive {
		t.Fatalf("ticket not live after maturity: state %d", info.State)
	}

	// Height 6: the lone live ticket must be the whole quorum; its vote
	// transitions it to Voted and credits the PoS share.
	quorum := h.chain.NextQuorum()
	if len(quorum) != 1 || quorum[0] != ticketID {
		t.Fatalf("quorum = %v, want [%v]", quorum, ticketID)
	}
	h.extendEmpty(1)
	info, _ = h.pool.Ticket(ticketID)
	if info.State != blockchain.TicketVoted {
		t.Fatalf("ticket state = %d, want voted", info.State)
	}
	wantCredit := blockchain.CalcRewardSplit(6, 0, 1, h.params).PerVoterShare
	if info.RewardCredit != wantCredit {
		t.Fatalf("reward credit = %d, want %d", info.RewardCredit, wantCredit)
	}

	// Height 7: the redemption window runs from the voting height (6),
	// so one more block must pass before the ticket can be redeemed.
	h.extendEmpty(1)

	// Height 8: redeem; the redemption mints stake + reward.
	stakerKey := h.stakerKeys[ticketID]
	redeemValue := h.params.TicketPriceInitial + wantCredit
	redeem := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxTicketRedemption,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Hash: purchase.Hash(), Index: 0},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{
			Value:    redeemValue,
			PkScript: txscript.PayToPubKeyHash(stakerKey.PubKey().Hash160()),
		}},
		TicketRedemption: &wire.TicketRedemptionPayload{TicketID: ticketID},
	}
	redeem.TxIn[0].SignatureScript = stakerKey.Sign(redeem.SigHash()).Serialize()
	h.extend([]*wire.MsgTx{redeem}, 0)

	if info, _ := h.pool.Ticket(ticketID); info.State != blockchain.TicketRevoked {
		t.Fatalf("redeemed ticket state = %d, want revoked", info.State)
	}
	if e, ok := h.chain.FetchUtxoEntry(wire.OutPoint{Hash: redeem.Hash(), Index: 0}); !ok || e.Value != redeemValue {
		t.Fatalf("redemption output missing or wrong value: %v", spew.Sdump(e))
	}
}

// TestS5QuorumMismatch covers scenario S5: a header whose ticket_hash does
// not commit to the deterministically selected quorum is rejected.
func TestS5QuorumMismatch(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)
	purchase, _ := h.buyTicket(h.genesisOutpoint(), h.keyA, 0x52)
	h.extend([]*wire.MsgTx{purchase}, 50*coin-h.pool.CurrentTicketPrice())
	h.extendEmpty(2)

	block := h.buildBlock(nil, 0)
	block.Header.TicketHash = chainhash.HashH([]byte("not the quorum"))
	h.mine(block)
	_, err := h.chain.ProcessBlock(block)
	assertRuleError(t, err, blockchain.ErrInvalidPoSQuorum)
}

// registerMasternode builds a register transaction locking the collateral
// in its first output, funded by op.
func (h *harness) registerMasternode(op wire.OutPoint, fundingValue int64, operatorSeed byte, addr string) (*wire.MsgTx, chainhash.Hash, *primitives.PrivateKey) {
	opKey := fixedKey(h.t, operatorSeed)
	var payout [20]byte
	copy(payout[:], h.keyA.PubKey().Hash160())
	tx := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxMasternodeRegister,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: op, Sequence: 0xffffffff}},
		TxOut: []*wire.TxOut{{
			Value:    h.params.MasternodeCollateral,
			PkScript: h.scriptA,
		}},
		MasternodeRegister: &wire.MasternodeRegisterPayload{
			OperatorPubKey: opKey.PubKey().SerializeCompressed(),
			PayoutHash:     payout,
			NetworkAddress: addr,
		},
	}
	signP2PKH(tx, h.keyA)
	return tx, tx.Hash(), opKey
}

// TestS6MasternodePoSeSlash covers scenario S6: repeated missed PoSe
// challenges demote a masternode to probation; a slash transaction with
// enough witness signatures then bans and removes it.
func TestS6MasternodePoSeSlash(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)

	// Split the genesis funds into collateral-sized outputs.
	fund := h.params.MasternodeCollateral + 100_000_000
	splitVals := []int64{fund, fund, coin}
	splitScripts := [][]byte{h.scriptA, h.scriptA, h.scriptA}
	change := 50*coin - fund - fund - coin - stdFee
	splitVals = append(splitVals, change)
	splitScripts = append(splitScripts, h.scriptA)
	split := h.spendTx(h.genesisOutpoint(), h.keyA, splitVals, splitScripts)
	h.extend([]*wire.MsgTx{split}, stdFee)
	splitHash := split.Hash()

	reg1, mn1, _ := h.registerMasternode(wire.OutPoint{Hash: splitHash, Index: 0}, fund, 0x61, "198.51.100.1:9555")
	reg2, mn2, _ := h.registerMasternode(wire.OutPoint{Hash: splitHash, Index: 1}, fund, 0x62, "198.51.100.2:9555")
	h.extend([]*wire.MsgTx{reg1, reg2}, 2*(fund-h.params.MasternodeCollateral))

	// Probation ends two blocks after registration; then deterministic
	// challenge rounds run every PoSeChallengePeriod blocks and nobody
	// answers. Extend until one masternode has been demoted.
	var victim chainhash.Hash
	for i := 0; i < 60; i++ {
		h.extendEmpty(1)
		for _, id := range []chainhash.Hash{mn1, mn2} {
			if info, ok := h.mnreg.Masternode(id); ok && info.Status == blockchain.MasternodeProbation {
				victim = id
				break
			}
		}
		if victim != (chainhash.Hash{}) {
			break
		}
	}
	if victim == (chainhash.Hash{}) {
		t.Fatal("no masternode reached probation after 60 blocks of missed challenges")
	}

	slash := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxMasternodeSlash,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 2}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: coin - stdFee, PkScript: h.scriptA}},
		MasternodeSlash: &wire.MasternodeSlashPayload{
			MasternodeID:    victim,
			ProofType:       0,
			WitnessSigs:     [][]byte{[]byte("witness-0"), []byte("witness-1")},
			EvidencePayload: []byte("missed challenges"),
		},
	}
	signP2PKH(slash, h.keyA)
	h.extend([]*wire.MsgTx{slash}, stdFee)

	if _, ok := h.mnreg.Masternode(victim); ok {
		t.Fatal("slashed masternode still present in the registry")
	}
}

// TestS7GovernanceParameterChange covers scenario S7: a parameter proposal
// passes both quorums and the parameter is applied exactly when the block
// crossing the activation height connects.
func TestS7GovernanceParameterChange(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)

	// Height 3: fan the genesis output into funding outputs: six ticket
	// funds, one collateral fund, one proposal fund, two vote-fee funds.
	ticketFund := h.params.TicketPriceInitial + 100_000_000
	mnFund := h.params.MasternodeCollateral + 100_000_000
	propFund := h.params.ProposalStakeAmount + 500_000_000
	vals := []int64{ticketFund, ticketFund, ticketFund, ticketFund, ticketFund, ticketFund, mnFund, propFund, coin, coin}
	scripts := make([][]byte, len(vals))
	total := int64(0)
	for i := range vals {
		scripts[i] = h.scriptA
		total += vals[i]
	}
	vals = append(vals, 50*coin-total-stdFee)
	scripts = append(scripts, h.scriptA)
	split := h.spendTx(h.genesisOutpoint(), h.keyA, vals, scripts)
	h.extend([]*wire.MsgTx{split}, stdFee)
	splitHash := split.Hash()

	// Height 4: six ticket purchases plus a masternode registration.
	txs := make([]*wire.MsgTx, 0, 7)
	var fees int64
	var firstTicket chainhash.Hash
	for i := 0; i < 6; i++ {
		purchase, id := h.buyTicket(wire.OutPoint{Hash: splitHash, Index: uint32(i)}, h.keyA, byte(0x70+i))
		if i == 0 {
			firstTicket = id
		}
		txs = append(txs, purchase)
		fees += ticketFund - h.params.TicketPriceInitial
	}
	regTx, mnID, _ := h.registerMasternode(wire.OutPoint{Hash: splitHash, Index: 6}, mnFund, 0x7a, "198.51.100.7:9555")
	txs = append(txs, regTx)
	fees += mnFund - h.params.MasternodeCollateral
	h.extend(txs, fees)

	// Height 5: submit the proposal. Voting window is heights 7..11.
	proposalID := chainhash.HashH([]byte("raise halving interval"))
	newValue := make([]byte, 8)
	binary.LittleEndian.PutUint64(newValue, 300_000)
	proposal := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxGovernanceProposal,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 7}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: h.params.ProposalStakeAmount, PkScript: h.scriptA}},
		GovernanceProposal: &wire.GovernanceProposalPayload{
			ProposalID:     proposalID,
			ProposerPubKey: h.keyA.PubKey().SerializeCompressed(),
			ProposalType:   0,
			StartHeight:    7,
			EndHeight:      11,
			ParamName:      "HalvingInterval",
			NewValue:       newValue,
		},
	}
	proposal.GovernanceProposal.ProposerSignature = h.keyA.Sign(proposal.SigHash()).Serialize()
	signP2PKH(proposal, h.keyA)
	h.extend([]*wire.MsgTx{proposal}, propFund-h.params.ProposalStakeAmount)

	// Height 6: tickets mature, masternode activates.
	h.extendEmpty(1)

	// Height 7: one ticket vote and one masternode vote, both approving.
	ticketVote := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxGovernanceVote,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 8}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: coin - stdFee, PkScript: h.scriptA}},
		GovernanceVote: &wire.GovernanceVotePayload{
			ProposalID: proposalID,
			VoterKind:  wire.VoterTicket,
			VoterID:    firstTicket,
			Approve:    true,
		},
	}
	ticketVote.GovernanceVote.VoterSig = h.stakerKeys[firstTicket].Sign(ticketVote.SigHash()).Serialize()
	signP2PKH(ticketVote, h.keyA)

	mnVote := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxGovernanceVote,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 9}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: coin - stdFee, PkScript: h.scriptA}},
		GovernanceVote: &wire.GovernanceVotePayload{
			ProposalID: proposalID,
			VoterKind:  wire.VoterMasternode,
			VoterID:    mnID,
			Approve:    true,
		},
	}
	signP2PKH(mnVote, h.keyA)
	h.extend([]*wire.MsgTx{ticketVote, mnVote}, 2*stdFee)

	// Heights 8..11: the tally runs when the block at the end height
	// connects.
	h.extendEmpty(4)
	if outcome, ok := h.gov.ProposalOutcome(proposalID); !ok || outcome != governance.OutcomePassed {
		t.Fatalf("proposal outcome = %v, want passed", outcome)
	}
	if h.params.HalvingInterval == 300_000 {
		t.Fatal("parameter applied before the activation height")
	}

	// Heights 12..15: activation fires with the block crossing
	// end_height + activation_delay = 15.
	h.extendEmpty(4)
	if outcome, _ := h.gov.ProposalOutcome(proposalID); outcome != governance.OutcomeActivated {
		t.Fatalf("proposal outcome = %v, want activated", outcome)
	}
	if h.params.HalvingInterval != 300_000 {
		t.Fatalf("HalvingInterval = %d, want 300000", h.params.HalvingInterval)
	}
}

// federation builds a deterministic 3-member federation with threshold 2
// and installs it for the epoch starting at height 0.
func (h *harness) federation() []*primitives.PrivateKey {
	keys := []*primitives.PrivateKey{fixedKey(h.t, 0xF0), fixedKey(h.t, 0xF1), fixedKey(h.t, 0xF2)}
	members := make([]*primitives.PublicKey, len(keys))
	for i, k := range keys {
		members[i] = k.PubKey()
	}
	h.pegMgr.SetFederation(0, &primitives.ThresholdPublicKey{
		Members: members,
		N:       uint32(len(keys)),
		T:       h.params.FederationThreshold,
	})
	return keys
}

func fedShares(keys []*primitives.PrivateKey, pegID chainhash.Hash, n int) []wire.FederationSigShare {
	shares := make([]wire.FederationSigShare, 0, n)
	for i := 0; i < n; i++ {
		sig := keys[i].Sign(pegID)
		shares = append(shares, wire.FederationSigShare{
			MemberIndex: uint32(i),
			PubKey:      keys[i].PubKey().SerializeCompressed(),
			Signature:   sig.Serialize(),
		})
	}
	return shares
}

// TestS8PegRoundTrip covers scenario S8: a peg-in completes under the
// federation threshold, and the mirrored peg-out releases the amount minus
// the peg fee.
func TestS8PegRoundTrip(t *testing.T) {
	h := newHarness(t)
	fedKeys := h.federation()
	h.extendEmpty(2)

	split := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{coin, coin, 48*coin - stdFee}, [][]byte{h.scriptA, h.scriptA, h.scriptA})
	h.extend([]*wire.MsgTx{split}, stdFee)
	splitHash := split.Hash()

	pegInID := chainhash.HashH([]byte("peg-in #1"))
	pegIn := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxPegIn,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 0}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: coin - stdFee, PkScript: h.scriptA}},
		PegIn: &wire.PegInPayload{
			PegID:               pegInID,
			SourceChainID:       chainhash.HashH([]byte("mainchain")),
			DestChainID:         chainhash.HashH([]byte("sidechain")),
			AssetID:             chainhash.HashH([]byte("SLD")),
			Amount:              coin,
			SidechainRecipient:  []byte("side-addr-1"),
			InclusionProof:      []byte("spv inclusion proof"),
			FederationSigShares: fedShares(fedKeys, pegInID, 2),
		},
	}
	signP2PKH(pegIn, h.keyA)
	h.extend([]*wire.MsgTx{pegIn}, stdFee)

	if info, ok := h.pegMgr.Peg(pegInID); !ok || info.Status != peg.StatusCompleted {
		t.Fatalf("peg-in status = %v, want completed", spew.Sdump(info))
	}

	// Peg-out: the envelope must release amount minus the peg fee.
	pegOutID := chainhash.HashH([]byte("peg-out #1"))
	fee := coin * h.params.PegFeeRatePPM / 1_000_000
	release := coin - fee
	keyB := fixedKey(t, 0xB3)
	scriptB := txscript.PayToPubKeyHash(keyB.PubKey().Hash160())
	pegOut := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxPegOut,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 2}, Sequence: 0xffffffff}},
		TxOut: []*wire.TxOut{
			{Value: release, PkScript: scriptB},
			{Value: 48*coin - stdFee - release - stdFee, PkScript: h.scriptA},
		},
		PegOut: &wire.PegOutPayload{
			PegID:               pegOutID,
			SourceChainID:       chainhash.HashH([]byte("sidechain")),
			DestChainID:         chainhash.HashH([]byte("mainchain")),
			AssetID:             chainhash.HashH([]byte("SLD")),
			Amount:              coin,
			MainchainRecipient:  []byte("main-addr-1"),
			BurnProof:           []byte("sidechain burn proof"),
			FederationSigShares: fedShares(fedKeys, pegOutID, 2),
		},
	}
	signP2PKH(pegOut, h.keyA)
	h.extend([]*wire.MsgTx{pegOut}, stdFee)

	if info, ok := h.pegMgr.Peg(pegOutID); !ok || info.Status != peg.StatusCompleted {
		t.Fatalf("peg-out status = %v, want completed", spew.Sdump(info))
	}
	if e, ok := h.chain.FetchUtxoEntry(wire.OutPoint{Hash: pegOut.Hash(), Index: 0}); !ok || e.Value != release {
		t.Fatalf("peg-out release output missing or wrong value (want %d): %v", release, spew.Sdump(e))
	}
}

// TestFraudChallengeLifecycle drives the fraud-proof loop through real
// blocks: a completed peg-in is challenged by a bonded TxFraudChallenge,
// and the TxFraudResponse carrying the federation's shares triggers the
// verdict, which re-executes the operation and clears the accused.
func TestFraudChallengeLifecycle(t *testing.T) {
	h := newHarness(t)
	fedKeys := h.federation()
	h.extendEmpty(2)

	// Fund the peg-in, the challenge bond, and the response fee.
	bond := h.params.FraudProofBondAmount
	split := h.spendTx(h.genesisOutpoint(), h.keyA,
		[]int64{coin, bond + coin, coin, 47*coin - bond - stdFee},
		[][]byte{h.scriptA, h.scriptA, h.scriptA, h.scriptA})
	h.extend([]*wire.MsgTx{split}, stdFee)
	splitHash := split.Hash()

	pegInID := chainhash.HashH([]byte("challenged peg-in"))
	pegIn := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxPegIn,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 0}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: coin - stdFee, PkScript: h.scriptA}},
		PegIn: &wire.PegInPayload{
			PegID:               pegInID,
			SourceChainID:       chainhash.HashH([]byte("mainchain")),
			DestChainID:         chainhash.HashH([]byte("sidechain")),
			AssetID:             chainhash.HashH([]byte("SLD")),
			Amount:              coin,
			SidechainRecipient:  []byte("side-addr-9"),
			InclusionProof:      []byte("spv inclusion proof"),
			FederationSigShares: fedShares(fedKeys, pegInID, 2),
		},
	}
	signP2PKH(pegIn, h.keyA)
	h.extend([]*wire.MsgTx{pegIn}, stdFee)

	// File the challenge. The claimed pre-state must name the recorded
	// operation's commitment or validation rejects it.
	preState, ok := h.pegMgr.PreStateCommitment(pegInID)
	if !ok {
		t.Fatal("no pre-state commitment for the completed peg-in")
	}
	challengeID := chainhash.HashH([]byte("challenge #1"))
	challenge := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxFraudChallenge,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 1}, Sequence: 0xffffffff}},
		TxOut: []*wire.TxOut{
			{Value: bond, PkScript: h.scriptA},
			{Value: coin - stdFee, PkScript: h.scriptA},
		},
		FraudChallenge: &wire.FraudChallengePayload{
			ChallengeID:     challengeID,
			TargetPegID:     pegInID,
			ChallengerID:    chainhash.HashH([]byte("challenger")),
			ClaimedPreState: preState,
			Evidence:        []byte("alleged invalid completion"),
		},
	}
	signP2PKH(challenge, h.keyA)
	h.extend([]*wire.MsgTx{challenge}, stdFee)

	if info, ok := h.fraud.Challenge(challengeID); !ok || info.State != fraudproof.StateOpen {
		t.Fatalf("challenge state = %v, want open", spew.Sdump(info))
	}

	// The response re-presents the federation shares; the verdict
	// re-executes the operation, which re-validates, clearing the
	// accused and forfeiting the challenger's bond.
	response := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxFraudResponse,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: wire.OutPoint{Hash: splitHash, Index: 2}, Sequence: 0xffffffff}},
		TxOut:   []*wire.TxOut{{Value: coin - stdFee, PkScript: h.scriptA}},
		FraudResponse: &wire.FraudResponsePayload{
			ChallengeID:         challengeID,
			ResponseEvidence:    []byte("operation re-validates"),
			FederationSigShares: fedShares(fedKeys, pegInID, 2),
		},
	}
	signP2PKH(response, h.keyA)
	h.extend([]*wire.MsgTx{response}, stdFee)

	if info, _ := h.fraud.Challenge(challengeID); info.State != fraudproof.StateDisproven {
		t.Fatalf("challenge state = %v, want disproven", info.State)
	}
}

// TestS9Reorg covers scenario S9: a heavier side branch reverts the old
// branch and applies the new one; transactions unique to the old branch
// vanish from the UTXO set.
func TestS9Reorg(t *testing.T) {
	hx := newHarness(t)

	// Branch X: one empty block, then a block spending the genesis
	// coinbase (mature at height 2).
	hx.extendEmpty(1)
	keyB := fixedKey(t, 0xB2)
	scriptB := txscript.PayToPubKeyHash(keyB.PubKey().Hash160())
	spend := hx.spendTx(hx.genesisOutpoint(), hx.keyA, []int64{10 * coin, 40*coin - stdFee}, [][]byte{scriptB, hx.scriptA})
	hx.extend([]*wire.MsgTx{spend}, stdFee)
	if _, ok := hx.chain.FetchUtxoEntry(wire.OutPoint{Hash: spend.Hash(), Index: 0}); !ok {
		t.Fatal("branch X payment missing before reorg")
	}

	// Branch Y: a mirror harness over the identical genesis produces a
	// longer branch of empty blocks. Nudging each block's timestamp
	// makes its block hashes distinct from branch X's.
	hy := newHarness(t)
	var branchY []*wire.Block
	for i := 0; i < 3; i++ {
		block := hy.buildBlock(nil, 0)
		block.Header.Timestamp += int64(i) + 1
		root, err := hy.chain.PrepareStateRoot(block)
		if err != nil {
			t.Fatalf("mirror PrepareStateRoot: %v", err)
		}
		block.Header.StateRoot = root
		hy.mine(block)
		hy.accept(block)
		branchY = append(branchY, block)
	}

	for _, block := range branchY {
		if _, err := hx.chain.ProcessBlock(block); err != nil {
			t.Fatalf("feeding branch Y block at height %d: %v", block.Header.Height, err)
		}
	}

	best := hx.chain.BestSnapshot()
	wantTip := branchY[2].Header.Hash()
	if best.Hash != wantTip || best.Height != 3 {
		t.Fatalf("tip = %v height %d, want %v height 3", best.Hash, best.Height, wantTip)
	}
	if _, ok := hx.chain.FetchUtxoEntry(wire.OutPoint{Hash: spend.Hash(), Index: 0}); ok {
		t.Fatal("branch X transaction survives in the UTXO set after reorg")
	}
	if _, ok := hx.chain.FetchUtxoEntry(hx.genesisOutpoint()); !ok {
		t.Fatal("genesis output not restored after reverting branch X")
	}
	if best.StateRoot != branchY[2].Header.StateRoot {
		t.Fatal("state root does not match the Y branch tip")
	}
}

// TestS10FinalityBound covers scenario S10: a reorganization that would
// revert a block with pos_finality_depth confirmations is rejected
// regardless of cumulative work.
func TestS10FinalityBound(t *testing.T) {
	hx := newHarness(t)
	hx.extendEmpty(8)
	tipBefore := hx.chain.BestSnapshot().Hash

	hy := newHarness(t)
	var lastErr error
	for i := 0; i < 10; i++ {
		block := hy.buildBlock(nil, 0)
		block.Header.Timestamp += int64(i) + 1
		root, err := hy.chain.PrepareStateRoot(block)
		if err != nil {
			t.Fatalf("mirror PrepareStateRoot: %v", err)
		}
		block.Header.StateRoot = root
		hy.mine(block)
		hy.accept(block)
		if _, err := hx.chain.ProcessBlock(block); err != nil {
			lastErr = err
		}
	}

	if lastErr == nil {
		t.Fatal("no reorganization attempt was rejected")
	}
	assertRuleError(t, lastErr, blockchain.ErrInvalidBlock)
	if got := hx.chain.BestSnapshot().Hash; got != tipBefore {
		t.Fatalf("tip moved across finality: %v, want %v", got, tipBefore)
	}
}

// TestPrepareStateRootIsSideEffectFree checks the apply/revert round trip:
// preparing a template's state root leaves the chain byte-identical, and
// processing the same block afterwards succeeds against that root.
func TestPrepareStateRootIsSideEffectFree(t *testing.T) {
	h := newHarness(t)
	h.extendEmpty(2)

	rootBefore := h.chain.StateRoot()
	bestBefore := h.chain.BestSnapshot()

	tx := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{50*coin - stdFee}, [][]byte{h.scriptA})
	block := h.buildBlock([]*wire.MsgTx{tx}, stdFee)

	if got := h.chain.StateRoot(); got != rootBefore {
		t.Fatalf("PrepareStateRoot mutated the trie: %v != %v", got, rootBefore)
	}
	if got := h.chain.BestSnapshot(); *got != *bestBefore {
		t.Fatalf("PrepareStateRoot mutated the tip:\n%s", spew.Sdump(got))
	}
	h.accept(block)
}

// TestRestartReplay rebuilds a chain from its persisted store and expects
// the identical tip and state root.
func TestRestartReplay(t *testing.T) {
	db := database.NewMemDB()
	h := newHarnessWithDB(t, db)
	h.extendEmpty(2)
	tx := h.spendTx(h.genesisOutpoint(), h.keyA, []int64{50*coin - stdFee}, [][]byte{h.scriptA})
	h.extend([]*wire.MsgTx{tx}, stdFee)
	want := h.chain.BestSnapshot()

	h2 := newHarnessWithDB(t, db)
	got := h2.chain.BestSnapshot()
	if got.Hash != want.Hash || got.Height != want.Height || got.StateRoot != want.StateRoot {
		t.Fatalf("replayed chain differs:\nwant %s\ngot %s", spew.Sdump(want), spew.Sdump(got))
	}
}
