// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/container/apbf"

	"github.com/solidus-chain/solidusd/blockchain/utxoset"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/database"
	"github.com/solidus-chain/solidusd/trie"
	"github.com/solidus-chain/solidusd/txscript"
	"github.com/solidus-chain/solidusd/wire"
)

const (
	// medianTimeBlocks is the number of previous blocks the past median
	// time is calculated over.
	medianTimeBlocks = 11

	// recentBlockFilterSize and recentBlockFilterFPRate size the
	// probabilistic recently-seen filter that fronts the authoritative
	// block index lookup.
	recentBlockFilterSize   = 3000
	recentBlockFilterFPRate = 0.0001

	// persistAttempts and persistBackoff bound the tier-2 retry policy
	// for a temporarily failing commit.
	persistAttempts = 5
	persistBackoff  = 50 * time.Millisecond
)

// ParamChange is one governance-activated consensus parameter update,
// applied by the block processor to its owned parameters atomically with
// the block whose height crossed the proposal's activation point.
type ParamChange struct {
	Name  string
	Value int64
}

// StakePool is the mutable view of the ticket pool the block
// processor drives, satisfied by stake.Pool.
type StakePool interface {
	TicketPool
	AddPurchase(id chainhash.Hash, stakerPubKey []byte, stakeAmount int64, purchaseHeight uint32)
	Redeem(id chainhash.Hash)
	AdvanceBlock(height uint32)
	SelectQuorum(prevBlockHash chainhash.Hash, height uint32) []chainhash.Hash
	ApplyVotes(votes []*wire.PoSVote, quorum []chainhash.Hash, blockHash chainhash.Hash, height uint32) error
	CreditVoters(ids []chainhash.Hash, share int64)
	LiveCount() int
	TakeDirty() []chainhash.Hash
	SerializeEntry(id chainhash.Hash) ([]byte, bool)
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// MasternodeManager is the mutable view of the masternode registry,
// satisfied by masternode.Registry.
type MasternodeManager interface {
	MasternodeRegistry
	Register(id chainhash.Hash, collateral wire.OutPoint, operatorPubKey []byte, payoutHash [20]byte, networkAddress string, height uint32)
	Slash(id chainhash.Hash)
	CollateralSpent(id chainhash.Hash)
	CollateralOf(id chainhash.Hash) (wire.OutPoint, bool)
	RunChallengeRound(prevBlockHash chainhash.Hash, height uint32) int
	ProcessTimeouts(height uint32)
	AdvanceBlock(height uint32)
	ActiveCount() int
	TakeDirty() []chainhash.Hash
	SerializeEntry(id chainhash.Hash) ([]byte, bool)
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// GovernanceManager is the mutable view of the governance registry,
// satisfied by governance.Registry.
type GovernanceManager interface {
	GovernanceRegistry
	AddProposal(id chainhash.Hash, proposerPubKey []byte, typ uint8, startHeight, endHeight uint32, paramName string, newValue []byte)
	ApplyVote(proposalID chainhash.Hash, kind wire.VoterKind, voterID chainhash.Hash, approve bool)
	Activate(id chainhash.Hash, height uint32) (ParamChange, bool, error)
	AdvanceBlock(height uint32, liveTickets, activeMasternodes int) []ParamChange
	TakeDirty() []chainhash.Hash
	SerializeEntry(id chainhash.Hash) ([]byte, bool)
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// PegManager is the mutable view of the two-way peg state machine,
// satisfied by peg.Manager.
type PegManager interface {
	PegRegistry
	ApplyPegIn(p *wire.PegInPayload, height uint32) (creditAmount int64, recipient []byte, err error)
	ApplyPegOut(p *wire.PegOutPayload, height uint32) (creditAmount int64, recipient []byte, err error)
	AdvanceBlock(height uint32)
	IsFederationEpochBoundary(height uint32) bool
	TakeDirty() []chainhash.Hash
	SerializeEntry(id chainhash.Hash) ([]byte, bool)
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// FraudProofManager is the mutable view of the fraud-proof lifecycle,
// satisfied by fraudproof.Manager.
type FraudProofManager interface {
	FraudProofRegistry
	Open(id, challengerID, targetPegID, claimedPreState chainhash.Hash, bond int64, evidence []byte, height uint32) error
	Respond(id chainhash.Hash, responseEvidence []byte, shares []wire.FederationSigShare, height uint32) error
	AdvanceBlock(height uint32)
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// RegistryBundle is the borrowed, mutable bundle of registries the block
// processor drives while a block is applied. The registries never
// reference each other or the processor back.
type RegistryBundle struct {
	Tickets     StakePool
	Masternodes MasternodeManager
	Governance  GovernanceManager
	Peg         PegManager
	FraudProofs FraudProofManager
}

// Config bundles everything New needs to assemble a working chain.
type Config struct {
	// Params are the consensus parameters. The chain takes ownership:
	// governance-activated changes mutate them in place.
	Params *chaincfg.Params

	// DB is the persisted store for headers, blocks and registry
	// entries. Tests typically pass database.NewMemDB().
	DB database.DB

	// Genesis is the chain's first block. When nil, a default genesis
	// paying the initial subsidy to an unspendable script is used.
	Genesis *wire.Block

	// Registries is the mutable registry bundle. It is required: New
	// rejects a nil bundle.
	Registries *RegistryBundle

	// SigCache is shared across repeated script verifications. When nil
	// a fresh cache is created.
	SigCache *txscript.SigCache

	// TimeSource returns the network-adjusted current time for header
	// timestamp validation. When nil, time.Now is used.
	TimeSource func() time.Time
}

// blockNode links a block into the in-memory index: every known header,
// main chain and side chains alike, gets one.
type blockNode struct {
	hash    chainhash.Hash
	parent  *blockNode
	height  uint32
	header  wire.BlockHeader
	block   *wire.Block
	workSum [16]byte

	// inMainChain marks nodes on the current best chain.
	inMainChain bool

	// undo holds everything needed to disconnect this block again. It is
	// only populated while the node is on the main chain and within the
	// reorganizable window.
	undo *undoData
}

// trieUndo records one state-trie key's pre-value so a block's trie
// mutations can be reversed without recomputation.
type trieUndo struct {
	key     []byte
	prev    []byte
	existed bool
}

// kvWrite is one persisted-state write staged alongside a block's trie
// mutations; delete is true when the key is removed.
type kvWrite struct {
	key []byte
	val []byte
	del bool
}

// undoData is the staging log for one connected block: every mutated
// key's pre-value (UTXO set and state trie) plus deep registry snapshots
// taken before the block touched them, so revert never recomputes.
type undoData struct {
	utxo      *utxoset.UndoLog
	trie      []trieUndo
	kv        []kvWrite
	stakeSnap interface{}
	mnSnap    interface{}
	govSnap   interface{}
	pegSnap   interface{}
	fraudSnap interface{}

	prevParams     chaincfg.Params
	prevCollateral map[wire.OutPoint]chainhash.Hash
}

// BestState houses the snapshot of the chain tip handed to read-only
// consumers. It is immutable once created.
type BestState struct {
	Hash           chainhash.Hash
	Height         uint32
	StateRoot      chainhash.Hash
	CumulativeWork [16]byte
	MedianTime     int64
}

// BlockChain is the block processor: the single writer that decides
// whether a candidate block extends the canonical chain and, if so,
// atomically mutates the UTXO set, the registries, the state trie and the
// tip.
type BlockChain struct {
	chainLock sync.RWMutex

	params   *chaincfg.Params
	db       database.DB
	sigCache *txscript.SigCache
	now      func() time.Time

	utxo  *utxoset.Set
	state *trie.Trie
	reg   *RegistryBundle

	index     map[chainhash.Hash]*blockNode
	mainChain map[uint32]*blockNode
	tip       *blockNode
	genesis   *blockNode

	// mnCollateral maps each registered masternode's collateral outpoint
	// to its id so an ordinary spend of the collateral bans the entry.
	mnCollateral map[wire.OutPoint]chainhash.Hash

	// recentBlocks fronts the index lookup for already-seen submissions:
	// a negative answer proves the hash is new and skips nothing, a
	// positive answer is confirmed against the authoritative index.
	recentBlocks *apbf.Filter

	// replaying disables persistence while the chain is rebuilt from the
	// database on startup.
	replaying bool

	// prunedHeight tracks how far undo data has been pruned so each
	// connect only visits newly finalized heights.
	prunedHeight uint32

	ntfns notifier
}

// New assembles a chain from cfg, bootstrapping from the genesis block on
// an empty database or replaying the persisted main chain on restart.
func New(cfg *Config) (*BlockChain, error) {
	if cfg.Params == nil {
		return nil, AssertionError("chain config requires consensus parameters")
	}
	if cfg.DB == nil {
		return nil, AssertionError("chain config requires a database")
	}
	if cfg.Registries == nil {
		return nil, AssertionError("chain config requires a registry bundle")
	}

	genesis := cfg.Genesis
	if genesis == nil {
		genesis = GenesisBlock(cfg.Params, []byte{txscript.OP_RETURN})
	}
	sigCache := cfg.SigCache
	if sigCache == nil {
		var err error
		sigCache, err = txscript.NewSigCache(50000)
		if err != nil {
			return nil, err
		}
	}
	now := cfg.TimeSource
	if now == nil {
		now = time.Now
	}

	b := &BlockChain{
		params:       cfg.Params,
		db:           cfg.DB,
		sigCache:     sigCache,
		now:          now,
		utxo:         utxoset.New(),
		state:        trie.New(),
		reg:          cfg.Registries,
		index:        make(map[chainhash.Hash]*blockNode),
		mainChain:    make(map[uint32]*blockNode),
		mnCollateral: make(map[wire.OutPoint]chainhash.Hash),
		recentBlocks: apbf.NewFilter(recentBlockFilterSize, recentBlockFilterFPRate),
	}

	if err := b.bootstrapGenesis(genesis); err != nil {
		return nil, err
	}
	if err := b.replayPersisted(); err != nil {
		return nil, err
	}

	log.Infof("Chain initialized at height %d (tip %v)", b.tip.height, b.tip.hash)
	return b, nil
}

// bootstrapGenesis applies the genesis block directly: its coinbase
// outputs enter the UTXO set and the trie, and its recorded state root
// must match.
func (b *BlockChain) bootstrapGenesis(genesis *wire.Block) error {
	if genesis.Header.Height != 0 || genesis.Header.PrevHash != chainhash.ZeroHash {
		return ruleError(ErrInvalidBlock, "genesis block must be at height 0 with no predecessor")
	}
	if len(genesis.Transactions) == 0 || !genesis.Transactions[0].IsCoinbase() {
		return ruleError(ErrInvalidBlock, "genesis block must carry a coinbase")
	}

	batch := b.utxo.NewBatch()
	var undo []trieUndo
	for _, tx := range genesis.Transactions {
		txHash := tx.Hash()
		for i, out := range tx.TxOut {
			op := wire.OutPoint{Hash: txHash, Index: uint32(i)}
			entry := &utxoset.Entry{
				Value:       out.Value,
				PkScript:    out.PkScript,
				BlockHeight: 0,
				IsCoinbase:  tx.IsCoinbase(),
			}
			batch.StageAdd(op, entry)
			undo = b.trieput(undo, utxoKey(op), serializeUTXOEntry(entry))
		}
	}
	if root := b.state.Root(); root != genesis.Header.StateRoot {
		return ruleError(ErrInvalidStateRoot, fmt.Sprintf(
			"genesis state root mismatch: computed %v, header %v", root, genesis.Header.StateRoot))
	}
	batch.Commit()

	node := &blockNode{
		hash:        genesis.Header.Hash(),
		height:      0,
		header:      genesis.Header,
		block:       genesis,
		workSum:     genesis.Header.CumulativeWork,
		inMainChain: true,
	}
	b.index[node.hash] = node
	b.mainChain[0] = node
	b.genesis = node
	b.tip = node
	b.params.GenesisHash = node.hash

	if has, _ := b.db.Has(tipKey()); !has {
		if err := b.persistBlock(node, nil); err != nil {
			return err
		}
	}
	return nil
}

// replayPersisted rebuilds the in-memory state from the persisted main
// chain after a restart. Blocks are revalidated through the ordinary
// connect path with persistence disabled, so a corrupt store surfaces as
// the same typed errors a bad candidate block would.
func (b *BlockChain) replayPersisted() error {
	tipRaw, err := b.db.Get(tipKey())
	if err == database.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	var tipHash chainhash.Hash
	if err := tipHash.SetBytes(tipRaw); err != nil {
		return err
	}
	if tipHash == b.genesis.hash {
		return nil
	}

	b.replaying = true
	defer func() { b.replaying = false }()

	for height := uint32(1); ; height++ {
		hashRaw, err := b.db.Get(heightKey(height))
		if err == database.ErrKeyNotFound {
			break
		}
		if err != nil {
			return err
		}
		blockRaw, err := b.db.Get(append([]byte("block:"), hashRaw...))
		if err != nil {
			return err
		}
		block, err := wire.DeserializeBlock(blockRaw)
		if err != nil {
			return err
		}
		if _, err := b.ProcessBlock(block); err != nil {
			return AssertionError(fmt.Sprintf(
				"persisted block at height %d no longer validates: %v", height, err))
		}
	}
	if b.tip.hash != tipHash {
		return AssertionError("persisted tip does not match replayed chain")
	}
	return nil
}

// Subscribe registers a notification channel; see notifier.Subscribe.
func (b *BlockChain) Subscribe(buffer int) <-chan Notification {
	return b.ntfns.Subscribe(buffer)
}

// BestSnapshot returns an immutable snapshot of the current tip for
// read-only consumers.
func (b *BlockChain) BestSnapshot() *BestState {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return &BestState{
		Hash:           b.tip.hash,
		Height:         b.tip.height,
		StateRoot:      b.tip.header.StateRoot,
		CumulativeWork: b.tip.workSum,
		MedianTime:     b.medianPastTime(b.tip),
	}
}

// FetchUtxoEntry returns the referenced unspent output as of the current
// tip, for read-only consumers.
func (b *BlockChain) FetchUtxoEntry(op wire.OutPoint) (*utxoset.Entry, bool) {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.utxo.Get(op)
}

// StateRoot returns the current state-trie root.
func (b *BlockChain) StateRoot() chainhash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.state.Root()
}

// ProveState returns a trie inclusion proof for the given state key at the
// current tip.
func (b *BlockChain) ProveState(key []byte) trie.Proof {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.state.Prove(key)
}

// ProcessBlock is the entry point for a candidate block: it runs the full
// validation pipeline and, when the block extends the best chain (directly
// or by triggering a reorganization), commits its effects atomically. The
// boolean return reports whether the block ended up on the main chain.
func (b *BlockChain) ProcessBlock(block *wire.Block) (bool, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	blockHash := block.Header.Hash()

	// The filter proves most unseen hashes new without touching the
	// index; a positive answer may be a false positive and is confirmed
	// against the authoritative map.
	if b.recentBlocks.Contains(blockHash[:]) {
		if _, exists := b.index[blockHash]; exists {
			return false, ruleError(ErrInvalidBlock, fmt.Sprintf("already have block %v", blockHash))
		}
	}

	if err := b.checkBlockSanity(block); err != nil {
		return false, err
	}

	parent, exists := b.index[block.Header.PrevHash]
	if !exists {
		return false, ruleError(ErrInvalidHeader, fmt.Sprintf(
			"previous block %v is unknown", block.Header.PrevHash))
	}
	if err := b.checkHeaderContext(&block.Header, parent); err != nil {
		return false, err
	}

	node := &blockNode{
		hash:    blockHash,
		parent:  parent,
		height:  block.Header.Height,
		header:  block.Header,
		block:   block,
		workSum: block.Header.CumulativeWork,
	}

	if parent != b.tip {
		// Side chain. Remember the block; switch to it only if it now
		// carries more cumulative work than the current tip. The index
		// check is authoritative for duplicates the filter has already
		// aged out.
		if _, exists := b.index[node.hash]; exists {
			return false, ruleError(ErrInvalidBlock, fmt.Sprintf("already have block %v", node.hash))
		}
		b.index[node.hash] = node
		b.recentBlocks.Add(blockHash[:])
		if !nodeBeatsTip(node, b.tip) {
			log.Debugf("Stored side chain block %v (height %d)", node.hash, node.height)
			return false, nil
		}
		log.Infof("Side chain block %v (height %d) has more cumulative work; reorganizing",
			node.hash, node.height)
		if err := b.reorganizeChain(node); err != nil {
			// The block stays indexed: the failure may be a finality
			// rejection that applies to this fork permanently, or a bad
			// branch whose resubmission should short-circuit.
			return false, err
		}
		return true, nil
	}

	if err := b.connectBlock(node, block); err != nil {
		return false, err
	}
	b.index[node.hash] = node
	b.recentBlocks.Add(blockHash[:])
	return true, nil
}

// nodeBeatsTip implements fork choice between two tips: greater cumulative
// work wins, with ties broken by lexicographic block-hash comparison
// (lower hash wins).
func nodeBeatsTip(node, tip *blockNode) bool {
	cmp := bytes.Compare(node.workSum[:], tip.workSum[:])
	if cmp != 0 {
		return cmp > 0
	}
	return bytes.Compare(node.hash[:], tip.hash[:]) < 0
}

// checkBlockSanity performs the context-free checks: structure, size,
// merkle commitment and proof of work.
func (b *BlockChain) checkBlockSanity(block *wire.Block) error {
	if len(block.Transactions) == 0 {
		return ruleError(ErrInvalidBlock, "block has no transactions")
	}
	if !block.Transactions[0].IsCoinbase() {
		return ruleError(ErrInvalidBlock, "first transaction is not the coinbase")
	}
	for _, tx := range block.Transactions[1:] {
		if tx.IsCoinbase() || tx.Type == wire.TxCoinbase {
			return ruleError(ErrInvalidBlock, "block has more than one coinbase")
		}
	}
	if size := uint32(len(block.Serialize())); size > b.params.MaxBlockSize {
		return ruleError(ErrInvalidBlock, fmt.Sprintf(
			"block size %d exceeds maximum %d", size, b.params.MaxBlockSize))
	}
	if merkle := wire.MerkleRoot(block.Transactions); merkle != block.Header.MerkleRoot {
		return ruleError(ErrInvalidMerkleRoot, "merkle root does not match transactions")
	}
	if len(block.Votes) > b.params.TicketsPerBlock {
		return ruleError(ErrInvalidPoSQuorum, "more votes than the quorum size")
	}
	if !CheckProofOfWork(&block.Header) {
		return ruleError(ErrInvalidPoW, "block hash exceeds the target difficulty")
	}
	return nil
}

// checkHeaderContext performs the checks that need the parent: height
// linkage, timestamps, the LWMA-required difficulty and the cumulative
// work accounting.
func (b *BlockChain) checkHeaderContext(header *wire.BlockHeader, parent *blockNode) error {
	if header.Height != parent.height+1 {
		return ruleError(ErrInvalidHeader, fmt.Sprintf(
			"block height %d does not follow parent height %d", header.Height, parent.height))
	}
	if err := CheckHeaderTimestamp(header, &parent.header, b.now().Unix(), b.params); err != nil {
		return err
	}
	if want := b.expectedBits(parent); header.Bits != want {
		return ruleError(ErrInvalidPoW, fmt.Sprintf(
			"block difficulty %08x does not match the required %08x", header.Bits, want))
	}
	if want := AddWork(parent.workSum, header.Bits); header.CumulativeWork != want {
		return ruleError(ErrInvalidHeader, "cumulative work does not extend the parent's")
	}
	return nil
}

// expectedBits returns the difficulty required of the block following
// parent, per the LWMA retarget.
func (b *BlockChain) expectedBits(parent *blockNode) uint32 {
	window := int(b.params.LWMAWindow)
	headers := make([]*wire.BlockHeader, 0, window+1)
	for n := parent; n != nil && len(headers) < window+1; n = n.parent {
		headers = append(headers, &n.header)
	}
	// Reverse into oldest-first order.
	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
	return LWMANextBits(b.params, headers)
}

// medianPastTime returns the median timestamp of the last medianTimeBlocks
// blocks ending at node.
func (b *BlockChain) medianPastTime(node *blockNode) int64 {
	timestamps := make([]int64, 0, medianTimeBlocks)
	for n := node; n != nil && len(timestamps) < medianTimeBlocks; n = n.parent {
		timestamps = append(timestamps, n.header.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2]
}

// finalizedHeight returns the height at or below which blocks have
// accumulated enough PoS confirmations to be final and may never be
// reorganized away.
func (b *BlockChain) finalizedHeight() uint32 {
	if b.tip.height <= b.params.PoSFinalityDepth {
		return 0
	}
	return b.tip.height - b.params.PoSFinalityDepth
}

// trieput inserts key/value into the state trie, recording the key's
// pre-value in undo.
func (b *BlockChain) trieput(undo []trieUndo, key, value []byte) []trieUndo {
	prev, existed := b.state.Get(key)
	undo = append(undo, trieUndo{key: key, prev: prev, existed: existed})
	b.state.Insert(key, value)
	return undo
}

// triedel removes key from the state trie, recording its pre-value.
func (b *BlockChain) triedel(undo []trieUndo, key []byte) []trieUndo {
	prev, existed := b.state.Get(key)
	undo = append(undo, trieUndo{key: key, prev: prev, existed: existed})
	if existed {
		b.state.Delete(key)
	}
	return undo
}

// revertTrie undoes a block's trie mutations in reverse order.
func (b *BlockChain) revertTrie(undo []trieUndo) {
	for i := len(undo) - 1; i >= 0; i-- {
		u := undo[i]
		if u.existed {
			b.state.Insert(u.key, u.prev)
		} else {
			b.state.Delete(u.key)
		}
	}
}

// applyParamChange maps a governance-activated parameter name onto its
// Params field. Unknown names are impossible for proposals that passed
// acceptance-time validation; they are logged and skipped rather than
// halting the writer.
func applyParamChange(params *chaincfg.Params, change ParamChange) {
	switch change.Name {
	case "HalvingInterval":
		params.HalvingInterval = change.Value
	case "InitialSubsidy":
		params.InitialSubsidy = change.Value
	case "MaxBlockSize":
		params.MaxBlockSize = uint32(change.Value)
	case "MinRelayFeePerKB":
		params.MinRelayFeePerKB = change.Value
	case "TicketMaturity":
		params.TicketMaturity = uint32(change.Value)
	case "TicketExpiry":
		params.TicketExpiry = uint32(change.Value)
	case "TicketPriceInitial":
		params.TicketPriceInitial = change.Value
	case "MinPoSVotesPerBlock":
		params.MinPoSVotesPerBlock = int(change.Value)
	case "PoSeChallengePeriod":
		params.PoSeChallengePeriod = uint32(change.Value)
	case "MaxPoSeFailures":
		params.MaxPoSeFailures = uint32(change.Value)
	case "GovernanceActivationDelay":
		params.GovernanceActivationDelay = uint32(change.Value)
	case "GovernanceVotingPeriod":
		params.GovernanceVotingPeriod = uint32(change.Value)
	default:
		log.Errorf("Activated proposal targets unknown parameter %q", change.Name)
	}
}

// copyCollateralIndex returns a copy of the collateral-outpoint index for
// the undo log.
func copyCollateralIndex(in map[wire.OutPoint]chainhash.Hash) map[wire.OutPoint]chainhash.Hash {
	out := make(map[wire.OutPoint]chainhash.Hash, len(in))
	for op, id := range in {
		out[op] = id
	}
	return out
}
