// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/solidus-chain/solidusd/blockchain/utxoset"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/database"
	"github.com/solidus-chain/solidusd/wire"
)

// applyBlock stages every effect of block on top of parent: transaction
// validation and UTXO staging, registry mutations, reward accounting, and
// the state-trie refresh. On success the returned batch is still
// uncommitted; the caller either commits it (connectBlock) or rolls the
// whole application back (PrepareStateRoot, state-root mismatch). On error
// everything is already rolled back.
func (b *BlockChain) applyBlock(parent *blockNode, block *wire.Block) (*utxoset.Batch, *undoData, chainhash.Hash, error) {
	height := block.Header.Height
	reg := b.reg

	if len(block.Transactions) == 0 {
		return nil, nil, chainhash.Hash{}, ruleError(ErrInvalidBlock, "block has no transactions")
	}

	undo := &undoData{
		stakeSnap:      reg.Tickets.Snapshot(),
		mnSnap:         reg.Masternodes.Snapshot(),
		govSnap:        reg.Governance.Snapshot(),
		pegSnap:        reg.Peg.Snapshot(),
		fraudSnap:      reg.FraudProofs.Snapshot(),
		prevParams:     *b.params,
		prevCollateral: copyCollateralIndex(b.mnCollateral),
	}
	batch := b.utxo.NewBatch()
	fail := func(err error) (*utxoset.Batch, *undoData, chainhash.Hash, error) {
		b.rollbackApply(batch, undo)
		return nil, nil, chainhash.Hash{}, err
	}

	// The quorum expected to vote on this block was drawn from the live
	// ticket set as of the parent, keyed by the parent's hash, so every
	// node reproduces the same selection.
	quorum := reg.Tickets.SelectQuorum(parent.hash, height)
	if block.Header.TicketHash != quorumCommitment(quorum) {
		return fail(ruleError(ErrInvalidPoSQuorum,
			"header ticket hash does not commit to the selected quorum"))
	}

	ctx := &TxValidationContext{
		Params:         b.params,
		Height:         height,
		MedianPastTime: b.medianPastTime(parent),
		SigCache:       b.sigCache,
		Tickets:        reg.Tickets,
		Masternodes:    reg.Masternodes,
		Governance:     reg.Governance,
		Peg:            reg.Peg,
		FraudProofs:    reg.FraudProofs,
		SeenTxHashes:   make(map[chainhash.Hash]struct{}, len(block.Transactions)),
	}

	var totalFees int64
	for i, tx := range block.Transactions {
		if i == 0 && tx.Type != wire.TxCoinbase {
			return fail(ruleError(ErrInvalidBlock, "first transaction is not the coinbase"))
		}

		fee, err := ValidateTransaction(tx, batch, ctx)
		if err != nil {
			return fail(err)
		}
		totalFees += fee

		txHash := tx.Hash()
		for outIdx, out := range tx.TxOut {
			op := wire.OutPoint{Hash: txHash, Index: uint32(outIdx)}
			batch.StageAdd(op, &utxoset.Entry{
				Value:       out.Value,
				PkScript:    out.PkScript,
				BlockHeight: height,
				IsCoinbase:  tx.Type == wire.TxCoinbase,
			})
		}

		if err := b.applyTxEffects(tx, txHash, height); err != nil {
			return fail(err)
		}
	}

	// The coinbase may claim at most the PoW miner's share of this
	// block's reward; the PoS share is minted later through ticket
	// redemptions.
	split := CalcRewardSplit(height, totalFees, len(block.Votes), b.params)
	if coinbaseOut := block.Transactions[0].TotalOut(); coinbaseOut > split.PoWMinerShare {
		return fail(ruleError(ErrInvalidCoinbaseReward, fmt.Sprintf(
			"coinbase pays %d, miner share is %d", coinbaseOut, split.PoWMinerShare)))
	}

	// Votes in the header confirm the parent block.
	if err := reg.Tickets.ApplyVotes(block.Votes, quorum, parent.hash, height); err != nil {
		return fail(err)
	}
	votedIDs := make([]chainhash.Hash, 0, len(block.Votes))
	for _, v := range block.Votes {
		votedIDs = append(votedIDs, v.TicketID)
	}
	reg.Tickets.CreditVoters(votedIDs, split.PerVoterShare)

	// Height-scheduled registry transitions: maturation, expiry,
	// probation, PoSe rounds, tallies, activations, peg timeouts.
	reg.Tickets.AdvanceBlock(height)
	reg.Masternodes.AdvanceBlock(height)
	if issued := reg.Masternodes.RunChallengeRound(parent.hash, height); issued > 0 {
		log.Debugf("Issued %d PoSe challenges at height %d", issued, height)
	}
	reg.Masternodes.ProcessTimeouts(height)
	changes := reg.Governance.AdvanceBlock(height, reg.Tickets.LiveCount(), reg.Masternodes.ActiveCount())
	for _, change := range changes {
		log.Infof("Governance activation: %s -> %d at height %d", change.Name, change.Value, height)
		applyParamChange(b.params, change)
	}
	reg.Peg.AdvanceBlock(height)
	reg.FraudProofs.AdvanceBlock(height)
	if reg.Peg.IsFederationEpochBoundary(height) {
		log.Debugf("Federation epoch boundary at height %d", height)
	}

	// Refresh the state trie for exactly the keys this block touched and
	// stage the matching persisted-state writes.
	b.syncState(batch, undo)

	return batch, undo, b.state.Root(), nil
}

// applyTxEffects applies a validated transaction's registry-side effects.
// ValidateTransaction has already established every precondition, so the
// registries are driven unconditionally here; any residual failure is a
// rule error that aborts the whole block.
func (b *BlockChain) applyTxEffects(tx *wire.MsgTx, txHash chainhash.Hash, height uint32) error {
	reg := b.reg

	// An ordinary spend of a masternode's collateral outpoint bans the
	// entry.
	if tx.Type != wire.TxCoinbase && tx.Type != wire.TxMasternodeSlash {
		for _, in := range tx.TxIn {
			if id, ok := b.mnCollateral[in.PreviousOutPoint]; ok {
				log.Infof("Masternode %v collateral spent; removing entry", id)
				reg.Masternodes.CollateralSpent(id)
				delete(b.mnCollateral, in.PreviousOutPoint)
			}
		}
	}

	switch tx.Type {
	case wire.TxTicketPurchase:
		id := TicketID(txHash, 0)
		reg.Tickets.AddPurchase(id, tx.TicketPurchase.StakerPubKey, tx.TxOut[0].Value, height)

	case wire.TxTicketRedemption:
		reg.Tickets.Redeem(tx.TicketRedemption.TicketID)

	case wire.TxMasternodeRegister:
		collateral, ok := lockedCollateralOutput(tx, txHash, b.params.MasternodeCollateral)
		if !ok {
			return ruleError(ErrInvalidBlock, "masternode register has no collateral output")
		}
		p := tx.MasternodeRegister
		reg.Masternodes.Register(txHash, collateral, p.OperatorPubKey, p.PayoutHash, p.NetworkAddress, height)
		b.mnCollateral[collateral] = txHash

	case wire.TxMasternodeSlash:
		id := tx.MasternodeSlash.MasternodeID
		if op, ok := reg.Masternodes.CollateralOf(id); ok {
			delete(b.mnCollateral, op)
		}
		reg.Masternodes.Slash(id)

	case wire.TxGovernanceProposal:
		p := tx.GovernanceProposal
		reg.Governance.AddProposal(p.ProposalID, p.ProposerPubKey, p.ProposalType,
			p.StartHeight, p.EndHeight, p.ParamName, p.NewValue)

	case wire.TxGovernanceVote:
		p := tx.GovernanceVote
		reg.Governance.ApplyVote(p.ProposalID, p.VoterKind, p.VoterID, p.Approve)

	case wire.TxActivateProposal:
		change, hasChange, err := reg.Governance.Activate(tx.ActivateProposal.ProposalID, height)
		if err != nil {
			return err
		}
		if hasChange {
			log.Infof("Governance activation (explicit): %s -> %d", change.Name, change.Value)
			applyParamChange(b.params, change)
		}

	case wire.TxPegIn:
		credit, recipient, err := reg.Peg.ApplyPegIn(tx.PegIn, height)
		if err != nil {
			return err
		}
		log.Debugf("Peg-in %v completed: %d to sidechain address %x",
			tx.PegIn.PegID, credit, recipient)

	case wire.TxPegOut:
		credit, _, err := reg.Peg.ApplyPegOut(tx.PegOut, height)
		if err != nil {
			return err
		}
		// The envelope must carry the release payment: an output of
		// exactly the credited amount (amount minus the peg fee).
		found := false
		for _, out := range tx.TxOut {
			if out.Value == credit {
				found = true
				break
			}
		}
		if !found {
			return ruleError(ErrInvalidPegOperation, fmt.Sprintf(
				"peg-out release does not pay the credited amount %d", credit))
		}

	case wire.TxFraudChallenge:
		p := tx.FraudChallenge
		bond := fraudBondValue(tx, b.params.FraudProofBondAmount)
		if err := reg.FraudProofs.Open(p.ChallengeID, p.ChallengerID, p.TargetPegID,
			p.ClaimedPreState, bond, p.Evidence, height); err != nil {
			return err
		}

	case wire.TxFraudResponse:
		p := tx.FraudResponse
		if err := reg.FraudProofs.Respond(p.ChallengeID, p.ResponseEvidence,
			p.FederationSigShares, height); err != nil {
			return err
		}
	}
	return nil
}

// fraudBondValue returns the value of the challenge's bond output, the
// first output meeting the configured bond amount. Bond custody stays in
// the UTXO set; the manager only records the figure.
func fraudBondValue(tx *wire.MsgTx, required int64) int64 {
	for _, out := range tx.TxOut {
		if out.Value >= required {
			return out.Value
		}
	}
	return 0
}

// lockedCollateralOutput finds the register transaction's own output that
// locks the collateral; spending that outpoint later bans the entry.
func lockedCollateralOutput(tx *wire.MsgTx, txHash chainhash.Hash, required int64) (wire.OutPoint, bool) {
	for idx, out := range tx.TxOut {
		if out.Value >= required {
			return wire.OutPoint{Hash: txHash, Index: uint32(idx)}, true
		}
	}
	return wire.OutPoint{}, false
}

// syncState refreshes the state trie for every key this block's
// application touched and stages the matching persisted-state writes into
// undo.kv. The trie root is independent of insertion order, so map
// iteration order here is harmless.
func (b *BlockChain) syncState(batch *utxoset.Batch, undo *undoData) {
	put := func(key, value []byte) {
		undo.trie = b.trieput(undo.trie, key, value)
		undo.kv = append(undo.kv, kvWrite{key: dbKeyForStateKey(key), val: value})
	}
	del := func(key []byte) {
		undo.trie = b.triedel(undo.trie, key)
		undo.kv = append(undo.kv, kvWrite{key: dbKeyForStateKey(key), del: true})
	}

	batch.StagedChanges(func(op wire.OutPoint, e *utxoset.Entry) {
		if e == nil {
			del(utxoKey(op))
			return
		}
		put(utxoKey(op), serializeUTXOEntry(e))
	})

	for _, id := range b.reg.Tickets.TakeDirty() {
		key := stateKey("ticket:", id)
		if value, ok := b.reg.Tickets.SerializeEntry(id); ok {
			put(key, value)
		} else {
			del(key)
		}
	}
	for _, id := range b.reg.Masternodes.TakeDirty() {
		key := stateKey("masternode:", id)
		if value, ok := b.reg.Masternodes.SerializeEntry(id); ok {
			put(key, value)
		} else {
			del(key)
		}
	}
	for _, id := range b.reg.Governance.TakeDirty() {
		key := stateKey("proposal:", id)
		if value, ok := b.reg.Governance.SerializeEntry(id); ok {
			put(key, value)
		} else {
			del(key)
		}
	}

	// Peg operations are persisted but deliberately outside the state
	// root: the root commits UTXOs, tickets, masternodes and proposals.
	for _, id := range b.reg.Peg.TakeDirty() {
		key := stateKey("peg:", id)
		if value, ok := b.reg.Peg.SerializeEntry(id); ok {
			undo.kv = append(undo.kv, kvWrite{key: key, val: value})
		} else {
			undo.kv = append(undo.kv, kvWrite{key: key, del: true})
		}
	}
}

// rollbackApply discards a staged (uncommitted) block application,
// restoring every mutated structure to its pre-apply state.
func (b *BlockChain) rollbackApply(batch *utxoset.Batch, undo *undoData) {
	if batch != nil {
		batch.Revert()
	}
	b.revertTrie(undo.trie)
	b.reg.Tickets.Restore(undo.stakeSnap)
	b.reg.Masternodes.Restore(undo.mnSnap)
	b.reg.Governance.Restore(undo.govSnap)
	b.reg.Peg.Restore(undo.pegSnap)
	b.reg.FraudProofs.Restore(undo.fraudSnap)
	*b.params = undo.prevParams
	b.mnCollateral = undo.prevCollateral
}

// connectBlock fully validates block against the tip and commits it: the
// batch is applied to the UTXO set, the persisted store is updated, and
// the tip advances.
func (b *BlockChain) connectBlock(node *blockNode, block *wire.Block) error {
	batch, undo, root, err := b.applyBlock(node.parent, block)
	if err != nil {
		return err
	}
	if root != block.Header.StateRoot {
		b.rollbackApply(batch, undo)
		return ruleError(ErrInvalidStateRoot, fmt.Sprintf(
			"state root mismatch: computed %v, header %v", root, block.Header.StateRoot))
	}

	undo.utxo = batch.Commit()
	if err := b.persistBlock(node, undo); err != nil {
		// The in-memory state is already committed; a persistence
		// failure that survives the retry policy is fatal.
		return err
	}

	node.inMainChain = true
	node.undo = undo
	b.mainChain[node.height] = node
	b.tip = node
	b.pruneUndo()

	if !b.replaying {
		log.Infof("Connected block %v (height %d, %d transactions, %d votes)",
			node.hash, node.height, len(block.Transactions), len(block.Votes))
		b.ntfns.send(Notification{Type: NTBlockConnected, Data: &BlockNtfn{
			Hash:      node.hash,
			Height:    node.height,
			StateRoot: node.header.StateRoot,
			NumTxns:   len(block.Transactions),
		}})
	}
	return nil
}

// disconnectBlock reverses the current tip block exactly and retreats
// the tip to its parent.
func (b *BlockChain) disconnectBlock(node *blockNode) error {
	if node != b.tip {
		return AssertionError("disconnectBlock called on a non-tip block")
	}
	undo := node.undo
	if undo == nil {
		return AssertionError(fmt.Sprintf(
			"block %v has no undo data; it is final and cannot be reverted", node.hash))
	}

	b.reg.Tickets.Restore(undo.stakeSnap)
	b.reg.Masternodes.Restore(undo.mnSnap)
	b.reg.Governance.Restore(undo.govSnap)
	b.reg.Peg.Restore(undo.pegSnap)
	b.reg.FraudProofs.Restore(undo.fraudSnap)
	b.revertTrie(undo.trie)
	b.utxo.ApplyUndo(undo.utxo)
	*b.params = undo.prevParams
	b.mnCollateral = undo.prevCollateral

	if err := b.persistDisconnect(node, undo); err != nil {
		return err
	}

	node.inMainChain = false
	node.undo = nil
	delete(b.mainChain, node.height)
	b.tip = node.parent

	log.Infof("Disconnected block %v (height %d)", node.hash, node.height)
	b.ntfns.send(Notification{Type: NTBlockDisconnected, Data: &BlockNtfn{
		Hash:      node.hash,
		Height:    node.height,
		StateRoot: node.header.StateRoot,
		NumTxns:   len(node.block.Transactions),
	}})
	return nil
}

// pruneUndo drops undo data for blocks deep enough to be final: they can
// never be reorganized away, so their revert logs and registry snapshots
// are dead weight.
func (b *BlockChain) pruneUndo() {
	final := b.finalizedHeight()
	for h := b.prunedHeight; h <= final; h++ {
		if n, ok := b.mainChain[h]; ok {
			n.undo = nil
		}
	}
	if final >= b.prunedHeight {
		b.prunedHeight = final + 1
	}
}

// PrepareStateRoot computes the state root a block template builder must
// place in its header: the trie root over the state after applying block
// on top of the current tip. The application is fully rolled back before
// returning, leaving the chain untouched. The template's TicketHash must
// already commit to NextQuorum's selection.
func (b *BlockChain) PrepareStateRoot(block *wire.Block) (chainhash.Hash, error) {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	if block.Header.PrevHash != b.tip.hash {
		return chainhash.Hash{}, ruleError(ErrInvalidHeader,
			"state root can only be prepared on top of the current tip")
	}
	if block.Header.Height != b.tip.height+1 {
		return chainhash.Hash{}, ruleError(ErrInvalidHeader,
			"template height does not follow the tip")
	}

	batch, undo, root, err := b.applyBlock(b.tip, block)
	if err != nil {
		return chainhash.Hash{}, err
	}
	b.rollbackApply(batch, undo)
	return root, nil
}

// NextQuorum returns the ticket quorum that must vote on the block
// following the current tip, for block template construction.
func (b *BlockChain) NextQuorum() []chainhash.Hash {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.reg.Tickets.SelectQuorum(b.tip.hash, b.tip.height+1)
}

// NextRequiredDifficulty returns the compact difficulty the block
// following the current tip must carry.
func (b *BlockChain) NextRequiredDifficulty() uint32 {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	return b.expectedBits(b.tip)
}

// persistence keys

func tipKey() []byte { return []byte("tip") }

func heightKey(height uint32) []byte {
	return []byte(fmt.Sprintf("height:%d", height))
}

// dbKeyForStateKey maps a state-trie key onto its persisted-store key.
// They coincide except for masternodes, whose store prefix is the short
// "mn:" form.
func dbKeyForStateKey(key []byte) []byte {
	const longPrefix = "masternode:"
	if len(key) >= len(longPrefix) && string(key[:len(longPrefix)]) == longPrefix {
		out := make([]byte, 0, 3+len(key)-len(longPrefix))
		out = append(out, "mn:"...)
		return append(out, key[len(longPrefix):]...)
	}
	return key
}

// stateKey builds a domain-tagged state key: prefix || id bytes.
func stateKey(prefix string, id chainhash.Hash) []byte {
	key := make([]byte, 0, len(prefix)+chainhash.HashSize)
	key = append(key, prefix...)
	return append(key, id[:]...)
}

// persistBlock writes a connected block and its staged state changes to
// the store atomically, retrying soft failures with bounded backoff and
// escalating to a fatal assertion when the retries are exhausted.
func (b *BlockChain) persistBlock(node *blockNode, undo *undoData) error {
	if b.replaying {
		return nil
	}
	err := database.WithBackoff(persistAttempts, persistBackoff, func() error {
		return b.db.Update(func(batch database.Batch) error {
			hash := node.hash
			batch.Put(append([]byte("header:"), hash[:]...), node.header.Serialize())
			batch.Put(append([]byte("block:"), hash[:]...), node.block.Serialize())
			for _, tx := range node.block.Transactions {
				txHash := tx.Hash()
				batch.Put(append([]byte("tx:"), txHash[:]...), tx.Serialize())
			}
			batch.Put(tipKey(), hash[:])
			batch.Put(heightKey(node.height), hash[:])
			if undo != nil {
				for _, w := range undo.kv {
					if w.del {
						batch.Delete(w.key)
						continue
					}
					batch.Put(w.key, w.val)
				}
			}
			return nil
		})
	})
	if err != nil {
		return AssertionError(fmt.Sprintf("failed to persist block %v: %v", node.hash, err))
	}
	return nil
}

// persistDisconnect rewinds the store for a disconnected block: the height
// index entry is dropped, the tip retreats, and every state key the block
// touched is restored to its recorded pre-value.
func (b *BlockChain) persistDisconnect(node *blockNode, undo *undoData) error {
	if b.replaying {
		return nil
	}
	parentHash := node.parent.hash
	err := database.WithBackoff(persistAttempts, persistBackoff, func() error {
		return b.db.Update(func(batch database.Batch) error {
			batch.Delete(heightKey(node.height))
			batch.Put(tipKey(), parentHash[:])
			for i := len(undo.trie) - 1; i >= 0; i-- {
				u := undo.trie[i]
				key := dbKeyForStateKey(u.key)
				if u.existed {
					batch.Put(key, u.prev)
				} else {
					batch.Delete(key)
				}
			}
			return nil
		})
	})
	if err != nil {
		return AssertionError(fmt.Sprintf("failed to persist disconnect of %v: %v", node.hash, err))
	}
	return nil
}
