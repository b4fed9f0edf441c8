// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// lowestCommonAncestor walks both branches back to the fork point.
func lowestCommonAncestor(a, b *blockNode) *blockNode {
	for a.height > b.height {
		a = a.parent
	}
	for b.height > a.height {
		b = b.parent
	}
	for a != b {
		a = a.parent
		b = b.parent
	}
	return a
}

// reorganizeChain switches the best chain to end at target: blocks above
// the fork point are reverted from the old branch, then the new branch's
// blocks are connected. If any new block fails to connect, every partial
// change is unwound and the old chain is restored.
//
// A reorganization may never revert a finalized block: when the fork point
// is below the finality horizon the whole attempt is rejected regardless
// of cumulative work.
func (b *BlockChain) reorganizeChain(target *blockNode) error {
	oldTip := b.tip
	fork := lowestCommonAncestor(oldTip, target)

	if fork.height < b.finalizedHeight() {
		return ruleError(ErrInvalidBlock, fmt.Sprintf(
			"reorganization to %v would revert a block finalized by %d PoS confirmations",
			target.hash, b.params.PoSFinalityDepth))
	}

	// Collect the new branch top-down, then reverse it so it connects
	// oldest first.
	attach := make([]*blockNode, 0, target.height-fork.height)
	for n := target; n != fork; n = n.parent {
		attach = append(attach, n)
	}
	for i, j := 0, len(attach)-1; i < j; i, j = i+1, j-1 {
		attach[i], attach[j] = attach[j], attach[i]
	}

	// Detach the old branch, newest first. detached ends ordered
	// newest-to-oldest.
	detached := make([]*blockNode, 0, oldTip.height-fork.height)
	for b.tip != fork {
		n := b.tip
		if err := b.disconnectBlock(n); err != nil {
			return err
		}
		detached = append(detached, n)
	}

	// Attach the new branch.
	for i, n := range attach {
		if err := b.connectBlock(n, n.block); err != nil {
			log.Warnf("Reorganization aborted: block %v failed to connect: %v", n.hash, err)

			// Unwind the partial attach, then restore the old branch.
			for j := i - 1; j >= 0; j-- {
				if derr := b.disconnectBlock(attach[j]); derr != nil {
					return AssertionError(fmt.Sprintf(
						"failed to unwind partially applied reorganization: %v", derr))
				}
			}
			for j := len(detached) - 1; j >= 0; j-- {
				old := detached[j]
				if rerr := b.connectBlock(old, old.block); rerr != nil {
					return AssertionError(fmt.Sprintf(
						"failed to restore the previous best chain: %v", rerr))
				}
			}
			return err
		}
	}

	log.Infof("Chain reorganized: old tip %v (height %d), new tip %v (height %d), fork %v (height %d)",
		oldTip.hash, oldTip.height, target.hash, target.height, fork.hash, fork.height)
	b.ntfns.send(Notification{Type: NTChainReorganization, Data: &ReorgNtfn{
		OldHash:   oldTip.hash,
		OldHeight: oldTip.height,
		NewHash:   target.hash,
		NewHeight: target.height,
	}})
	return nil
}
