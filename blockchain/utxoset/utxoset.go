// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxoset tracks the set of unspent transaction outputs, staged
// as a batch of adds/removes that either commits atomically into the set
// or is thrown away.
package utxoset

import (
	"fmt"

	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/wire"
)

// Entry is the data a UTXO set tracks per unspent output.
type Entry struct {
	Value       int64
	PkScript    []byte
	BlockHeight uint32
	IsCoinbase  bool
}

// Set is the committed view of every unspent output.
type Set struct {
	entries map[chainhash.Hash]map[uint32]*Entry
}

// New returns an empty UTXO set.
func New() *Set {
	return &Set{entries: make(map[chainhash.Hash]map[uint32]*Entry)}
}

// Get returns the entry for outpoint, or ok=false if it is not unspent.
func (s *Set) Get(op wire.OutPoint) (*Entry, bool) {
	outs, ok := s.entries[op.Hash]
	if !ok {
		return nil, false
	}
	e, ok := outs[op.Index]
	return e, ok
}

// Batch stages adds and removes against a Set without mutating it until
// Commit is called. A Batch is single-use: call NewBatch again for the
// next block.
type Batch struct {
	set    *Set
	staged map[wire.OutPoint]*Entry // nil value marks a staged removal
}

// NewBatch starts a new staged mutation against s.
func (s *Set) NewBatch() *Batch {
	return &Batch{
		set:    s,
		staged: make(map[wire.OutPoint]*Entry),
	}
}

// Get resolves an outpoint through any staged mutation first, falling back
// to the underlying committed set.
func (b *Batch) Get(op wire.OutPoint) (*Entry, bool) {
	if e, ok := b.staged[op]; ok {
		return e, e != nil
	}
	return b.set.Get(op)
}

// StageAdd stages op becoming unspent with the given entry.
func (b *Batch) StageAdd(op wire.OutPoint, e *Entry) {
	b.staged[op] = e
}

// ErrMissingOutpoint reports that a transaction input spends an outpoint
// which is not in the unspent set (already spent, or never existed).
type ErrMissingOutpoint wire.OutPoint

func (e ErrMissingOutpoint) Error() string {
	return fmt.Sprintf("output %s not found in the UTXO set", wire.OutPoint(e))
}

// SpentInBatch reports whether op has already been staged spent in this
// batch, distinguishing a within-block double spend from an outpoint that
// never existed.
func (b *Batch) SpentInBatch(op wire.OutPoint) bool {
	e, ok := b.staged[op]
	return ok && e == nil
}

// StageRemove stages op becoming spent. Returns the entry it held so the
// caller can build the transaction's input-value sum, or
// ErrMissingOutpoint if it was not unspent.
func (b *Batch) StageRemove(op wire.OutPoint) (*Entry, error) {
	e, ok := b.Get(op)
	if !ok {
		return nil, ErrMissingOutpoint(op)
	}
	b.staged[op] = nil
	return e, nil
}

// ValidateTransactionInputs checks that every non-coinbase input of tx
// spends an output currently available through b (committed or staged),
// staging each as spent. It does not stage tx's own outputs as unspent;
// callers do that separately once fee/reward checks pass, via StageAdd.
func (b *Batch) ValidateTransactionInputs(tx *wire.MsgTx) error {
	if tx.IsCoinbase() {
		return nil
	}
	for _, in := range tx.TxIn {
		if _, err := b.StageRemove(in.PreviousOutPoint); err != nil {
			return err
		}
	}
	return nil
}

// UndoLog records the inverse of one committed batch: the outpoints the
// batch created (undone by deleting them) and the (outpoint, pre-value)
// pairs it spent (undone by reinserting them). The log records pre-values
// so revert is deterministic and does not depend on recomputation.
type UndoLog struct {
	added   []wire.OutPoint
	removed map[wire.OutPoint]*Entry
}

// Commit applies every staged mutation to the underlying set and returns
// the undo log that exactly reverses it. After Commit, b must not be
// reused.
func (b *Batch) Commit() *UndoLog {
	undo := &UndoLog{removed: make(map[wire.OutPoint]*Entry)}
	for op, e := range b.staged {
		outs, ok := b.set.entries[op.Hash]
		if e == nil {
			if ok {
				if prior, exists := outs[op.Index]; exists {
					undo.removed[op] = prior
					delete(outs, op.Index)
					if len(outs) == 0 {
						delete(b.set.entries, op.Hash)
					}
				}
			}
			continue
		}
		if !ok {
			outs = make(map[uint32]*Entry)
			b.set.entries[op.Hash] = outs
		}
		outs[op.Index] = e
		undo.added = append(undo.added, op)
	}
	return undo
}

// ApplyUndo reverses a previously committed batch: entries the batch added
// are deleted and entries it spent are reinstated with their recorded
// pre-values.
func (s *Set) ApplyUndo(undo *UndoLog) {
	for _, op := range undo.added {
		if outs, ok := s.entries[op.Hash]; ok {
			delete(outs, op.Index)
			if len(outs) == 0 {
				delete(s.entries, op.Hash)
			}
		}
	}
	for op, e := range undo.removed {
		outs, ok := s.entries[op.Hash]
		if !ok {
			outs = make(map[uint32]*Entry)
			s.entries[op.Hash] = outs
		}
		outs[op.Index] = e
	}
}

// StagedChanges calls fn for every staged mutation in the batch; a nil
// entry marks a staged removal. Iteration order is unspecified; callers
// needing determinism (the state trie's root is order-independent) are
// unaffected.
func (b *Batch) StagedChanges(fn func(op wire.OutPoint, e *Entry)) {
	for op, e := range b.staged {
		fn(op, e)
	}
}

// Revert discards every staged mutation. Since Commit was never called,
// the underlying set is already untouched; Revert exists so callers can
// make the discard explicit and so the batch cannot be committed after
// being abandoned.
func (b *Batch) Revert() {
	b.staged = nil
}

