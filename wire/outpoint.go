// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"

	"github.com/solidus-chain/solidusd/chainhash"
)

// NullIndex is the sentinel previous-output index used by a coinbase's
// sole input.
const NullIndex = 0xffffffff

// OutPoint identifies a specific output of a specific transaction. It is
// unique across the chain.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// String returns a human-readable "hash:index" representation.
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash, o.Index)
}

// IsNull reports whether this is the sentinel "no predecessor" outpoint used
// by coinbase inputs.
func (o OutPoint) IsNull() bool {
	return o.Index == NullIndex && o.Hash == chainhash.ZeroHash
}

func (o OutPoint) encode(e *encoder) {
	e.writeHash(o.Hash)
	e.writeUint32(o.Index)
}

func decodeOutPoint(d *decoder) (OutPoint, error) {
	var o OutPoint
	h, err := d.readHash()
	if err != nil {
		return o, err
	}
	idx, err := d.readUint32()
	if err != nil {
		return o, err
	}
	o.Hash = h
	o.Index = idx
	return o, nil
}

// TxIn defines a transaction input, referencing a previous output and
// providing the unlocking script that spends it.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

func (in *TxIn) encode(e *encoder) {
	in.PreviousOutPoint.encode(e)
	e.writeVarBytes(in.SignatureScript)
	e.writeUint32(in.Sequence)
}

func decodeTxIn(d *decoder) (*TxIn, error) {
	op, err := decodeOutPoint(d)
	if err != nil {
		return nil, err
	}
	sigScript, err := d.readVarBytes()
	if err != nil {
		return nil, err
	}
	seq, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	return &TxIn{PreviousOutPoint: op, SignatureScript: sigScript, Sequence: seq}, nil
}

// TxOut defines a transaction output: an amount and the locking script that
// guards it.
type TxOut struct {
	Value    int64
	Version  uint16
	PkScript []byte
}

func (out *TxOut) encode(e *encoder) {
	e.writeInt64(out.Value)
	e.writeUint16(out.Version)
	e.writeVarBytes(out.PkScript)
}

func decodeTxOut(d *decoder) (*TxOut, error) {
	val, err := d.readInt64()
	if err != nil {
		return nil, err
	}
	ver, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	script, err := d.readVarBytes()
	if err != nil {
		return nil, err
	}
	return &TxOut{Value: val, Version: ver, PkScript: script}, nil
}
