// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"

	"github.com/solidus-chain/solidusd/blockchain/utxoset"
	"github.com/solidus-chain/solidusd/chaincfg"
	"github.com/solidus-chain/solidusd/chainhash"
	"github.com/solidus-chain/solidusd/trie"
	"github.com/solidus-chain/solidusd/wire"
)

// GenesisBlock deterministically constructs the genesis block for the
// given network, paying the initial subsidy to pkScript. The header's
// state root is the trie root over the single coinbase output the block
// creates, so a node bootstrapping from this block starts from a state
// that already satisfies the state-root invariant.
func GenesisBlock(params *chaincfg.Params, pkScript []byte) *wire.Block {
	coinbase := &wire.MsgTx{
		Version: 1,
		Type:    wire.TxCoinbase,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.ZeroHash, Index: wire.NullIndex},
			SignatureScript:  []byte("solidus genesis"),
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{
			Value:    params.InitialSubsidy,
			PkScript: pkScript,
		}},
	}

	txs := []*wire.MsgTx{coinbase}

	st := trie.New()
	op := wire.OutPoint{Hash: coinbase.Hash(), Index: 0}
	st.Insert(utxoKey(op), serializeUTXOEntry(&utxoset.Entry{
		Value:       params.InitialSubsidy,
		PkScript:    pkScript,
		BlockHeight: 0,
		IsCoinbase:  true,
	}))

	bits := BigToCompact(params.PowLimit)
	header := wire.BlockHeader{
		Version:        wire.BlockVersion,
		PrevHash:       chainhash.ZeroHash,
		MerkleRoot:     wire.MerkleRoot(txs),
		StateRoot:      st.Root(),
		Timestamp:      params.GenesisTime.Unix(),
		Bits:           bits,
		Nonce:          0,
		Height:         0,
		CumulativeWork: AddWork([16]byte{}, bits),
		TicketHash:     quorumCommitment(nil),
	}

	return &wire.Block{Header: header, Transactions: txs}
}

// utxoKey is the state-trie key for an unspent output:
// "utxo:" || tx_hash || LE32(index).
func utxoKey(op wire.OutPoint) []byte {
	key := make([]byte, 0, 5+chainhash.HashSize+4)
	key = append(key, "utxo:"...)
	key = append(key, op.Hash[:]...)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], op.Index)
	return append(key, idx[:]...)
}

// serializeUTXOEntry is the canonical state-trie value for an unspent
// output.
func serializeUTXOEntry(e *utxoset.Entry) []byte {
	buf := make([]byte, 0, 8+4+1+4+len(e.PkScript))
	var u64 [8]byte
	var u32 [4]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(e.Value))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint32(u32[:], e.BlockHeight)
	buf = append(buf, u32[:]...)
	if e.IsCoinbase {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	binary.LittleEndian.PutUint32(u32[:], uint32(len(e.PkScript)))
	buf = append(buf, u32[:]...)
	return append(buf, e.PkScript...)
}

// quorumCommitment is the header's ticket-hash commitment: Blake3 over the
// concatenation of the quorum's sorted ticket ids (the ids must already be
// in ascending order, which SelectQuorum guarantees).
func quorumCommitment(sortedQuorum []chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 0, len(sortedQuorum)*chainhash.HashSize)
	for _, id := range sortedQuorum {
		buf = append(buf, id[:]...)
	}
	return chainhash.HashH(buf)
}
