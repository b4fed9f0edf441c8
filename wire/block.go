// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/solidus-chain/solidusd/chainhash"
)

// BlockVersion is the current header version this node produces and
// accepts.
const BlockVersion = 1

// BlockHeader carries everything needed to validate and chain a block
// without touching its transaction bodies. Field order here is the field
// order hashed by Hash.
type BlockHeader struct {
	Version             uint16
	PrevHash            chainhash.Hash
	MerkleRoot          chainhash.Hash
	StateRoot           chainhash.Hash
	Timestamp           int64
	Bits                uint32
	Nonce               uint64
	Height              uint32
	CumulativeWork      [16]byte // big-endian 128-bit unsigned integer
	TicketHash          chainhash.Hash
	SidechainCommitment chainhash.Hash
}

// PoSVote is a single ticket's signed vote on the block referenced by
// BlockHash.
type PoSVote struct {
	TicketID  chainhash.Hash
	BlockHash chainhash.Hash
	Signature []byte
}

// Block pairs a header with its transactions and the PoS votes collected
// for it. The votes are carried alongside the block rather than as
// ordinary transactions because they reference the block they vote on,
// which does not exist until the header is built.
type Block struct {
	Header       BlockHeader
	Transactions []*MsgTx
	Votes        []*PoSVote
}

func (h *BlockHeader) encode(e *encoder) {
	e.writeUint16(h.Version)
	e.writeHash(h.PrevHash)
	e.writeHash(h.MerkleRoot)
	e.writeHash(h.StateRoot)
	e.writeInt64(h.Timestamp)
	e.writeUint32(h.Bits)
	e.writeUint64(h.Nonce)
	e.writeUint32(h.Height)
	e.buf = append(e.buf, h.CumulativeWork[:]...)
	e.writeHash(h.TicketHash)
	e.writeHash(h.SidechainCommitment)
}

// Serialize returns the canonical byte encoding of the header. Hash takes
// the Blake3 digest of this encoding.
func (h *BlockHeader) Serialize() []byte {
	e := &encoder{}
	h.encode(e)
	return e.bytes()
}

// Hash returns the Blake3 digest identifying this header.
func (h *BlockHeader) Hash() chainhash.Hash {
	return chainhash.HashH(h.Serialize())
}

// DeserializeBlockHeader decodes a header previously produced by Serialize.
func DeserializeBlockHeader(b []byte) (*BlockHeader, error) {
	return decodeHeaderInPlace(newDecoder(b))
}

func (v *PoSVote) encode(e *encoder) {
	e.writeHash(v.TicketID)
	e.writeHash(v.BlockHash)
	e.writeVarBytes(v.Signature)
}

func decodePoSVote(d *decoder) (*PoSVote, error) {
	v := &PoSVote{}
	var err error
	if v.TicketID, err = d.readHash(); err != nil {
		return nil, err
	}
	if v.BlockHash, err = d.readHash(); err != nil {
		return nil, err
	}
	if v.Signature, err = d.readVarBytes(); err != nil {
		return nil, err
	}
	return v, nil
}

// Serialize returns the canonical byte encoding of the block: header,
// transactions (in the order the validator must process them, coinbase
// first), then PoS votes in listed order.
func (b *Block) Serialize() []byte {
	e := &encoder{}
	b.Header.encode(e)
	e.writeUint32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txBytes := tx.Serialize()
		e.writeVarBytes(txBytes)
	}
	e.writeUint32(uint32(len(b.Votes)))
	for _, v := range b.Votes {
		v.encode(e)
	}
	return e.bytes()
}

// DeserializeBlock decodes a block previously produced by Serialize.
func DeserializeBlock(b []byte) (*Block, error) {
	d := newDecoder(b)
	// BlockHeader has no length prefix of its own; decode it in place by
	// reusing the header decode routine over the same cursor.
	hdr, err := decodeHeaderInPlace(d)
	if err != nil {
		return nil, err
	}

	numTx, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	txs := make([]*MsgTx, 0, numTx)
	for i := uint32(0); i < numTx; i++ {
		raw, err := d.readVarBytes()
		if err != nil {
			return nil, err
		}
		tx, err := DeserializeTx(raw)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	numVotes, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	votes := make([]*PoSVote, 0, numVotes)
	for i := uint32(0); i < numVotes; i++ {
		v, err := decodePoSVote(d)
		if err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}

	return &Block{Header: *hdr, Transactions: txs, Votes: votes}, nil
}

func decodeHeaderInPlace(d *decoder) (*BlockHeader, error) {
	h := &BlockHeader{}
	var err error
	if h.Version, err = d.readUint16(); err != nil {
		return nil, err
	}
	if h.PrevHash, err = d.readHash(); err != nil {
		return nil, err
	}
	if h.MerkleRoot, err = d.readHash(); err != nil {
		return nil, err
	}
	if h.StateRoot, err = d.readHash(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = d.readInt64(); err != nil {
		return nil, err
	}
	if h.Bits, err = d.readUint32(); err != nil {
		return nil, err
	}
	if h.Nonce, err = d.readUint64(); err != nil {
		return nil, err
	}
	if h.Height, err = d.readUint32(); err != nil {
		return nil, err
	}
	if d.remaining() < 16 {
		return nil, ErrMalformedWire
	}
	copy(h.CumulativeWork[:], d.buf[d.off:d.off+16])
	d.off += 16
	if h.TicketHash, err = d.readHash(); err != nil {
		return nil, err
	}
	if h.SidechainCommitment, err = d.readHash(); err != nil {
		return nil, err
	}
	return h, nil
}

// MerkleRoot computes the binary Merkle root over a block's transaction
// hashes, duplicating the final element on an odd level.
func MerkleRoot(txs []*MsgTx) chainhash.Hash {
	if len(txs) == 0 {
		return chainhash.ZeroHash
	}
	level := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		level[i] = tx.Hash()
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := range next {
			buf := make([]byte, 0, chainhash.HashSize*2)
			buf = append(buf, level[2*i][:]...)
			buf = append(buf, level[2*i+1][:]...)
			next[i] = chainhash.HashH(buf)
		}
		level = next
	}
	return level[0]
}
