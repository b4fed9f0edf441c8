// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire defines the canonical binary encodings of the consensus
// data model: outpoints, transactions (one variant per tagged-union
// member), blocks and headers. Encoding is hand-written, not
// reflection-based; field order here is the field order used everywhere a
// hash is taken over these types.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/solidus-chain/solidusd/chainhash"
)

// ErrMalformedWire is returned when a decode cannot make sense of its input.
var ErrMalformedWire = errors.New("wire: malformed encoding")

// MaxVarBytesLen bounds any single length-prefixed byte blob decoded from
// the wire, protecting the decoder from a hostile huge length prefix.
const MaxVarBytesLen = 1 << 24

type encoder struct {
	buf []byte
}

func (e *encoder) writeUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeInt64(v int64) {
	e.writeUint64(uint64(v))
}

func (e *encoder) writeHash(h chainhash.Hash) {
	e.buf = append(e.buf, h[:]...)
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.writeUint8(1)
	} else {
		e.writeUint8(0)
	}
}

func (e *encoder) writeVarBytes(b []byte) {
	e.writeUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytes() []byte {
	return e.buf
}

type decoder struct {
	buf []byte
	off int
}

func newDecoder(b []byte) *decoder {
	return &decoder{buf: b}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) readUint8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *decoder) readUint16() (uint16, error) {
	if d.remaining() < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) readUint32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) readInt64() (int64, error) {
	v, err := d.readUint64()
	return int64(v), err
}

func (d *decoder) readBool() (bool, error) {
	v, err := d.readUint8()
	return v != 0, err
}

func (d *decoder) readHash() (chainhash.Hash, error) {
	var h chainhash.Hash
	if d.remaining() < chainhash.HashSize {
		return h, io.ErrUnexpectedEOF
	}
	copy(h[:], d.buf[d.off:d.off+chainhash.HashSize])
	d.off += chainhash.HashSize
	return h, nil
}

func (d *decoder) readVarBytes() ([]byte, error) {
	n, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if n > MaxVarBytesLen || d.remaining() < int(n) {
		return nil, ErrMalformedWire
	}
	b := make([]byte, n)
	copy(b, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return b, nil
}
