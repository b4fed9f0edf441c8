// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"sync"
)

// memDB is the map-backed DB used by tests and ephemeral simnet runs.
type memDB struct {
	mtx    sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemDB returns an empty in-memory DB.
func NewMemDB() DB {
	return &memDB{data: make(map[string][]byte)}
}

// memBatch buffers writes until Update applies them.
type memBatch struct {
	ops []memOp
}

type memOp struct {
	key    string
	value  []byte
	delete bool
}

func (b *memBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (m *memDB) Get(key []byte) ([]byte, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memDB) Has(key []byte) (bool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.closed {
		return false, errClosed
	}
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memDB) Update(fn func(b Batch) error) error {
	batch := &memBatch{}
	if err := fn(batch); err != nil {
		return err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return errClosed
	}
	for _, op := range batch.ops {
		if op.delete {
			delete(m.data, op.key)
			continue
		}
		m.data[op.key] = op.value
	}
	return nil
}

func (m *memDB) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
