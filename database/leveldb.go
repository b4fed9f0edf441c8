// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var errClosed = errors.New("database is closed")

// levelDB adapts a goleveldb store to the DB interface. goleveldb's
// leveldb.Batch is already atomic under a single Write call, which is
// exactly the contract Update requires.
type levelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if necessary) a goleveldb-backed DB at the
// given path.
func OpenLevelDB(path string) (DB, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &levelDB{db: db}, nil
}

// ldbBatch wraps a leveldb.Batch as the Batch interface.
type ldbBatch struct {
	batch *leveldb.Batch
}

func (b *ldbBatch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *ldbBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

func (l *levelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return v, nil
}

func (l *levelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *levelDB) Update(fn func(b Batch) error) error {
	batch := &ldbBatch{batch: new(leveldb.Batch)}
	if err := fn(batch); err != nil {
		return err
	}
	return l.db.Write(batch.batch, &opt.WriteOptions{Sync: true})
}

func (l *levelDB) Close() error {
	return l.db.Close()
}
