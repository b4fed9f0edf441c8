// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package database abstracts the persisted key-value store the consensus
// core commits to. The only operations the core needs are point reads and
// atomic multi-write batches; any engine offering those can back it. The
// goleveldb engine is wired by the solidusd entry point; an in-memory
// implementation backs every package's tests.
package database

import "errors"

// ErrKeyNotFound is returned by Get when the requested key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Batch accumulates writes that are applied atomically by Update: either
// every Put/Delete in the batch lands, or none do.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// DB is the persisted key-value store behind the consensus core. All
// methods are safe for concurrent use.
type DB interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Has reports whether key is present.
	Has(key []byte) (bool, error)

	// Update runs fn with a fresh batch and atomically applies the batch
	// when fn returns nil. When fn returns an error nothing is written
	// and the error is returned.
	Update(fn func(b Batch) error) error

	// Close releases the underlying resources. No other method may be
	// called afterwards.
	Close() error
}
