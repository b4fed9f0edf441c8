// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"time"
)

// WithBackoff retries fn with exponential backoff until it succeeds or
// maxAttempts are exhausted, returning the final error. It implements the
// tier-2 soft-I/O policy: a temporary persistence failure is retried a
// bounded number of times before the caller escalates to fatal.
func WithBackoff(maxAttempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
