// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build windows || plan9

package limits

// SetLimits is a no-op on platforms without settable file limits.
func SetLimits() error {
	return nil
}
