// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !windows && !plan9

// Package limits raises the process resource limits the node depends on
// before any database or network activity starts.
package limits

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	fileLimitWant = 2048
	fileLimitMin  = 1024
)

// SetLimits raises the soft open-file limit to a value large enough for
// the database engine's file handles, erroring when even the minimum
// cannot be obtained.
func SetLimits() error {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return err
	}
	if rLimit.Cur >= fileLimitWant {
		return nil
	}

	rLimit.Cur = fileLimitWant
	if rLimit.Max < fileLimitWant {
		rLimit.Cur = rLimit.Max
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return fmt.Errorf("failed to raise open-file limit: %v", err)
	}
	if rLimit.Cur < fileLimitMin {
		return fmt.Errorf("open-file limit %d is below the required minimum %d",
			rLimit.Cur, fileLimitMin)
	}
	return nil
}
