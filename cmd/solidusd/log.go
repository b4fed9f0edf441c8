// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/governance"
	"github.com/solidus-chain/solidusd/masternode"
	"github.com/solidus-chain/solidusd/peg"
	"github.com/solidus-chain/solidusd/trie"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.  The backend must not be used before the log rotator has
	// been initialized, or data races and/or nil pointer dereferences
	// will occur.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	solidLog = backendLog.Logger("SOLD")
	chanLog  = backendLog.Logger("CHAN")
	mastLog  = backendLog.Logger("MAST")
	govnLog  = backendLog.Logger("GOVN")
	pegLog   = backendLog.Logger("PEGM")
	trieLog  = backendLog.Logger("TRIE")
)

// subsystemLoggers maps each subsystem identifier to its associated
// logger.
var subsystemLoggers = map[string]slog.Logger{
	"SOLD": solidLog,
	"CHAN": chanLog,
	"MAST": mastLog,
	"GOVN": govnLog,
	"PEGM": pegLog,
	"TRIE": trieLog,
}

func init() {
	blockchain.UseLogger(chanLog)
	masternode.UseLogger(mastLog)
	governance.UseLogger(govnLog)
	peg.UseLogger(pegLog)
	trie.UseLogger(trieLog)
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory.  It must be called before
// the package-global log rotator variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}
	logRotator = r
}

// setLogLevels sets the log level for all subsystem loggers.
func setLogLevels(logLevel string) error {
	level, ok := slog.LevelFromString(logLevel)
	if !ok {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}
