// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/solidus-chain/solidusd/blockchain"
	"github.com/solidus-chain/solidusd/database"
	"github.com/solidus-chain/solidusd/governance"
	"github.com/solidus-chain/solidusd/limits"
	"github.com/solidus-chain/solidusd/masternode"
	"github.com/solidus-chain/solidusd/peg"
	"github.com/solidus-chain/solidusd/peg/fraudproof"
	"github.com/solidus-chain/solidusd/rpc/wsnotify"
	"github.com/solidus-chain/solidusd/stake"
)

// version is set at build time via -ldflags.
var version = "0.1.0-pre"

func main() {
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}
	if err := solidusdMain(); err != nil {
		os.Exit(1)
	}
}

func solidusdMain() error {
	cfg, params, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("solidusd version %s\n", version)
		return nil
	}

	initLogRotator(filepath.Join(cfg.LogDir, "solidusd.log"))
	defer logRotator.Close()
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	// An invariant violation inside the writer is tier-3: log it loudly
	// and exit non-zero, never continue.
	defer func() {
		if r := recover(); r != nil {
			solidLog.Criticalf("Fatal consensus error: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	solidLog.Infof("Version %s, network %s", version, params.Name)

	db, err := database.OpenLevelDB(filepath.Join(cfg.DataDir, "chainstate"))
	if err != nil {
		solidLog.Errorf("Failed to open database: %v", err)
		return err
	}
	defer db.Close()

	pegMgr := peg.New(params)
	chain, err := blockchain.New(&blockchain.Config{
		Params: params,
		DB:     db,
		Registries: &blockchain.RegistryBundle{
			Tickets:     stake.New(params),
			Masternodes: masternode.New(params),
			Governance:  governance.New(params),
			Peg:         pegMgr,
			FraudProofs: fraudproof.New(params, pegMgr),
		},
	})
	if err != nil {
		solidLog.Errorf("Failed to initialize chain: %v", err)
		return err
	}

	best := chain.BestSnapshot()
	solidLog.Infof("Chain tip %v (height %d, state root %v)", best.Hash, best.Height, best.StateRoot)

	// Publish tip notifications over websockets for wallet/RPC
	// collaborators.
	ntfnServer := wsnotify.NewServer()
	go ntfnServer.Run(chain.Subscribe(128))
	httpServer := &http.Server{Addr: cfg.NotifyAddr, Handler: ntfnServer}
	go func() {
		solidLog.Infof("Notification server listening on %s", cfg.NotifyAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			solidLog.Errorf("Notification server: %v", err)
		}
	}()

	// Block until the process is interrupted. Candidate blocks arrive
	// through the P2P collaborator, which is wired in separately from
	// this consensus-core binary.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	solidLog.Infof("Shutting down")
	ntfnServer.Stop()
	httpServer.Close()
	return nil
}
