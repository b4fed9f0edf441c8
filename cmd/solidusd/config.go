// Copyright (c) 2024 The Solidus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/solidus-chain/solidusd/chaincfg"
)

const (
	defaultConfigFilename = "solidusd.conf"
	defaultLogDirname     = "logs"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultListen         = "127.0.0.1:9556"
)

// config defines the configuration options for solidusd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	TestNet     bool   `long:"testnet" description:"Use the test network"`
	SimNet      bool   `long:"simnet" description:"Use the simulation test network"`
	RegNet      bool   `long:"regnet" description:"Use the regression test network"`
	NotifyAddr  string `long:"notifylisten" description:"Address to serve websocket tip notifications on"`
}

// defaultHomeDir returns the default solidusd home directory.
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".solidusd")
}

// loadConfig initializes and parses the config using a config file and
// command line options, with command line options taking precedence.
func loadConfig() (*config, *chaincfg.Params, error) {
	home := defaultHomeDir()
	cfg := config{
		ConfigFile: filepath.Join(home, defaultConfigFilename),
		DataDir:    filepath.Join(home, defaultDataDirname),
		LogDir:     filepath.Join(home, defaultLogDirname),
		DebugLevel: defaultLogLevel,
		NotifyAddr: defaultListen,
	}

	preParser := flags.NewParser(&cfg, flags.HelpFlag)
	if _, err := preParser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Load additional config from file when present, then re-parse the
	// command line so its options take precedence.
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		iniParser := flags.NewIniParser(parser)
		if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
			return nil, nil, err
		}
	}
	if _, err := parser.Parse(); err != nil {
		return nil, nil, err
	}

	numNets := 0
	params := chaincfg.MainNetParams()
	if cfg.TestNet {
		numNets++
		params = chaincfg.TestNetParams()
	}
	if cfg.SimNet {
		numNets++
		params = chaincfg.SimNetParams()
	}
	if cfg.RegNet {
		numNets++
		params = chaincfg.RegNetParams()
	}
	if numNets > 1 {
		return nil, nil, fmt.Errorf("the testnet, simnet and regnet options may not be used together")
	}

	// Network-scope the data and log directories.
	cfg.DataDir = filepath.Join(cfg.DataDir, params.Name)
	cfg.LogDir = filepath.Join(cfg.LogDir, params.Name)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, err
	}
	return &cfg, params, nil
}
