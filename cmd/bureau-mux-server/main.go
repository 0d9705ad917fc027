// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-mux-server hosts PTY sessions for bureau-mux clients on a Unix
// socket. It exits, removing the socket, once no client is connected
// and no session is running. bureau-mux starts it on demand.
//
// Usage:
//
//	bureau-mux-server [--config FILE] [--socket PATH] [--log-file PATH]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bureau-mux/lib/config"
	"github.com/bureau-foundation/bureau-mux/lib/muxserver"
	"github.com/bureau-foundation/bureau-mux/lib/process"
	"github.com/bureau-foundation/bureau-mux/lib/ptyproc"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		logFile     string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("bureau-mux-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&socketPath, "socket", "", "Unix socket to listen on (overrides paths.socket)")
	flagSet.StringVar(&logFile, "log-file", "", "write JSON logs to this file (overrides paths.log)")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("bureau-mux-server %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}
	if logFile != "" {
		cfg.Paths.Log = logFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := process.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger, closer, err := process.OpenLogFile(cfg.Paths.Log, level)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	logger = logger.With("component", "bureau-mux-server", "pid", os.Getpid())

	loop, err := reactor.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Release()

	server := muxserver.New(muxserver.Options{
		Reactor: loop,
		Spawner: ptyproc.PTYSpawner{},
		Logger:  logger,
		Shell:   cfg.Session.Shell,
		Rows:    cfg.Session.Rows,
		Columns: cfg.Session.Cols,
	})
	logger.Info("starting", "version", version.Info(), "environment", string(cfg.Environment))
	if err := server.Serve(cfg.Paths.Socket); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}
	logger.Info("exiting")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
