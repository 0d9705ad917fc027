// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-mux attaches the terminal to a session on the bureau-mux
// server, starting the server if none is running.
//
// Usage:
//
//	bureau-mux [flags] [-- command [args...]]
//
// With no --attach a new session is spawned running the configured
// shell, or command when given. The detach key (ctrl-q by default)
// leaves the session running on the server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bureau-mux/lib/config"
	"github.com/bureau-foundation/bureau-mux/lib/muxclient"
	"github.com/bureau-foundation/bureau-mux/lib/process"
	"github.com/bureau-foundation/bureau-mux/lib/version"
)

const requestTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		attachID    uint64
		list        bool
		killID      uint64
		directory   string
		logFile     string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("bureau-mux", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&socketPath, "socket", "", "server socket (overrides paths.socket)")
	flagSet.Uint64VarP(&attachID, "attach", "a", 0, "attach to an existing session instead of spawning one")
	flagSet.BoolVarP(&list, "list", "l", false, "list sessions and exit")
	flagSet.Uint64Var(&killID, "kill", 0, "send SIGHUP to a session and exit")
	flagSet.StringVarP(&directory, "directory", "C", "", "working directory for a spawned session")
	flagSet.StringVar(&logFile, "log-file", "", "write client logs to this file (default: discard)")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("bureau-mux %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Paths.Socket = socketPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch {
	case list:
		return listSessions(cfg.Paths.Socket)
	case killID != 0:
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return muxclient.KillSession(ctx, cfg.Paths.Socket, killID)
	}

	level, err := process.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	// The terminal belongs to the session, so logs never go to stderr.
	logger, closer, err := process.OpenLogFile(logFile, level)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	} else {
		logger = process.NewLogger(io.Discard, level)
	}

	return attach(attachOptions{
		config:     cfg,
		configPath: configPath,
		sessionID:  attachID,
		command:    flagSet.Args(),
		directory:  directory,
		logger:     logger,
	})
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func listSessions(socketPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	sessions, err := muxclient.ListSessions(ctx, socketPath)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tPID\tSIZE\tCLIENTS\tSTARTED\tCOMMAND")
	for _, session := range sessions {
		fmt.Fprintf(writer, "%d\t%d\t%dx%d\t%d\t%s\t%s\n",
			session.ID, session.PID, session.Cols, session.Rows, session.Clients,
			session.StartedAt.Format(time.DateTime), session.Command)
	}
	return writer.Flush()
}
