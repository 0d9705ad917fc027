// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/config"
)

const (
	serverStartTimeout = 5 * time.Second
	serverPollInterval = 25 * time.Millisecond
)

// serverStarter launches a server and returns a channel that receives
// its exit status.
type serverStarter func() (exited <-chan error, err error)

// connectWithAutoStart runs connect. When it fails because nothing
// listens on socketPath and autoStart is set, it starts a server once,
// waits for the socket file to appear and runs connect again.
//
// Readiness is never checked with a connection of its own: a fresh
// server with no sessions drains as soon as its first client leaves,
// so the first connection it sees must be the one that spawns.
func connectWithAutoStart(socketPath string, autoStart bool, start serverStarter, connect func() error) error {
	err := connect()
	if err == nil || !noListener(err) {
		return err
	}
	if !autoStart {
		return fmt.Errorf("no server on %s and client.auto_start is off: %w", socketPath, err)
	}

	exited, err := start()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(serverStartTimeout)
	if err := waitForSocket(socketPath, exited, deadline); err != nil {
		return err
	}
	for {
		err := connect()
		if err == nil || !noListener(err) {
			return err
		}
		// The socket file exists between bind and listen.
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not start listening on %s within %s: %w", socketPath, serverStartTimeout, err)
		}
		select {
		case waitErr := <-exited:
			return fmt.Errorf("server exited before accepting: %v", waitErr)
		case <-time.After(serverPollInterval):
		}
	}
}

// waitForSocket polls until path is a socket, the server exits or the
// deadline passes.
func waitForSocket(path string, exited <-chan error, deadline time.Time) error {
	for {
		info, err := os.Stat(path)
		if err == nil && info.Mode()&os.ModeSocket != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not create %s within %s", path, serverStartTimeout)
		}
		select {
		case waitErr := <-exited:
			return fmt.Errorf("server exited before listening: %v", waitErr)
		case <-time.After(serverPollInterval):
		}
	}
}

// startServer launches bureau-mux-server detached from this terminal.
func startServer(cfg *config.Config, configPath string, logger *slog.Logger) (<-chan error, error) {
	path, err := cfg.ServerPath()
	if err != nil {
		return nil, err
	}
	args := []string{"--socket", cfg.Paths.Socket}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	command := exec.Command(path, args...)
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}
	logger.Info("started server", "path", path, "pid", command.Process.Pid, "socket", cfg.Paths.Socket)
	exited := make(chan error, 1)
	go func() { exited <- command.Wait() }()
	return exited, nil
}

// noListener reports whether a dial failed because no server owns the
// socket path, as opposed to a server that answered badly.
func noListener(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT)
}
