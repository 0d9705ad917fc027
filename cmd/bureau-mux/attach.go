// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/bureau-mux/lib/clock"
	"github.com/bureau-foundation/bureau-mux/lib/config"
	"github.com/bureau-foundation/bureau-mux/lib/muxclient"
	"github.com/bureau-foundation/bureau-mux/lib/muxproto"
	"github.com/bureau-foundation/bureau-mux/lib/painter"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

type attachOptions struct {
	config     *config.Config
	configPath string
	sessionID  uint64
	command    []string
	directory  string
	logger     *slog.Logger
}

// attach runs one client connection with the terminal in raw mode and
// returns once the connection has closed. A missing server is started
// on the first refused connect.
func attach(options attachOptions) error {
	stdin, stdout := int(os.Stdin.Fd()), int(os.Stdout.Fd())
	if !term.IsTerminal(stdin) || !term.IsTerminal(stdout) {
		return errors.New("bureau-mux needs a terminal on stdin and stdout")
	}
	detachKey, err := options.config.DetachByte()
	if err != nil {
		return err
	}
	columns, rows, err := term.GetSize(stdout)
	if err != nil {
		return fmt.Errorf("reading terminal size: %w", err)
	}
	spawn := muxproto.SpawnOptions{Rows: rows, Cols: columns, Dir: options.directory}
	if len(options.command) > 0 {
		spawn.Command = options.command[0]
		spawn.Args = options.command[1:]
	}

	loop, err := reactor.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Release()

	profile := termenv.NewOutput(os.Stdout).EnvColorProfile()
	var (
		session *terminalSession
		client  *muxclient.Client
	)
	connect := func() error {
		session = &terminalSession{
			detachKey:     detachKey,
			detachKeyName: options.config.Client.DetachKey,
			keepalive:     options.config.Client.KeepaliveInterval,
			logger:        options.logger,
		}
		session.ctx, session.cancel = context.WithCancel(context.Background())
		defer session.cancel()
		client = muxclient.New(muxclient.Options{
			Reactor:    loop,
			SocketPath: options.config.Paths.Socket,
			SessionID:  options.sessionID,
			Spawn:      spawn,
			Renderer:   session,
			Logger:     options.logger,
		})
		session.painter = painter.New(painter.Options{
			Output:     os.Stdout,
			Profile:    profile,
			Highlights: client.Highlight,
		})
		err := client.Run()
		session.painter.Stop()
		return err
	}
	start := func() (<-chan error, error) {
		return startServer(options.config, options.configPath, options.logger)
	}

	saved, err := term.MakeRaw(stdin)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	runErr := connectWithAutoStart(options.config.Paths.Socket, options.config.Client.AutoStart, start, connect)
	term.Restore(stdin, saved)

	switch {
	case runErr == nil:
		return session.painter.Message("[detached from session %d]", client.SessionID())
	case errors.Is(runErr, muxclient.ErrSessionExited):
		return session.painter.Message("[session %d exited]", client.SessionID())
	}
	return runErr
}

// terminalSession connects a muxclient.Client to the local terminal.
// Its Renderer methods run on the reactor goroutine. The goroutines
// started by Attached stop with ctx.
type terminalSession struct {
	painter       *painter.Painter
	detachKey     byte
	detachKeyName string
	keepalive     time.Duration
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sink      *muxclient.InputSink
	announced bool
}

func (t *terminalSession) Attached(sessionID uint64, sink *muxclient.InputSink) {
	t.sink = sink
	if err := t.painter.Start(); err != nil {
		t.logger.Warn("starting painter", "error", err)
	}
	go t.forwardInput()
	go t.forwardResizes()
	go func() {
		if err := sink.Keepalive(t.ctx, clock.Real(), t.keepalive); err != nil {
			t.logger.Debug("keepalive stopped", "error", err)
		}
	}()
}

func (t *terminalSession) Redraw(batch value.Value) {
	if err := t.painter.Apply(batch); err != nil {
		t.logger.Warn("dropping redraw batch", "error", err)
		return
	}
	if !t.announced && t.sink != nil {
		t.announced = true
		t.painter.Status(fmt.Sprintf(" session %d  %s detaches ", t.sink.SessionID(), t.detachKeyName))
	}
}

func (t *terminalSession) Closed(err error) {
	t.logger.Debug("connection closed", "error", err)
	t.cancel()
}

// forwardInput copies stdin to the session until the detach key.
func (t *terminalSession) forwardInput() {
	buffer := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buffer)
		if t.ctx.Err() != nil {
			return
		}
		if n > 0 {
			data := buffer[:n]
			if index := bytes.IndexByte(data, t.detachKey); index >= 0 {
				if index > 0 {
					t.sink.SendInput(data[:index])
				}
				if err := t.sink.Quit(); err != nil {
					t.logger.Warn("sending detach", "error", err)
				}
				return
			}
			if err := t.sink.SendInput(data); err != nil {
				t.logger.Debug("input stopped", "error", err)
				return
			}
		}
		if err != nil {
			t.logger.Debug("reading stdin", "error", err)
			t.sink.Quit()
			return
		}
	}
}

// forwardResizes reports the terminal size on every SIGWINCH, and once
// at start so an attach to an existing session adopts this terminal.
func (t *terminalSession) forwardResizes() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGWINCH)
	defer signal.Stop(signals)
	signals <- syscall.SIGWINCH

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-signals:
			columns, rows, err := term.GetSize(int(os.Stdout.Fd()))
			if err != nil {
				t.logger.Debug("reading terminal size", "error", err)
				continue
			}
			if err := t.sink.SendResize(rows, columns); err != nil {
				return
			}
		}
	}
}
