// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/bureau-mux/lib/muxclient"
	"github.com/bureau-foundation/bureau-mux/lib/muxserver"
	"github.com/bureau-foundation/bureau-mux/lib/ptyproc"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/testutil"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

func TestNoListenerMissingSocket(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "absent.sock")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := muxclient.Ping(ctx, path)
	if err == nil || !noListener(err) {
		t.Fatalf("Ping error = %v, want a missing-listener error", err)
	}
}

func TestNoListenerStaleSocket(t *testing.T) {
	path := filepath.Join(testutil.SocketDir(t), "stale.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	// Leave the file behind with nobody accepting on it.
	listener.(*net.UnixListener).SetUnlinkOnClose(false)
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = muxclient.Ping(ctx, path)
	if err == nil || !noListener(err) {
		t.Fatalf("Ping error = %v, want connection refused", err)
	}
}

func TestNoListenerOtherErrors(t *testing.T) {
	if noListener(errors.New("ping returned nil")) {
		t.Error("noListener accepted an unrelated error")
	}
	if noListener(context.DeadlineExceeded) {
		t.Error("noListener accepted a timeout")
	}
}

// pairSpawner backs each session with one end of a socket pair and
// hands the other end to the test as the child's side.
type pairSpawner struct {
	children chan int
}

func (s *pairSpawner) Spawn(options ptyproc.Options) (ptyproc.Process, error) {
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	s.children <- pair[1]
	return &pairProcess{fd: pair[0], released: make(chan struct{})}, nil
}

type pairProcess struct {
	fd          int
	releaseOnce sync.Once
	released    chan struct{}
}

func (p *pairProcess) FD() int                        { return p.fd }
func (p *pairProcess) PID() int                       { return os.Getpid() }
func (p *pairProcess) Resize(rows, columns int) error { return nil }
func (p *pairProcess) Signal(syscall.Signal) error    { return nil }

func (p *pairProcess) Wait() (int, error) {
	<-p.released
	return 0, nil
}

func (p *pairProcess) Release() error {
	p.releaseOnce.Do(func() { close(p.released) })
	return nil
}

// detachingRenderer detaches as soon as the session is attached.
type detachingRenderer struct {
	attached []uint64
	quitErr  error
}

func (r *detachingRenderer) Attached(sessionID uint64, sink *muxclient.InputSink) {
	r.attached = append(r.attached, sessionID)
	r.quitErr = sink.Quit()
}

func (r *detachingRenderer) Redraw(value.Value) {}
func (r *detachingRenderer) Closed(error)       {}

// TestAutoStartedServerReachesSession starts a real server on the first
// refused connect. The server must still be listening when the
// interactive client connects, and the session it spawns keeps the
// server alive after the client detaches.
func TestAutoStartedServerReachesSession(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "mux.sock")
	spawner := &pairSpawner{children: make(chan int, 1)}
	served := make(chan error, 1)

	starts := 0
	start := func() (<-chan error, error) {
		starts++
		loop, err := reactor.NewLoop()
		if err != nil {
			return nil, err
		}
		server := muxserver.New(muxserver.Options{
			Reactor: loop,
			Spawner: spawner,
			Shell:   "/bin/sh",
			Rows:    24,
			Columns: 80,
		})
		go func() {
			defer loop.Release()
			served <- server.Serve(socketPath)
		}()
		return served, nil
	}

	connects := 0
	renderer := &detachingRenderer{}
	connect := func() error {
		connects++
		loop, err := reactor.NewLoop()
		if err != nil {
			return err
		}
		defer loop.Release()
		client := muxclient.New(muxclient.Options{
			Reactor:    loop,
			SocketPath: socketPath,
			Renderer:   renderer,
		})
		return client.Run()
	}

	if err := connectWithAutoStart(socketPath, true, start, connect); err != nil {
		t.Fatalf("connectWithAutoStart: %v", err)
	}
	if starts != 1 {
		t.Errorf("server started %d times, want 1", starts)
	}
	if connects < 2 {
		t.Errorf("connect ran %d times, want the refused attempt and a retry", connects)
	}
	if len(renderer.attached) != 1 || renderer.attached[0] != 1 {
		t.Fatalf("attached = %v, want session 1", renderer.attached)
	}
	if renderer.quitErr != nil {
		t.Errorf("Quit: %v", renderer.quitErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions, err := muxclient.ListSessions(ctx, socketPath)
	if err != nil {
		t.Fatalf("ListSessions after detach: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != 1 {
		t.Fatalf("sessions = %+v, want session 1", sessions)
	}

	child := testutil.RequireReceive(t, spawner.children, 5*time.Second, "session spawn")
	unix.Close(child)
	if err := testutil.RequireReceive(t, served, 5*time.Second, "Serve to return"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestConnectWithAutoStartDisabled(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "mux.sock")
	refused := fmt.Errorf("connecting to %s: %w", socketPath, syscall.ENOENT)
	start := func() (<-chan error, error) {
		t.Fatal("server started with auto-start off")
		return nil, nil
	}
	err := connectWithAutoStart(socketPath, false, start, func() error { return refused })
	if !errors.Is(err, syscall.ENOENT) || !strings.Contains(err.Error(), "auto_start is off") {
		t.Fatalf("error = %v, want the refused connect with a hint", err)
	}
}

func TestConnectWithAutoStartOtherErrorIsReturned(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "mux.sock")
	failure := errors.New("session 7 does not exist")
	start := func() (<-chan error, error) {
		t.Fatal("server started for an error that is not a missing listener")
		return nil, nil
	}
	if err := connectWithAutoStart(socketPath, true, start, func() error { return failure }); err != failure {
		t.Fatalf("error = %v, want %v", err, failure)
	}
}

func TestConnectWithAutoStartServerExitsEarly(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "mux.sock")
	exited := make(chan error, 1)
	exited <- errors.New("exit status 1")
	start := func() (<-chan error, error) { return exited, nil }
	connects := 0
	connect := func() error {
		connects++
		return fmt.Errorf("connect: %w", syscall.ECONNREFUSED)
	}
	err := connectWithAutoStart(socketPath, true, start, connect)
	if err == nil || !strings.Contains(err.Error(), "exited before listening") {
		t.Fatalf("error = %v, want early exit", err)
	}
	if connects != 1 {
		t.Errorf("connect ran %d times after the server died", connects)
	}
}
