// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package muxserver

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/bureau-mux/lib/clock"
	"github.com/bureau-foundation/bureau-mux/lib/ptyproc"
	"github.com/bureau-foundation/bureau-mux/lib/reactor"
	"github.com/bureau-foundation/bureau-mux/lib/redraw"
	"github.com/bureau-foundation/bureau-mux/lib/rpc"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSpawner hands out fakeProcesses whose descriptors come from
// nextFD, or from fds when the test supplies real ones.
type fakeSpawner struct {
	mu        sync.Mutex
	nextFD    int
	fds       []int
	err       error
	spawned   []ptyproc.Options
	processes []*fakeProcess
}

func (s *fakeSpawner) Spawn(options ptyproc.Options) (ptyproc.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	fd := s.nextFD
	if len(s.fds) > 0 {
		fd, s.fds = s.fds[0], s.fds[1:]
	} else {
		s.nextFD++
	}
	process := &fakeProcess{
		fd:       fd,
		pid:      4000 + len(s.processes),
		released: make(chan struct{}),
	}
	s.spawned = append(s.spawned, options)
	s.processes = append(s.processes, process)
	return process, nil
}

func (s *fakeSpawner) process(t *testing.T, index int) *fakeProcess {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= len(s.processes) {
		t.Fatalf("only %d processes spawned, want index %d", len(s.processes), index)
	}
	return s.processes[index]
}

type fakeProcess struct {
	fd  int
	pid int

	mu          sync.Mutex
	resizes     [][2]int
	signals     []syscall.Signal
	releaseOnce sync.Once
	released    chan struct{}
}

func (p *fakeProcess) FD() int  { return p.fd }
func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Resize(rows, columns int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, [2]int{rows, columns})
	return nil
}

func (p *fakeProcess) Signal(signal syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, signal)
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.released
	return 0, nil
}

func (p *fakeProcess) Release() error {
	p.releaseOnce.Do(func() { close(p.released) })
	return nil
}

const listenFD = 3

// harness drives a Server over a reactor.Fake.
type harness struct {
	t       *testing.T
	fake    *reactor.Fake
	spawner *fakeSpawner
	server  *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := reactor.NewFake()
	spawner := &fakeSpawner{nextFD: 100}
	server := New(Options{
		Reactor: fake,
		Spawner: spawner,
		Clock:   clock.Fake(epoch),
		Shell:   "/bin/sh",
		Rows:    24,
		Columns: 80,
	})
	server.Start(listenFD)
	return &harness{t: t, fake: fake, spawner: spawner, server: server}
}

func (h *harness) run() {
	h.t.Helper()
	if err := h.fake.Run(); err != nil {
		h.t.Fatalf("Run: %v", err)
	}
}

func (h *harness) accept(fd int) {
	h.t.Helper()
	if err := h.fake.Complete(listenFD, reactor.OpAccept, reactor.Result{FD: fd}); err != nil {
		h.t.Fatal(err)
	}
	h.run()
}

func (h *harness) disconnect(fd int) {
	h.t.Helper()
	if err := h.fake.CompleteRecv(fd, nil); err != nil {
		h.t.Fatal(err)
	}
	h.run()
}

func (h *harness) deliver(fd int, data []byte) {
	h.t.Helper()
	if err := h.fake.CompleteRecv(fd, data); err != nil {
		h.t.Fatal(err)
	}
	h.run()
}

func (h *harness) deliverMessages(fd int, messages ...rpc.Message) {
	h.t.Helper()
	var data []byte
	for _, message := range messages {
		data = append(data, encode(h.t, message)...)
	}
	h.deliver(fd, data)
}

// sent completes the oldest send on fd in full and decodes it.
func (h *harness) sent(fd int) rpc.Message {
	h.t.Helper()
	data, err := h.fake.CompleteSend(fd)
	if err != nil {
		h.t.Fatal(err)
	}
	h.run()
	message, err := rpc.Decode(data)
	if err != nil {
		h.t.Fatalf("decoding sent bytes % x: %v", data, err)
	}
	return message
}

// call delivers a request and returns its response.
func (h *harness) call(fd int, msgid uint32, method string, params ...value.Value) rpc.Message {
	h.t.Helper()
	h.deliverMessages(fd, rpc.NewRequest(msgid, method, params...))
	response := h.sent(fd)
	if response.Type != rpc.TypeResponse || response.MsgID != msgid {
		h.t.Fatalf("reply to %s = %+v, want response with msgid %d", method, response, msgid)
	}
	return response
}

func encode(t *testing.T, message rpc.Message) []byte {
	t.Helper()
	data, err := rpc.Encode(message)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

// redrawEvents asserts message is a redraw notification and parses it.
func redrawEvents(t *testing.T, message rpc.Message) []redraw.Event {
	t.Helper()
	if message.Type != rpc.TypeNotification || message.Method != "redraw" {
		t.Fatalf("got %+v, want redraw notification", message)
	}
	events, err := redraw.Parse(message.Params)
	if err != nil {
		t.Fatalf("redraw.Parse: %v", err)
	}
	return events
}

func containsFD(fds []int, fd int) bool {
	for _, candidate := range fds {
		if candidate == fd {
			return true
		}
	}
	return false
}
