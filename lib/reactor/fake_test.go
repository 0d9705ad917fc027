// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

// recorder collects completions in dispatch order.
type recorder struct {
	completions []Completion
}

func (r *recorder) HandleCompletion(completion Completion) {
	r.completions = append(r.completions, completion)
}

func (r *recorder) context(tag uint16) Context {
	return Context{Handler: r, Tag: tag}
}

func TestFakeInjectionResolvesOnlyMatchingDescriptor(t *testing.T) {
	fake := NewFake()
	first := &recorder{}
	second := &recorder{}
	bufferThree := make([]byte, 16)
	bufferFour := make([]byte, 16)
	fake.Recv(3, bufferThree, first.context(1))
	fake.Recv(4, bufferFour, second.context(2))

	if err := fake.CompleteRecv(4, []byte("hello")); err != nil {
		t.Fatalf("CompleteRecv: %v", err)
	}
	if err := fake.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(first.completions) != 0 {
		t.Errorf("fd 3 handler saw %d completions, want 0", len(first.completions))
	}
	if len(second.completions) != 1 {
		t.Fatalf("fd 4 handler saw %d completions, want 1", len(second.completions))
	}
	completion := second.completions[0]
	if completion.FD != 4 || completion.Kind != OpRecv || completion.Tag != 2 || completion.N != 5 {
		t.Errorf("completion = %+v", completion)
	}
	if string(bufferFour[:5]) != "hello" {
		t.Errorf("buffer = %q", bufferFour[:5])
	}
	if !fake.HasPending(3, OpRecv) {
		t.Error("fd 3 recv no longer pending")
	}
	if fake.Outstanding() != 1 {
		t.Errorf("Outstanding = %d, want 1", fake.Outstanding())
	}
}

func TestFakeInjectionResolvesOldestMatch(t *testing.T) {
	fake := NewFake()
	handler := &recorder{}
	fake.Send(5, []byte("one"), handler.context(1))
	fake.Recv(5, make([]byte, 4), handler.context(2))
	fake.Send(5, []byte("two"), handler.context(3))

	data, err := fake.CompleteSend(5)
	if err != nil {
		t.Fatalf("CompleteSend: %v", err)
	}
	if string(data) != "one" {
		t.Errorf("first send carried %q, want %q", data, "one")
	}
	data, err = fake.CompleteSend(5)
	if err != nil {
		t.Fatalf("CompleteSend: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("second send carried %q, want %q", data, "two")
	}
	fake.Run()

	if len(handler.completions) != 2 || handler.completions[0].Tag != 1 || handler.completions[1].Tag != 3 {
		t.Errorf("completions = %+v", handler.completions)
	}
	if _, err := fake.CompleteSend(5); err == nil {
		t.Error("CompleteSend with nothing pending succeeded")
	}
	if err := fake.Complete(6, OpRecv, Result{}); err == nil {
		t.Error("Complete on a descriptor with nothing pending succeeded")
	}
}

func TestFakeExactlyOneCompletionPerOperation(t *testing.T) {
	fake := NewFake()
	handler := &recorder{}
	fake.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0, handler.context(1))
	if err := fake.Complete(NoFD, OpSocket, Result{FD: 9}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := fake.Complete(NoFD, OpSocket, Result{FD: 10}); err == nil {
		t.Error("second injection into the same socket operation succeeded")
	}
	fake.Run()
	if len(handler.completions) != 1 || handler.completions[0].NewFD != 9 {
		t.Errorf("completions = %+v", handler.completions)
	}
}

func TestFakeCloseFailsPendingOperations(t *testing.T) {
	fake := NewFake()
	handler := &recorder{}
	fake.Recv(7, make([]byte, 8), handler.context(1))
	fake.Send(7, []byte("x"), handler.context(2))
	fake.Recv(8, make([]byte, 8), handler.context(3))
	fake.Close(7, handler.context(4))
	fake.Run()

	if len(handler.completions) != 3 {
		t.Fatalf("completions = %+v, want 3", handler.completions)
	}
	for _, completion := range handler.completions[:2] {
		if !errors.Is(completion.Err, ErrClosed) {
			t.Errorf("%s completion err = %v, want ErrClosed", completion.Kind, completion.Err)
		}
	}
	closeCompletion := handler.completions[2]
	if closeCompletion.Kind != OpClose || closeCompletion.Err != nil {
		t.Errorf("close completion = %+v", closeCompletion)
	}
	if !fake.HasPending(8, OpRecv) {
		t.Error("close of fd 7 disturbed fd 8")
	}
	if closed := fake.Closed(); len(closed) != 1 || closed[0] != 7 {
		t.Errorf("Closed() = %v", closed)
	}
}

func TestFakeCancel(t *testing.T) {
	fake := NewFake()
	handler := &recorder{}
	accept := fake.Accept(3, handler.context(1))
	fake.Cancel(accept, handler.context(2))
	fake.Run()

	if len(handler.completions) != 2 {
		t.Fatalf("completions = %+v", handler.completions)
	}
	if !errors.Is(handler.completions[0].Err, ErrCanceled) || handler.completions[0].Kind != OpAccept {
		t.Errorf("accept completion = %+v, want ErrCanceled", handler.completions[0])
	}
	if handler.completions[1].Kind != OpCancel || handler.completions[1].Err != nil {
		t.Errorf("cancel completion = %+v", handler.completions[1])
	}

	// Cancelling again is a safe no-op reported as ErrTaskDone.
	fake.Cancel(accept, handler.context(3))
	fake.Run()
	if len(handler.completions) != 3 || !errors.Is(handler.completions[2].Err, ErrTaskDone) {
		t.Errorf("second cancel = %+v, want ErrTaskDone", handler.completions[len(handler.completions)-1])
	}
	if fake.Outstanding() != 0 {
		t.Errorf("Outstanding = %d, want 0", fake.Outstanding())
	}
}

func TestFakeRunOnceSingleSteps(t *testing.T) {
	fake := NewFake()
	handler := &recorder{}
	fake.Close(3, handler.context(1))
	fake.Close(4, handler.context(2))

	if err := fake.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(handler.completions) != 1 {
		t.Fatalf("after one step: %d completions", len(handler.completions))
	}
	if err := fake.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if err := fake.RunOnce(); !errors.Is(err, ErrIdle) {
		t.Errorf("RunOnce on empty queue = %v, want ErrIdle", err)
	}
}

// connector is the two-step socket-then-connect state machine that the
// client runs, reduced to its error contract.
type connector struct {
	reactor Reactor
	fd      int
	result  []error
	closed  int
}

const (
	tagSocket uint16 = iota + 1
	tagConnect
	tagClose
)

func (c *connector) start() {
	c.fd = NoFD
	c.reactor.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0, Context{Handler: c, Tag: tagSocket})
}

func (c *connector) HandleCompletion(completion Completion) {
	switch completion.Tag {
	case tagSocket:
		if completion.Err != nil {
			c.result = append(c.result, completion.Err)
			return
		}
		c.fd = completion.NewFD
		c.reactor.Connect(c.fd, &unix.SockaddrUnix{Name: "/nonexistent"}, Context{Handler: c, Tag: tagConnect})
	case tagConnect:
		if completion.Err != nil {
			c.reactor.Close(c.fd, Context{Handler: c, Tag: tagClose})
		}
		c.result = append(c.result, completion.Err)
	case tagClose:
		c.closed++
	}
}

func TestFakeForcedErrorsInChainedOperations(t *testing.T) {
	t.Run("socket fails", func(t *testing.T) {
		fake := NewFake()
		machine := &connector{reactor: fake}
		machine.start()
		if err := fake.Complete(NoFD, OpSocket, Result{Err: unix.EMFILE}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		fake.Run()
		if len(machine.result) != 1 || !errors.Is(machine.result[0], unix.EMFILE) {
			t.Errorf("results = %v, want one EMFILE", machine.result)
		}
		if fake.Outstanding() != 0 {
			t.Errorf("Outstanding = %d, want 0", fake.Outstanding())
		}
	})

	t.Run("connect refused", func(t *testing.T) {
		fake := NewFake()
		machine := &connector{reactor: fake}
		machine.start()
		if err := fake.Complete(NoFD, OpSocket, Result{FD: 11}); err != nil {
			t.Fatalf("Complete socket: %v", err)
		}
		fake.Run()
		if err := fake.Complete(11, OpConnect, Result{Err: ErrConnectionRefused}); err != nil {
			t.Fatalf("Complete connect: %v", err)
		}
		fake.Run()
		if len(machine.result) != 1 || !errors.Is(machine.result[0], ErrConnectionRefused) {
			t.Errorf("results = %v, want one ErrConnectionRefused", machine.result)
		}
		if machine.closed != 1 {
			t.Errorf("descriptor closed %d times, want 1", machine.closed)
		}
		if fake.Outstanding() != 0 {
			t.Errorf("Outstanding = %d, want 0", fake.Outstanding())
		}
	})
}
