// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrConnectionRefused is returned by Connect when nothing listens
	// at the address.
	ErrConnectionRefused = errors.New("reactor: connection refused")

	// ErrConnectionReset is returned by Send or Recv when the peer
	// went away abruptly.
	ErrConnectionReset = errors.New("reactor: connection reset")

	// ErrClosed completes operations that were pending on a descriptor
	// when it was closed.
	ErrClosed = errors.New("reactor: descriptor closed")

	// ErrCanceled completes an operation removed by Cancel.
	ErrCanceled = errors.New("reactor: operation canceled")

	// ErrTaskDone completes a Cancel whose target had already
	// completed.
	ErrTaskDone = errors.New("reactor: task already completed")

	// ErrIdle is returned by RunOnce when no completion can ever be
	// produced.
	ErrIdle = errors.New("reactor: nothing outstanding")
)

// NoFD is the descriptor recorded for operations that do not target
// one (Socket, Cancel).
const NoFD = -1

// OpKind identifies an operation.
type OpKind uint8

const (
	OpSocket OpKind = iota + 1
	OpConnect
	OpAccept
	OpSend
	OpRecv
	OpClose
	OpCancel
)

func (kind OpKind) String() string {
	switch kind {
	case OpSocket:
		return "socket"
	case OpConnect:
		return "connect"
	case OpAccept:
		return "accept"
	case OpSend:
		return "send"
	case OpRecv:
		return "recv"
	case OpClose:
		return "close"
	case OpCancel:
		return "cancel"
	}
	return fmt.Sprintf("OpKind(%d)", uint8(kind))
}

// Handler receives completions.
type Handler interface {
	HandleCompletion(Completion)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Completion)

func (f HandlerFunc) HandleCompletion(completion Completion) { f(completion) }

// Context routes a completion back to its owner. A nil Handler makes
// the operation fire-and-forget.
type Context struct {
	Handler Handler
	Tag     uint16
}

// Completion is the result of one operation.
type Completion struct {
	Kind OpKind
	Tag  uint16

	// FD is the descriptor the operation targeted, or NoFD.
	FD int

	// NewFD is the descriptor created by a successful Socket or Accept.
	NewFD int

	// N is the byte count of a successful Send or Recv. A Recv with N
	// of zero and no error is an orderly shutdown by the peer.
	N int

	Err error
}

// Task is the handle of a submitted operation. Its fields are owned by
// the reactor; callers only pass it to Cancel and read Done from
// handlers.
type Task struct {
	id      uint64
	kind    OpKind
	fd      int
	context Context

	buffer  []byte
	address unix.Sockaddr

	done bool
}

// Kind returns the operation kind.
func (task *Task) Kind() OpKind { return task.kind }

// FD returns the descriptor the operation targets, or NoFD.
func (task *Task) FD() int { return task.fd }

// Done reports whether the operation's completion has been produced.
// A done task may still be waiting in the ready queue for dispatch.
func (task *Task) Done() bool { return task.done }

// Reactor is implemented by Loop and Fake.
type Reactor interface {
	// Socket opens a non-blocking, close-on-exec socket. The
	// completion's NewFD is the descriptor.
	Socket(domain, socketType, protocol int, context Context) *Task

	// Connect connects fd to address. A missing listener completes
	// with ErrConnectionRefused.
	Connect(fd int, address unix.Sockaddr, context Context) *Task

	// Accept waits for one connection on a listening fd. The
	// completion's NewFD is the non-blocking accepted descriptor.
	Accept(fd int, context Context) *Task

	// Send writes some prefix of buffer to fd. The completion's N may
	// be less than len(buffer). The buffer must not be modified until
	// the completion is dispatched.
	Send(fd int, buffer []byte, context Context) *Task

	// Recv reads up to len(buffer) bytes from fd into buffer.
	Recv(fd int, buffer []byte, context Context) *Task

	// Close fails all operations pending on fd with ErrClosed and then
	// closes it.
	Close(fd int, context Context) *Task

	// Cancel completes task with ErrCanceled if it is still pending.
	Cancel(task *Task, context Context) *Task

	// RunOnce dispatches exactly one completion, waiting for one if
	// necessary. It returns ErrIdle when nothing is outstanding.
	RunOnce() error

	// Run dispatches completions until nothing is outstanding.
	Run() error

	// Outstanding returns the number of submitted operations whose
	// completions have not been dispatched.
	Outstanding() int
}

// translateErrno maps connection errors to the package sentinels,
// keeping the errno reachable through errors.Is.
func translateErrno(kind OpKind, err error) error {
	switch {
	case errors.Is(err, unix.ECONNREFUSED):
		return fmt.Errorf("%s: %w: %w", kind, ErrConnectionRefused, err)
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EPIPE):
		return fmt.Errorf("%s: %w: %w", kind, ErrConnectionReset, err)
	}
	return fmt.Errorf("%s: %w", kind, err)
}
