// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/sys/unix"
)

// Fake is a Reactor that performs no I/O. Socket, Connect, Accept, Send,
// and Recv stay pending until the test resolves them with Complete or
// one of its conveniences. Close and Cancel complete on submission with
// the same semantics as Loop.
//
// RunOnce and Run only dispatch completions that are already ready:
// RunOnce returns ErrIdle when none is, and Run returns once the ready
// queue is empty even if operations are still pending. Tests check
// Outstanding to tell a finished scenario from a stalled one.
type Fake struct {
	core
	closed []int
}

// Result is an injected outcome. FD is the new descriptor for Socket
// and Accept; N the byte count for Send and Recv.
type Result struct {
	FD  int
	N   int
	Err error
}

// PendingOp describes an operation waiting for injection.
type PendingOp struct {
	ID      uint64
	Kind    OpKind
	FD      int
	Address unix.Sockaddr
	Length  int
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{core: newCore()}
}

func (f *Fake) Socket(domain, socketType, protocol int, context Context) *Task {
	return f.newTask(OpSocket, NoFD, context)
}

func (f *Fake) Connect(fd int, address unix.Sockaddr, context Context) *Task {
	task := f.newTask(OpConnect, fd, context)
	task.address = address
	return task
}

func (f *Fake) Accept(fd int, context Context) *Task {
	return f.newTask(OpAccept, fd, context)
}

func (f *Fake) Send(fd int, buffer []byte, context Context) *Task {
	task := f.newTask(OpSend, fd, context)
	task.buffer = buffer
	return task
}

func (f *Fake) Recv(fd int, buffer []byte, context Context) *Task {
	task := f.newTask(OpRecv, fd, context)
	task.buffer = buffer
	return task
}

func (f *Fake) Close(fd int, context Context) *Task {
	task := f.newTask(OpClose, fd, context)
	for _, pending := range f.pendingInOrder() {
		if pending.fd == fd && pending != task {
			f.fail(pending, ErrClosed)
		}
	}
	f.closed = append(f.closed, fd)
	f.succeed(task)
	return task
}

func (f *Fake) Cancel(target *Task, context Context) *Task {
	task := f.newTask(OpCancel, NoFD, context)
	f.cancel(task, target)
	return task
}

// RunOnce dispatches the oldest ready completion, or returns ErrIdle.
func (f *Fake) RunOnce() error {
	if !f.dispatchOne() {
		return ErrIdle
	}
	return nil
}

// Run dispatches ready completions, including those produced by the
// handlers it runs, until none remain.
func (f *Fake) Run() error {
	for f.dispatchOne() {
	}
	return nil
}

// Complete resolves the oldest pending operation of kind on fd with
// result. It never touches an operation on another descriptor.
func (f *Fake) Complete(fd int, kind OpKind, result Result) error {
	task := f.find(fd, kind)
	if task == nil {
		return fmt.Errorf("reactor fake: no pending %s on fd %d", kind, fd)
	}
	newFD := NoFD
	if kind == OpSocket || kind == OpAccept {
		newFD = result.FD
	}
	if result.Err != nil {
		newFD = NoFD
	}
	f.complete(task, newFD, result.N, result.Err)
	return nil
}

// CompleteRecv copies data into the oldest pending Recv on fd and
// completes it with len(data) bytes. Empty data is an orderly
// shutdown.
func (f *Fake) CompleteRecv(fd int, data []byte) error {
	task := f.find(fd, OpRecv)
	if task == nil {
		return fmt.Errorf("reactor fake: no pending recv on fd %d", fd)
	}
	if len(data) > len(task.buffer) {
		return fmt.Errorf("reactor fake: %d bytes do not fit recv buffer of %d on fd %d", len(data), len(task.buffer), fd)
	}
	n := copy(task.buffer, data)
	f.complete(task, NoFD, n, nil)
	return nil
}

// CompleteSend completes the oldest pending Send on fd as fully
// written and returns a copy of the bytes it carried.
func (f *Fake) CompleteSend(fd int) ([]byte, error) {
	task := f.find(fd, OpSend)
	if task == nil {
		return nil, fmt.Errorf("reactor fake: no pending send on fd %d", fd)
	}
	data := bytes.Clone(task.buffer)
	f.complete(task, NoFD, len(data), nil)
	return data, nil
}

// HasPending reports whether an operation of kind is pending on fd.
func (f *Fake) HasPending(fd int, kind OpKind) bool {
	return f.find(fd, kind) != nil
}

// Pending lists pending operations in submission order.
func (f *Fake) Pending() []PendingOp {
	var ops []PendingOp
	for _, task := range f.pendingInOrder() {
		ops = append(ops, PendingOp{
			ID:      task.id,
			Kind:    task.kind,
			FD:      task.fd,
			Address: task.address,
			Length:  len(task.buffer),
		})
	}
	return ops
}

// Closed lists the descriptors passed to Close, in order.
func (f *Fake) Closed() []int {
	return append([]int(nil), f.closed...)
}

// find returns the oldest pending task matching fd and kind. Task ids
// grow with submission, so the smallest id is the oldest.
func (f *Fake) find(fd int, kind OpKind) *Task {
	var oldest *Task
	for _, task := range f.pending {
		if task.fd != fd || task.kind != kind {
			continue
		}
		if oldest == nil || task.id < oldest.id {
			oldest = task
		}
	}
	return oldest
}

func (f *Fake) pendingInOrder() []*Task {
	tasks := make([]*Task, 0, len(f.pending))
	for _, task := range f.pending {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].id < tasks[j].id })
	return tasks
}
