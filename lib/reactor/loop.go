// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Loop is the epoll-backed Reactor. Operations are attempted as soon as
// they are submitted; one that would block is parked in its
// descriptor's reader or writer queue and retried when epoll reports
// readiness. Descriptors are registered edge-triggered on first park
// and deregistered on Close.
//
// A Loop is not safe for concurrent use. Submit operations only from
// the goroutine that runs it, which includes its handlers.
type Loop struct {
	core
	epollFD     int
	descriptors map[int]*descriptorQueues
	events      []unix.EpollEvent
}

// descriptorQueues holds the parked operations of one descriptor in
// submission order. Accept and Recv wait for readability; Connect and
// Send wait for writability.
type descriptorQueues struct {
	registered bool
	readers    []*Task
	writers    []*Task
}

// NewLoop creates a Loop with its own epoll instance.
func NewLoop() (*Loop, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Loop{
		core:        newCore(),
		epollFD:     epollFD,
		descriptors: make(map[int]*descriptorQueues),
		events:      make([]unix.EpollEvent, 64),
	}, nil
}

// Release closes the epoll instance. Operations still pending are
// abandoned without completions.
func (l *Loop) Release() error {
	return unix.Close(l.epollFD)
}

func (l *Loop) Socket(domain, socketType, protocol int, context Context) *Task {
	task := l.newTask(OpSocket, NoFD, context)
	fd, err := unix.Socket(domain, socketType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, protocol)
	if err != nil {
		l.fail(task, translateErrno(OpSocket, err))
		return task
	}
	l.complete(task, fd, 0, nil)
	return task
}

func (l *Loop) Connect(fd int, address unix.Sockaddr, context Context) *Task {
	task := l.newTask(OpConnect, fd, context)
	task.address = address
	err := unix.Connect(fd, address)
	switch {
	case err == nil:
		l.succeed(task)
	case errors.Is(err, unix.EINPROGRESS):
		l.park(task, false)
	default:
		l.fail(task, translateErrno(OpConnect, err))
	}
	return task
}

func (l *Loop) Accept(fd int, context Context) *Task {
	task := l.newTask(OpAccept, fd, context)
	l.submit(task, true)
	return task
}

func (l *Loop) Send(fd int, buffer []byte, context Context) *Task {
	task := l.newTask(OpSend, fd, context)
	task.buffer = buffer
	l.submit(task, false)
	return task
}

func (l *Loop) Recv(fd int, buffer []byte, context Context) *Task {
	task := l.newTask(OpRecv, fd, context)
	task.buffer = buffer
	l.submit(task, true)
	return task
}

func (l *Loop) Close(fd int, context Context) *Task {
	task := l.newTask(OpClose, fd, context)
	if queues, ok := l.descriptors[fd]; ok {
		for _, parked := range queues.readers {
			l.fail(parked, ErrClosed)
		}
		for _, parked := range queues.writers {
			l.fail(parked, ErrClosed)
		}
		if queues.registered {
			// The close below removes the registration anyway; DEL only
			// matters if the descriptor was duplicated.
			_ = unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
		}
		delete(l.descriptors, fd)
	}
	if err := unix.Close(fd); err != nil {
		l.fail(task, translateErrno(OpClose, err))
		return task
	}
	l.succeed(task)
	return task
}

func (l *Loop) Cancel(target *Task, context Context) *Task {
	task := l.newTask(OpCancel, NoFD, context)
	if target != nil && !target.done {
		if queues, ok := l.descriptors[target.fd]; ok {
			queues.readers = removeTask(queues.readers, target)
			queues.writers = removeTask(queues.writers, target)
		}
	}
	l.cancel(task, target)
	return task
}

func removeTask(queue []*Task, target *Task) []*Task {
	for i, task := range queue {
		if task == target {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}

// submit attempts task immediately unless earlier operations in the
// same direction are still parked, in which case it queues behind them.
func (l *Loop) submit(task *Task, reading bool) {
	if queues, ok := l.descriptors[task.fd]; ok {
		queue := queues.writers
		if reading {
			queue = queues.readers
		}
		if len(queue) > 0 {
			l.park(task, reading)
			return
		}
	}
	if !l.attempt(task) {
		l.park(task, reading)
	}
}

func (l *Loop) park(task *Task, reading bool) {
	queues, ok := l.descriptors[task.fd]
	if !ok {
		queues = &descriptorQueues{}
		l.descriptors[task.fd] = queues
	}
	if !queues.registered {
		event := unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
			Fd:     int32(task.fd),
		}
		if err := unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_ADD, task.fd, &event); err != nil {
			l.fail(task, fmt.Errorf("%s: epoll_ctl: %w", task.kind, err))
			return
		}
		queues.registered = true
	}
	if reading {
		queues.readers = append(queues.readers, task)
	} else {
		queues.writers = append(queues.writers, task)
	}
}

// attempt performs one non-blocking try of task. It returns false if
// the operation would block, leaving the task pending.
func (l *Loop) attempt(task *Task) bool {
	for {
		var err error
		switch task.kind {
		case OpAccept:
			var accepted int
			accepted, _, err = unix.Accept4(task.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
			if err == nil {
				l.complete(task, accepted, 0, nil)
				return true
			}
			if errors.Is(err, unix.ECONNABORTED) {
				continue
			}
		case OpRecv:
			var n int
			n, err = unix.Read(task.fd, task.buffer)
			if err == nil {
				l.complete(task, NoFD, n, nil)
				return true
			}
		case OpSend:
			var n int
			n, err = unix.Write(task.fd, task.buffer)
			if err == nil {
				l.complete(task, NoFD, n, nil)
				return true
			}
		case OpConnect:
			var socketError int
			socketError, err = unix.GetsockoptInt(task.fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if err == nil {
				switch errno := unix.Errno(socketError); errno {
				case 0:
					l.succeed(task)
					return true
				case unix.EINPROGRESS, unix.EALREADY:
					return false
				default:
					err = errno
				}
			}
		default:
			err = fmt.Errorf("operation %s cannot be retried", task.kind)
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return false
		}
		l.fail(task, translateErrno(task.kind, err))
		return true
	}
}

// RunOnce dispatches one completion, blocking in epoll_wait until one
// is ready.
func (l *Loop) RunOnce() error {
	for !l.dispatchOne() {
		if l.outstanding == 0 {
			return ErrIdle
		}
		if err := l.wait(); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches completions until nothing is outstanding.
func (l *Loop) Run() error {
	for l.outstanding > 0 {
		if err := l.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}

// wait blocks for readiness and retries parked operations.
func (l *Loop) wait() error {
	count, err := unix.EpollWait(l.epollFD, l.events, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll_wait: %w", err)
	}
	for _, event := range l.events[:count] {
		queues, ok := l.descriptors[int(event.Fd)]
		if !ok {
			continue
		}
		if event.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			queues.readers = l.retry(queues.readers)
		}
		if event.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			queues.writers = l.retry(queues.writers)
		}
	}
	return nil
}

// retry attempts queued operations in order until one would block.
func (l *Loop) retry(queue []*Task) []*Task {
	for len(queue) > 0 && l.attempt(queue[0]) {
		queue[0] = nil
		queue = queue[1:]
	}
	if len(queue) == 0 {
		return nil
	}
	return queue
}
