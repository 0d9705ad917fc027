// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reactor is a completion-based I/O loop over non-blocking file
// descriptors.
//
// Callers submit operations (Socket, Connect, Accept, Send, Recv,
// Close, Cancel). Each submitted operation produces exactly one
// [Completion], delivered to the [Handler] named in its [Context] from
// inside [Reactor.RunOnce] or [Reactor.Run]. Handlers run on the
// goroutine driving the loop, so state touched only from handlers needs
// no locking. A Context carries a small Tag so one handler can run a
// state machine across several operation kinds ("open a socket, then
// connect it") without allocating a closure per step.
//
// Completions for operations on the same descriptor arrive in
// submission order. There is no ordering across descriptors.
//
// Only Accept is meant to be cancelled: [Reactor.Cancel] makes a
// pending operation complete with [ErrCanceled]. Cancelling a task that
// already completed is harmless and completes the cancel operation
// itself with [ErrTaskDone]. Closing a descriptor completes every
// operation still pending on it with [ErrClosed] before the close
// completes.
//
// Two implementations exist. [Loop] drives Linux epoll in edge-triggered
// mode. [Fake] never touches the operating system: operations stay
// pending until a test injects a result with [Fake.Complete], which
// resolves the oldest pending operation matching a descriptor and
// operation kind. Every layer above the reactor is tested against Fake.
package reactor
