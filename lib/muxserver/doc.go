// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package muxserver implements the bureau-mux session server: it accepts
// clients on a Unix socket, answers their RPC requests, runs shell
// sessions on PTYs, and streams each session's screen to the clients
// attached to it as redraw notifications.
//
// Everything runs on the goroutine that drives the [reactor.Reactor].
// The client registry, the session table, and every per-connection
// buffer are touched only from completion handlers, so none of them is
// locked.
//
// # Lifecycle
//
// A server starts in [StateAccepting]. After every change to the client
// registry or the session table it checks [Server.ShouldExit]: with no
// clients and no sessions left it cancels its accept and moves to
// [StateDraining]. Once the accept has completed the listening
// descriptor is closed, and the close's completion moves the server to
// [StateTerminated]. Nothing is then outstanding, so the reactor's Run
// returns.
//
// A failed accept (EMFILE, for instance) is not retried. The listener
// is closed the same way, and the reactor's Run returns once the
// clients and sessions that were already present have finished.
//
// # Sends
//
// Each connection has at most one send in flight. Responses and
// notifications produced while a send is in flight are queued in order,
// and a partial send resubmits its remainder before anything queued
// behind it. Input written to a session's PTY follows the same rule.
package muxserver
