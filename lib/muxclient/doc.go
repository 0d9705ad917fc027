// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package muxclient is the client side of a bureau-mux session: it
// connects to the server, creates or attaches to a session, and hands
// the session's redraw notifications to a [Renderer].
//
// The connection moves through
//
//	unconnected -> connecting -> connected -> awaiting-session
//	            -> attached -> closing -> closed
//
// driven entirely by reactor completions. Socket creation and connect
// are chained through completion tags; a failure at either step
// reaches the Renderer as exactly one Closed call, and a descriptor
// that was allocated is closed first.
//
// Keyboard input, resizes, and keepalives come from other goroutines.
// They never touch the reactor: once attached, the Renderer receives an
// [InputSink] that writes notifications straight to the connection's
// descriptor. [InputSink.Quit] is the one signal back. It sets a flag
// and sends a detach request, and the response wakes the reactor so it
// can observe the flag and close the connection.
//
// One-shot commands that need no session use [Call] and its wrappers
// ([Ping], [ListSessions], [KillSession]), which block on a plain
// net.Conn instead of a reactor.
package muxclient
