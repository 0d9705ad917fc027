// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short-named temporary directory in /tmp for Unix
// domain sockets. sun_path is limited to 108 bytes, and t.TempDir()
// paths derived from long test names routinely exceed it.
//
// [RequireReceive] wraps a channel receive in a timeout so that a
// hung server or client fails the test instead of stalling it. This
// package is the only place in the test suite where real wall-clock
// timeouts are used.
//
// [RequireEventually] polls a condition owned by another goroutine,
// for state that has no channel to wait on (a child process exiting, a
// socket path disappearing).
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
