// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package muxproto names the methods spoken between bureau-mux clients
// and the session server, and converts their structured parameters to
// and from [value.Value].
//
// Requests (answered with a response):
//
//	ping         []                 -> "pong"
//	spawn_pty    [options?]         -> session id
//	attach_pty   [id]               -> true, then a full redraw
//	detach_pty   [id?]              -> true
//	list_ptys    []                 -> [session info, ...]
//	kill_pty     [id]               -> true
//
// Client notifications: input [bytes], resize [rows, cols], wake [].
// Server notifications: redraw [tuples...], pty_exited [id].
package muxproto
