// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package painter draws redraw batches onto a real terminal.
//
// A [Painter] owns the terminal's screen while a session is attached.
// Grid lines are written at their absolute positions with cursor
// addressing, so the terminal needs no state beyond what the last
// batch left behind. Colors are degraded to the terminal's profile by
// termenv. The status line is a single lipgloss-styled row written over
// the bottom of the grid; the next redraw of that row replaces it.
package painter
