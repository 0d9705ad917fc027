// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package screen keeps a PTY's visible grid on the server and turns
// changes to it into redraw events.
//
// It understands a small VT subset: printable text (cell widths from
// charmbracelet/x/ansi), CR, LF, BS, TAB, cursor movement (CUU, CUD,
// CUF, CUB, CNL, CPL, CHA, VPA, CUP), erase (ED, EL, ECH), save and
// restore cursor, reverse index, full reset, and SGR with 16, 256, and
// truecolor palettes. Other sequences are parsed and dropped. Parser
// state carries across Write calls, so an escape sequence or UTF-8
// rune split between two PTY reads is handled.
//
// [Screen.Flush] returns the events needed to bring a client that has
// seen every previous flush up to date. [Screen.Snapshot] returns a
// complete redraw for a client that has seen nothing.
package screen

import (
	"github.com/bureau-foundation/bureau-mux/lib/redraw"
	"github.com/charmbracelet/x/ansi"
)

// Grid is the grid id used in every event. The server has one grid per
// session.
const Grid = 1

const tabWidth = 8

type cell struct {
	text      string
	highlight uint32
}

var blankCell = cell{text: " "}

// Screen is not safe for concurrent use.
type Screen struct {
	parser *ansi.Parser

	rows    int
	columns int
	lines   [][]cell
	dirty   []bool

	cursorRow    int
	cursorColumn int
	// pendingWrap is set after printing into the last column; the next
	// printable rune wraps first.
	pendingWrap bool
	savedRow    int
	savedColumn int

	attributes       redraw.Attributes
	currentHighlight uint32
	highlights       map[redraw.Attributes]uint32
	definitions      []redraw.HighlightDefine
	flushedDefines   int

	resized     bool
	cleared     bool
	cursorMoved bool
}

// New returns a blank screen of rows by columns. Non-positive
// dimensions are raised to one.
func New(rows, columns int) *Screen {
	s := &Screen{
		parser:     ansi.NewParser(),
		attributes: redraw.DefaultAttributes,
		highlights: make(map[redraw.Attributes]uint32),
		resized:    true,
	}
	s.parser.SetHandler(ansi.Handler{
		Print:     s.print,
		Execute:   s.execute,
		HandleCsi: s.handleCSI,
		HandleEsc: s.handleEscape,
	})
	s.allocate(max(rows, 1), max(columns, 1))
	return s
}

// Size returns the grid dimensions.
func (s *Screen) Size() (rows, columns int) { return s.rows, s.columns }

// Cursor returns the zero-based cursor position.
func (s *Screen) Cursor() (row, column int) { return s.cursorRow, s.cursorColumn }

// Write feeds PTY output to the screen. It never fails.
func (s *Screen) Write(data []byte) (int, error) {
	for _, b := range data {
		s.parser.Advance(b)
	}
	return len(data), nil
}

// Line returns the text of row with trailing blanks removed, for tests
// and logs.
func (s *Screen) Line(row int) string {
	if row < 0 || row >= s.rows {
		return ""
	}
	text := ""
	for _, c := range s.lines[row] {
		text += c.text
	}
	end := len(text)
	for end > 0 && text[end-1] == ' ' {
		end--
	}
	return text[:end]
}

// Resize changes the grid dimensions, keeping the top-left content.
func (s *Screen) Resize(rows, columns int) {
	rows, columns = max(rows, 1), max(columns, 1)
	if rows == s.rows && columns == s.columns {
		return
	}
	old := s.lines
	s.allocate(rows, columns)
	for row := 0; row < rows && row < len(old); row++ {
		copy(s.lines[row], old[row])
	}
	s.cursorRow = min(s.cursorRow, rows-1)
	s.cursorColumn = min(s.cursorColumn, columns-1)
	s.pendingWrap = false
	s.resized = true
	s.cursorMoved = true
}

func (s *Screen) allocate(rows, columns int) {
	s.rows, s.columns = rows, columns
	s.lines = make([][]cell, rows)
	s.dirty = make([]bool, rows)
	for row := range s.lines {
		s.lines[row] = blankLine(columns)
		s.dirty[row] = true
	}
}

func blankLine(columns int) []cell {
	line := make([]cell, columns)
	for column := range line {
		line[column] = blankCell
	}
	return line
}

// Flush returns the events describing changes since the previous
// Flush, ending with a flush event, or nil when nothing changed.
func (s *Screen) Flush() []redraw.Event {
	var events []redraw.Event
	for _, definition := range s.definitions[s.flushedDefines:] {
		events = append(events, definition)
	}
	s.flushedDefines = len(s.definitions)

	if s.resized {
		events = append(events, redraw.GridResize{Grid: Grid, Width: uint32(s.columns), Height: uint32(s.rows)})
	}
	if s.cleared {
		events = append(events, redraw.GridClear{Grid: Grid})
	}
	for row, dirty := range s.dirty {
		if dirty {
			events = append(events, s.gridLine(row))
			s.dirty[row] = false
		}
	}
	if len(events) == 0 && !s.cursorMoved {
		return nil
	}
	events = append(events,
		redraw.GridCursorGoto{Grid: Grid, Row: uint32(s.cursorRow), Column: uint32(s.cursorColumn)},
		redraw.Flush{},
	)
	s.resized, s.cleared, s.cursorMoved = false, false, false
	return events
}

// Snapshot returns a complete redraw of the current state. It does not
// affect what the next Flush reports.
func (s *Screen) Snapshot() []redraw.Event {
	var events []redraw.Event
	for _, definition := range s.definitions {
		events = append(events, definition)
	}
	events = append(events,
		redraw.GridResize{Grid: Grid, Width: uint32(s.columns), Height: uint32(s.rows)},
		redraw.GridClear{Grid: Grid},
	)
	for row := range s.lines {
		events = append(events, s.gridLine(row))
	}
	return append(events,
		redraw.GridCursorGoto{Grid: Grid, Row: uint32(s.cursorRow), Column: uint32(s.cursorColumn)},
		redraw.Flush{},
	)
}

func (s *Screen) gridLine(row int) redraw.GridLine {
	cells := make([]redraw.Cell, len(s.lines[row]))
	for column, c := range s.lines[row] {
		cells[column] = redraw.Cell{Text: c.text, HighlightID: c.highlight, Repeat: 1}
	}
	return redraw.GridLine{Grid: Grid, Row: uint32(row), ColumnStart: 0, Cells: cells}
}

func (s *Screen) print(r rune) {
	text := string(r)
	width := ansi.StringWidthWc(text)
	if width == 0 {
		s.combine(text)
		return
	}
	if width > 2 || width > s.columns {
		width = 1
	}
	if s.pendingWrap {
		s.carriageReturn()
		s.lineFeed()
	}
	if s.cursorColumn+width > s.columns {
		s.lines[s.cursorRow][s.cursorColumn] = cell{text: " ", highlight: s.currentHighlight}
		s.carriageReturn()
		s.lineFeed()
	}
	line := s.lines[s.cursorRow]
	line[s.cursorColumn] = cell{text: text, highlight: s.currentHighlight}
	if width == 2 {
		line[s.cursorColumn+1] = cell{text: "", highlight: s.currentHighlight}
	}
	s.dirty[s.cursorRow] = true
	s.cursorMoved = true
	s.cursorColumn += width
	if s.cursorColumn >= s.columns {
		s.cursorColumn = s.columns - 1
		s.pendingWrap = true
	}
}

// combine attaches a zero-width rune to the most recently printed cell.
func (s *Screen) combine(text string) {
	column := s.cursorColumn - 1
	if s.pendingWrap {
		column = s.cursorColumn
	}
	if column < 0 {
		return
	}
	line := s.lines[s.cursorRow]
	if line[column].text == "" && column > 0 {
		column--
	}
	line[column].text += text
	s.dirty[s.cursorRow] = true
}

func (s *Screen) execute(control byte) {
	switch control {
	case ansi.CR:
		s.carriageReturn()
	case ansi.LF, ansi.VT, ansi.FF:
		s.lineFeed()
	case ansi.BS:
		if s.cursorColumn > 0 {
			s.cursorColumn--
		}
		s.pendingWrap = false
	case ansi.HT:
		s.cursorColumn = min((s.cursorColumn/tabWidth+1)*tabWidth, s.columns-1)
		s.pendingWrap = false
	default:
		return
	}
	s.cursorMoved = true
}

func (s *Screen) carriageReturn() {
	s.cursorColumn = 0
	s.pendingWrap = false
	s.cursorMoved = true
}

func (s *Screen) lineFeed() {
	s.pendingWrap = false
	s.cursorMoved = true
	if s.cursorRow == s.rows-1 {
		s.scrollUp()
		return
	}
	s.cursorRow++
}

func (s *Screen) scrollUp() {
	copy(s.lines, s.lines[1:])
	s.lines[s.rows-1] = blankLine(s.columns)
	s.markAllDirty()
}

func (s *Screen) scrollDown() {
	copy(s.lines[1:], s.lines[:s.rows-1])
	s.lines[0] = blankLine(s.columns)
	s.markAllDirty()
}

func (s *Screen) markAllDirty() {
	for row := range s.dirty {
		s.dirty[row] = true
	}
}

func (s *Screen) moveCursor(row, column int) {
	s.cursorRow = clamp(row, 0, s.rows-1)
	s.cursorColumn = clamp(column, 0, s.columns-1)
	s.pendingWrap = false
	s.cursorMoved = true
}

func clamp(v, low, high int) int {
	return max(low, min(v, high))
}

func (s *Screen) handleEscape(command ansi.Cmd) {
	if command.Intermediate() != 0 {
		return
	}
	switch command.Final() {
	case '7':
		s.savedRow, s.savedColumn = s.cursorRow, s.cursorColumn
	case '8':
		s.moveCursor(s.savedRow, s.savedColumn)
	case 'D':
		s.lineFeed()
	case 'E':
		s.carriageReturn()
		s.lineFeed()
	case 'M':
		if s.cursorRow == 0 {
			s.scrollDown()
		} else {
			s.moveCursor(s.cursorRow-1, s.cursorColumn)
		}
	case 'c':
		s.reset()
	}
}

func (s *Screen) reset() {
	for row := range s.lines {
		s.lines[row] = blankLine(s.columns)
	}
	s.markAllDirty()
	s.cleared = true
	s.setAttributes(redraw.DefaultAttributes)
	s.moveCursor(0, 0)
	s.savedRow, s.savedColumn = 0, 0
}

func (s *Screen) handleCSI(command ansi.Cmd, params ansi.Params) {
	if command.Prefix() != 0 || command.Intermediate() != 0 {
		return
	}
	count := func() int {
		n, _, _ := params.Param(0, 1)
		return max(n, 1)
	}
	switch command.Final() {
	case 'A':
		s.moveCursor(s.cursorRow-count(), s.cursorColumn)
	case 'B':
		s.moveCursor(s.cursorRow+count(), s.cursorColumn)
	case 'C':
		s.moveCursor(s.cursorRow, s.cursorColumn+count())
	case 'D':
		s.moveCursor(s.cursorRow, s.cursorColumn-count())
	case 'E':
		s.moveCursor(s.cursorRow+count(), 0)
	case 'F':
		s.moveCursor(s.cursorRow-count(), 0)
	case 'G', '`':
		s.moveCursor(s.cursorRow, count()-1)
	case 'd':
		s.moveCursor(count()-1, s.cursorColumn)
	case 'H', 'f':
		row, _, _ := params.Param(0, 1)
		column, _, _ := params.Param(1, 1)
		s.moveCursor(max(row, 1)-1, max(column, 1)-1)
	case 'J':
		mode, _, _ := params.Param(0, 0)
		s.eraseDisplay(mode)
	case 'K':
		mode, _, _ := params.Param(0, 0)
		s.eraseLine(s.cursorRow, mode)
	case 'X':
		end := min(s.cursorColumn+count(), s.columns)
		s.blank(s.cursorRow, s.cursorColumn, end)
	case 'm':
		s.selectGraphicRendition(params)
	}
}

func (s *Screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(s.cursorRow, 0)
		for row := s.cursorRow + 1; row < s.rows; row++ {
			s.blank(row, 0, s.columns)
		}
	case 1:
		for row := 0; row < s.cursorRow; row++ {
			s.blank(row, 0, s.columns)
		}
		s.eraseLine(s.cursorRow, 1)
	case 2, 3:
		for row := range s.lines {
			s.lines[row] = blankLine(s.columns)
		}
		s.markAllDirty()
		s.cleared = true
	}
}

func (s *Screen) eraseLine(row, mode int) {
	switch mode {
	case 0:
		s.blank(row, s.cursorColumn, s.columns)
	case 1:
		s.blank(row, 0, s.cursorColumn+1)
	case 2:
		s.blank(row, 0, s.columns)
	}
}

func (s *Screen) blank(row, start, end int) {
	line := s.lines[row]
	for column := start; column < end; column++ {
		line[column] = blankCell
	}
	s.dirty[row] = true
}
