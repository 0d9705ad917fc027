// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package painter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/bureau-mux/lib/redraw"
	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// HighlightFunc resolves a highlight id to its attributes.
type HighlightFunc func(id uint32) (redraw.Attributes, bool)

// Options configures a Painter.
type Options struct {
	Output io.Writer

	// Profile limits the color escapes written. termenv.Ascii writes
	// none.
	Profile termenv.Profile

	// Highlights resolves the ids in grid_line cells. When nil the
	// painter keeps its own table from hl_attr_define events.
	Highlights HighlightFunc
}

// Painter renders redraw events. It is not safe for concurrent use.
type Painter struct {
	buffer     *bufio.Writer
	output     *termenv.Output
	profile    termenv.Profile
	highlights HighlightFunc
	defined    map[uint32]redraw.Attributes
	status     lipgloss.Style

	rows, columns           int
	cursorRow, cursorColumn int
	started                 bool
}

// New returns a painter writing to options.Output.
func New(options Options) *Painter {
	buffer := bufio.NewWriter(options.Output)
	output := termenv.NewOutput(buffer, termenv.WithProfile(options.Profile))
	renderer := lipgloss.NewRenderer(buffer, termenv.WithProfile(options.Profile))
	renderer.SetColorProfile(options.Profile)

	p := &Painter{
		buffer:     buffer,
		output:     output,
		profile:    options.Profile,
		highlights: options.Highlights,
		defined:    make(map[uint32]redraw.Attributes),
		status:     renderer.NewStyle().Reverse(true).Bold(true),
	}
	if p.highlights == nil {
		p.highlights = p.lookup
	}
	return p
}

func (p *Painter) lookup(id uint32) (redraw.Attributes, bool) {
	if id == 0 {
		return redraw.DefaultAttributes, true
	}
	attributes, ok := p.defined[id]
	return attributes, ok
}

// Start switches to the alternate screen and clears it.
func (p *Painter) Start() error {
	if !p.started {
		p.started = true
		p.output.AltScreen()
		p.output.ClearScreen()
	}
	return p.buffer.Flush()
}

// Stop restores the primary screen and shows the cursor.
func (p *Painter) Stop() error {
	if p.started {
		p.started = false
		p.output.WriteString(termenv.CSI + termenv.ResetSeq + "m")
		p.output.ShowCursor()
		p.output.ExitAltScreen()
	}
	return p.buffer.Flush()
}

// Size returns the grid size from the most recent grid_resize.
func (p *Painter) Size() (rows, columns int) { return p.rows, p.columns }

// Cursor returns the zero-based cursor position.
func (p *Painter) Cursor() (row, column int) { return p.cursorRow, p.cursorColumn }

// Apply draws one redraw notification's params. Output is buffered
// until a flush event.
func (p *Painter) Apply(batch value.Value) error {
	events, err := redraw.Parse(batch)
	if err != nil {
		return err
	}
	for _, event := range events {
		switch event := event.(type) {
		case redraw.GridResize:
			p.rows, p.columns = int(event.Height), int(event.Width)
		case redraw.GridClear:
			p.output.ClearScreen()
		case redraw.GridCursorGoto:
			p.cursorRow, p.cursorColumn = int(event.Row), int(event.Column)
		case redraw.GridLine:
			p.drawLine(event)
		case redraw.HighlightDefine:
			p.defined[event.ID] = event.Attributes
		case redraw.Flush:
			p.output.MoveCursor(p.cursorRow+1, p.cursorColumn+1)
			p.output.ShowCursor()
			if err := p.buffer.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// drawLine writes runs of cells sharing a highlight as one styled
// string. Empty cells are the right half of a wide character and are
// covered by it.
func (p *Painter) drawLine(line redraw.GridLine) {
	p.output.HideCursor()
	p.output.MoveCursor(int(line.Row)+1, int(line.ColumnStart)+1)

	var run strings.Builder
	runID := uint32(0)
	flush := func() {
		if run.Len() == 0 {
			return
		}
		p.output.WriteString(p.style(runID, run.String()))
		run.Reset()
	}
	for _, cell := range line.Cells {
		if cell.Text == "" {
			continue
		}
		if cell.HighlightID != runID {
			flush()
			runID = cell.HighlightID
		}
		run.WriteString(strings.Repeat(cell.Text, int(max(cell.Repeat, 1))))
	}
	flush()
}

func (p *Painter) style(id uint32, text string) string {
	attributes, ok := p.highlights(id)
	if !ok || attributes == redraw.DefaultAttributes {
		return text
	}
	style := p.output.String(text)
	if hex := attributes.Foreground.Hex(); hex != "" {
		style = style.Foreground(p.profile.Color(hex))
	}
	if hex := attributes.Background.Hex(); hex != "" {
		style = style.Background(p.profile.Color(hex))
	}
	if attributes.Bold {
		style = style.Bold()
	}
	if attributes.Italic {
		style = style.Italic()
	}
	if attributes.Underline {
		style = style.Underline()
	}
	if attributes.Reverse {
		style = style.Reverse()
	}
	return style.String()
}

// Status writes text on the bottom row, padded to the grid width, then
// returns the cursor to where the session left it.
func (p *Painter) Status(text string) error {
	if p.rows == 0 || p.columns == 0 {
		return nil
	}
	p.output.MoveCursor(p.rows, 1)
	p.output.WriteString(p.status.Width(p.columns).MaxWidth(p.columns).Render(text))
	p.output.MoveCursor(p.cursorRow+1, p.cursorColumn+1)
	return p.buffer.Flush()
}

// Message renders text in the status style on a line of its own, for
// use after Stop.
func (p *Painter) Message(format string, args ...any) error {
	fmt.Fprintf(p.buffer, "%s\r\n", p.status.Render(fmt.Sprintf(format, args...)))
	return p.buffer.Flush()
}
