// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package redraw defines the screen update events carried in "redraw"
// notifications.
//
// A redraw notification's params are a sequence of tuples
// [name, args, args, ...]: one event name followed by one args array per
// occurrence. Consecutive events with the same name share a tuple.
//
//	grid_resize       [grid, width, height]
//	grid_cursor_goto  [grid, row, col]
//	grid_line         [grid, row, col_start, cells]
//	grid_clear        [grid]
//	hl_attr_define    [id, attributes]
//	flush             []
//
// grid_line cells are [text, hl_id?, repeat?]. An omitted hl_id repeats
// the previous cell's id within the same event; an omitted repeat is 1.
// hl_attr_define attributes is a map with optional keys foreground and
// background (0xRRGGBB integers) and bold, italic, underline, reverse
// (booleans).
package redraw

import (
	"fmt"

	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// Event names.
const (
	NameGridResize      = "grid_resize"
	NameGridCursorGoto  = "grid_cursor_goto"
	NameGridLine        = "grid_line"
	NameGridClear       = "grid_clear"
	NameHighlightDefine = "hl_attr_define"
	NameFlush           = "flush"
)

// Event is one screen update.
type Event interface {
	Name() string
	Args() value.Value
}

// GridResize sets the grid's dimensions in cells.
type GridResize struct {
	Grid   uint32
	Width  uint32
	Height uint32
}

func (GridResize) Name() string { return NameGridResize }

func (e GridResize) Args() value.Value {
	return value.Array(value.Uint(uint64(e.Grid)), value.Uint(uint64(e.Width)), value.Uint(uint64(e.Height)))
}

// GridCursorGoto moves the cursor. Row and Column are zero-based.
type GridCursorGoto struct {
	Grid   uint32
	Row    uint32
	Column uint32
}

func (GridCursorGoto) Name() string { return NameGridCursorGoto }

func (e GridCursorGoto) Args() value.Value {
	return value.Array(value.Uint(uint64(e.Grid)), value.Uint(uint64(e.Row)), value.Uint(uint64(e.Column)))
}

// Cell is a run of Repeat identical cells.
type Cell struct {
	Text        string
	HighlightID uint32
	Repeat      uint32
}

// GridLine replaces cells of one row starting at ColumnStart.
type GridLine struct {
	Grid        uint32
	Row         uint32
	ColumnStart uint32
	Cells       []Cell
}

func (GridLine) Name() string { return NameGridLine }

// Args merges equal neighbouring cells into repeats and omits
// highlight ids that match the previous cell's.
func (e GridLine) Args() value.Value {
	var cells []value.Value
	var previousID uint32
	for i := 0; i < len(e.Cells); {
		cell := e.Cells[i]
		repeat := max(cell.Repeat, 1)
		j := i + 1
		for ; j < len(e.Cells); j++ {
			next := e.Cells[j]
			if next.Text != cell.Text || next.HighlightID != cell.HighlightID {
				break
			}
			repeat += max(next.Repeat, 1)
		}
		fields := []value.Value{value.String(cell.Text)}
		if i == 0 || cell.HighlightID != previousID || repeat > 1 {
			fields = append(fields, value.Uint(uint64(cell.HighlightID)))
		}
		if repeat > 1 {
			fields = append(fields, value.Uint(uint64(repeat)))
		}
		cells = append(cells, value.Array(fields...))
		previousID = cell.HighlightID
		i = j
	}
	return value.Array(
		value.Uint(uint64(e.Grid)),
		value.Uint(uint64(e.Row)),
		value.Uint(uint64(e.ColumnStart)),
		value.Array(cells...),
	)
}

// Width returns the number of cells the line covers.
func (e GridLine) Width() int {
	width := 0
	for _, cell := range e.Cells {
		width += int(max(cell.Repeat, 1))
	}
	return width
}

// GridClear blanks the grid.
type GridClear struct {
	Grid uint32
}

func (GridClear) Name() string { return NameGridClear }

func (e GridClear) Args() value.Value {
	return value.Array(value.Uint(uint64(e.Grid)))
}

// HighlightDefine binds a highlight id to attributes.
type HighlightDefine struct {
	ID         uint32
	Attributes Attributes
}

func (HighlightDefine) Name() string { return NameHighlightDefine }

func (e HighlightDefine) Args() value.Value {
	return value.Array(value.Uint(uint64(e.ID)), e.Attributes.Value())
}

// Flush marks the end of a consistent batch.
type Flush struct{}

func (Flush) Name() string { return NameFlush }

func (Flush) Args() value.Value { return value.Array() }

// Unknown is an event whose name this package does not recognize. It
// is kept so a renderer can log it.
type Unknown struct {
	EventName string
	Arguments value.Value
}

func (e Unknown) Name() string { return e.EventName }

func (e Unknown) Args() value.Value { return e.Arguments }

// Encode groups events into redraw tuples, one per run of equal names.
func Encode(events []Event) []value.Value {
	var tuples []value.Value
	var current []value.Value
	currentName := ""
	for _, event := range events {
		if current != nil && event.Name() != currentName {
			tuples = append(tuples, value.Array(current...))
			current = nil
		}
		if current == nil {
			currentName = event.Name()
			current = []value.Value{value.String(currentName)}
		}
		current = append(current, event.Args())
	}
	if current != nil {
		tuples = append(tuples, value.Array(current...))
	}
	return tuples
}

// Parse decodes a redraw notification's params.
func Parse(params value.Value) ([]Event, error) {
	if params.Kind() != value.KindArray {
		return nil, fmt.Errorf("redraw params are %s, want array", params.Kind())
	}
	var events []Event
	for i, tuple := range params.Items() {
		name, ok := tuple.Index(0).AsString()
		if tuple.Kind() != value.KindArray || !ok {
			return nil, fmt.Errorf("redraw tuple %d: want [name, args...], got %s", i, tuple)
		}
		for _, args := range tuple.Items()[1:] {
			event, err := parseEvent(name, args)
			if err != nil {
				return nil, fmt.Errorf("redraw tuple %d (%s): %w", i, name, err)
			}
			events = append(events, event)
		}
	}
	return events, nil
}

func parseEvent(name string, args value.Value) (Event, error) {
	if args.Kind() != value.KindArray {
		return nil, fmt.Errorf("args are %s, want array", args.Kind())
	}
	switch name {
	case NameGridResize:
		numbers, err := uints(args, 3)
		if err != nil {
			return nil, err
		}
		return GridResize{Grid: numbers[0], Width: numbers[1], Height: numbers[2]}, nil
	case NameGridCursorGoto:
		numbers, err := uints(args, 3)
		if err != nil {
			return nil, err
		}
		return GridCursorGoto{Grid: numbers[0], Row: numbers[1], Column: numbers[2]}, nil
	case NameGridLine:
		return parseGridLine(args)
	case NameGridClear:
		numbers, err := uints(args, 1)
		if err != nil {
			return nil, err
		}
		return GridClear{Grid: numbers[0]}, nil
	case NameHighlightDefine:
		id, ok := args.Index(0).AsUint32()
		if !ok {
			return nil, fmt.Errorf("highlight id %s", args.Index(0))
		}
		attributes, err := ParseAttributes(args.Index(1))
		if err != nil {
			return nil, err
		}
		return HighlightDefine{ID: id, Attributes: attributes}, nil
	case NameFlush:
		return Flush{}, nil
	}
	return Unknown{EventName: name, Arguments: args}, nil
}

// uints reads the first count elements of args as uint32.
func uints(args value.Value, count int) ([]uint32, error) {
	if args.Len() < count {
		return nil, fmt.Errorf("%d args, want %d", args.Len(), count)
	}
	numbers := make([]uint32, count)
	for i := range numbers {
		number, ok := args.Index(i).AsUint32()
		if !ok {
			return nil, fmt.Errorf("arg %d is %s, want unsigned integer", i, args.Index(i))
		}
		numbers[i] = number
	}
	return numbers, nil
}

func parseGridLine(args value.Value) (Event, error) {
	numbers, err := uints(args, 3)
	if err != nil {
		return nil, err
	}
	cellValues := args.Index(3)
	if cellValues.Kind() != value.KindArray {
		return nil, fmt.Errorf("cells are %s, want array", cellValues.Kind())
	}
	line := GridLine{Grid: numbers[0], Row: numbers[1], ColumnStart: numbers[2]}
	var previousID uint32
	for i, cellValue := range cellValues.Items() {
		text, ok := cellValue.Index(0).AsString()
		if !ok {
			return nil, fmt.Errorf("cell %d text is %s", i, cellValue.Index(0))
		}
		cell := Cell{Text: text, HighlightID: previousID, Repeat: 1}
		if cellValue.Len() > 1 {
			if cell.HighlightID, ok = cellValue.Index(1).AsUint32(); !ok {
				return nil, fmt.Errorf("cell %d highlight id is %s", i, cellValue.Index(1))
			}
		}
		if cellValue.Len() > 2 {
			if cell.Repeat, ok = cellValue.Index(2).AsUint32(); !ok {
				return nil, fmt.Errorf("cell %d repeat is %s", i, cellValue.Index(2))
			}
		}
		previousID = cell.HighlightID
		line.Cells = append(line.Cells, cell)
	}
	return line, nil
}
