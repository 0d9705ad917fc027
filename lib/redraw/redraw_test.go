// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package redraw

import (
	"reflect"
	"testing"

	"github.com/bureau-foundation/bureau-mux/lib/value"
)

func TestEncodeParseRoundtrip(t *testing.T) {
	events := []Event{
		HighlightDefine{ID: 1, Attributes: Attributes{Foreground: RGB(0xff, 0, 0), Background: DefaultColor, Bold: true}},
		HighlightDefine{ID: 2, Attributes: Attributes{Foreground: DefaultColor, Background: RGB(0, 0, 0x80), Reverse: true, Underline: true}},
		GridResize{Grid: 1, Width: 80, Height: 24},
		GridClear{Grid: 1},
		GridLine{Grid: 1, Row: 0, ColumnStart: 0, Cells: []Cell{
			{Text: "$", HighlightID: 1, Repeat: 1},
			{Text: " ", HighlightID: 0, Repeat: 3},
			{Text: "漢", HighlightID: 2, Repeat: 1},
			{Text: "", HighlightID: 2, Repeat: 1},
		}},
		GridCursorGoto{Grid: 1, Row: 0, Column: 6},
		Flush{},
	}

	params := value.Array(Encode(events)...)
	parsed, err := Parse(params)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(parsed, events) {
		t.Errorf("roundtrip mismatch:\n got  %#v\n want %#v", parsed, events)
	}
}

func TestEncodeGroupsConsecutiveNames(t *testing.T) {
	tuples := Encode([]Event{
		HighlightDefine{ID: 1, Attributes: DefaultAttributes},
		HighlightDefine{ID: 2, Attributes: DefaultAttributes},
		Flush{},
		HighlightDefine{ID: 3, Attributes: DefaultAttributes},
	})
	if len(tuples) != 3 {
		t.Fatalf("got %d tuples, want 3: %v", len(tuples), tuples)
	}
	if name, _ := tuples[0].Index(0).AsString(); name != NameHighlightDefine || tuples[0].Len() != 3 {
		t.Errorf("first tuple = %s", tuples[0])
	}
	if name, _ := tuples[1].Index(0).AsString(); name != NameFlush || tuples[1].Len() != 2 {
		t.Errorf("second tuple = %s", tuples[1])
	}
}

func TestGridLineCompression(t *testing.T) {
	line := GridLine{Grid: 1, Row: 2, ColumnStart: 0, Cells: []Cell{
		{Text: "a", HighlightID: 4},
		{Text: "a", HighlightID: 4},
		{Text: "a", HighlightID: 4},
		{Text: "b", HighlightID: 4},
		{Text: "c", HighlightID: 5},
	}}
	cells := line.Args().Index(3)
	want := value.Array(
		value.Array(value.String("a"), value.Uint(4), value.Uint(3)),
		value.Array(value.String("b")),
		value.Array(value.String("c"), value.Uint(5)),
	)
	if !value.Equal(cells, want) {
		t.Errorf("cells = %s, want %s", cells, want)
	}
	if line.Width() != 5 {
		t.Errorf("Width = %d, want 5", line.Width())
	}
}

func TestParseOmittedHighlightID(t *testing.T) {
	params := value.Array(value.Array(
		value.String(NameGridLine),
		value.Array(value.Uint(1), value.Uint(0), value.Uint(0), value.Array(
			value.Array(value.String("x"), value.Uint(7)),
			value.Array(value.String("y")),
			value.Array(value.String(" "), value.Uint(0), value.Uint(10)),
		)),
	))
	events, err := Parse(params)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	line := events[0].(GridLine)
	want := []Cell{{"x", 7, 1}, {"y", 7, 1}, {" ", 0, 10}}
	if !reflect.DeepEqual(line.Cells, want) {
		t.Errorf("cells = %+v, want %+v", line.Cells, want)
	}
}

func TestParseUnknownAndInvalid(t *testing.T) {
	events, err := Parse(value.Array(value.Array(value.String("mode_change"), value.Array(value.String("insert")))))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if unknown, ok := events[0].(Unknown); !ok || unknown.Name() != "mode_change" {
		t.Errorf("events = %#v, want one Unknown", events)
	}

	invalid := []value.Value{
		value.String("flush"),
		value.Array(value.Uint(1)),
		value.Array(value.Array()),
		value.Array(value.Array(value.String(NameGridResize), value.Array(value.Uint(1)))),
		value.Array(value.Array(value.String(NameGridCursorGoto), value.Array(value.Int(-1), value.Uint(0), value.Uint(0)))),
		value.Array(value.Array(value.String(NameHighlightDefine), value.Array(value.Uint(1), value.Array()))),
		value.Array(value.Array(value.String(NameHighlightDefine), value.Array(value.Uint(1), value.Map(value.Field("foreground", value.Uint(0x1000000)))))),
	}
	for _, params := range invalid {
		if _, err := Parse(params); err == nil {
			t.Errorf("Parse(%s) succeeded, want error", params)
		}
	}
}

func TestAttributesValue(t *testing.T) {
	encoded := DefaultAttributes.Value()
	if encoded.Len() != 0 {
		t.Errorf("default attributes encoded as %s, want empty map", encoded)
	}
	attributes := Attributes{Foreground: RGB(0x12, 0x34, 0x56), Background: DefaultColor, Italic: true}
	if got := attributes.Foreground.Hex(); got != "#123456" {
		t.Errorf("Hex = %q", got)
	}
	if DefaultColor.Hex() != "" {
		t.Error("DefaultColor has a hex form")
	}
	parsed, err := ParseAttributes(attributes.Value())
	if err != nil {
		t.Fatalf("ParseAttributes: %v", err)
	}
	if parsed != attributes {
		t.Errorf("parsed = %+v, want %+v", parsed, attributes)
	}
}
