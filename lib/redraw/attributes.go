// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package redraw

import (
	"fmt"

	"github.com/bureau-foundation/bureau-mux/lib/value"
)

// Color is a 24-bit 0xRRGGBB color, or DefaultColor for the terminal's
// own foreground or background.
type Color int32

// DefaultColor leaves the terminal default in place.
const DefaultColor Color = -1

// RGB returns a Color from its components.
func RGB(red, green, blue uint8) Color {
	return Color(int32(red)<<16 | int32(green)<<8 | int32(blue))
}

// Hex returns the color as "#rrggbb", or "" for DefaultColor.
func (c Color) Hex() string {
	if c < 0 {
		return ""
	}
	return fmt.Sprintf("#%06x", int32(c))
}

// Attributes is the style bound to a highlight id. Highlight id 0 is
// always the default style.
type Attributes struct {
	Foreground Color
	Background Color
	Bold       bool
	Italic     bool
	Underline  bool
	Reverse    bool
}

// DefaultAttributes is the style of highlight id 0.
var DefaultAttributes = Attributes{Foreground: DefaultColor, Background: DefaultColor}

// Value encodes a as a map holding only non-default entries.
func (a Attributes) Value() value.Value {
	var pairs []value.Pair
	if a.Foreground >= 0 {
		pairs = append(pairs, value.Field("foreground", value.Uint(uint64(a.Foreground))))
	}
	if a.Background >= 0 {
		pairs = append(pairs, value.Field("background", value.Uint(uint64(a.Background))))
	}
	for _, flag := range []struct {
		name string
		set  bool
	}{
		{"bold", a.Bold},
		{"italic", a.Italic},
		{"underline", a.Underline},
		{"reverse", a.Reverse},
	} {
		if flag.set {
			pairs = append(pairs, value.Field(flag.name, value.Bool(true)))
		}
	}
	return value.Map(pairs...)
}

// ParseAttributes decodes an attributes map. Unknown keys are ignored.
func ParseAttributes(v value.Value) (Attributes, error) {
	if v.Kind() != value.KindMap {
		return Attributes{}, fmt.Errorf("attributes are %s, want map", v.Kind())
	}
	attributes := DefaultAttributes
	for _, color := range []struct {
		name   string
		target *Color
	}{
		{"foreground", &attributes.Foreground},
		{"background", &attributes.Background},
	} {
		entry, ok := v.Lookup(color.name)
		if !ok {
			continue
		}
		rgb, ok := entry.AsUint()
		if !ok || rgb > 0xffffff {
			return Attributes{}, fmt.Errorf("%s is %s, want 0xRRGGBB", color.name, entry)
		}
		*color.target = Color(rgb)
	}
	for _, flag := range []struct {
		name   string
		target *bool
	}{
		{"bold", &attributes.Bold},
		{"italic", &attributes.Italic},
		{"underline", &attributes.Underline},
		{"reverse", &attributes.Reverse},
	} {
		if entry, ok := v.Lookup(flag.name); ok {
			*flag.target, _ = entry.AsBool()
		}
	}
	return attributes, nil
}
