// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import (
	"github.com/bureau-foundation/bureau-mux/lib/redraw"
	"github.com/charmbracelet/x/ansi"
)

// standardColors are the xterm defaults for palette entries 0-15.
var standardColors = [16]redraw.Color{
	redraw.RGB(0x00, 0x00, 0x00), redraw.RGB(0xcd, 0x00, 0x00),
	redraw.RGB(0x00, 0xcd, 0x00), redraw.RGB(0xcd, 0xcd, 0x00),
	redraw.RGB(0x00, 0x00, 0xee), redraw.RGB(0xcd, 0x00, 0xcd),
	redraw.RGB(0x00, 0xcd, 0xcd), redraw.RGB(0xe5, 0xe5, 0xe5),
	redraw.RGB(0x7f, 0x7f, 0x7f), redraw.RGB(0xff, 0x00, 0x00),
	redraw.RGB(0x00, 0xff, 0x00), redraw.RGB(0xff, 0xff, 0x00),
	redraw.RGB(0x5c, 0x5c, 0xff), redraw.RGB(0xff, 0x00, 0xff),
	redraw.RGB(0x00, 0xff, 0xff), redraw.RGB(0xff, 0xff, 0xff),
}

var cubeLevels = [6]uint8{0x00, 0x5f, 0x87, 0xaf, 0xd7, 0xff}

// paletteColor resolves an xterm 256-color index.
func paletteColor(index int) redraw.Color {
	switch {
	case index < 0 || index > 255:
		return redraw.DefaultColor
	case index < 16:
		return standardColors[index]
	case index < 232:
		index -= 16
		return redraw.RGB(cubeLevels[index/36], cubeLevels[index/6%6], cubeLevels[index%6])
	}
	gray := uint8(8 + 10*(index-232))
	return redraw.RGB(gray, gray, gray)
}

func (s *Screen) selectGraphicRendition(params ansi.Params) {
	if len(params) == 0 {
		s.setAttributes(redraw.DefaultAttributes)
		return
	}
	attributes := s.attributes
	for i := 0; i < len(params); i++ {
		code := params[i].Param(0)
		switch {
		case code == 0:
			attributes = redraw.DefaultAttributes
		case code == 1:
			attributes.Bold = true
		case code == 3:
			attributes.Italic = true
		case code == 4:
			attributes.Underline = true
		case code == 7:
			attributes.Reverse = true
		case code == 22:
			attributes.Bold = false
		case code == 23:
			attributes.Italic = false
		case code == 24:
			attributes.Underline = false
		case code == 27:
			attributes.Reverse = false
		case code >= 30 && code <= 37:
			attributes.Foreground = paletteColor(code - 30)
		case code == 39:
			attributes.Foreground = redraw.DefaultColor
		case code >= 40 && code <= 47:
			attributes.Background = paletteColor(code - 40)
		case code == 49:
			attributes.Background = redraw.DefaultColor
		case code >= 90 && code <= 97:
			attributes.Foreground = paletteColor(code - 90 + 8)
		case code >= 100 && code <= 107:
			attributes.Background = paletteColor(code - 100 + 8)
		case code == 38 || code == 48:
			color, consumed := extendedColor(params[i+1:])
			i += consumed
			if code == 38 {
				attributes.Foreground = color
			} else {
				attributes.Background = color
			}
		}
	}
	s.setAttributes(attributes)
}

// extendedColor parses the arguments after 38 or 48: "5;n" or
// "2;r;g;b". It returns the color and how many parameters it used.
func extendedColor(params ansi.Params) (redraw.Color, int) {
	if len(params) == 0 {
		return redraw.DefaultColor, 0
	}
	switch params[0].Param(0) {
	case 5:
		if len(params) < 2 {
			return redraw.DefaultColor, len(params)
		}
		return paletteColor(params[1].Param(0)), 2
	case 2:
		if len(params) < 4 {
			return redraw.DefaultColor, len(params)
		}
		component := func(i int) uint8 { return uint8(clamp(params[i].Param(0), 0, 255)) }
		return redraw.RGB(component(1), component(2), component(3)), 4
	}
	return redraw.DefaultColor, 1
}

// setAttributes makes attributes current, assigning a highlight id the
// first time a combination is seen. Id 0 is the default style.
func (s *Screen) setAttributes(attributes redraw.Attributes) {
	s.attributes = attributes
	if attributes == redraw.DefaultAttributes {
		s.currentHighlight = 0
		return
	}
	id, ok := s.highlights[attributes]
	if !ok {
		id = uint32(len(s.definitions) + 1)
		s.highlights[attributes] = id
		s.definitions = append(s.definitions, redraw.HighlightDefine{ID: id, Attributes: attributes})
	}
	s.currentHighlight = id
}
