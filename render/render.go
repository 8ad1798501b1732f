// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: render/render.go
// Summary: Maps parsed styles onto tcell for on-screen block display.

package render

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/mosaicterm/mosaicterm/parser"
)

// Theme translates parser colors to concrete tcell colors through a local
// palette. Slots 0-255 are the xterm palette; 256 and 257 hold the default
// foreground and background.
type Theme struct {
	palette [258]tcell.Color
}

// NewTheme builds a theme over the standard xterm palette with a light-grey
// on near-black default pair.
func NewTheme() *Theme {
	t := &Theme{}
	for i := 0; i < 256; i++ {
		r, g, b := parser.PaletteRGB(uint8(i))
		t.palette[i] = tcell.NewRGBColor(int32(r), int32(g), int32(b))
	}
	t.palette[256] = tcell.NewRGBColor(229, 229, 229)
	t.palette[257] = tcell.NewRGBColor(16, 16, 16)
	return t
}

// WithDefaults overrides the default foreground/background pair.
func (t *Theme) WithDefaults(fg, bg tcell.Color) *Theme {
	t.palette[256] = fg
	t.palette[257] = bg
	return t
}

// Color translates a parser color to a true RGB tcell color using the local
// palette.
func (t *Theme) Color(c parser.Color) tcell.Color {
	switch c.Mode {
	case parser.ColorModeDefault:
		return t.palette[256]
	case parser.ColorModeStandard, parser.ColorMode256:
		return t.palette[c.Value]
	case parser.ColorModeRGB:
		return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
	default:
		return tcell.ColorDefault
	}
}

// Style translates a full text style, substituting the theme's default pair
// for default-mode colors.
func (t *Theme) Style(s parser.TextStyle) tcell.Style {
	fg := t.Color(s.FG)

	var bg tcell.Color
	if s.BG.Mode == parser.ColorModeDefault {
		bg = t.palette[257]
	} else {
		bg = t.Color(s.BG)
	}

	style := tcell.StyleDefault
	style = style.Foreground(fg).Background(bg)
	style = style.Bold(s.Attr&parser.AttrBold != 0)
	style = style.Dim(s.Attr&parser.AttrDim != 0)
	style = style.Italic(s.Attr&parser.AttrItalic != 0)
	style = style.Underline(s.Attr&parser.AttrUnderline != 0)
	style = style.Blink(s.Attr&parser.AttrBlink != 0)
	style = style.Reverse(s.Attr&parser.AttrReverse != 0)
	style = style.StrikeThrough(s.Attr&parser.AttrStrikethrough != 0)
	return style
}

// LineWidth reports the display width of a segment run in terminal cells.
// Wide runes (CJK, many emoji) count as two cells.
func LineWidth(segs []parser.Segment) int {
	w := 0
	for _, seg := range segs {
		w += runewidth.StringWidth(seg.Text)
	}
	return w
}

// TruncateLine cuts a segment run to at most width display cells. A wide
// rune that would straddle the boundary is dropped entirely.
func TruncateLine(segs []parser.Segment, width int) []parser.Segment {
	if width <= 0 {
		return nil
	}
	var out []parser.Segment
	remaining := width
	for _, seg := range segs {
		sw := runewidth.StringWidth(seg.Text)
		if sw <= remaining {
			out = append(out, seg)
			remaining -= sw
			continue
		}
		trimmed := runewidth.Truncate(seg.Text, remaining, "")
		if trimmed != "" {
			out = append(out, parser.Segment{Text: trimmed, Style: seg.Style})
		}
		break
	}
	return out
}
