// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/style.go
// Summary: Color, attribute and segment model for parsed terminal output.
// Usage: Produced by the parser, consumed by the block assembler and renderers.
// Notes: Keeps styling concerns isolated from block bookkeeping.

package parser

import "strings"

type Attribute uint16

const (
	AttrBold Attribute = 1 << iota
	AttrDim
	AttrItalic
	AttrUnderline
	AttrBlink
	AttrReverse
	AttrHidden
	AttrStrikethrough
)

// String returns a human-readable representation of the attribute flags.
func (a Attribute) String() string {
	if a == 0 {
		return "none"
	}
	names := []struct {
		bit  Attribute
		name string
	}{
		{AttrBold, "bold"},
		{AttrDim, "dim"},
		{AttrItalic, "italic"},
		{AttrUnderline, "underline"},
		{AttrBlink, "blink"},
		{AttrReverse, "reverse"},
		{AttrHidden, "hidden"},
		{AttrStrikethrough, "strikethrough"},
	}
	var parts []string
	for _, n := range names {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// ColorMode defines the type of color stored.
type ColorMode int

const (
	ColorModeDefault  ColorMode = iota // Default terminal color
	ColorModeStandard                  // The basic 16 ANSI colors
	ColorMode256                       // 256-color palette
	ColorModeRGB                       // 24-bit "true" color
)

// Color represents a terminal color in potentially different modes.
// For Standard and 256 modes the parser also resolves R, G, B from the
// xterm palette, so renderers can treat every non-default color as RGB.
type Color struct {
	Mode    ColorMode
	Value   uint8 // Color code for Standard (0-15) and 256-mode (0-255)
	R, G, B uint8
}

// NewIndexedColor builds a palette color with its RGB resolution filled in.
func NewIndexedColor(mode ColorMode, value uint8) Color {
	r, g, b := PaletteRGB(value)
	return Color{Mode: mode, Value: value, R: r, G: g, B: b}
}

// NewRGBColor builds a direct 24-bit color.
func NewRGBColor(r, g, b uint8) Color {
	return Color{Mode: ColorModeRGB, R: r, G: g, B: b}
}

// IsDefault reports whether the color is the terminal default.
func (c Color) IsDefault() bool { return c.Mode == ColorModeDefault }

// TextStyle is the full graphic rendition of a text run: foreground,
// background and attribute flags. The zero value is the terminal default.
type TextStyle struct {
	FG   Color
	BG   Color
	Attr Attribute
}

// IsDefault reports whether the style equals the terminal default.
func (s TextStyle) IsDefault() bool {
	return s.FG.IsDefault() && s.BG.IsDefault() && s.Attr == 0
}

// Segment is an immutable run of styled text. Text is never empty and
// contains no newline or unfinished escape bytes.
type Segment struct {
	Text  string
	Style TextStyle
}

// --- Predefined default colors for convenience ---
var (
	DefaultFG = Color{Mode: ColorModeDefault}
	DefaultBG = Color{Mode: ColorModeDefault}
)
