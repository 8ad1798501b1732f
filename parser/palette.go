// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/palette.go
// Summary: xterm 256-color palette used to resolve indexed colors to RGB.

package parser

// palette holds the standard xterm 256-color table as RGB triples.
var palette [256][3]uint8

func init() {
	// First 16 ANSI colors.
	base := [16][3]uint8{
		{0, 0, 0},       // Black
		{128, 0, 0},     // Maroon
		{0, 128, 0},     // Green
		{128, 128, 0},   // Olive
		{0, 0, 128},     // Navy
		{128, 0, 128},   // Purple
		{0, 128, 128},   // Teal
		{192, 192, 192}, // Silver
		{128, 128, 128}, // Grey
		{255, 0, 0},     // Red
		{0, 255, 0},     // Lime
		{255, 255, 0},   // Yellow
		{0, 0, 255},     // Blue
		{255, 0, 255},   // Fuchsia
		{0, 255, 255},   // Aqua
		{255, 255, 255}, // White
	}
	copy(palette[:16], base[:])

	// 6x6x6 color cube.
	levels := []uint8{0, 95, 135, 175, 215, 255}
	i := 16
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				palette[i] = [3]uint8{levels[r], levels[g], levels[b]}
				i++
			}
		}
	}

	// Grayscale ramp.
	for j := 0; j < 24; j++ {
		gray := uint8(8 + j*10)
		palette[i] = [3]uint8{gray, gray, gray}
		i++
	}
}

// PaletteRGB resolves an xterm palette index to its RGB triple.
func PaletteRGB(index uint8) (r, g, b uint8) {
	c := palette[index]
	return c[0], c[1], c[2]
}
