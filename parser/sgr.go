// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/sgr.go
// Summary: SGR (Select Graphic Rendition) - text attributes and colors.
// Usage: Part of the streaming parser; updates the current style in place.

package parser

// handleSGR processes SGR escape sequence parameters. Handles text attributes
// (bold, dim, italic, underline, blink, reverse, hidden, strikethrough) and
// colors (standard, 256-color, RGB). Colon-joined subparameters bind to the
// parameter in front of them: 38/48 read them as the extended color tail,
// anything else skips its whole group, so 4:3 (curly underline) never applies
// a stray italic. Unrecognised parameters are skipped without invalidating
// the rest.
func (p *Parser) handleSGR(params []int, subs []bool) {
	if len(params) == 0 {
		p.style = TextStyle{}
		return
	}
	i := 0
	for i < len(params) {
		if subs[i] {
			// Subparameter left over from a consumed or skipped group.
			i++
			continue
		}
		v := params[i]
		if v == 38 || v == 48 {
			dst := &p.style.FG
			if v == 48 {
				dst = &p.style.BG
			}
			consumed := applyExtendedColor(dst, params[i:])
			if consumed == 0 {
				// Malformed colon form: drop its subparameters with it. A
				// malformed semicolon form consumes nothing so the rest of
				// the sequence still applies.
				consumed = subRun(subs, i+1)
			}
			i += 1 + consumed
			continue
		}
		if n := subRun(subs, i+1); n > 0 {
			// Unknown colon-joined variant of a simple parameter.
			i += 1 + n
			continue
		}
		switch {
		case v == 0:
			p.style = TextStyle{}
		case v == 1:
			p.style.Attr |= AttrBold
		case v == 2:
			p.style.Attr |= AttrDim
		case v == 3:
			p.style.Attr |= AttrItalic
		case v == 4:
			p.style.Attr |= AttrUnderline
		case v == 5 || v == 6:
			p.style.Attr |= AttrBlink
		case v == 7:
			p.style.Attr |= AttrReverse
		case v == 8:
			p.style.Attr |= AttrHidden
		case v == 9:
			p.style.Attr |= AttrStrikethrough
		case v == 22:
			p.style.Attr &^= AttrBold | AttrDim
		case v == 23:
			p.style.Attr &^= AttrItalic
		case v == 24:
			p.style.Attr &^= AttrUnderline
		case v == 25:
			p.style.Attr &^= AttrBlink
		case v == 27:
			p.style.Attr &^= AttrReverse
		case v == 28:
			p.style.Attr &^= AttrHidden
		case v == 29:
			p.style.Attr &^= AttrStrikethrough
		case v >= 30 && v <= 37:
			p.style.FG = NewIndexedColor(ColorModeStandard, uint8(v-30))
		case v == 39:
			p.style.FG = DefaultFG
		case v >= 40 && v <= 47:
			p.style.BG = NewIndexedColor(ColorModeStandard, uint8(v-40))
		case v == 49:
			p.style.BG = DefaultBG
		case v >= 90 && v <= 97: // Bright foreground
			p.style.FG = NewIndexedColor(ColorModeStandard, uint8(v-90+8))
		case v >= 100 && v <= 107: // Bright background
			p.style.BG = NewIndexedColor(ColorModeStandard, uint8(v-100+8))
		}
		i++
	}
}

// applyExtendedColor consumes a 38/48 extended color introducer. params[0] is
// the introducer itself; the return value is the number of extra parameters
// consumed beyond it (0 when the tail is malformed, which skips just the
// introducer and leaves the rest of the sequence intact).
func applyExtendedColor(dst *Color, params []int) int {
	if len(params) >= 3 && params[1] == 5 { // 256-color palette
		*dst = NewIndexedColor(ColorMode256, uint8(params[2]))
		return 2
	}
	if len(params) >= 5 && params[1] == 2 { // RGB true-color
		*dst = NewRGBColor(uint8(params[2]), uint8(params[3]), uint8(params[4]))
		return 4
	}
	return 0
}

// subRun counts the consecutive subparameters starting at index i.
func subRun(subs []bool, i int) int {
	n := 0
	for i+n < len(subs) && subs[i+n] {
		n++
	}
	return n
}
