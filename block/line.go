// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: block/line.go
// Summary: In-progress line editing with carriage-return overwrite semantics.

package block

import (
	"strings"

	"github.com/mosaicterm/mosaicterm/parser"
)

type styledRune struct {
	r     rune
	style parser.TextStyle
}

// lineBuilder models the write cursor of a single line: text appends at the
// cursor, CR repositions to column zero so progress-bar updates overwrite the
// prefix, backspace removes the trailing code point when at end of line.
type lineBuilder struct {
	runes  []styledRune
	cursor int
}

func (b *lineBuilder) write(r rune, st parser.TextStyle) {
	sr := styledRune{r: r, style: st}
	if b.cursor < len(b.runes) {
		b.runes[b.cursor] = sr
	} else {
		b.runes = append(b.runes, sr)
	}
	b.cursor++
}

func (b *lineBuilder) carriageReturn() { b.cursor = 0 }

func (b *lineBuilder) backspace() {
	if b.cursor == 0 {
		return
	}
	b.cursor--
	if b.cursor == len(b.runes)-1 {
		b.runes = b.runes[:b.cursor]
	}
}

func (b *lineBuilder) reset() {
	b.runes = b.runes[:0]
	b.cursor = 0
}

// resetDetached clears the builder without reusing the backing array, for
// when the previous content escaped to another owner.
func (b *lineBuilder) resetDetached() {
	b.runes = nil
	b.cursor = 0
}

func (b *lineBuilder) empty() bool { return len(b.runes) == 0 }

func (b *lineBuilder) text() string {
	var sb strings.Builder
	for _, sr := range b.runes {
		sb.WriteRune(sr.r)
	}
	return sb.String()
}

// segments groups consecutive runes sharing a style into Segments.
func (b *lineBuilder) segments() []parser.Segment {
	if len(b.runes) == 0 {
		return nil
	}
	var segs []parser.Segment
	var sb strings.Builder
	style := b.runes[0].style
	for _, sr := range b.runes {
		if sr.style != style {
			segs = append(segs, parser.Segment{Text: sb.String(), Style: style})
			sb.Reset()
			style = sr.style
		}
		sb.WriteRune(sr.r)
	}
	segs = append(segs, parser.Segment{Text: sb.String(), Style: style})
	return segs
}
