// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// Package blockfmt colorizes command block output after the block closes.
// It detects the output's language from content and applies Chroma token
// colors to the block's segments in-place. Only text the program left on the
// default foreground is touched — anything the command colored itself wins.
package blockfmt

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/go-enry/go-enry/v2"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/parser"
)

const (
	defaultStyleName = "catppuccin-mocha"

	// maxDetectLines bounds how much output feeds language detection.
	maxDetectLines = 20
)

// Highlighter re-colors closed blocks using syntax highlighting.
type Highlighter struct {
	style *chroma.Style
}

// New creates a highlighter; an empty or unknown style name selects the
// default.
func New(styleName string) *Highlighter {
	if styleName == "" {
		styleName = defaultStyleName
	}
	return &Highlighter{style: styles.Get(styleName)}
}

// Highlight detects the block output's language and applies token colors to
// its lines in-place. Blocks whose output doesn't look like a known language
// are left alone.
func (h *Highlighter) Highlight(blk *block.CommandBlock) {
	if blk == nil || len(blk.Lines) == 0 {
		return
	}

	texts := make([]string, len(blk.Lines))
	for i := range blk.Lines {
		texts[i] = blk.Lines[i].Text()
	}

	lang := inferLanguage(sample(texts))
	if lang.name == "" {
		return
	}
	lexer := lexers.Get(lang.name)
	if lexer == nil {
		return
	}

	h.colorize(blk, texts, lexer)
}

// language is a detection outcome: the chroma lexer name plus which strategy
// produced it.
type language struct {
	name   string
	method string
}

// inferLanguage guesses the language of output lines. Shebangs win outright;
// otherwise Chroma's content analysers get first shot and enry's Bayesian
// classifier is the fallback (it detects e.g. Python from content alone,
// which Chroma's analysers can't).
func inferLanguage(lines []string) language {
	content := []byte(strings.Join(lines, "\n"))
	if len(strings.TrimSpace(string(content))) == 0 {
		return language{}
	}

	if langs := enry.GetLanguagesByShebang("", content, nil); len(langs) > 0 {
		return language{name: normalizeLang(langs[0]), method: "shebang"}
	}
	if l := lexers.Analyse(string(content)); l != nil {
		return language{name: normalizeLang(l.Config().Name), method: "heuristic"}
	}
	if name := enry.GetLanguage("", content); name != enry.OtherLanguage {
		if n := normalizeLang(name); n != "" {
			return language{name: n, method: "classifier"}
		}
	}
	return language{}
}

// normalizeLang lowercases a language name and rejects the pseudo-languages
// detectors report for prose.
func normalizeLang(name string) string {
	n := strings.ToLower(name)
	if n == "text" || n == "plaintext" || n == "plain text" {
		return ""
	}
	return n
}

func sample(texts []string) []string {
	if len(texts) > maxDetectLines {
		return texts[:maxDetectLines]
	}
	return texts
}

// styledRune is one cell of a flattened line.
type styledRune struct {
	r     rune
	style parser.TextStyle
}

// colorize tokenizes all lines as one block so the lexer sees full context,
// then walks the token stream and the flattened lines in parallel. Line
// boundaries in the combined text are exact: Text() never contains newlines.
func (h *Highlighter) colorize(blk *block.CommandBlock, texts []string, lexer chroma.Lexer) {
	flat := make([][]styledRune, len(blk.Lines))
	for i := range blk.Lines {
		flat[i] = flatten(blk.Lines[i].Segments)
	}

	fullText := strings.Join(texts, "\n") + "\n"
	lexer = chroma.Coalesce(lexer)
	tokens, err := chroma.Tokenise(lexer, nil, fullText)
	if err != nil {
		return
	}

	baseColour := h.style.Get(chroma.Text).Colour

	li, col := 0, 0
	for _, tok := range tokens {
		if tok.Type == chroma.EOFType {
			break
		}
		entry := h.style.Get(tok.Type)
		fg, attr, distinct := resolveTokenStyle(entry, baseColour)

		for _, r := range tok.Value {
			if r == '\n' {
				li++
				col = 0
				continue
			}
			if li >= len(flat) {
				break
			}
			if col < len(flat[li]) {
				sr := &flat[li][col]
				if sr.style.FG.IsDefault() {
					if distinct {
						sr.style.FG = fg
						sr.style.Attr |= attr
					} else if attr != 0 {
						sr.style.Attr |= attr
					}
				}
			}
			col++
		}
	}

	for i := range blk.Lines {
		blk.Lines[i].Segments = regroup(flat[i])
	}
}

// resolveTokenStyle extracts color and attributes from a style entry.
// Returns distinct=false when the color matches the base text color, so the
// default-FG bit survives for unremarkable tokens.
func resolveTokenStyle(entry chroma.StyleEntry, baseColour chroma.Colour) (parser.Color, parser.Attribute, bool) {
	var attr parser.Attribute
	if entry.Bold == chroma.Yes {
		attr |= parser.AttrBold
	}
	if entry.Italic == chroma.Yes {
		attr |= parser.AttrItalic
	}
	if entry.Underline == chroma.Yes {
		attr |= parser.AttrUnderline
	}

	if !entry.Colour.IsSet() || entry.Colour == baseColour {
		return parser.Color{}, attr, false
	}
	return parser.NewRGBColor(entry.Colour.Red(), entry.Colour.Green(), entry.Colour.Blue()), attr, true
}

func flatten(segs []parser.Segment) []styledRune {
	var out []styledRune
	for _, seg := range segs {
		for _, r := range seg.Text {
			out = append(out, styledRune{r: r, style: seg.Style})
		}
	}
	return out
}

func regroup(runes []styledRune) []parser.Segment {
	if len(runes) == 0 {
		return nil
	}
	var segs []parser.Segment
	var b strings.Builder
	current := runes[0].style
	for _, sr := range runes {
		if sr.style != current {
			segs = append(segs, parser.Segment{Text: b.String(), Style: current})
			b.Reset()
			current = sr.style
		}
		b.WriteRune(sr.r)
	}
	segs = append(segs, parser.Segment{Text: b.String(), Style: current})
	return segs
}
