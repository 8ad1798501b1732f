// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: block/prompt.go
// Summary: Fallback prompt detection for shells without OSC 133 integration.
// Usage: Consulted by the assembler only while no integration marker has
//        been observed on the stream.

package block

import (
	"fmt"
	"regexp"
)

// DefaultPromptPatterns are the prompt suffixes recognised out of the box.
func DefaultPromptPatterns() []string {
	return []string{`\$ `, `# `, `> `, `» `}
}

// PromptDetector matches shell prompt suffixes inside echoed PTY lines.
type PromptDetector struct {
	patterns []*regexp.Regexp
}

// NewPromptDetector compiles the pattern list. An invalid pattern is a
// configuration error.
func NewPromptDetector(patterns []string) (*PromptDetector, error) {
	if len(patterns) == 0 {
		patterns = DefaultPromptPatterns()
	}
	d := &PromptDetector{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("prompt pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// SplitCommand finds the rightmost prompt-suffix match in a completed line
// and returns the text after it as the command. ok is false when no pattern
// matches anywhere in the line.
func (d *PromptDetector) SplitCommand(line string) (cmd string, ok bool) {
	end := -1
	for _, re := range d.patterns {
		for _, m := range re.FindAllStringIndex(line, -1) {
			if m[1] > end {
				end = m[1]
			}
		}
	}
	if end < 0 {
		return "", false
	}
	return line[end:], true
}

// EndsWithPrompt reports whether the line ends exactly at a prompt suffix,
// which is how a shell waiting for input looks on the wire.
func (d *PromptDetector) EndsWithPrompt(line string) bool {
	if line == "" {
		return false
	}
	for _, re := range d.patterns {
		for _, m := range re.FindAllStringIndex(line, -1) {
			if m[1] == len(line) {
				return true
			}
		}
	}
	return false
}
