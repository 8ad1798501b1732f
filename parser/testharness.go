// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/testharness.go
// Summary: Test harness for feeding byte sequences and collecting events.
// Usage: Used by test files to send sequences and inspect the event stream.

package parser

// TestHarness feeds chunks to a parser and accumulates the emitted events.
type TestHarness struct {
	parser *Parser
	events []Event
}

// NewTestHarness creates a harness around a fresh parser.
func NewTestHarness(opts ...Option) *TestHarness {
	return &TestHarness{parser: NewParser(opts...)}
}

// Feed parses each chunk in order, collecting events across calls.
func (h *TestHarness) Feed(chunks ...string) {
	for _, c := range chunks {
		h.events = append(h.events, h.parser.Parse([]byte(c))...)
	}
}

// Events returns all collected events.
func (h *TestHarness) Events() []Event { return h.events }

// Parser exposes the underlying parser for state inspection.
func (h *TestHarness) Parser() *Parser { return h.parser }

// Segments returns the Text event segments, coalescing adjacent runs that
// carry an identical style. Chunked feeding may split a text run at chunk
// boundaries; coalescing restores run identity for comparison.
func (h *TestHarness) Segments() []Segment {
	var segs []Segment
	prevText := false
	for _, ev := range h.events {
		if ev.Kind != EventText {
			prevText = false
			continue
		}
		if n := len(segs); prevText && n > 0 && segs[n-1].Style == ev.Segment.Style {
			segs[n-1].Text += ev.Segment.Text
		} else {
			segs = append(segs, ev.Segment)
		}
		prevText = true
	}
	return segs
}

// Coalesced returns the event stream with adjacent same-style Text events
// merged, which is the normal form used by the resumability property.
func (h *TestHarness) Coalesced() []Event {
	var out []Event
	for _, ev := range h.events {
		if ev.Kind == EventText {
			if n := len(out); n > 0 && out[n-1].Kind == EventText &&
				out[n-1].Segment.Style == ev.Segment.Style {
				out[n-1].Segment.Text += ev.Segment.Text
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}
