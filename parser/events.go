// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/events.go
// Summary: Event model emitted by the streaming VT parser.
// Usage: Consumed by the block assembler and any other stream observer.

package parser

// EventKind discriminates the Event union. Events are plain tagged values,
// not an interface, so the hot parse loop stays allocation-friendly.
type EventKind int

const (
	EventText EventKind = iota
	EventNewline
	EventCarriageReturn
	EventTab
	EventBackspace
	EventBell
	EventStyleChanged
	EventControlSequence
	EventOsc
	EventReset
)

// OscKind identifies the operating-system-command sequences the parser
// understands. Everything else is dropped before reaching the event stream.
type OscKind int

const (
	OscTitle           OscKind = iota // OSC 0 / OSC 2
	OscCwd                            // OSC 7 (file:// working directory report)
	OscPromptStart                    // OSC 133;A
	OscCommandStart                   // OSC 133;B
	OscCommandExecuted                // OSC 133;C
	OscCommandFinished                // OSC 133;D[;exit]
	OscDeviceControl                  // DCS passthrough payload
)

// Event is one parsed item from the byte stream. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind EventKind

	// EventText
	Segment Segment

	// EventStyleChanged (advisory; Segment.Style is authoritative)
	Style TextStyle

	// EventControlSequence
	Final   byte
	Private bool
	Params  []int

	// EventOsc
	Osc       OscKind
	Payload   string
	ExitCode  int  // OscCommandFinished; -1 when the shell omitted it
	Truncated bool // payload hit the configured cap
}
