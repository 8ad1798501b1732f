// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/osc.go
// Summary: OSC dispatch, including the OSC 133 shell integration markers.
// Usage: Part of the streaming parser; called when an OSC terminator is seen.

package parser

import (
	"strconv"
	"strings"
)

// dispatchOsc interprets the accumulated OSC payload. Recognised sequences
// become events; everything else is dropped.
func (p *Parser) dispatchOsc(events []Event) []Event {
	buf := string(p.oscBuf)
	truncated := p.oscTruncated
	p.oscBuf = p.oscBuf[:0]
	p.oscTruncated = false

	command, payload, hasPayload := strings.Cut(buf, ";")
	code, err := strconv.Atoi(command)
	if err != nil {
		p.dropped++
		return events
	}

	switch code {
	case 0, 2: // Window title
		if !hasPayload {
			payload = ""
		}
		return append(events, Event{
			Kind: EventOsc, Osc: OscTitle, Payload: payload,
			ExitCode: -1, Truncated: truncated,
		})
	case 7: // Working directory report (file://host/path)
		path, ok := parseCwdURI(payload)
		if !ok {
			p.dropped++
			return events
		}
		return append(events, Event{
			Kind: EventOsc, Osc: OscCwd, Payload: path,
			ExitCode: -1, Truncated: truncated,
		})
	case 133:
		return p.dispatchShellMarker(payload, truncated, events)
	}
	p.dropped++
	return events
}

// dispatchShellMarker handles OSC 133 semantic prompt markers:
// A = prompt start, B = command-line start, C = pre-exec, D[;exit] = post-exec.
func (p *Parser) dispatchShellMarker(payload string, truncated bool, events []Event) []Event {
	marker, rest, _ := strings.Cut(payload, ";")
	ev := Event{Kind: EventOsc, ExitCode: -1, Truncated: truncated}
	switch marker {
	case "A":
		ev.Osc = OscPromptStart
	case "B":
		ev.Osc = OscCommandStart
	case "C":
		ev.Osc = OscCommandExecuted
	case "D":
		ev.Osc = OscCommandFinished
		if code, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			ev.ExitCode = code
		}
	default:
		p.dropped++
		return events
	}
	return append(events, ev)
}

// parseCwdURI extracts the path component of an OSC 7 file:// URI.
func parseCwdURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		// Some shells emit a bare path.
		if strings.HasPrefix(uri, "/") {
			return uri, true
		}
		return "", false
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[idx:], true
	}
	return "/", true
}
