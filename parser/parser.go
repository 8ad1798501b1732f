// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: parser/parser.go
// Summary: Streaming, resumable VT500-style escape sequence parser.
// Usage: Feed PTY bytes with Parse; consume the returned events in order.
// Notes: The parser is total: malformed input is dropped, never surfaced.

package parser

import (
	"unicode/utf8"
)

type State int

const (
	StateGround State = iota
	StateEscape
	StateEscapeIntermediate
	StateCsiEntry
	StateCsiParam
	StateCsiIntermediate
	StateCsiIgnore
	StateOscString
	StateDcsEntry
	StateDcsPassthrough
	StateDcsIgnore
	StateSosPmApcString
)

const (
	// DefaultPayloadCap bounds OSC and DCS payload accumulation.
	DefaultPayloadCap = 4096

	// maxCsiParams caps the parameter list of a CSI sequence; extras are dropped.
	maxCsiParams = 16

	// maxParamValue clamps a single numeric parameter.
	maxParamValue = 65535
)

// Parser is a resumable byte-stream parser. A byte slice may end anywhere,
// including mid escape sequence or mid UTF-8 rune; the unfinished tail is
// retained and the next Parse call continues where the previous one stopped.
type Parser struct {
	state State
	style TextStyle

	params       []int
	subs         []bool // params[i] was colon-joined to params[i-1]
	currentParam int
	currentSub   bool
	private      bool
	intermediate byte

	payloadCap   int
	oscBuf       []byte
	oscTruncated bool
	dcsBuf       []byte
	dcsTruncated bool
	stringEsc    bool // saw ESC inside a string sequence, expecting ST

	utf8Buf  [4]byte
	utf8Len  int
	utf8Need int

	run []byte // pending printable text within the current Parse call

	dropped int
}

// Option configures a Parser.
type Option func(*Parser)

// WithPayloadCap overrides the OSC/DCS payload cap.
func WithPayloadCap(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.payloadCap = n
		}
	}
}

// NewParser creates a parser in the Ground state with default style.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		state:      StateGround,
		payloadCap: DefaultPayloadCap,
		params:     make([]int, 0, maxCsiParams),
		subs:       make([]bool, 0, maxCsiParams),
		oscBuf:     make([]byte, 0, 128),
		dcsBuf:     make([]byte, 0, 128),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Style returns the current SGR style.
func (p *Parser) Style() TextStyle { return p.style }

// Dropped returns the count of malformed or unrecognised sequences discarded.
func (p *Parser) Dropped() int { return p.dropped }

// Parse processes a slice of bytes from the PTY and returns the events it
// produced, in order. Pending printable text is flushed at the end of each
// call; adjacent Text events across calls carry the same style, so consumers
// that care about run identity can coalesce them.
func (p *Parser) Parse(data []byte) []Event {
	var events []Event
	for _, b := range data {
		events = p.step(b, events)
	}
	return p.flushRun(events)
}

func (p *Parser) step(b byte, events []Event) []Event {
	// CAN and SUB abort any in-flight sequence.
	if p.state != StateGround && (b == 0x18 || b == 0x1a) {
		p.state = StateGround
		p.stringEsc = false
		p.dropped++
		return events
	}

	switch p.state {
	case StateGround:
		return p.stepGround(b, events)
	case StateEscape:
		return p.stepEscape(b, events)
	case StateEscapeIntermediate:
		switch {
		case b >= 0x20 && b <= 0x2f:
			p.intermediate = b
		case b >= 0x30 && b <= 0x7e:
			// Charset designation and friends; nothing downstream needs them.
			p.state = StateGround
		default:
			p.state = StateGround
			p.dropped++
		}
		return events
	case StateCsiEntry:
		return p.stepCsiEntry(b, events)
	case StateCsiParam:
		return p.stepCsiParam(b, events)
	case StateCsiIntermediate:
		switch {
		case b >= 0x20 && b <= 0x2f:
			p.intermediate = b
		case b >= 0x40 && b <= 0x7e:
			events = p.dispatchCsi(b, events)
			p.state = StateGround
		default:
			p.state = StateCsiIgnore
		}
		return events
	case StateCsiIgnore:
		if b >= 0x40 && b <= 0x7e {
			p.state = StateGround
			p.dropped++
		}
		return events
	case StateOscString:
		return p.stepOscString(b, events)
	case StateDcsEntry:
		return p.stepDcsEntry(b, events)
	case StateDcsPassthrough:
		return p.stepDcsPassthrough(b, events)
	case StateDcsIgnore, StateSosPmApcString:
		if p.stringEsc {
			p.stringEsc = false
			if b == '\\' {
				p.state = StateGround
				p.dropped++
				return events
			}
		}
		if b == 0x07 {
			p.state = StateGround
			p.dropped++
		} else if b == 0x1b {
			p.stringEsc = true
		}
		return events
	}
	return events
}

func (p *Parser) stepGround(b byte, events []Event) []Event {
	if p.utf8Need > 0 {
		if b&0xc0 == 0x80 {
			p.utf8Buf[p.utf8Len] = b
			p.utf8Len++
			if p.utf8Len == p.utf8Need {
				p.commitRune()
			}
			return events
		}
		// Truncated rune; replace it and reprocess the interrupting byte.
		p.abortRune()
	}

	switch {
	case b == 0x1b:
		events = p.flushRun(events)
		p.state = StateEscape
	case b == '\n':
		events = p.flushRun(events)
		events = append(events, Event{Kind: EventNewline})
	case b == '\r':
		events = p.flushRun(events)
		events = append(events, Event{Kind: EventCarriageReturn})
	case b == '\t':
		events = p.flushRun(events)
		events = append(events, Event{Kind: EventTab})
	case b == '\b':
		events = p.flushRun(events)
		events = append(events, Event{Kind: EventBackspace})
	case b == 0x07:
		events = p.flushRun(events)
		events = append(events, Event{Kind: EventBell})
	case b < 0x20 || b == 0x7f:
		// Remaining C0 controls and DEL are ignored.
	case b < 0x80:
		p.run = append(p.run, b)
	default:
		n := utf8SequenceLen(b)
		if n == 0 {
			p.run = append(p.run, replacementBytes...)
			return events
		}
		p.utf8Buf[0] = b
		p.utf8Len = 1
		p.utf8Need = n
	}
	return events
}

func (p *Parser) stepEscape(b byte, events []Event) []Event {
	switch {
	case b == '[':
		p.state = StateCsiEntry
		p.params = p.params[:0]
		p.subs = p.subs[:0]
		p.currentParam = 0
		p.currentSub = false
		p.private = false
		p.intermediate = 0
	case b == ']':
		p.state = StateOscString
		p.oscBuf = p.oscBuf[:0]
		p.oscTruncated = false
		p.stringEsc = false
	case b == 'P':
		p.state = StateDcsEntry
		p.dcsBuf = p.dcsBuf[:0]
		p.dcsTruncated = false
		p.stringEsc = false
	case b == 'X' || b == '^' || b == '_':
		p.state = StateSosPmApcString
		p.stringEsc = false
	case b == 'c':
		// RIS: full reset.
		p.style = TextStyle{}
		events = append(events, Event{Kind: EventReset})
		p.state = StateGround
	case b >= 0x20 && b <= 0x2f:
		p.intermediate = b
		p.state = StateEscapeIntermediate
	default:
		// ESC 7/8/=/>/M/D/E and the rest carry no block-level meaning.
		p.state = StateGround
	}
	return events
}

func (p *Parser) stepCsiEntry(b byte, events []Event) []Event {
	switch {
	case b >= '0' && b <= '9':
		p.currentParam = int(b - '0')
		p.state = StateCsiParam
	case b == ';':
		p.pushParam(false)
		p.state = StateCsiParam
	case b == ':':
		p.pushParam(true)
		p.state = StateCsiParam
	case b >= 0x3c && b <= 0x3f:
		p.private = true
		p.state = StateCsiParam
	case b >= 0x20 && b <= 0x2f:
		p.intermediate = b
		p.state = StateCsiIntermediate
	case b >= 0x40 && b <= 0x7e:
		events = p.dispatchCsi(b, events)
		p.state = StateGround
	default:
		p.state = StateCsiIgnore
	}
	return events
}

func (p *Parser) stepCsiParam(b byte, events []Event) []Event {
	switch {
	case b >= '0' && b <= '9':
		p.currentParam = p.currentParam*10 + int(b-'0')
		if p.currentParam > maxParamValue {
			p.currentParam = maxParamValue
		}
	case b == ';':
		p.pushParam(false)
	case b == ':':
		p.pushParam(true)
	case b >= 0x20 && b <= 0x2f:
		p.pushParam(false)
		p.intermediate = b
		p.state = StateCsiIntermediate
	case b >= 0x40 && b <= 0x7e:
		p.pushParam(false)
		events = p.dispatchCsi(b, events)
		p.state = StateGround
	default:
		p.state = StateCsiIgnore
	}
	return events
}

func (p *Parser) stepOscString(b byte, events []Event) []Event {
	if p.stringEsc {
		p.stringEsc = false
		if b == '\\' {
			events = p.dispatchOsc(events)
			p.state = StateGround
			return events
		}
		// The ESC aborted the string; dispatch what we have and let the
		// escape machinery reprocess the byte.
		events = p.dispatchOsc(events)
		p.state = StateEscape
		return p.step(b, events)
	}
	switch b {
	case 0x07:
		events = p.dispatchOsc(events)
		p.state = StateGround
	case 0x1b:
		p.stringEsc = true
	default:
		if len(p.oscBuf) < p.payloadCap {
			p.oscBuf = append(p.oscBuf, b)
		} else {
			p.oscTruncated = true
		}
	}
	return events
}

func (p *Parser) stepDcsEntry(b byte, events []Event) []Event {
	switch {
	case b == 0x1b:
		p.stringEsc = true
		p.state = StateDcsPassthrough
	case (b >= 0x30 && b <= 0x3f) || (b >= 0x20 && b <= 0x2f):
		p.appendDcs(b)
	case b >= 0x40 && b <= 0x7e:
		p.appendDcs(b)
		p.state = StateDcsPassthrough
	default:
		p.state = StateDcsIgnore
	}
	return events
}

func (p *Parser) stepDcsPassthrough(b byte, events []Event) []Event {
	if p.stringEsc {
		p.stringEsc = false
		if b == '\\' {
			events = p.dispatchDcs(events)
			p.state = StateGround
			return events
		}
		p.appendDcs(0x1b)
	}
	if b == 0x1b {
		p.stringEsc = true
	} else {
		p.appendDcs(b)
	}
	return events
}

func (p *Parser) appendDcs(b byte) {
	if len(p.dcsBuf) < p.payloadCap {
		p.dcsBuf = append(p.dcsBuf, b)
	} else {
		p.dcsTruncated = true
	}
}

// pushParam commits the accumulating parameter; nextSub records whether the
// separator that ended it was a colon, marking the following parameter as a
// subparameter of this group.
func (p *Parser) pushParam(nextSub bool) {
	if len(p.params) < maxCsiParams {
		p.params = append(p.params, p.currentParam)
		p.subs = append(p.subs, p.currentSub)
	}
	p.currentParam = 0
	p.currentSub = nextSub
}

// knownCsiFinals are the dispatch bytes surfaced as ControlSequence events.
// Anything else is silently dropped per the parser contract.
const knownCsiFinals = "ABCDEFGHJKLMPSTXdfghlnrsu@"

func (p *Parser) dispatchCsi(final byte, events []Event) []Event {
	if final == 'm' && !p.private {
		p.handleSGR(p.params, p.subs)
		return append(events, Event{Kind: EventStyleChanged, Style: p.style})
	}
	for i := 0; i < len(knownCsiFinals); i++ {
		if knownCsiFinals[i] == final {
			params := make([]int, len(p.params))
			copy(params, p.params)
			return append(events, Event{
				Kind:    EventControlSequence,
				Final:   final,
				Private: p.private,
				Params:  params,
			})
		}
	}
	p.dropped++
	return events
}

func (p *Parser) dispatchDcs(events []Event) []Event {
	if len(p.dcsBuf) == 0 {
		return events
	}
	return append(events, Event{
		Kind:      EventOsc,
		Osc:       OscDeviceControl,
		Payload:   string(p.dcsBuf),
		ExitCode:  -1,
		Truncated: p.dcsTruncated,
	})
}

func (p *Parser) commitRune() {
	r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
	if r == utf8.RuneError {
		p.run = append(p.run, replacementBytes...)
	} else {
		p.run = append(p.run, p.utf8Buf[:p.utf8Len]...)
	}
	p.utf8Len = 0
	p.utf8Need = 0
}

func (p *Parser) abortRune() {
	p.run = append(p.run, replacementBytes...)
	p.utf8Len = 0
	p.utf8Need = 0
}

func (p *Parser) flushRun(events []Event) []Event {
	if len(p.run) == 0 {
		return events
	}
	events = append(events, Event{
		Kind:    EventText,
		Segment: Segment{Text: string(p.run), Style: p.style},
	})
	p.run = p.run[:0]
	return events
}

var replacementBytes = []byte(string(utf8.RuneError))

// utf8SequenceLen returns the expected byte length for a UTF-8 leading byte,
// or 0 if the byte cannot start a sequence.
func utf8SequenceLen(b byte) int {
	switch {
	case b >= 0xc2 && b <= 0xdf:
		return 2
	case b >= 0xe0 && b <= 0xef:
		return 3
	case b >= 0xf0 && b <= 0xf4:
		return 4
	default:
		return 0
	}
}
