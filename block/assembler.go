// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: block/assembler.go
// Summary: Groups the parser event stream into command block deltas.
// Usage: Single consumer; feed events in arrival order, read deltas in the
//        order returned. No locking: the pipeline driver owns this state.

package block

import (
	"strings"
	"time"

	"github.com/mosaicterm/mosaicterm/parser"
)

// AssemblerState is the segmentation state machine position.
type AssemblerState int

const (
	StateAwaitingPrompt AssemblerState = iota
	StateInPrompt
	StateAwaitingCommand
	StateInCommand
	StateInOutput
	StateBetweenBlocks
)

func (s AssemblerState) String() string {
	switch s {
	case StateAwaitingPrompt:
		return "awaiting-prompt"
	case StateInPrompt:
		return "in-prompt"
	case StateAwaitingCommand:
		return "awaiting-command"
	case StateInCommand:
		return "in-command"
	case StateInOutput:
		return "in-output"
	case StateBetweenBlocks:
		return "between-blocks"
	}
	return "unknown"
}

// Assembler turns parser events into CommandBlock deltas. It owns the
// currently open block exclusively; blocks become shareable only after the
// BlockClosed delta freezes them.
type Assembler struct {
	state      AssemblerState
	now        func() time.Time
	detector   *PromptDetector
	integrated bool // OSC 133 seen; heuristic segmentation disabled
	idle       bool // PTY gap observed; arms the fallback prompt scan
	cwd        string

	current *CommandBlock
	cmd     []rune
	line    lineBuilder // output line under construction
	prov    lineBuilder // text observed outside any block

	swallowNewline bool // eat the echo newline after opening on OSC 133;C
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// WithWorkingDir sets the directory attributed to opened blocks until an
// OSC 7 report updates it.
func WithWorkingDir(cwd string) AssemblerOption {
	return func(a *Assembler) { a.cwd = cwd }
}

// WithPromptDetector overrides the fallback prompt detector.
func WithPromptDetector(d *PromptDetector) AssemblerOption {
	return func(a *Assembler) { a.detector = d }
}

// NewAssembler creates an assembler in the AwaitingPrompt state.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		state: StateAwaitingPrompt,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.detector == nil {
		a.detector, _ = NewPromptDetector(nil)
	}
	return a
}

// State returns the current segmentation state.
func (a *Assembler) State() AssemblerState { return a.state }

// Quiescent reports whether a direct-execution block may be spliced in now.
// Only the gaps between blocks qualify (plus the initial state before the
// first prompt); a rendered prompt or a half-typed command line does not.
func (a *Assembler) Quiescent() bool {
	return a.current == nil &&
		(a.state == StateBetweenBlocks || a.state == StateAwaitingPrompt)
}

// MarkIdle records that the PTY went quiet. The fallback prompt heuristic
// only considers the first non-empty line after such a gap; lines arriving
// mid-burst are never mistaken for prompts. Without shell integration the
// session driver calls this on every read gap.
func (a *Assembler) MarkIdle() { a.idle = true }

// WorkingDir returns the directory currently attributed to new blocks.
func (a *Assembler) WorkingDir() string { return a.cwd }

// Process consumes parser events in order and returns the deltas they caused,
// in emission order.
func (a *Assembler) Process(events []parser.Event) []Delta {
	var deltas []Delta
	for _, ev := range events {
		deltas = a.processEvent(ev, deltas)
	}
	return deltas
}

// CloseStream flushes the in-progress line and closes any open block as
// cancelled. Called when the PTY reaches end of stream or the session shuts
// down.
func (a *Assembler) CloseStream() []Delta {
	var deltas []Delta
	if a.current != nil {
		deltas = a.flushLine(deltas)
		deltas = a.closeBlock(deltas, nil, StatusCancelled)
	}
	a.state = StateBetweenBlocks
	return deltas
}

func (a *Assembler) processEvent(ev parser.Event, deltas []Delta) []Delta {
	switch ev.Kind {
	case parser.EventText:
		return a.onText(ev.Segment, deltas)
	case parser.EventNewline:
		return a.onNewline(deltas)
	case parser.EventCarriageReturn:
		switch a.state {
		case StateInOutput:
			a.line.carriageReturn()
		case StateInCommand:
			a.cmd = a.cmd[:0]
		default:
			a.prov.carriageReturn()
		}
	case parser.EventBackspace:
		switch a.state {
		case StateInOutput:
			a.line.backspace()
		case StateInCommand:
			if len(a.cmd) > 0 {
				a.cmd = a.cmd[:len(a.cmd)-1]
			}
		default:
			a.prov.backspace()
		}
	case parser.EventTab:
		return a.onText(parser.Segment{Text: "\t"}, deltas)
	case parser.EventOsc:
		return a.onOsc(ev, deltas)
	}
	// Bell, StyleChanged, ControlSequence and Reset carry no block meaning.
	return deltas
}

func (a *Assembler) onText(seg parser.Segment, deltas []Delta) []Delta {
	switch a.state {
	case StateInOutput:
		for _, r := range seg.Text {
			a.line.write(r, seg.Style)
		}
		// A fresh prompt showing up mid-line means the heuristic block is done.
		if a.current != nil && a.current.Heuristic && !a.integrated &&
			a.detector.EndsWithPrompt(a.line.text()) {
			a.prov = a.line
			a.line.resetDetached()
			deltas = a.closeBlock(deltas, nil, StatusCompleted)
			a.state = StateBetweenBlocks
		}
	case StateInCommand:
		a.cmd = append(a.cmd, []rune(seg.Text)...)
	case StateAwaitingCommand:
		a.cmd = append(a.cmd[:0], []rune(seg.Text)...)
		a.state = StateInCommand
	case StateInPrompt:
		// Prompt rendering is not block content.
	default: // AwaitingPrompt, BetweenBlocks
		for _, r := range seg.Text {
			a.prov.write(r, seg.Style)
		}
	}
	return deltas
}

func (a *Assembler) onNewline(deltas []Delta) []Delta {
	if a.swallowNewline {
		a.swallowNewline = false
		if a.state == StateInOutput && a.line.empty() {
			return deltas
		}
	}
	switch a.state {
	case StateInOutput:
		return a.emitLine(deltas)
	case StateInCommand, StateAwaitingCommand:
		return a.openBlock(string(a.cmd), false, deltas)
	case StateInPrompt:
		// Multi-line prompts stay inside the prompt.
	default: // AwaitingPrompt, BetweenBlocks
		line := a.prov.text()
		a.prov.reset()
		if a.integrated || strings.TrimSpace(line) == "" {
			return deltas
		}
		if !a.idle {
			return deltas
		}
		// The first non-empty line after a gap is the only prompt candidate.
		a.idle = false
		if cmd, ok := a.detector.SplitCommand(line); ok && strings.TrimSpace(cmd) != "" {
			return a.openBlock(cmd, true, deltas)
		}
	}
	return deltas
}

func (a *Assembler) onOsc(ev parser.Event, deltas []Delta) []Delta {
	switch ev.Osc {
	case parser.OscPromptStart:
		a.integrated = true
		if a.state == StateInOutput && a.current != nil {
			deltas = a.flushLine(deltas)
			deltas = a.closeBlock(deltas, nil, StatusCompleted)
		}
		a.cmd = a.cmd[:0]
		a.prov.reset()
		a.state = StateInPrompt
	case parser.OscCommandStart:
		a.integrated = true
		if a.state != StateInOutput {
			a.cmd = a.cmd[:0]
			a.state = StateAwaitingCommand
		}
	case parser.OscCommandExecuted:
		a.integrated = true
		switch a.state {
		case StateInOutput:
			// Block already open via the echoed newline.
		case StateInCommand:
			deltas = a.openBlock(string(a.cmd), false, deltas)
			a.swallowNewline = true
		default:
			// Bare pre-exec marker without A/B: attribute the output to a
			// block with an empty command, flagged heuristic.
			deltas = a.openBlock("", true, deltas)
		}
	case parser.OscCommandFinished:
		a.integrated = true
		if a.current != nil {
			deltas = a.flushLine(deltas)
			var exit *int
			status := StatusCompleted
			if ev.ExitCode >= 0 {
				code := ev.ExitCode
				exit = &code
				if code != 0 {
					status = StatusFailed
				}
			}
			deltas = a.closeBlock(deltas, exit, status)
			a.state = StateBetweenBlocks
		}
	case parser.OscCwd:
		a.cwd = ev.Payload
	}
	return deltas
}

func (a *Assembler) openBlock(cmd string, heuristic bool, deltas []Delta) []Delta {
	now := a.now()
	a.current = NewCommandBlock(cmd, a.cwd, ModePty, now)
	a.current.Heuristic = heuristic
	a.cmd = a.cmd[:0]
	a.line.reset()
	a.prov.reset()
	a.state = StateInOutput
	return append(deltas, Delta{
		Kind:       DeltaBlockOpened,
		ID:         a.current.ID,
		Time:       now,
		Command:    cmd,
		WorkingDir: a.cwd,
		Heuristic:  heuristic,
		Block:      a.current,
	})
}

// emitLine finalises the in-progress line unconditionally (newline observed).
func (a *Assembler) emitLine(deltas []Delta) []Delta {
	line, ok := a.current.AddLine(a.line.segments(), StreamStdout, a.now())
	a.line.reset()
	if !ok {
		return deltas
	}
	return append(deltas, Delta{
		Kind: DeltaLineAppended,
		ID:   a.current.ID,
		Time: line.Timestamp,
		Line: line,
	})
}

// flushLine finalises a partial line if it has content (stream closing).
func (a *Assembler) flushLine(deltas []Delta) []Delta {
	if a.line.empty() {
		return deltas
	}
	return a.emitLine(deltas)
}

func (a *Assembler) closeBlock(deltas []Delta, exit *int, status Status) []Delta {
	blk := a.current
	now := a.now()
	blk.Finish(exit, status, now)
	a.current = nil
	return append(deltas, Delta{
		Kind:      DeltaBlockClosed,
		ID:        blk.ID,
		Time:      now,
		ExitCode:  exit,
		Status:    status,
		Heuristic: blk.Heuristic,
		Block:     blk,
	})
}
