// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: block/block.go
// Summary: CommandBlock, OutputLine and delta model for block scrollback.
// Usage: Blocks are mutated only by the assembler or the direct executor and
//        frozen on close; frozen blocks may be shared by reference.

package block

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicterm/mosaicterm/parser"
)

// Status is the lifecycle state of a command block.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool { return s != StatusRunning }

// Stream tags which output stream a line came from. PTY-sourced lines are
// always stdout; the direct executor distinguishes the two.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// ExecutionMode records how the command was run.
type ExecutionMode int

const (
	ModePty ExecutionMode = iota
	ModeDirect
)

// OutputLine is one finalised line of command output.
type OutputLine struct {
	Segments   []parser.Segment
	LineNumber int
	Timestamp  time.Time
	Stream     Stream
}

// Text returns the plain text of the line with styling stripped.
func (l OutputLine) Text() string {
	var sb strings.Builder
	for _, s := range l.Segments {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// CommandBlock is one command, its captured output and completion metadata.
type CommandBlock struct {
	ID         string
	Command    string
	WorkingDir string
	StartTime  time.Time
	EndTime    time.Time // zero while running
	ExitCode   *int      // nil while running or unknown
	Mode       ExecutionMode
	Status     Status
	Heuristic  bool // true when boundaries came from prompt guessing
	Lines      []OutputLine
}

// NewCommandBlock creates a running block for the given command.
func NewCommandBlock(command, workingDir string, mode ExecutionMode, start time.Time) *CommandBlock {
	return &CommandBlock{
		ID:         uuid.NewString(),
		Command:    command,
		WorkingDir: workingDir,
		StartTime:  start,
		Mode:       mode,
		Status:     StatusRunning,
	}
}

// AddLine appends a finalised output line and returns it. Appending to a
// terminal block is a no-op returning a zero line; the assembler and executor
// never do this, but the guard keeps frozen blocks immutable.
func (b *CommandBlock) AddLine(segments []parser.Segment, stream Stream, ts time.Time) (OutputLine, bool) {
	if b.Status.Terminal() {
		return OutputLine{}, false
	}
	line := OutputLine{
		Segments:   segments,
		LineNumber: len(b.Lines),
		Timestamp:  ts,
		Stream:     stream,
	}
	b.Lines = append(b.Lines, line)
	return line, true
}

// Finish freezes the block: end time, exit code and terminal status
// co-transition atomically. Finishing twice is a no-op.
func (b *CommandBlock) Finish(exit *int, status Status, end time.Time) {
	if b.Status.Terminal() {
		return
	}
	b.ExitCode = exit
	b.Status = status
	b.EndTime = end
}

// Duration reports how long the command ran; zero while still running.
func (b *CommandBlock) Duration() time.Duration {
	if b.EndTime.IsZero() {
		return 0
	}
	return b.EndTime.Sub(b.StartTime)
}

// DeltaKind discriminates the delta union.
type DeltaKind int

const (
	DeltaBlockOpened DeltaKind = iota
	DeltaLineAppended
	DeltaBlockClosed
)

// Delta is one incremental update to the block stream.
type Delta struct {
	Kind DeltaKind
	ID   string
	Time time.Time

	// DeltaBlockOpened
	Command    string
	WorkingDir string

	// DeltaLineAppended
	Line OutputLine

	// DeltaBlockClosed
	ExitCode *int
	Status   Status

	// Set on both open and close deltas.
	Heuristic bool
	Block     *CommandBlock // frozen once the close delta is emitted
}
