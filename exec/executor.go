// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: exec/executor.go
// Summary: Out-of-band command execution with clean, attributed capture.
// Usage: Execute always returns a finished block; child failures are encoded
//        in the block status, never as an error.

package exec

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/parser"
)

const (
	// DefaultTimeout bounds a direct execution's wall-clock time.
	DefaultTimeout = 30 * time.Second

	// killGrace is how long a timed-out child gets between SIGTERM and SIGKILL.
	killGrace = 200 * time.Millisecond

	// maxLineBytes caps a single captured output line, well past bufio's
	// 64 KiB default. Longer lines abort the capture and fail the block.
	maxLineBytes = 4 * 1024 * 1024
)

// Executor runs classified-safe commands in a plain child process, bypassing
// the PTY, so output arrives unmixed with prompts and echoes.
type Executor struct {
	workingDir string
	env        []string
	timeout    time.Duration
	now        func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithWorkingDir sets the child's working directory.
func WithWorkingDir(dir string) ExecutorOption {
	return func(e *Executor) { e.workingDir = dir }
}

// WithEnv sets the child's environment (defaults to the parent's).
func WithEnv(env []string) ExecutorOption {
	return func(e *Executor) { e.env = env }
}

// WithTimeout overrides the execution timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithExecClock overrides the wall clock, for tests.
func WithExecClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor rooted in the current directory.
func NewExecutor(opts ...ExecutorOption) *Executor {
	wd, err := os.Getwd()
	if err != nil {
		wd = "/"
	}
	e := &Executor{
		workingDir: wd,
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the command and returns its completed block. Stdout and
// stderr are captured on separate pipes and merged into the block in arrival
// order with their stream tags preserved. Timeouts yield a Cancelled block;
// signal deaths, spawn failures and lost output yield a Failed one.
func (e *Executor) Execute(ctx context.Context, command string) *block.CommandBlock {
	blk := block.NewCommandBlock(command, e.workingDir, block.ModeDirect, e.now())

	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		blk.Finish(nil, block.StatusFailed, e.now())
		return blk
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := osexec.CommandContext(ctx, tokens[0], tokens[1:]...)
	cmd.Dir = e.workingDir
	cmd.Env = e.env
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.failSpawn(blk, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.failSpawn(blk, err)
	}
	if err := cmd.Start(); err != nil {
		return e.failSpawn(blk, err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var captureErr error
	capture := func(r io.Reader, stream block.Stream) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		// Each stream keeps its own parser so SGR state from tools that
		// colorize (ls --color, grep) is tracked per stream.
		p := parser.NewParser()
		for sc.Scan() {
			segs := textSegments(p.Parse(sc.Bytes()))
			mu.Lock()
			blk.AddLine(segs, stream, e.now())
			mu.Unlock()
		}
		if err := sc.Err(); err != nil {
			// Keep draining so the child does not wedge on a full pipe.
			io.Copy(io.Discard, r)
			mu.Lock()
			if captureErr == nil {
				captureErr = err
			}
			blk.AddLine([]parser.Segment{{Text: "output capture: " + err.Error()}},
				block.StreamStderr, e.now())
			mu.Unlock()
		}
	}
	wg.Add(2)
	go capture(stdout, block.StreamStdout)
	go capture(stderr, block.StreamStderr)
	wg.Wait()

	waitErr := cmd.Wait()
	end := e.now()

	if ctx.Err() == context.DeadlineExceeded {
		blk.Finish(nil, block.StatusCancelled, end)
		return blk
	}
	if waitErr == nil {
		if captureErr != nil {
			// The child exited clean but part of its output was lost.
			blk.Finish(nil, block.StatusFailed, end)
			return blk
		}
		code := 0
		blk.Finish(&code, block.StatusCompleted, end)
		return blk
	}
	var exitErr *osexec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code := 128 + int(ws.Signal())
			blk.Finish(&code, block.StatusFailed, end)
			return blk
		}
		code := exitErr.ExitCode()
		blk.Finish(&code, block.StatusFailed, end)
		return blk
	}
	blk.Finish(nil, block.StatusFailed, end)
	return blk
}

func (e *Executor) failSpawn(blk *block.CommandBlock, err error) *block.CommandBlock {
	blk.AddLine([]parser.Segment{{Text: err.Error()}}, block.StreamStderr, e.now())
	blk.Finish(nil, block.StatusFailed, e.now())
	return blk
}

// textSegments extracts the styled text runs from parsed line bytes.
func textSegments(events []parser.Event) []parser.Segment {
	var segs []parser.Segment
	for _, ev := range events {
		if ev.Kind == parser.EventText {
			segs = append(segs, ev.Segment)
		}
	}
	return segs
}
