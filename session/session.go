// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/session.go
// Summary: Orchestrates PTY ↔ parser ↔ assembler into a single delta stream.
// Usage: Start, consume Deltas() until closed, Close, Wait.
// Notes: Parser and assembler state belong to the driver goroutine alone.

package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/exec"
	"github.com/mosaicterm/mosaicterm/parser"
)

const (
	// readBufSize is the PTY reader's buffer. When the delta channel is full
	// the reader stalls here, propagating backpressure to the child.
	readBufSize = 64 * 1024

	// DefaultQueueCapacity bounds the delta channel.
	DefaultQueueCapacity = 1024

	// idleThreshold is how long the PTY must stay quiet before the gap is
	// reported to the assembler, arming its fallback prompt scan.
	idleThreshold = 150 * time.Millisecond
)

// ErrClosed is returned for operations on a session that is shutting down.
var ErrClosed = errors.New("session: closed")

// State is the session lifecycle phase.
type State int32

const (
	StateRunning State = iota
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "running"
	}
}

// Session owns a PTY and turns its byte stream into block deltas. Direct
// executions are spliced between PTY blocks, never into one.
type Session struct {
	pty Pty

	parser     *parser.Parser
	assembler  *block.Assembler
	classifier *exec.Classifier
	executor   *exec.Executor

	deltas  chan block.Delta
	bytesCh chan []byte
	execCh  chan string
	done    chan struct{}

	// pending holds queued direct commands; driver goroutine only.
	pending  []string
	pendingN atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	state   atomic.Int32
	closing atomic.Bool

	errMu     sync.Mutex
	err       error
	closeOnce sync.Once

	queueCap   int
	parserOpts []parser.Option
	asmOpts    []block.AssemblerOption
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithQueueCapacity bounds the delta channel.
func WithQueueCapacity(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.queueCap = n
		}
	}
}

// WithClassifier overrides the direct-execution classifier.
func WithClassifier(c *exec.Classifier) SessionOption {
	return func(s *Session) { s.classifier = c }
}

// WithExecutor overrides the direct executor.
func WithExecutor(e *exec.Executor) SessionOption {
	return func(s *Session) { s.executor = e }
}

// WithParserOptions forwards options to the session's parser.
func WithParserOptions(opts ...parser.Option) SessionOption {
	return func(s *Session) { s.parserOpts = opts }
}

// WithAssemblerOptions forwards options to the session's assembler.
func WithAssemblerOptions(opts ...block.AssemblerOption) SessionOption {
	return func(s *Session) { s.asmOpts = opts }
}

// New wires a session around an open PTY. Call Start to begin streaming.
func New(p Pty, opts ...SessionOption) *Session {
	s := &Session{
		pty:      p,
		queueCap: DefaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classifier == nil {
		s.classifier = exec.NewClassifier(nil, nil)
	}
	if s.executor == nil {
		s.executor = exec.NewExecutor()
	}
	s.parser = parser.NewParser(s.parserOpts...)
	s.assembler = block.NewAssembler(s.asmOpts...)
	s.deltas = make(chan block.Delta, s.queueCap)
	s.bytesCh = make(chan []byte, 8)
	s.execCh = make(chan string, 16)
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start launches the reader and driver goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.driveLoop()
}

// Deltas is the session's output stream. It is closed after the final delta
// once the session ends; consumers must drain it.
func (s *Session) Deltas() <-chan block.Delta { return s.deltas }

// State reports the lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Err returns the PtyError that terminated the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// PendingDirect reports how many direct commands are queued behind an open
// block.
func (s *Session) PendingDirect() int { return int(s.pendingN.Load()) }

// Write sends user input to the PTY.
func (s *Session) Write(p []byte) (int, error) {
	if s.State() != StateRunning {
		return 0, ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.pty.Write(p)
}

// Resize forwards a window size change to the PTY synchronously.
func (s *Session) Resize(cols, rows int) error {
	if s.State() != StateRunning {
		return ErrClosed
	}
	return s.pty.Resize(cols, rows)
}

// RunCommand routes a command line: direct-safe commands are spliced in as
// clean blocks, everything else is typed into the PTY. The returned decision
// says which path was taken.
func (s *Session) RunCommand(command string) (exec.Decision, error) {
	if s.State() != StateRunning {
		return exec.DecisionPty, ErrClosed
	}
	if s.classifier.Classify(command) == exec.DecisionDirect {
		select {
		case s.execCh <- command:
			return exec.DecisionDirect, nil
		case <-s.ctx.Done():
			return exec.DecisionDirect, ErrClosed
		}
	}
	_, err := s.Write([]byte(command + "\n"))
	return exec.DecisionPty, err
}

// Close shuts the session down: the PTY is closed, any in-flight direct
// execution is cancelled, an open block closes as Cancelled, and the delta
// channel closes after the final delta. Close does not wait; use Wait.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
		if err := s.pty.Close(); err != nil {
			log.Printf("Session: PTY close: %v", err)
		}
	})
	return nil
}

// Wait blocks until the final delta has been emitted and the stream closed.
func (s *Session) Wait() {
	<-s.done
}

// readLoop drains the PTY into the driver. It owns nothing but the buffer.
func (s *Session) readLoop() {
	defer close(s.bytesCh)
	buf := make([]byte, readBufSize)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bytesCh <- chunk
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closing.Load() {
				s.setErr(err)
				log.Printf("Session: PTY read: %v", err)
			}
			return
		}
	}
}

// driveLoop owns the parser and assembler. Bytes are processed strictly in
// receipt order; queued direct commands drain only at quiescent points.
func (s *Session) driveLoop() {
	defer close(s.done)
	defer close(s.deltas)

	idle := time.NewTimer(idleThreshold)
	defer idle.Stop()

	for {
		select {
		case chunk, ok := <-s.bytesCh:
			if !ok {
				s.finalize()
				return
			}
			events := s.parser.Parse(chunk)
			s.emit(s.assembler.Process(events))
			s.drainPending()
			// Rearm the gap detector; it fires once per quiet stretch.
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleThreshold)

		case <-idle.C:
			s.assembler.MarkIdle()

		case cmd := <-s.execCh:
			s.pending = append(s.pending, cmd)
			s.pendingN.Add(1)
			s.drainPending()
		}
	}
}

// drainPending runs queued direct commands while the assembler sits between
// blocks. Each execution is emitted as one complete spliced block.
func (s *Session) drainPending() {
	for len(s.pending) > 0 && s.assembler.Quiescent() {
		if s.ctx.Err() != nil {
			return
		}
		cmd := s.pending[0]
		s.pending = s.pending[1:]
		s.pendingN.Add(-1)

		blk := s.executor.Execute(s.ctx, cmd)
		s.emit(spliceDeltas(blk))
	}
}

// finalize closes any open block as Cancelled and emits the tail deltas.
func (s *Session) finalize() {
	s.cancel()
	s.emit(s.assembler.CloseStream())
	if s.Err() != nil {
		s.state.Store(int32(StateFailed))
	} else {
		s.state.Store(int32(StateClosed))
	}
}

// emit delivers deltas in order. The send blocks when the channel is full;
// that stall is the backpressure mechanism, not a bug.
func (s *Session) emit(deltas []block.Delta) {
	for _, d := range deltas {
		s.deltas <- d
	}
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// spliceDeltas expands a finished direct block into the delta vocabulary so
// consumers see one uniform stream.
func spliceDeltas(blk *block.CommandBlock) []block.Delta {
	deltas := make([]block.Delta, 0, len(blk.Lines)+2)
	deltas = append(deltas, block.Delta{
		Kind:       block.DeltaBlockOpened,
		ID:         blk.ID,
		Time:       blk.StartTime,
		Command:    blk.Command,
		WorkingDir: blk.WorkingDir,
		Block:      blk,
	})
	for _, line := range blk.Lines {
		deltas = append(deltas, block.Delta{
			Kind: block.DeltaLineAppended,
			ID:   blk.ID,
			Time: line.Timestamp,
			Line: line,
		})
	}
	deltas = append(deltas, block.Delta{
		Kind:     block.DeltaBlockClosed,
		ID:       blk.ID,
		Time:     blk.EndTime,
		ExitCode: blk.ExitCode,
		Status:   blk.Status,
		Block:    blk,
	})
	return deltas
}
