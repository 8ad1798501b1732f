package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/exec"
)

const (
	promptStart     = "\x1b]133;A\x07"
	commandStart    = "\x1b]133;B\x07"
	commandExecuted = "\x1b]133;C\x07"
)

func commandFinished(code int) string {
	return fmt.Sprintf("\x1b]133;D;%d\x07", code)
}

// fakePty is an in-memory PTY double: feed() supplies read bytes, writes are
// captured, Close unblocks the reader.
type fakePty struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	writes  []byte
	cols    int
	rows    int
	readErr error
}

func newFakePty() *fakePty {
	return &fakePty{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakePty) feed(s string) { f.in <- []byte(s) }

// failRead makes the next Read return err instead of EOF.
func (f *fakePty) failRead(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
}

func (f *fakePty) Read(p []byte) (int, error) {
	select {
	case b := <-f.in:
		return copy(p, b), nil
	case <-f.closed:
		// Drain anything fed before the close.
		select {
		case b := <-f.in:
			return copy(p, b), nil
		default:
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, io.EOF
	}
}

func (f *fakePty) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, p...)
	return len(p), nil
}

func (f *fakePty) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.writes)
}

func (f *fakePty) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols, f.rows = cols, rows
	return nil
}

func (f *fakePty) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// nextDelta pulls one delta or fails the test after a timeout.
func nextDelta(t *testing.T, s *Session) block.Delta {
	t.Helper()
	select {
	case d, ok := <-s.Deltas():
		if !ok {
			t.Fatal("delta stream closed early")
		}
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delta")
	}
	panic("unreachable")
}

// drainRest collects every remaining delta until the stream closes.
func drainRest(t *testing.T, s *Session) []block.Delta {
	t.Helper()
	var out []block.Delta
	deadline := time.After(5 * time.Second)
	for {
		select {
		case d, ok := <-s.Deltas():
			if !ok {
				return out
			}
			out = append(out, d)
		case <-deadline:
			t.Fatal("timed out draining deltas")
		}
	}
}

func TestSessionIntegratedFlow(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()

	f.feed(promptStart + "$ " + commandStart + "ls\n")
	f.feed(commandExecuted + "file1\nfile2\n" + commandFinished(0))

	opened := nextDelta(t, s)
	if opened.Kind != block.DeltaBlockOpened || opened.Command != "ls" {
		t.Fatalf("first delta = %+v", opened)
	}
	l0 := nextDelta(t, s)
	if l0.Kind != block.DeltaLineAppended || l0.Line.Text() != "file1" || l0.Line.LineNumber != 0 {
		t.Errorf("line 0 = %+v", l0)
	}
	l1 := nextDelta(t, s)
	if l1.Line.Text() != "file2" || l1.Line.LineNumber != 1 {
		t.Errorf("line 1 = %+v", l1)
	}
	closed := nextDelta(t, s)
	if closed.Kind != block.DeltaBlockClosed || closed.ID != opened.ID {
		t.Fatalf("close delta = %+v", closed)
	}
	if closed.ExitCode == nil || *closed.ExitCode != 0 || closed.Status != block.StatusCompleted {
		t.Errorf("outcome = %v/%v", closed.ExitCode, closed.Status)
	}

	s.Close()
	s.Wait()
	if s.State() != StateClosed {
		t.Errorf("state = %v", s.State())
	}
}

func TestSessionDirectSplice(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()
	defer func() { s.Close(); s.Wait() }()

	decision, err := s.RunCommand("echo hi")
	if err != nil || decision != exec.DecisionDirect {
		t.Fatalf("decision = %v, err = %v", decision, err)
	}

	opened := nextDelta(t, s)
	if opened.Kind != block.DeltaBlockOpened || opened.Command != "echo hi" {
		t.Fatalf("opened = %+v", opened)
	}
	if opened.Block == nil || opened.Block.Mode != block.ModeDirect {
		t.Error("spliced block must carry direct mode")
	}
	line := nextDelta(t, s)
	if line.Kind != block.DeltaLineAppended || line.Line.Text() != "hi" {
		t.Errorf("line = %+v", line)
	}
	closed := nextDelta(t, s)
	if closed.Status != block.StatusCompleted || closed.ExitCode == nil || *closed.ExitCode != 0 {
		t.Errorf("closed = %+v", closed)
	}
}

// TestSessionSpliceWaitsForBlockClose: a direct command issued while a PTY
// block is open queues and runs only after that block closes.
func TestSessionSpliceWaitsForBlockClose(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()
	defer func() { s.Close(); s.Wait() }()

	f.feed(promptStart + "$ " + commandStart + "sleep 1\n" + commandExecuted)

	opened := nextDelta(t, s)
	if opened.Command != "sleep 1" {
		t.Fatalf("opened = %+v", opened)
	}

	if _, err := s.RunCommand("echo later"); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Wait until the driver has parked the command behind the open block.
	deadline := time.Now().Add(5 * time.Second)
	for s.PendingDirect() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("command never queued")
		}
		time.Sleep(time.Millisecond)
	}

	f.feed("out\n" + commandFinished(0))

	if d := nextDelta(t, s); d.Line.Text() != "out" {
		t.Errorf("pty line = %+v", d)
	}
	if d := nextDelta(t, s); d.Kind != block.DeltaBlockClosed || d.ID != opened.ID {
		t.Fatalf("expected pty block close, got %+v", d)
	}
	// Only now the spliced block.
	if d := nextDelta(t, s); d.Kind != block.DeltaBlockOpened || d.Command != "echo later" {
		t.Fatalf("expected spliced open, got %+v", d)
	}
	if d := nextDelta(t, s); d.Line.Text() != "later" {
		t.Errorf("spliced line = %+v", d)
	}
	if d := nextDelta(t, s); d.Status != block.StatusCompleted {
		t.Errorf("spliced close = %+v", d)
	}
}

// TestSessionSpliceWaitsAtPrompt: a direct command issued while the shell is
// showing a prompt (no block open, command line possibly half-typed) queues
// until the next gap between blocks instead of interleaving with the prompt.
func TestSessionSpliceWaitsAtPrompt(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()
	defer func() { s.Close(); s.Wait() }()

	// One chunk: a complete block, then a fresh prompt awaiting input. Once
	// the close delta arrives the driver has parked at that prompt.
	f.feed(promptStart + "$ " + commandStart + "true\n" + commandExecuted +
		commandFinished(0) + promptStart + "$ " + commandStart)
	if d := nextDelta(t, s); d.Kind != block.DeltaBlockOpened || d.Command != "true" {
		t.Fatalf("opened = %+v", d)
	}
	if d := nextDelta(t, s); d.Kind != block.DeltaBlockClosed {
		t.Fatalf("closed = %+v", d)
	}

	if _, err := s.RunCommand("echo later"); err != nil {
		t.Fatalf("run: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.PendingDirect() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("command never queued")
		}
		time.Sleep(time.Millisecond)
	}

	f.feed("ls\n" + commandExecuted + "out\n" + commandFinished(0))

	if d := nextDelta(t, s); d.Kind != block.DeltaBlockOpened || d.Command != "ls" {
		t.Fatalf("expected the typed block first, got %+v", d)
	}
	if d := nextDelta(t, s); d.Line.Text() != "out" {
		t.Errorf("pty line = %+v", d)
	}
	if d := nextDelta(t, s); d.Kind != block.DeltaBlockClosed {
		t.Fatalf("expected pty close, got %+v", d)
	}
	if d := nextDelta(t, s); d.Kind != block.DeltaBlockOpened || d.Command != "echo later" {
		t.Fatalf("expected spliced open, got %+v", d)
	}
}

func TestSessionPtyRouting(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()
	defer func() { s.Close(); s.Wait() }()

	decision, err := s.RunCommand("vim notes.txt")
	if err != nil || decision != exec.DecisionPty {
		t.Fatalf("decision = %v, err = %v", decision, err)
	}
	if got := f.written(); got != "vim notes.txt\n" {
		t.Errorf("pty received %q", got)
	}
}

func TestSessionCloseCancelsOpenBlock(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()

	f.feed(promptStart + "$ " + commandStart + "tail -f log\n" + commandExecuted + "par")

	if d := nextDelta(t, s); d.Kind != block.DeltaBlockOpened {
		t.Fatalf("first = %+v", d)
	}

	s.Close()
	rest := drainRest(t, s)
	if len(rest) < 1 {
		t.Fatal("no tail deltas")
	}
	last := rest[len(rest)-1]
	if last.Kind != block.DeltaBlockClosed || last.Status != block.StatusCancelled || last.ExitCode != nil {
		t.Errorf("last = %+v", last)
	}
	// The partial line is flushed before the cancel.
	if len(rest) >= 2 && rest[len(rest)-2].Line.Text() != "par" {
		t.Errorf("flushed line = %+v", rest[len(rest)-2])
	}
	s.Wait()
	if s.State() != StateClosed {
		t.Errorf("state = %v", s.State())
	}
}

func TestSessionReadErrorSurfaced(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()

	ptyErr := errors.New("pty gone")
	f.failRead(ptyErr)

	s.Wait()
	if s.State() != StateFailed {
		t.Errorf("state = %v", s.State())
	}
	if !errors.Is(s.Err(), ptyErr) {
		t.Errorf("err = %v", s.Err())
	}
	if _, ok := <-s.Deltas(); ok {
		t.Error("stream must be closed after failure")
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("write after failure: %v", err)
	}
}

func TestSessionResizeForwarded(t *testing.T) {
	f := newFakePty()
	s := New(f)
	s.Start()
	defer func() { s.Close(); s.Wait() }()

	if err := s.Resize(120, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	f.mu.Lock()
	cols, rows := f.cols, f.rows
	f.mu.Unlock()
	if cols != 120 || rows != 40 {
		t.Errorf("size = %dx%d", cols, rows)
	}
}

// TestSessionSmallQueueOrdering: a capacity-1 channel still delivers every
// delta in order; the producer just stalls.
func TestSessionSmallQueueOrdering(t *testing.T) {
	f := newFakePty()
	s := New(f, WithQueueCapacity(1))
	s.Start()

	f.feed(promptStart + "$ " + commandStart + "seq\n" + commandExecuted)
	f.feed("1\n2\n3\n4\n5\n" + commandFinished(0))
	s.Close()

	var lines []string
	for _, d := range drainRest(t, s) {
		if d.Kind == block.DeltaLineAppended {
			lines = append(lines, d.Line.Text())
		}
	}
	want := []string{"1", "2", "3", "4", "5"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q", i, lines[i])
		}
	}
}
