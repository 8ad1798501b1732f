package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mosaicterm/mosaicterm/block"
)

func TestExecuteEcho(t *testing.T) {
	e := NewExecutor()
	blk := e.Execute(context.Background(), "echo hi")

	if blk.Status != block.StatusCompleted {
		t.Fatalf("status = %v, want completed", blk.Status)
	}
	if blk.ExitCode == nil || *blk.ExitCode != 0 {
		t.Errorf("exit = %v, want 0", blk.ExitCode)
	}
	if blk.Mode != block.ModeDirect {
		t.Errorf("mode = %v, want direct", blk.Mode)
	}
	if len(blk.Lines) != 1 || blk.Lines[0].Text() != "hi" {
		t.Errorf("lines = %+v", blk.Lines)
	}
	if blk.Lines[0].Stream != block.StreamStdout {
		t.Errorf("stream = %v", blk.Lines[0].Stream)
	}
	if blk.EndTime.IsZero() {
		t.Error("finished block must carry an end time")
	}
}

func TestExecuteNonzeroExit(t *testing.T) {
	e := NewExecutor()
	blk := e.Execute(context.Background(), "false")

	if blk.Status != block.StatusFailed {
		t.Fatalf("status = %v, want failed", blk.Status)
	}
	if blk.ExitCode == nil || *blk.ExitCode != 1 {
		t.Errorf("exit = %v, want 1", blk.ExitCode)
	}
}

func TestExecuteStderrTagged(t *testing.T) {
	e := NewExecutor()
	blk := e.Execute(context.Background(), "cat /definitely/not/a/real/path")

	if blk.Status != block.StatusFailed {
		t.Fatalf("status = %v, want failed", blk.Status)
	}
	var sawStderr bool
	for _, line := range blk.Lines {
		if line.Stream == block.StreamStderr {
			sawStderr = true
		}
	}
	if !sawStderr {
		t.Error("cat's complaint should be tagged stderr")
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := NewExecutor(WithTimeout(100 * time.Millisecond))
	start := time.Now()
	blk := e.Execute(context.Background(), "sleep 5")

	if blk.Status != block.StatusCancelled {
		t.Fatalf("status = %v, want cancelled", blk.Status)
	}
	if blk.ExitCode != nil {
		t.Errorf("exit = %v, want nil", blk.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	e := NewExecutor()
	blk := e.Execute(context.Background(), "definitely-not-a-binary-xyzzy")

	if blk.Status != block.StatusFailed {
		t.Fatalf("status = %v, want failed", blk.Status)
	}
	if blk.ExitCode != nil && *blk.ExitCode == 0 {
		t.Errorf("exit = %v", blk.ExitCode)
	}
}

// TestExecuteLongLine: a single line far beyond bufio's default 64 KiB token
// size must be captured whole, and the lines after it must not be lost.
func TestExecuteLongLine(t *testing.T) {
	wide := strings.Repeat("x", 100*1024)
	path := filepath.Join(t.TempDir(), "wide.txt")
	if err := os.WriteFile(path, []byte(wide+"\ntail-line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExecutor()
	blk := e.Execute(context.Background(), "cat "+path)

	if blk.Status != block.StatusCompleted {
		t.Fatalf("status = %v, want completed", blk.Status)
	}
	if len(blk.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(blk.Lines))
	}
	if got := blk.Lines[0].Text(); got != wide {
		t.Errorf("first line length = %d, want %d", len(got), len(wide))
	}
	if blk.Lines[1].Text() != "tail-line" {
		t.Errorf("second line = %q, want tail-line", blk.Lines[1].Text())
	}
}

// TestExecuteOversizeLineFails: when a line exceeds the capture cap the block
// must fail rather than report a clean exit with output missing.
func TestExecuteOversizeLineFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oversize.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("y", maxLineBytes+1)), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExecutor()
	blk := e.Execute(context.Background(), "cat "+path)

	if blk.Status != block.StatusFailed {
		t.Fatalf("status = %v, want failed", blk.Status)
	}
	if blk.ExitCode != nil {
		t.Errorf("exit = %v, want nil for a capture failure", blk.ExitCode)
	}
}

func TestExecuteEmptyCommand(t *testing.T) {
	e := NewExecutor()
	blk := e.Execute(context.Background(), "   ")
	if blk.Status != block.StatusFailed {
		t.Errorf("status = %v, want failed", blk.Status)
	}
}

func TestExecuteWorkingDir(t *testing.T) {
	e := NewExecutor(WithWorkingDir("/"))
	blk := e.Execute(context.Background(), "pwd")
	if blk.Status != block.StatusCompleted {
		t.Fatalf("status = %v", blk.Status)
	}
	if len(blk.Lines) != 1 || blk.Lines[0].Text() != "/" {
		t.Errorf("lines = %+v", blk.Lines)
	}
	if blk.WorkingDir != "/" {
		t.Errorf("block cwd = %q", blk.WorkingDir)
	}
}
