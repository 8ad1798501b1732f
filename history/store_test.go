package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/parser"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := DefaultStoreConfig(filepath.Join(t.TempDir(), "history.db"))
	cfg.BatchTimeout = 50 * time.Millisecond
	s, err := NewStoreWithConfig(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openDelta(id, command string, at time.Time) block.Delta {
	return block.Delta{
		Kind:       block.DeltaBlockOpened,
		ID:         id,
		Time:       at,
		Command:    command,
		WorkingDir: "/home/user",
	}
}

func lineDelta(id, text string, n int, at time.Time) block.Delta {
	return block.Delta{
		Kind: block.DeltaLineAppended,
		ID:   id,
		Time: at,
		Line: block.OutputLine{
			Segments:   []parser.Segment{{Text: text}},
			LineNumber: n,
			Timestamp:  at,
		},
	}
}

func closeDelta(id string, exit int, status block.Status, at time.Time) block.Delta {
	return block.Delta{
		Kind:     block.DeltaBlockClosed,
		ID:       id,
		Time:     at,
		ExitCode: &exit,
		Status:   status,
	}
}

// TestCommandSearchableImmediately: commands are indexed synchronously, so a
// search right after the open delta must hit without a flush.
func TestCommandSearchableImmediately(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if err := s.Apply(openDelta("b1", "docker compose up", now)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	results, err := s.Search("docker", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].IsCommand || results[0].BlockID != "b1" {
		t.Errorf("result = %+v", results[0])
	}
}

func TestOutputSearchAfterFlush(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.Apply(openDelta("b1", "grep -r needle .", now))
	s.Apply(lineDelta("b1", "src/main.go: needle found here", 0, now.Add(time.Millisecond)))
	s.Apply(closeDelta("b1", 0, block.StatusCompleted, now.Add(time.Second)))
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	results, err := s.Search("needle found", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].IsCommand {
		t.Error("output line wrongly tagged as command")
	}
	if results[0].Command != "grep -r needle ." {
		t.Errorf("joined command = %q", results[0].Command)
	}
}

// TestShortQueryUsesLike: queries under 3 chars can't form a trigram and must
// still match.
func TestShortQueryUsesLike(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.Apply(openDelta("b1", "ls", now))

	results, err := s.Search("ls", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearchNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	s.Apply(openDelta("b1", "make build", base))
	s.Apply(openDelta("b2", "make test", base.Add(time.Minute)))

	results, err := s.Search("make", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].BlockID != "b2" || results[1].BlockID != "b1" {
		t.Errorf("order = %s, %s; want b2, b1", results[0].BlockID, results[1].BlockID)
	}
}

func TestEmptyQueryReturnsNothing(t *testing.T) {
	s := newTestStore(t)
	s.Apply(openDelta("b1", "echo hi", time.Now()))

	results, err := s.Search("", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results != nil {
		t.Errorf("empty query returned %d results", len(results))
	}
}

func TestRecentBlocksCarryOutcome(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	s.Apply(openDelta("b1", "false", base))
	s.Apply(closeDelta("b1", 1, block.StatusFailed, base.Add(time.Second)))
	s.Apply(openDelta("b2", "true", base.Add(2*time.Second)))

	records, err := s.RecentBlocks(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Newest first.
	if records[0].BlockID != "b2" {
		t.Errorf("first record = %s, want b2", records[0].BlockID)
	}
	if records[0].Status != block.StatusRunning || records[0].ExitCode != nil {
		t.Errorf("open block record = %+v", records[0])
	}
	if records[1].Status != block.StatusFailed {
		t.Errorf("closed status = %v", records[1].Status)
	}
	if records[1].ExitCode == nil || *records[1].ExitCode != 1 {
		t.Errorf("closed exit = %v", records[1].ExitCode)
	}
	if records[1].EndTime.IsZero() {
		t.Error("closed block must carry an end time")
	}
}

// TestReopenPreservesData: the store survives close/reopen with data intact.
func TestReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Apply(openDelta("b1", "cargo build --release", time.Now()))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	results, err := s2.Search("cargo", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results after reopen, want 1", len(results))
	}
}
