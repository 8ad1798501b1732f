// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: history/store.go
// Summary: SQLite FTS5 store for command block history.
//
// Persists command blocks and their output with:
//   - Sync indexing for commands (searchable the moment a block opens)
//   - Async batch indexing for output lines
//   - Trigram FTS5 for substring search ("ls -la", partial paths)

package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mosaicterm/mosaicterm/block"
)

// Store persists command block history and answers search queries.
type Store interface {
	// Apply records a delta from the assembler stream. Block opens are
	// written synchronously so a command is searchable immediately; output
	// lines are queued for batch indexing.
	Apply(d block.Delta) error

	// Search executes a substring search over commands and output using
	// trigram matching. Results come newest first, up to limit.
	Search(query string, limit int) ([]Match, error)

	// RecentBlocks returns the most recently started blocks, newest first.
	RecentBlocks(limit int) ([]BlockRecord, error)

	// Flush blocks until all queued output lines are indexed.
	Flush() error

	// Close flushes pending writes and closes the database.
	Close() error
}

// Match is a single search hit, joined with its owning block.
type Match struct {
	BlockID   string
	Command   string
	Content   string
	Timestamp time.Time
	IsCommand bool
}

// BlockRecord is a persisted block's metadata row.
type BlockRecord struct {
	BlockID    string
	Command    string
	WorkingDir string
	StartTime  time.Time
	EndTime    time.Time
	ExitCode   *int
	Status     block.Status
	Heuristic  bool
}

// StoreConfig holds configuration for the history store.
type StoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BatchSize is the number of output lines to accumulate before flushing.
	// Default: 100
	BatchSize int

	// BatchTimeout is how long to wait before flushing a partial batch.
	// Default: 5s
	BatchTimeout time.Duration

	// ChannelBuffer is the size of the async indexing channel.
	// Default: 1000
	ChannelBuffer int
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig(dbPath string) StoreConfig {
	return StoreConfig{
		DBPath:        dbPath,
		BatchSize:     100,
		BatchTimeout:  5 * time.Second,
		ChannelBuffer: 1000,
	}
}

// lineEntry is a queued output line waiting for batch insertion.
type lineEntry struct {
	blockID   string
	lineNo    int
	stream    int
	timestamp time.Time
	text      string
}

// SQLiteStore implements Store using SQLite FTS5.
type SQLiteStore struct {
	config StoreConfig
	db     *sql.DB

	// Async batching
	batchChan chan lineEntry
	stopCh    chan struct{}
	doneCh    chan struct{}
	flushCh   chan chan struct{}

	mu sync.RWMutex
}

// Current schema version - increment when schema changes require reindexing
const storeSchemaVersion = 1

const storeSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

-- One row per command block
CREATE TABLE IF NOT EXISTS blocks (
    block_id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    working_dir TEXT NOT NULL,
    started INTEGER NOT NULL,        -- UnixNano
    ended INTEGER,                   -- UnixNano, NULL while running
    exit_code INTEGER,               -- NULL when unknown
    status TEXT NOT NULL,
    mode TEXT NOT NULL,
    heuristic INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_blocks_started ON blocks(started);

-- One row per output line, plus one command row per block
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    block_id TEXT NOT NULL,
    line_no INTEGER NOT NULL,
    stream INTEGER DEFAULT 0,
    is_command INTEGER DEFAULT 0,
    timestamp INTEGER NOT NULL,      -- UnixNano
    content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_entries_block ON entries(block_id);
`

// FTS schema - separate so it can be rebuilt on version changes
const storeFTSSchema = `
-- Trigram tokenizer enables substring matching (e.g. "ls -la", partial paths)
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    content,
    content='entries',
    content_rowid='id',
    tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
`

// NewStore creates a SQLite-backed history store.
func NewStore(dbPath string) (*SQLiteStore, error) {
	return NewStoreWithConfig(DefaultStoreConfig(dbPath))
}

// NewStoreWithConfig creates a history store with custom configuration.
func NewStoreWithConfig(config StoreConfig) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(config.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	dsn := config.DBPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=cache_size(-8000)" + // 8MB cache
		"&_pragma=temp_store(MEMORY)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: connect: %w", err)
	}

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	needsReindex, err := checkAndMigrateSchema(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: check schema version: %w", err)
	}

	if _, err := db.Exec(storeFTSSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create FTS schema: %w", err)
	}

	if needsReindex {
		log.Printf("History: Schema version changed, rebuilding FTS index...")
		if _, err := db.Exec("INSERT INTO entries_fts(rowid, content) SELECT id, content FROM entries"); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: rebuild FTS index: %w", err)
		}
	}

	s := &SQLiteStore{
		config:    config,
		db:        db,
		batchChan: make(chan lineEntry, config.ChannelBuffer),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		flushCh:   make(chan chan struct{}),
	}

	go s.batchIndexer()

	return s, nil
}

// checkAndMigrateSchema drops the FTS side when the stored version lags.
// Returns true if reindexing is needed.
func checkAndMigrateSchema(db *sql.DB) (bool, error) {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
	if err != nil {
		currentVersion = 0
	}
	if currentVersion == storeSchemaVersion {
		return false, nil
	}

	log.Printf("History: Migrating schema from version %d to %d", currentVersion, storeSchemaVersion)

	migrations := []string{
		"DROP TRIGGER IF EXISTS entries_ai",
		"DROP TRIGGER IF EXISTS entries_ad",
		"DROP TABLE IF EXISTS entries_fts",
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return false, fmt.Errorf("migration failed on '%s': %w", stmt, err)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", storeSchemaVersion); err != nil {
		return false, fmt.Errorf("failed to update schema version: %w", err)
	}

	return currentVersion != 0, nil
}

// batchIndexer runs in a background goroutine, batching output lines and
// flushing periodically.
func (s *SQLiteStore) batchIndexer() {
	defer close(s.doneCh)

	batch := make([]lineEntry, 0, s.config.BatchSize)
	timer := time.NewTimer(s.config.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flushBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.batchChan:
			batch = append(batch, entry)
			if len(batch) >= s.config.BatchSize {
				flush()
				timer.Reset(s.config.BatchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(s.config.BatchTimeout)

		case done := <-s.flushCh:
			// Manual flush request - drain channel first
			draining := true
			for draining {
				select {
				case entry := <-s.batchChan:
					batch = append(batch, entry)
				default:
					draining = false
				}
			}
			flush()
			close(done)

		case <-s.stopCh:
			for {
				select {
				case entry := <-s.batchChan:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flushBatch writes a batch of output lines in a single transaction.
func (s *SQLiteStore) flushBatch(batch []lineEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("History: Failed to begin transaction: %v", err)
		return
	}

	stmt, err := tx.Prepare(
		"INSERT INTO entries (block_id, line_no, stream, is_command, timestamp, content) VALUES (?, ?, ?, 0, ?, ?)")
	if err != nil {
		log.Printf("History: Failed to prepare statement: %v", err)
		tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.blockID, e.lineNo, e.stream, e.timestamp.UnixNano(), e.text); err != nil {
			log.Printf("History: Failed to insert line %d of %s: %v", e.lineNo, e.blockID, err)
			tx.Rollback()
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("History: Failed to commit batch: %v", err)
	}
}

// Apply records one assembler delta.
func (s *SQLiteStore) Apply(d block.Delta) error {
	switch d.Kind {
	case block.DeltaBlockOpened:
		return s.recordOpen(d)
	case block.DeltaLineAppended:
		s.queueLine(d)
		return nil
	case block.DeltaBlockClosed:
		return s.recordClose(d)
	}
	return nil
}

// recordOpen inserts the block row and its command entry synchronously so
// the command is searchable before any output arrives.
func (s *SQLiteStore) recordOpen(d block.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	heur := 0
	if d.Heuristic {
		heur = 1
	}
	mode := "pty"
	if d.Block != nil && d.Block.Mode == block.ModeDirect {
		mode = "direct"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO blocks (block_id, command, working_dir, started, status, mode, heuristic) VALUES (?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.Command, d.WorkingDir, d.Time.UnixNano(), block.StatusRunning.String(), mode, heur,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("history: insert block: %w", err)
	}
	if d.Command != "" {
		if _, err := tx.Exec(
			"INSERT INTO entries (block_id, line_no, stream, is_command, timestamp, content) VALUES (?, -1, 0, 1, ?, ?)",
			d.ID, d.Time.UnixNano(), d.Command,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("history: insert command entry: %w", err)
		}
	}
	return tx.Commit()
}

// queueLine enqueues an output line for batch indexing. A full queue drops
// the line rather than stalling the delta consumer.
func (s *SQLiteStore) queueLine(d block.Delta) {
	text := d.Line.Text()
	if text == "" {
		return
	}
	entry := lineEntry{
		blockID:   d.ID,
		lineNo:    d.Line.LineNumber,
		stream:    int(d.Line.Stream),
		timestamp: d.Line.Timestamp,
		text:      text,
	}
	select {
	case s.batchChan <- entry:
	default:
		log.Printf("History: Index queue full, dropping line %d of %s", entry.lineNo, entry.blockID)
	}
}

// recordClose stamps the block row with its outcome.
func (s *SQLiteStore) recordClose(d block.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exit any
	if d.ExitCode != nil {
		exit = *d.ExitCode
	}
	_, err := s.db.Exec(
		"UPDATE blocks SET ended = ?, exit_code = ?, status = ? WHERE block_id = ?",
		d.Time.UnixNano(), exit, d.Status.String(), d.ID,
	)
	if err != nil {
		return fmt.Errorf("history: close block: %w", err)
	}
	return nil
}

// Search executes a search query, newest matches first. Queries shorter than
// 3 characters fall back to LIKE since the trigram tokenizer needs at least
// 3 characters.
func (s *SQLiteStore) Search(query string, limit int) ([]Match, error) {
	if query == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error

	if len(query) < 3 {
		likePattern := "%" + strings.ReplaceAll(strings.ReplaceAll(query, "%", "\\%"), "_", "\\_") + "%"
		rows, err = s.db.Query(`
			SELECT e.block_id, COALESCE(b.command, ''), e.content, e.timestamp, e.is_command
			FROM entries e
			LEFT JOIN blocks b ON b.block_id = e.block_id
			WHERE e.content LIKE ? ESCAPE '\'
			ORDER BY e.timestamp DESC
			LIMIT ?
		`, likePattern, limit)
	} else {
		// Double-quote the query for literal substring matching so inputs
		// like "ls -la" survive FTS5 syntax.
		quoted := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
		rows, err = s.db.Query(`
			SELECT e.block_id, COALESCE(b.command, ''), e.content, e.timestamp, e.is_command
			FROM entries_fts
			JOIN entries e ON e.id = entries_fts.rowid
			LEFT JOIN blocks b ON b.block_id = e.block_id
			WHERE entries_fts MATCH ?
			ORDER BY e.timestamp DESC
			LIMIT ?
		`, quoted, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	defer rows.Close()

	var results []Match
	for rows.Next() {
		var m Match
		var tsNano int64
		var isCmd int
		if err := rows.Scan(&m.BlockID, &m.Command, &m.Content, &tsNano, &isCmd); err != nil {
			continue
		}
		m.Timestamp = time.Unix(0, tsNano)
		m.IsCommand = isCmd == 1
		results = append(results, m)
	}
	return results, rows.Err()
}

// RecentBlocks returns the latest started blocks.
func (s *SQLiteStore) RecentBlocks(limit int) ([]BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT block_id, command, working_dir, started, ended, exit_code, status, heuristic
		FROM blocks
		ORDER BY started DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent blocks: %w", err)
	}
	defer rows.Close()

	var records []BlockRecord
	for rows.Next() {
		var r BlockRecord
		var started int64
		var ended sql.NullInt64
		var exit sql.NullInt64
		var status string
		var heur int
		if err := rows.Scan(&r.BlockID, &r.Command, &r.WorkingDir, &started, &ended, &exit, &status, &heur); err != nil {
			continue
		}
		r.StartTime = time.Unix(0, started)
		if ended.Valid {
			r.EndTime = time.Unix(0, ended.Int64)
		}
		if exit.Valid {
			code := int(exit.Int64)
			r.ExitCode = &code
		}
		r.Status = parseStatus(status)
		r.Heuristic = heur == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

func parseStatus(s string) block.Status {
	switch s {
	case "completed":
		return block.StatusCompleted
	case "failed":
		return block.StatusFailed
	case "cancelled":
		return block.StatusCancelled
	default:
		return block.StatusRunning
	}
}

// Flush blocks until all queued output lines are indexed.
func (s *SQLiteStore) Flush() error {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
		<-done
	case <-s.stopCh:
		// Already stopped
	}
	return nil
}

// Close flushes pending writes and closes the database.
func (s *SQLiteStore) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)
