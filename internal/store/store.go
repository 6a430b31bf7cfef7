package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrActiveSessionExists is returned when session creation would leave a
// user with two non-terminal sessions.
var ErrActiveSessionExists = errors.New("user already has an active session")

// ErrExamImmutable is returned when a write targets a completed official
// exam record.
var ErrExamImmutable = errors.New("official exam is completed and immutable")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		mode TEXT NOT NULL,
		module TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'created',
		seed INTEGER NOT NULL,
		prompt_version TEXT NOT NULL DEFAULT '',
		scorer_version TEXT NOT NULL DEFAULT '',
		asr_version TEXT NOT NULL DEFAULT '',
		current_module TEXT NOT NULL DEFAULT '',
		current_index INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
		ON sessions(user_id) WHERE status IN ('created', 'in_progress');

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		module TEXT NOT NULL,
		item_index INTEGER NOT NULL,
		prompt_id TEXT NOT NULL,
		prompt_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'not_started',
		attempt INTEGER NOT NULL DEFAULT 1,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		audio_ref TEXT NOT NULL DEFAULT '',
		result_json TEXT NOT NULL,
		superseded INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (item_id) REFERENCES items(id)
	);

	CREATE TABLE IF NOT EXISTS module_locks (
		session_id TEXT NOT NULL,
		module TEXT NOT NULL,
		locked_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, module)
	);

	CREATE TABLE IF NOT EXISTS phoneme_stats (
		user_id INTEGER NOT NULL,
		phoneme TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		mean REAL NOT NULL DEFAULT 0,
		last_tested_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, phoneme)
	);

	CREATE TABLE IF NOT EXISTS official_exams (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		scenario TEXT NOT NULL DEFAULT '',
		persona TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT '',
		transcript TEXT NOT NULL DEFAULT '',
		scores_json TEXT,
		official INTEGER NOT NULL DEFAULT 1,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS deployment_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
