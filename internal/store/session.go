package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// CreateSession writes a session and its full item batch in one
// transaction: either both land or neither does, so a session row can
// never be left orphaned without items. The partial unique index on
// active sessions rejects a second non-terminal session for the user.
func (s *Store) CreateSession(sess model.Session, items []model.Item) error {
	metadata, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, user_id, mode, module, status, seed,
			prompt_version, scorer_version, asr_version,
			current_module, current_index, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Mode, sess.Module, sess.Status, sess.Seed,
		sess.PromptVersion, sess.ScorerVersion, sess.ASRVersion,
		sess.CurrentModule, sess.CurrentIndex, string(metadata), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrActiveSessionExists
		}
		return err
	}

	for seq, item := range items {
		promptJSON, err := json.Marshal(item.Prompt)
		if err != nil {
			return fmt.Errorf("marshal prompt snapshot for item %d: %w", seq, err)
		}
		_, err = tx.Exec(
			`INSERT INTO items (session_id, seq, module, item_index, prompt_id, prompt_json, status, attempt)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, seq, item.Module, item.Index, item.PromptID, string(promptJSON), item.Status, item.Attempt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const sessionColumns = `id, user_id, mode, module, status, seed,
	prompt_version, scorer_version, asr_version,
	current_module, current_index, metadata, created_at, updated_at, completed_at`

func scanSession(row interface{ Scan(...any) error }) (model.Session, error) {
	var sess model.Session
	var metadata string
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Mode, &sess.Module, &sess.Status, &sess.Seed,
		&sess.PromptVersion, &sess.ScorerVersion, &sess.ASRVersion,
		&sess.CurrentModule, &sess.CurrentIndex, &metadata,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt,
	)
	if err != nil {
		return sess, err
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
			return sess, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return sess, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// SessionItems returns a session's items in (module, index) sequence order.
func (s *Store) SessionItems(sessionID string) ([]model.Item, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, module, item_index, prompt_id, prompt_json, status, attempt
		 FROM items WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateSessionStatus updates the session status, stamping completed_at
// when the session reaches completed.
func (s *Store) UpdateSessionStatus(id string, status model.SessionStatus) error {
	now := time.Now()
	if status == model.SessionCompleted {
		_, err := s.db.Exec(
			`UPDATE sessions SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
			status, now, now, id,
		)
		return err
	}
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	)
	return err
}

// UpdateSessionCursor moves the session's current-item pointer.
func (s *Store) UpdateSessionCursor(id string, module model.ModuleType, index int) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET current_module = ?, current_index = ?, updated_at = ? WHERE id = ?`,
		module, index, time.Now(), id,
	)
	return err
}

// LatestUnfinishedSession returns the most recently created non-terminal
// session for a user, or nil. If duplicates ever exist, most-recent wins.
func (s *Store) LatestUnfinishedSession(userID int64) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND status IN ('created', 'in_progress')
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
