package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

func scanItem(row interface{ Scan(...any) error }) (model.Item, error) {
	var item model.Item
	var promptJSON string
	err := row.Scan(
		&item.ID, &item.SessionID, &item.Module, &item.Index,
		&item.PromptID, &promptJSON, &item.Status, &item.Attempt,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal([]byte(promptJSON), &item.Prompt); err != nil {
		return item, fmt.Errorf("unmarshal prompt snapshot: %w", err)
	}
	return item, nil
}

// GetItem returns an item by ID, with its frozen prompt snapshot.
func (s *Store) GetItem(id int64) (model.Item, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, module, item_index, prompt_id, prompt_json, status, attempt
		 FROM items WHERE id = ?`, id,
	)
	return scanItem(row)
}

// UpdateItemStatus updates an item's status.
func (s *Store) UpdateItemStatus(id int64, status model.ItemStatus) error {
	_, err := s.db.Exec(`UPDATE items SET status = ? WHERE id = ?`, status, id)
	return err
}

// RedoItem resets an item for another attempt: the attempt counter
// increments and every prior recording is marked superseded. Recording
// rows are never deleted.
func (s *Store) RedoItem(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE recordings SET superseded = 1 WHERE item_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE items SET status = ?, attempt = attempt + 1 WHERE id = ?`,
		model.ItemNotStarted, id,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ResetModuleItems resets every item of one module in a session, bumping
// each item's attempt counter and superseding their recordings. Other
// modules are untouched.
func (s *Store) ResetModuleItems(sessionID string, module model.ModuleType) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE recordings SET superseded = 1
		 WHERE item_id IN (SELECT id FROM items WHERE session_id = ? AND module = ?)`,
		sessionID, module,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE items SET status = ?, attempt = attempt + 1 WHERE session_id = ? AND module = ?`,
		model.ItemNotStarted, sessionID, module,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertRecording stores one scored attempt.
func (s *Store) InsertRecording(rec model.Recording) (int64, error) {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return 0, fmt.Errorf("marshal item result: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO recordings (item_id, attempt, audio_ref, result_json, superseded, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		rec.ItemID, rec.Attempt, rec.AudioRef, string(resultJSON), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordingsForItem returns all recordings of an item, oldest first,
// superseded attempts included.
func (s *Store) RecordingsForItem(itemID int64) ([]model.Recording, error) {
	rows, err := s.db.Query(
		`SELECT id, item_id, attempt, audio_ref, result_json, superseded, created_at
		 FROM recordings WHERE item_id = ? ORDER BY id`, itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.Recording
	for rows.Next() {
		var rec model.Recording
		var resultJSON string
		if err := rows.Scan(&rec.ID, &rec.ItemID, &rec.Attempt, &rec.AudioRef,
			&resultJSON, &rec.Superseded, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal item result: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LatestRecording returns the current (non-superseded) recording for an
// item, or nil when the item has no completed attempt.
func (s *Store) LatestRecording(itemID int64) (*model.Recording, error) {
	recs, err := s.RecordingsForItem(itemID)
	if err != nil {
		return nil, err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if !recs[i].Superseded {
			return &recs[i], nil
		}
	}
	return nil, nil
}

// LockModule freezes a module's results against further redo. Locking is
// one-way and idempotent.
func (s *Store) LockModule(sessionID string, module model.ModuleType) error {
	_, err := s.db.Exec(
		`INSERT INTO module_locks (session_id, module, locked_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, module) DO NOTHING`,
		sessionID, module, time.Now(),
	)
	return err
}

// ModuleLocked reports whether a module has been locked in a session.
func (s *Store) ModuleLocked(sessionID string, module model.ModuleType) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM module_locks WHERE session_id = ? AND module = ?`,
		sessionID, module,
	).Scan(&count)
	return count > 0, err
}
