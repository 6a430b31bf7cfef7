package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// CreateOfficialExam inserts a new official exam record.
func (s *Store) CreateOfficialExam(exam model.OfficialExam) error {
	_, err := s.db.Exec(
		`INSERT INTO official_exams (id, user_id, scenario, persona, tier, transcript, official, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exam.ID, exam.UserID, exam.Scenario, exam.Persona, exam.Tier,
		exam.Transcript, exam.Official, exam.StartedAt,
	)
	return err
}

// GetOfficialExam returns an official exam by ID.
func (s *Store) GetOfficialExam(id string) (model.OfficialExam, error) {
	var exam model.OfficialExam
	var scoresJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT id, user_id, scenario, persona, tier, transcript, scores_json, official, started_at, completed_at
		 FROM official_exams WHERE id = ?`, id,
	).Scan(&exam.ID, &exam.UserID, &exam.Scenario, &exam.Persona, &exam.Tier,
		&exam.Transcript, &scoresJSON, &exam.Official, &exam.StartedAt, &exam.CompletedAt)
	if err != nil {
		return exam, err
	}
	if scoresJSON.Valid && scoresJSON.String != "" {
		exam.Scores = &model.ComponentScores{}
		if err := json.Unmarshal([]byte(scoresJSON.String), exam.Scores); err != nil {
			return exam, fmt.Errorf("unmarshal component scores: %w", err)
		}
	}
	return exam, nil
}

// CompleteOfficialExam finalizes an exam with its transcript and component
// scores. A completed exam is immutable: a second completion attempt fails
// with ErrExamImmutable.
func (s *Store) CompleteOfficialExam(id, transcript string, scores model.ComponentScores, completedAt time.Time) error {
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal component scores: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE official_exams SET transcript = ?, scores_json = ?, completed_at = ?
		 WHERE id = ? AND completed_at IS NULL`,
		transcript, string(scoresJSON), completedAt, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetOfficialExam(id); err != nil {
			return err
		}
		return ErrExamImmutable
	}
	return nil
}

// LatestOfficialCompletion returns the completion time of the user's most
// recent completed official exam, or nil if they never completed one. The
// retry policy computes eligibility from this, never from a stored flag.
func (s *Store) LatestOfficialCompletion(userID int64) (*time.Time, error) {
	var completedAt time.Time
	err := s.db.QueryRow(
		`SELECT completed_at FROM official_exams
		 WHERE user_id = ? AND official = 1 AND completed_at IS NOT NULL
		 ORDER BY completed_at DESC LIMIT 1`, userID,
	).Scan(&completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &completedAt, nil
}
