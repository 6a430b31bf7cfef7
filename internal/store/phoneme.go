package store

import (
	"time"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/scoring"
)

// RecordPhonemeScore folds one observed accuracy score into the per-user
// running record for a phoneme. The incremental mean is computed inside a
// single upsert so the row updates atomically and never drifts from the
// exact mean of all observations.
func (s *Store) RecordPhonemeScore(userID int64, phoneme string, score float64, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO phoneme_stats (user_id, phoneme, attempts, mean, last_tested_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(user_id, phoneme) DO UPDATE SET
			mean = (mean * attempts + excluded.mean) / (attempts + 1),
			attempts = attempts + 1,
			last_tested_at = excluded.last_tested_at`,
		userID, phoneme, score, at,
	)
	return err
}

// PhonemeStats returns one consistent snapshot of a user's phoneme records,
// with confidence derived from each attempt count.
func (s *Store) PhonemeStats(userID int64) ([]model.PhonemeStat, error) {
	rows, err := s.db.Query(
		`SELECT user_id, phoneme, attempts, mean, last_tested_at
		 FROM phoneme_stats WHERE user_id = ? ORDER BY phoneme`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.PhonemeStat
	for rows.Next() {
		var st model.PhonemeStat
		if err := rows.Scan(&st.UserID, &st.Phoneme, &st.Attempts, &st.Mean, &st.LastTestedAt); err != nil {
			return nil, err
		}
		st.Confidence = scoring.Confidence(st.Attempts)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
