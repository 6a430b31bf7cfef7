package store

import (
	"fmt"
	"time"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// ExportAllSessions builds an export of every session with its items and
// full attempt history, superseded recordings included.
func (s *Store) ExportAllSessions() (model.AssessmentExport, error) {
	bankVersion, scorerVersion, err := s.DeploymentVersions()
	if err != nil {
		return model.AssessmentExport{}, fmt.Errorf("read deployment versions: %w", err)
	}

	sessions, err := s.ListSessions()
	if err != nil {
		return model.AssessmentExport{}, fmt.Errorf("list sessions: %w", err)
	}

	export := model.AssessmentExport{
		BankVersion:   bankVersion,
		ScorerVersion: scorerVersion,
		ExportedAt:    time.Now(),
	}

	for _, sess := range sessions {
		items, err := s.SessionItems(sess.ID)
		if err != nil {
			return model.AssessmentExport{}, fmt.Errorf("items for session %s: %w", sess.ID, err)
		}

		se := model.SessionExport{Session: sess}
		for _, item := range items {
			recs, err := s.RecordingsForItem(item.ID)
			if err != nil {
				return model.AssessmentExport{}, fmt.Errorf("recordings for item %d: %w", item.ID, err)
			}
			se.Items = append(se.Items, model.ItemExport{Item: item, Recordings: recs})
		}
		export.Sessions = append(export.Sessions, se)
	}

	return export, nil
}
