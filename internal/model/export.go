package model

import "time"

// AssessmentExport is the top-level JSON structure for result export.
type AssessmentExport struct {
	BankVersion   string          `json:"bank_version"`
	ScorerVersion string          `json:"scorer_version"`
	ExportedAt    time.Time       `json:"exported_at"`
	Sessions      []SessionExport `json:"sessions"`
}

// SessionExport holds one session's data for export, including the full
// attempt history of every item.
type SessionExport struct {
	Session Session      `json:"session"`
	Items   []ItemExport `json:"items"`
}

// ItemExport pairs an item with all of its recordings, superseded attempts
// included, preserving the audit trail.
type ItemExport struct {
	Item       Item        `json:"item"`
	Recordings []Recording `json:"recordings"`
}
