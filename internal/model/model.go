package model

import (
	"time"
)

// ModuleType identifies one of the six assessable skill areas.
type ModuleType string

const (
	ModulePronunciation ModuleType = "pronunciation"
	ModuleFluency       ModuleType = "fluency"
	ModuleConfidence    ModuleType = "confidence"
	ModuleSyntax        ModuleType = "syntax"
	ModuleConversation  ModuleType = "conversation"
	ModuleComprehension ModuleType = "comprehension"
)

// ModuleOrder returns the fixed sequence a full assessment walks through.
func ModuleOrder() []ModuleType {
	return []ModuleType{
		ModulePronunciation,
		ModuleFluency,
		ModuleConfidence,
		ModuleSyntax,
		ModuleConversation,
		ModuleComprehension,
	}
}

// IsValidModule reports whether m names a known module.
func IsValidModule(m ModuleType) bool {
	for _, known := range ModuleOrder() {
		if m == known {
			return true
		}
	}
	return false
}

// SessionMode selects between a full six-module assessment and a
// single-module run.
type SessionMode string

const (
	ModeFull         SessionMode = "full"
	ModeSingleModule SessionMode = "single_module"
)

// SessionStatus represents the status of an assessment session.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "created"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// ItemStatus represents the status of a single exam item.
type ItemStatus string

const (
	ItemNotStarted ItemStatus = "not_started"
	ItemRecording  ItemStatus = "recording"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemError      ItemStatus = "error"
)

// Prompt is one exam item definition from the prompt bank.
type Prompt struct {
	ID            string     `json:"id"`
	Module        ModuleType `json:"module"`
	Text          string     `json:"text"`
	ReferenceText string     `json:"reference_text,omitempty"`
	Rubric        string     `json:"rubric,omitempty"`
	RubricMax     int        `json:"rubric_max,omitempty"`
	Level         string     `json:"level,omitempty"`
}

// RubricBounds returns the inclusive score range the rubric declares.
// A prompt without an explicit maximum scores out of 100.
func (p Prompt) RubricBounds() (min, max float64) {
	if p.RubricMax > 0 {
		return 0, float64(p.RubricMax)
	}
	return 0, 100
}

// Session is one assessment attempt by one user. Seed and the version
// strings are frozen at creation so re-reading the session always resolves
// to the same prompt set and scoring rules.
type Session struct {
	ID            string            `json:"id"`
	UserID        int64             `json:"user_id"`
	Mode          SessionMode       `json:"mode"`
	Module        ModuleType        `json:"module,omitempty"`
	Status        SessionStatus     `json:"status"`
	Seed          int64             `json:"seed"`
	PromptVersion string            `json:"prompt_version"`
	ScorerVersion string            `json:"scorer_version"`
	ASRVersion    string            `json:"asr_version"`
	CurrentModule ModuleType        `json:"current_module"`
	CurrentIndex  int               `json:"current_index"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Item is one exam question instance inside a session. The Prompt field is
// a frozen snapshot taken at session creation, not a live bank reference.
type Item struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	Module    ModuleType `json:"module"`
	Index     int        `json:"index"`
	PromptID  string     `json:"prompt_id"`
	Prompt    Prompt     `json:"prompt"`
	Status    ItemStatus `json:"status"`
	Attempt   int        `json:"attempt"`
}

// Recording is one scored attempt of an item. Redo marks prior recordings
// superseded, it never deletes them.
type Recording struct {
	ID         int64      `json:"id"`
	ItemID     int64      `json:"item_id"`
	Attempt    int        `json:"attempt"`
	AudioRef   string     `json:"audio_ref,omitempty"`
	Result     ItemResult `json:"result"`
	Superseded bool       `json:"superseded"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PhonemeStat is the per-user running accuracy record for one phoneme.
// Mean is the exact incremental mean of every observed score; Confidence is
// derived from Attempts alone.
type PhonemeStat struct {
	UserID       int64     `json:"user_id"`
	Phoneme      string    `json:"phoneme"`
	Attempts     int       `json:"attempts"`
	Mean         float64   `json:"mean"`
	Confidence   float64   `json:"confidence"`
	LastTestedAt time.Time `json:"last_tested_at"`
}

// ComponentScores holds per-module scores for an official exam.
type ComponentScores struct {
	Pronunciation float64 `json:"pronunciation"`
	Fluency       float64 `json:"fluency"`
	Confidence    float64 `json:"confidence"`
	Syntax        float64 `json:"syntax"`
	Conversation  float64 `json:"conversation"`
	Comprehension float64 `json:"comprehension"`
	Overall       float64 `json:"overall"`
}

// OfficialExam is the higher-stakes exam variant gated by the retry
// cooldown. A completed official exam is immutable.
type OfficialExam struct {
	ID          string           `json:"id"`
	UserID      int64            `json:"user_id"`
	Scenario    string           `json:"scenario"`
	Persona     string           `json:"persona"`
	Tier        string           `json:"tier"`
	Transcript  string           `json:"transcript"`
	Scores      *ComponentScores `json:"scores,omitempty"`
	Official    bool             `json:"official"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// AssessmentConfig holds runtime assessment parameters set via CLI flags.
type AssessmentConfig struct {
	ItemCounts       map[ModuleType]int
	CooldownDays     int
	DeterminismGuard bool
	Language         string // UI/feedback language (en, fr)
	PromptVariant    string // rubric prompt variant (strict, standard, lenient)
}

// DefaultItemCounts returns the per-module item counts of the standard
// assessment blueprint.
func DefaultItemCounts() map[ModuleType]int {
	return map[ModuleType]int{
		ModulePronunciation: 5,
		ModuleFluency:       3,
		ModuleConfidence:    3,
		ModuleSyntax:        3,
		ModuleConversation:  3,
		ModuleComprehension: 3,
	}
}
