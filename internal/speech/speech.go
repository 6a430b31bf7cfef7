// Package speech defines the external audio collaborators: transcription,
// pronunciation assessment, and text-to-speech. All calls are bounded by
// context deadlines and failures map onto the transient error types the
// orchestrator surfaces as a retryable item error.
package speech

import (
	"context"
	"fmt"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// TranscriptionError wraps an upstream speech-to-text failure. It is
// transient by default: callers should offer a retry, not fail the session.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// AssessmentError wraps an upstream pronunciation-scoring failure.
type AssessmentError struct {
	Err error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("pronunciation assessment failed: %v", e.Err)
}

func (e *AssessmentError) Unwrap() error { return e.Err }

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error)
}

// Assessment is the pronunciation assessor's breakdown for one recording.
type Assessment struct {
	Overall  float64              `json:"overall_score"`
	Words    []model.WordScore    `json:"words"`
	Phonemes []model.PhonemeScore `json:"phonemes"`
}

// Assessor scores recorded audio against a reference text.
type Assessor interface {
	Assess(ctx context.Context, audio []byte, referenceText string) (*Assessment, error)
}

// Synthesizer produces reference audio for a prompt text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
