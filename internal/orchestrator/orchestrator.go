// Package orchestrator runs the scoring pipeline for a submitted recording:
// it routes each item to its module's scorer, persists the attempt, and
// keeps item and session state consistent around failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Xsert/french-fluency-forge-sub001/internal/llm"
	"github.com/Xsert/french-fluency-forge-sub001/internal/llm/prompts"
	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/scoring"
	"github.com/Xsert/french-fluency-forge-sub001/internal/session"
	"github.com/Xsert/french-fluency-forge-sub001/internal/speech"
	"github.com/Xsert/french-fluency-forge-sub001/internal/store"
)

var (
	ErrItemBusy       = errors.New("item has a submission in flight")
	ErrMissingAudio   = errors.New("submission has no audio")
	ErrMissingMetrics = errors.New("submission has no speech metrics")
)

// RubricGuard is the guarded rubric-scoring contract. *llm.Guard satisfies
// it.
type RubricGuard interface {
	Score(ctx context.Context, transcript string, p model.Prompt) (*llm.RubricScore, bool, float64, error)
}

// Submission carries one recorded attempt. Audio feeds transcription and
// pronunciation assessment; Metrics carry the client-measured speech timing
// for fluency items; Text, when set, replaces transcription.
type Submission struct {
	Audio   []byte               `json:"-"`
	Metrics *model.SpeechMetrics `json:"metrics,omitempty"`
	Text    string               `json:"text,omitempty"`
}

// Outcome is the scored result of one submission.
type Outcome struct {
	Item           model.Item       `json:"item"`
	Result         model.ItemResult `json:"result"`
	ModuleComplete bool             `json:"module_complete"`
}

// Orchestrator wires the store, the speech services and the rubric scorer
// into the per-item scoring pipeline.
type Orchestrator struct {
	store       *store.Store
	transcriber speech.Transcriber
	assessor    speech.Assessor
	rubric      RubricGuard
	language    string
}

func New(st *store.Store, transcriber speech.Transcriber, assessor speech.Assessor, rubric RubricGuard, language string) *Orchestrator {
	if language == "" {
		language = "fr"
	}
	return &Orchestrator{
		store:       st,
		transcriber: transcriber,
		assessor:    assessor,
		rubric:      rubric,
		language:    language,
	}
}

// BeginRecording moves an item into the recording state. Only an item that
// is not mid-pipeline can start a recording.
func (o *Orchestrator) BeginRecording(itemID int64) (model.Item, error) {
	item, err := o.store.GetItem(itemID)
	if err != nil {
		return item, err
	}
	if item.Status == model.ItemProcessing {
		return item, ErrItemBusy
	}
	if err := o.checkUnlocked(item); err != nil {
		return item, err
	}
	if err := o.store.UpdateItemStatus(itemID, model.ItemRecording); err != nil {
		return item, err
	}
	item.Status = model.ItemRecording
	return item, nil
}

// Submit scores one recorded attempt. The item goes to processing for the
// duration of the pipeline; a scorer failure parks it in the error state so
// the user can retry, a success persists the recording and completes the
// item.
func (o *Orchestrator) Submit(ctx context.Context, itemID int64, sub Submission) (*Outcome, error) {
	item, err := o.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.Status == model.ItemProcessing {
		return nil, ErrItemBusy
	}
	if err := o.checkUnlocked(item); err != nil {
		return nil, err
	}

	if err := o.store.UpdateItemStatus(itemID, model.ItemProcessing); err != nil {
		return nil, err
	}
	// From here on any failure parks the item in the error state instead of
	// leaving it stuck in processing, which would block every retry path.
	completed := false
	defer func() {
		if completed {
			return
		}
		if stErr := o.store.UpdateItemStatus(itemID, model.ItemError); stErr != nil {
			slog.Error("failed to park item in error state", "item_id", itemID, "error", stErr)
		}
	}()

	sess, err := o.store.GetSession(item.SessionID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := o.score(ctx, sess, item, sub)
	if err != nil {
		return nil, err
	}

	var audioRef string
	if len(sub.Audio) > 0 {
		audioRef = uuid.NewString()
	}
	rec := model.Recording{
		ItemID:   itemID,
		Attempt:  item.Attempt,
		AudioRef: audioRef,
		Result:   *result,
	}
	if _, err := o.store.InsertRecording(rec); err != nil {
		return nil, err
	}
	if err := o.store.UpdateItemStatus(itemID, model.ItemCompleted); err != nil {
		return nil, err
	}
	completed = true
	item.Status = model.ItemCompleted

	moduleComplete, err := o.moduleComplete(item.SessionID, item.Module, itemID)
	if err != nil {
		return nil, err
	}

	slog.Info("item scored",
		"session_id", item.SessionID, "item_id", itemID, "module", item.Module,
		"score", result.Score(), "elapsed", time.Since(started))

	return &Outcome{Item: item, Result: *result, ModuleComplete: moduleComplete}, nil
}

func (o *Orchestrator) score(ctx context.Context, sess model.Session, item model.Item, sub Submission) (*model.ItemResult, error) {
	switch item.Module {
	case model.ModulePronunciation:
		return o.scorePronunciation(ctx, sess.UserID, item, sub)
	case model.ModuleFluency:
		return o.scoreFluency(item, sub)
	default:
		return o.scoreRubric(ctx, item, sub)
	}
}

func (o *Orchestrator) scorePronunciation(ctx context.Context, userID int64, item model.Item, sub Submission) (*model.ItemResult, error) {
	if len(sub.Audio) == 0 {
		return nil, ErrMissingAudio
	}
	assessment, err := o.assessor.Assess(ctx, sub.Audio, item.Prompt.ReferenceText)
	if err != nil {
		return nil, err
	}

	// Fold every recognized phoneme observation into the user's running
	// record. Symbols outside the inventory are kept in the result but not
	// tracked.
	now := time.Now()
	for _, ps := range assessment.Phonemes {
		if !knownPhoneme(ps.Phoneme) {
			continue
		}
		if err := o.store.RecordPhonemeScore(userID, ps.Phoneme, ps.Score, now); err != nil {
			return nil, fmt.Errorf("record phoneme %s: %w", ps.Phoneme, err)
		}
	}

	return &model.ItemResult{
		Kind: model.ResultPronunciation,
		Pronunciation: &model.PronunciationResult{
			Overall:  llm.Clamp(assessment.Overall, 0, 100),
			Words:    assessment.Words,
			Phonemes: assessment.Phonemes,
		},
	}, nil
}

func (o *Orchestrator) scoreFluency(item model.Item, sub Submission) (*model.ItemResult, error) {
	if sub.Metrics == nil {
		return nil, ErrMissingMetrics
	}
	result := scoring.ScoreFluency(*sub.Metrics)
	return &model.ItemResult{
		Kind:    model.ResultFluency,
		Fluency: &result,
	}, nil
}

func (o *Orchestrator) scoreRubric(ctx context.Context, item model.Item, sub Submission) (*model.ItemResult, error) {
	transcript := sub.Text
	if transcript == "" {
		if len(sub.Audio) == 0 {
			return nil, ErrMissingAudio
		}
		var err error
		transcript, err = o.transcriber.Transcribe(ctx, sub.Audio, o.language)
		if err != nil {
			var te *speech.TranscriptionError
			if !errors.As(err, &te) {
				err = &speech.TranscriptionError{Err: err}
			}
			return nil, err
		}
	}
	transcript = prompts.SanitizeTranscript(transcript)

	score, unstable, spread, err := o.rubric.Score(ctx, transcript, item.Prompt)
	if err != nil {
		return nil, err
	}

	return &model.ItemResult{
		Kind:       model.ResultRubric,
		Transcript: transcript,
		Rubric: &model.RubricResult{
			Score:    score.Score,
			Evidence: score.Evidence,
			Feedback: score.Feedback,
			Unstable: unstable,
			Spread:   spread,
		},
	}, nil
}

// RedoItem resets one item for another attempt. An item mid-pipeline cannot
// be redone, and neither can any item of a locked module.
func (o *Orchestrator) RedoItem(itemID int64) (model.Item, error) {
	item, err := o.store.GetItem(itemID)
	if err != nil {
		return item, err
	}
	switch item.Status {
	case model.ItemRecording, model.ItemProcessing:
		return item, ErrItemBusy
	}
	if err := o.checkUnlocked(item); err != nil {
		return item, err
	}
	if err := o.store.RedoItem(itemID); err != nil {
		return item, err
	}
	return o.store.GetItem(itemID)
}

// LockModule freezes a module's results. The lock is one-way: repeated
// locking is a no-op and there is no unlock.
func (o *Orchestrator) LockModule(sessionID string, module model.ModuleType) error {
	if !model.IsValidModule(module) {
		return fmt.Errorf("unknown module %q", module)
	}
	return o.store.LockModule(sessionID, module)
}

// PhonemeInsights returns the stratified phoneme view for a user.
func (o *Orchestrator) PhonemeInsights(userID int64) (scoring.PhonemeInsight, error) {
	stats, err := o.store.PhonemeStats(userID)
	if err != nil {
		return scoring.PhonemeInsight{}, err
	}
	return scoring.BuildInsight(stats, scoring.DefaultConfidenceThreshold), nil
}

func (o *Orchestrator) checkUnlocked(item model.Item) error {
	locked, err := o.store.ModuleLocked(item.SessionID, item.Module)
	if err != nil {
		return err
	}
	if locked {
		return session.ErrModuleLocked
	}
	return nil
}

// moduleComplete reports whether every item of the module is completed,
// counting justCompleted as done regardless of what a stale read says.
func (o *Orchestrator) moduleComplete(sessionID string, module model.ModuleType, justCompleted int64) (bool, error) {
	items, err := o.store.SessionItems(sessionID)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.Module != module {
			continue
		}
		if it.ID == justCompleted {
			continue
		}
		if it.Status != model.ItemCompleted {
			return false, nil
		}
	}
	return true, nil
}

func knownPhoneme(symbol string) bool {
	for _, p := range scoring.FrenchPhonemes {
		if p == symbol {
			return true
		}
	}
	return false
}
