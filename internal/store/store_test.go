package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(userID int64) model.Session {
	now := time.Now()
	return model.Session{
		ID:            fmt.Sprintf("sess-%d-%d", userID, now.UnixNano()),
		UserID:        userID,
		Mode:          model.ModeFull,
		Status:        model.SessionCreated,
		Seed:          42,
		PromptVersion: "fr-2024.1",
		ScorerVersion: "scorer-v1",
		ASRVersion:    "whisper-1",
		CurrentModule: model.ModulePronunciation,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testItems(sessionID string) []model.Item {
	return []model.Item{
		{SessionID: sessionID, Module: model.ModulePronunciation, Index: 0, PromptID: "p1",
			Prompt: model.Prompt{ID: "p1", Module: model.ModulePronunciation, Text: "Lisez", ReferenceText: "Le chat dort."},
			Status: model.ItemNotStarted, Attempt: 1},
		{SessionID: sessionID, Module: model.ModulePronunciation, Index: 1, PromptID: "p2",
			Prompt: model.Prompt{ID: "p2", Module: model.ModulePronunciation, Text: "Lisez", ReferenceText: "Il pleut."},
			Status: model.ItemNotStarted, Attempt: 1},
		{SessionID: sessionID, Module: model.ModuleFluency, Index: 0, PromptID: "f1",
			Prompt: model.Prompt{ID: "f1", Module: model.ModuleFluency, Text: "Décrivez votre journée."},
			Status: model.ItemNotStarted, Attempt: 1},
	}
}

func createTestSession(t *testing.T, s *Store, userID int64) (model.Session, []model.Item) {
	t.Helper()
	sess := testSession(userID)
	if err := s.CreateSession(sess, testItems(sess.ID)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	items, err := s.SessionItems(sess.ID)
	if err != nil {
		t.Fatalf("SessionItems: %v", err)
	}
	return sess, items
}

func TestSessionCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	sess, items := createTestSession(t, s, 1)

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Seed != 42 {
		t.Errorf("seed = %d, want 42", got.Seed)
	}
	if got.PromptVersion != "fr-2024.1" {
		t.Errorf("prompt version = %q, want fr-2024.1", got.PromptVersion)
	}
	if got.Status != model.SessionCreated {
		t.Errorf("status = %q, want created", got.Status)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	// Items come back in insertion (module, index) order.
	if items[0].Module != model.ModulePronunciation || items[0].Index != 0 {
		t.Errorf("unexpected first item %s/%d", items[0].Module, items[0].Index)
	}
	if items[2].Module != model.ModuleFluency {
		t.Errorf("unexpected last item module %s", items[2].Module)
	}
	// Prompt snapshots are frozen into the rows.
	if items[0].Prompt.ReferenceText != "Le chat dort." {
		t.Errorf("prompt snapshot missing: %+v", items[0].Prompt)
	}
}

func TestOneActiveSessionPerUser(t *testing.T) {
	s := newTestStore(t)
	createTestSession(t, s, 1)

	second := testSession(1)
	err := s.CreateSession(second, testItems(second.ID))
	if !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	// A different user is unaffected.
	createTestSession(t, s, 2)
}

func TestAbandonFreesActiveSlot(t *testing.T) {
	s := newTestStore(t)
	sess, _ := createTestSession(t, s, 1)

	if err := s.UpdateSessionStatus(sess.ID, model.SessionAbandoned); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}

	next := testSession(1)
	if err := s.CreateSession(next, testItems(next.ID)); err != nil {
		t.Fatalf("expected creation after abandon to succeed: %v", err)
	}
}

func TestLatestUnfinishedSession(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LatestUnfinishedSession(1)
	if err != nil {
		t.Fatalf("LatestUnfinishedSession: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for user with no sessions, got %+v", got)
	}

	sess, _ := createTestSession(t, s, 1)
	got, err = s.LatestUnfinishedSession(1)
	if err != nil {
		t.Fatalf("LatestUnfinishedSession: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("expected session %s, got %+v", sess.ID, got)
	}

	if err := s.UpdateSessionStatus(sess.ID, model.SessionCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	got, _ = s.LatestUnfinishedSession(1)
	if got != nil {
		t.Errorf("completed session should not be returned, got %+v", got)
	}
}

func TestCompletedAtStamp(t *testing.T) {
	s := newTestStore(t)
	sess, _ := createTestSession(t, s, 1)

	if err := s.UpdateSessionStatus(sess.ID, model.SessionCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	got, _ := s.GetSession(sess.ID)
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestRedoItemPreservesHistory(t *testing.T) {
	s := newTestStore(t)
	_, items := createTestSession(t, s, 1)
	item := items[0]

	rec := model.Recording{
		ItemID:   item.ID,
		Attempt:  1,
		AudioRef: "rec-abc",
		Result: model.ItemResult{
			Kind:          model.ResultPronunciation,
			Pronunciation: &model.PronunciationResult{Overall: 82},
		},
	}
	if _, err := s.InsertRecording(rec); err != nil {
		t.Fatalf("InsertRecording: %v", err)
	}
	if err := s.UpdateItemStatus(item.ID, model.ItemCompleted); err != nil {
		t.Fatalf("UpdateItemStatus: %v", err)
	}

	if err := s.RedoItem(item.ID); err != nil {
		t.Fatalf("RedoItem: %v", err)
	}

	got, _ := s.GetItem(item.ID)
	if got.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", got.Attempt)
	}
	if got.Status != model.ItemNotStarted {
		t.Errorf("status = %q, want not_started", got.Status)
	}

	recs, err := s.RecordingsForItem(item.ID)
	if err != nil {
		t.Fatalf("RecordingsForItem: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected recording to survive redo, got %d rows", len(recs))
	}
	if !recs[0].Superseded {
		t.Error("prior recording should be marked superseded")
	}
	if recs[0].Result.Pronunciation == nil || recs[0].Result.Pronunciation.Overall != 82 {
		t.Error("recording payload lost on redo")
	}
}

func TestLatestRecordingSkipsSuperseded(t *testing.T) {
	s := newTestStore(t)
	_, items := createTestSession(t, s, 1)
	item := items[0]

	first := model.Recording{ItemID: item.ID, Attempt: 1,
		Result: model.ItemResult{Kind: model.ResultPronunciation, Pronunciation: &model.PronunciationResult{Overall: 60}}}
	if _, err := s.InsertRecording(first); err != nil {
		t.Fatalf("InsertRecording: %v", err)
	}
	if err := s.RedoItem(item.ID); err != nil {
		t.Fatalf("RedoItem: %v", err)
	}
	second := model.Recording{ItemID: item.ID, Attempt: 2,
		Result: model.ItemResult{Kind: model.ResultPronunciation, Pronunciation: &model.PronunciationResult{Overall: 90}}}
	if _, err := s.InsertRecording(second); err != nil {
		t.Fatalf("InsertRecording: %v", err)
	}

	latest, err := s.LatestRecording(item.ID)
	if err != nil {
		t.Fatalf("LatestRecording: %v", err)
	}
	if latest == nil || latest.Result.Pronunciation.Overall != 90 {
		t.Fatalf("expected current attempt, got %+v", latest)
	}
}

func TestResetModuleItems(t *testing.T) {
	s := newTestStore(t)
	sess, items := createTestSession(t, s, 1)

	for _, item := range items {
		if err := s.UpdateItemStatus(item.ID, model.ItemCompleted); err != nil {
			t.Fatalf("UpdateItemStatus: %v", err)
		}
	}

	if err := s.ResetModuleItems(sess.ID, model.ModulePronunciation); err != nil {
		t.Fatalf("ResetModuleItems: %v", err)
	}

	after, _ := s.SessionItems(sess.ID)
	for _, item := range after {
		switch item.Module {
		case model.ModulePronunciation:
			if item.Status != model.ItemNotStarted || item.Attempt != 2 {
				t.Errorf("pronunciation item %d not reset: status %q attempt %d", item.ID, item.Status, item.Attempt)
			}
		default:
			if item.Status != model.ItemCompleted || item.Attempt != 1 {
				t.Errorf("other module item %d should be untouched: status %q attempt %d", item.ID, item.Status, item.Attempt)
			}
		}
	}
}

func TestLockModuleIdempotent(t *testing.T) {
	s := newTestStore(t)
	sess, _ := createTestSession(t, s, 1)

	locked, err := s.ModuleLocked(sess.ID, model.ModulePronunciation)
	if err != nil {
		t.Fatalf("ModuleLocked: %v", err)
	}
	if locked {
		t.Error("module should start unlocked")
	}

	if err := s.LockModule(sess.ID, model.ModulePronunciation); err != nil {
		t.Fatalf("LockModule: %v", err)
	}
	if err := s.LockModule(sess.ID, model.ModulePronunciation); err != nil {
		t.Fatalf("second LockModule should be a no-op: %v", err)
	}

	locked, _ = s.ModuleLocked(sess.ID, model.ModulePronunciation)
	if !locked {
		t.Error("module should be locked")
	}
	locked, _ = s.ModuleLocked(sess.ID, model.ModuleFluency)
	if locked {
		t.Error("other module should be unaffected")
	}
}

func TestRecordPhonemeScoreExactMean(t *testing.T) {
	s := newTestStore(t)
	scores := []float64{80, 90, 70, 60, 85}
	now := time.Now()

	for _, score := range scores {
		if err := s.RecordPhonemeScore(1, "ʁ", score, now); err != nil {
			t.Fatalf("RecordPhonemeScore: %v", err)
		}
	}

	stats, err := s.PhonemeStats(1)
	if err != nil {
		t.Fatalf("PhonemeStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 stat row, got %d", len(stats))
	}
	st := stats[0]
	if st.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", st.Attempts)
	}
	if math.Abs(st.Mean-77) > 1e-9 {
		t.Errorf("mean = %v, want 77", st.Mean)
	}
	if st.Confidence <= 0 || st.Confidence >= 1 {
		t.Errorf("confidence = %v, want in (0, 1)", st.Confidence)
	}

	// Other users have independent records.
	other, _ := s.PhonemeStats(2)
	if len(other) != 0 {
		t.Errorf("expected no stats for other user, got %d", len(other))
	}
}

func TestOfficialExamImmutability(t *testing.T) {
	s := newTestStore(t)
	exam := model.OfficialExam{
		ID: "exam-1", UserID: 1, Scenario: "cafe", Persona: "serveur", Tier: "b1",
		Official: true, StartedAt: time.Now(),
	}
	if err := s.CreateOfficialExam(exam); err != nil {
		t.Fatalf("CreateOfficialExam: %v", err)
	}

	scores := model.ComponentScores{Fluency: 70, Overall: 68}
	if err := s.CompleteOfficialExam("exam-1", "transcript", scores, time.Now()); err != nil {
		t.Fatalf("CompleteOfficialExam: %v", err)
	}

	got, err := s.GetOfficialExam("exam-1")
	if err != nil {
		t.Fatalf("GetOfficialExam: %v", err)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if got.Scores == nil || got.Scores.Fluency != 70 {
		t.Fatalf("expected persisted scores, got %+v", got.Scores)
	}

	err = s.CompleteOfficialExam("exam-1", "rewritten", model.ComponentScores{Overall: 100}, time.Now())
	if !errors.Is(err, ErrExamImmutable) {
		t.Fatalf("expected ErrExamImmutable, got %v", err)
	}

	err = s.CompleteOfficialExam("missing", "t", scores, time.Now())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for missing exam, got %v", err)
	}
}

func TestLatestOfficialCompletion(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LatestOfficialCompletion(1)
	if err != nil {
		t.Fatalf("LatestOfficialCompletion: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for untested user, got %v", got)
	}

	older := time.Now().Add(-30 * 24 * time.Hour)
	newer := time.Now().Add(-5 * 24 * time.Hour)
	for i, completedAt := range []time.Time{older, newer} {
		id := fmt.Sprintf("exam-%d", i)
		if err := s.CreateOfficialExam(model.OfficialExam{
			ID: id, UserID: 1, Official: true, StartedAt: completedAt.Add(-time.Hour),
		}); err != nil {
			t.Fatalf("CreateOfficialExam: %v", err)
		}
		if err := s.CompleteOfficialExam(id, "t", model.ComponentScores{}, completedAt); err != nil {
			t.Fatalf("CompleteOfficialExam: %v", err)
		}
	}

	got, err = s.LatestOfficialCompletion(1)
	if err != nil {
		t.Fatalf("LatestOfficialCompletion: %v", err)
	}
	if got == nil {
		t.Fatal("expected a completion time")
	}
	if got.Sub(newer).Abs() > time.Second {
		t.Errorf("expected most recent completion %v, got %v", newer, got)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	value, err := s.GetMetadata("bank_version")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value, got %q", value)
	}

	if err := s.RecordDeploymentVersions("fr-2024.1", "scorer-v1"); err != nil {
		t.Fatalf("RecordDeploymentVersions: %v", err)
	}
	bank, scorer, err := s.DeploymentVersions()
	if err != nil {
		t.Fatalf("DeploymentVersions: %v", err)
	}
	if bank != "fr-2024.1" || scorer != "scorer-v1" {
		t.Errorf("versions = %q, %q", bank, scorer)
	}

	// Upsert overwrites.
	if err := s.SetMetadata("bank_version", "fr-2024.2"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	value, _ = s.GetMetadata("bank_version")
	if value != "fr-2024.2" {
		t.Errorf("expected fr-2024.2, got %q", value)
	}
}

func TestExportAllSessions(t *testing.T) {
	s := newTestStore(t)
	if err := s.RecordDeploymentVersions("fr-2024.1", "scorer-v1"); err != nil {
		t.Fatalf("RecordDeploymentVersions: %v", err)
	}
	_, items := createTestSession(t, s, 1)

	rec := model.Recording{ItemID: items[0].ID, Attempt: 1,
		Result: model.ItemResult{Kind: model.ResultPronunciation, Pronunciation: &model.PronunciationResult{Overall: 75}}}
	if _, err := s.InsertRecording(rec); err != nil {
		t.Fatalf("InsertRecording: %v", err)
	}

	export, err := s.ExportAllSessions()
	if err != nil {
		t.Fatalf("ExportAllSessions: %v", err)
	}
	if export.BankVersion != "fr-2024.1" {
		t.Errorf("bank version = %q", export.BankVersion)
	}
	if len(export.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(export.Sessions))
	}
	se := export.Sessions[0]
	if len(se.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(se.Items))
	}
	if len(se.Items[0].Recordings) != 1 {
		t.Errorf("expected 1 recording on first item, got %d", len(se.Items[0].Recordings))
	}
}
