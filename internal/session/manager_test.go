package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/promptbank"
	"github.com/Xsert/french-fluency-forge-sub001/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBank(t *testing.T) *promptbank.Bank {
	t.Helper()

	type catalog struct {
		Version string         `json:"version"`
		Prompts []model.Prompt `json:"prompts"`
	}
	cat := catalog{Version: "test-1"}
	for _, mod := range model.ModuleOrder() {
		for i := 0; i < 6; i++ {
			cat.Prompts = append(cat.Prompts, model.Prompt{
				ID:     fmt.Sprintf("%s-%d", mod, i),
				Module: mod,
				Text:   fmt.Sprintf("Question %d", i),
			})
		}
	}

	data, err := json.Marshal(cat)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	bank, err := promptbank.Load([]string{path})
	if err != nil {
		t.Fatalf("promptbank.Load: %v", err)
	}
	return bank
}

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	cfg := model.AssessmentConfig{
		ItemCounts: map[model.ModuleType]int{
			model.ModulePronunciation: 3,
			model.ModuleFluency:       2,
			model.ModuleConfidence:    2,
			model.ModuleSyntax:        2,
			model.ModuleConversation:  2,
			model.ModuleComprehension: 2,
		},
	}
	return NewManager(s, newTestBank(t), cfg), s
}

func TestCreateFullSession(t *testing.T) {
	m, _ := newTestManager(t)

	v, err := m.Create(1, model.ModeFull, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if v.Session.Status != model.SessionCreated {
		t.Errorf("status = %q, want created", v.Session.Status)
	}
	if v.Session.Seed == 0 {
		t.Error("expected a nonzero seed")
	}
	if v.Session.PromptVersion == "" || v.Session.ScorerVersion == "" || v.Session.ASRVersion == "" {
		t.Errorf("versions not frozen: %+v", v.Session)
	}

	// 3 + 2*5 items across the six modules, in module order.
	if len(v.Items) != 13 {
		t.Fatalf("expected 13 items, got %d", len(v.Items))
	}
	if v.Items[0].Module != model.ModulePronunciation {
		t.Errorf("first module = %s, want pronunciation", v.Items[0].Module)
	}
	if v.Items[len(v.Items)-1].Module != model.ModuleComprehension {
		t.Errorf("last module = %s, want comprehension", v.Items[len(v.Items)-1].Module)
	}
	if v.Current == nil || v.Current.Index != 0 {
		t.Errorf("current should be the first item, got %+v", v.Current)
	}

	// Prompt snapshots are frozen onto the items.
	for _, item := range v.Items {
		if item.Prompt.ID != item.PromptID {
			t.Errorf("item %d prompt snapshot mismatch: %q vs %q", item.ID, item.Prompt.ID, item.PromptID)
		}
	}
}

func TestCreateSingleModuleSession(t *testing.T) {
	m, _ := newTestManager(t)

	v, err := m.Create(1, model.ModeSingleModule, model.ModuleFluency)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(v.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(v.Items))
	}
	for _, item := range v.Items {
		if item.Module != model.ModuleFluency {
			t.Errorf("unexpected module %s", item.Module)
		}
	}

	if _, err := m.Create(2, model.ModeSingleModule, "juggling"); err == nil {
		t.Error("expected error for unknown module")
	}
}

func TestSecondActiveSessionRejected(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.Create(1, model.ModeFull, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := m.Create(1, model.ModeFull, "")
	if !errors.Is(err, store.ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}
}

func TestResumeFindsFirstIncomplete(t *testing.T) {
	m, s := newTestManager(t)

	v, err := m.Create(1, model.ModeFull, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Complete the first two items out of band.
	for _, item := range v.Items[:2] {
		if err := s.UpdateItemStatus(item.ID, model.ItemCompleted); err != nil {
			t.Fatalf("UpdateItemStatus: %v", err)
		}
	}

	resumed, err := m.Resume(v.Session.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Session.Status != model.SessionInProgress {
		t.Errorf("status = %q, want in_progress", resumed.Session.Status)
	}
	if resumed.Current == nil {
		t.Fatal("expected a current item")
	}
	if resumed.Current.ID != v.Items[2].ID {
		t.Errorf("current = item %d, want item %d", resumed.Current.ID, v.Items[2].ID)
	}
	if resumed.Session.CurrentModule != v.Items[2].Module || resumed.Session.CurrentIndex != v.Items[2].Index {
		t.Errorf("cursor = %s/%d, want %s/%d",
			resumed.Session.CurrentModule, resumed.Session.CurrentIndex,
			v.Items[2].Module, v.Items[2].Index)
	}

	// Resuming again is idempotent.
	again, err := m.Resume(v.Session.ID)
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if again.Current.ID != resumed.Current.ID {
		t.Errorf("resume not idempotent: %d vs %d", again.Current.ID, resumed.Current.ID)
	}
}

func TestResumeFinishedSession(t *testing.T) {
	m, s := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	if err := s.UpdateSessionStatus(v.Session.ID, model.SessionCompleted); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	if _, err := m.Resume(v.Session.ID); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}

func TestUnfinished(t *testing.T) {
	m, _ := newTestManager(t)

	v, err := m.Unfinished(1)
	if err != nil {
		t.Fatalf("Unfinished: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil for user with no sessions, got %+v", v)
	}

	created, _ := m.Create(1, model.ModeFull, "")
	v, err = m.Unfinished(1)
	if err != nil {
		t.Fatalf("Unfinished: %v", err)
	}
	if v == nil || v.Session.ID != created.Session.ID {
		t.Fatalf("expected session %s, got %+v", created.Session.ID, v)
	}
}

func TestNextItemCompletesSession(t *testing.T) {
	m, s := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	for _, item := range v.Items {
		if err := s.UpdateItemStatus(item.ID, model.ItemCompleted); err != nil {
			t.Fatalf("UpdateItemStatus: %v", err)
		}
	}

	done, err := m.NextItem(v.Session.ID)
	if err != nil {
		t.Fatalf("NextItem: %v", err)
	}
	if done.Session.Status != model.SessionCompleted {
		t.Errorf("status = %q, want completed", done.Session.Status)
	}
	if done.Current != nil {
		t.Errorf("expected nil current, got %+v", done.Current)
	}
	if done.Session.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestRestartModule(t *testing.T) {
	m, s := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	for _, item := range v.Items {
		if item.Module == model.ModulePronunciation {
			if err := s.UpdateItemStatus(item.ID, model.ItemCompleted); err != nil {
				t.Fatalf("UpdateItemStatus: %v", err)
			}
		}
	}

	restarted, err := m.RestartModule(v.Session.ID, model.ModulePronunciation)
	if err != nil {
		t.Fatalf("RestartModule: %v", err)
	}
	for _, item := range restarted.Items {
		if item.Module != model.ModulePronunciation {
			continue
		}
		if item.Status != model.ItemNotStarted || item.Attempt != 2 {
			t.Errorf("item %d not reset: %q attempt %d", item.ID, item.Status, item.Attempt)
		}
	}
	if restarted.Current == nil || restarted.Current.Module != model.ModulePronunciation {
		t.Errorf("cursor should point at the restarted module, got %+v", restarted.Current)
	}
}

func TestRestartModuleLocked(t *testing.T) {
	m, s := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	if err := s.LockModule(v.Session.ID, model.ModulePronunciation); err != nil {
		t.Fatalf("LockModule: %v", err)
	}
	if _, err := m.RestartModule(v.Session.ID, model.ModulePronunciation); !errors.Is(err, ErrModuleLocked) {
		t.Fatalf("expected ErrModuleLocked, got %v", err)
	}
}

func TestRestartSessionCreatesFreshSession(t *testing.T) {
	m, s := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	for _, item := range v.Items {
		if err := s.UpdateItemStatus(item.ID, model.ItemCompleted); err != nil {
			t.Fatalf("UpdateItemStatus: %v", err)
		}
	}

	restarted, err := m.RestartSession(v.Session.ID, "", "")
	if err != nil {
		t.Fatalf("RestartSession: %v", err)
	}
	if restarted.Session.ID == v.Session.ID {
		t.Fatal("restart should create a new session, got the same ID")
	}
	if restarted.Session.Seed == v.Session.Seed {
		t.Errorf("restart should draw a new seed, both are %d", v.Session.Seed)
	}
	if restarted.Session.Mode != model.ModeFull || restarted.Session.UserID != 1 {
		t.Errorf("new session should keep user and mode, got user %d mode %q",
			restarted.Session.UserID, restarted.Session.Mode)
	}
	for _, item := range restarted.Items {
		if item.Status != model.ItemNotStarted {
			t.Errorf("item %d should start fresh, got %q", item.ID, item.Status)
		}
	}

	old, err := s.GetSession(v.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if old.Status != model.SessionAbandoned {
		t.Errorf("old session status = %q, want abandoned", old.Status)
	}
}

func TestRestartSessionOverridesMode(t *testing.T) {
	m, _ := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	restarted, err := m.RestartSession(v.Session.ID, model.ModeSingleModule, model.ModuleFluency)
	if err != nil {
		t.Fatalf("RestartSession: %v", err)
	}
	if restarted.Session.Mode != model.ModeSingleModule || restarted.Session.Module != model.ModuleFluency {
		t.Errorf("override not applied: mode %q module %q",
			restarted.Session.Mode, restarted.Session.Module)
	}
	for _, item := range restarted.Items {
		if item.Module != model.ModuleFluency {
			t.Errorf("single-module restart should only hold fluency items, got %s", item.Module)
		}
	}
}

func TestRestartFinishedSession(t *testing.T) {
	m, _ := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	if err := m.Abandon(v.Session.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := m.RestartSession(v.Session.ID, "", ""); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}

func TestAbandonFreesSlot(t *testing.T) {
	m, _ := newTestManager(t)

	v, _ := m.Create(1, model.ModeFull, "")
	if err := m.Abandon(v.Session.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := m.Create(1, model.ModeFull, ""); err != nil {
		t.Fatalf("expected new session after abandon: %v", err)
	}
	if err := m.Abandon(v.Session.ID); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished on double abandon, got %v", err)
	}
}
