// Package session drives the assessment session lifecycle: creation with
// frozen prompt selection, resumption after interruption, cursor movement,
// and module or session restarts.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/promptbank"
	"github.com/Xsert/french-fluency-forge-sub001/internal/scoring"
	"github.com/Xsert/french-fluency-forge-sub001/internal/selection"
	"github.com/Xsert/french-fluency-forge-sub001/internal/speech"
	"github.com/Xsert/french-fluency-forge-sub001/internal/store"
)

var (
	ErrSessionFinished = errors.New("session already finished")
	ErrModuleLocked    = errors.New("module is locked")
	ErrNoPrompts       = errors.New("no prompts available for module")
)

// View is a session snapshot handed to callers: the session row, its full
// item list in sequence order, and the item the user should work on next.
// Current is nil when every item is complete.
type View struct {
	Session model.Session `json:"session"`
	Items   []model.Item  `json:"items"`
	Current *model.Item   `json:"current,omitempty"`
}

// Manager owns session lifecycle operations on top of the store and the
// prompt bank.
type Manager struct {
	store *store.Store
	bank  *promptbank.Bank
	cfg   model.AssessmentConfig
}

func NewManager(st *store.Store, bank *promptbank.Bank, cfg model.AssessmentConfig) *Manager {
	if cfg.ItemCounts == nil {
		cfg.ItemCounts = model.DefaultItemCounts()
	}
	return &Manager{store: st, bank: bank, cfg: cfg}
}

// Create starts a new session for the user. The seed, prompt selection and
// all version strings are frozen here; everything the session needs later is
// derivable from the stored rows alone. Module is ignored unless mode is
// single_module.
func (m *Manager) Create(userID int64, mode model.SessionMode, module model.ModuleType) (*View, error) {
	modules := model.ModuleOrder()
	if mode == model.ModeSingleModule {
		if !model.IsValidModule(module) {
			return nil, fmt.Errorf("unknown module %q", module)
		}
		modules = []model.ModuleType{module}
	}

	seed := selection.GenerateSeed()
	items, err := m.buildItems(modules, seed)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := model.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Mode:          mode,
		Status:        model.SessionCreated,
		Seed:          seed,
		PromptVersion: m.bank.CompositeVersion(modules),
		ScorerVersion: scoring.Version,
		ASRVersion:    speech.ASRVersion,
		CurrentModule: modules[0],
		CurrentIndex:  0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mode == model.ModeSingleModule {
		sess.Module = module
	}
	for i := range items {
		items[i].SessionID = sess.ID
	}

	if err := m.store.CreateSession(sess, items); err != nil {
		return nil, err
	}
	return m.view(sess.ID)
}

// buildItems selects prompts for each module deterministically from the
// session seed. The module's fixed position in the assessment order offsets
// the seed so two modules sharing a catalog do not receive the same order.
func (m *Manager) buildItems(modules []model.ModuleType, seed int64) ([]model.Item, error) {
	var items []model.Item
	for _, mod := range modules {
		pool := m.bank.Prompts(mod)
		if len(pool) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPrompts, mod)
		}
		count := m.cfg.ItemCounts[mod]
		if count <= 0 || count > len(pool) {
			count = len(pool)
		}
		picked, err := selection.SeededSelect(pool, count, seed+modulePosition(mod))
		if err != nil {
			return nil, fmt.Errorf("select prompts for %s: %w", mod, err)
		}
		for i, p := range picked {
			items = append(items, model.Item{
				Module:   mod,
				Index:    i,
				PromptID: p.ID,
				Prompt:   p,
				Status:   model.ItemNotStarted,
				Attempt:  1,
			})
		}
	}
	return items, nil
}

func modulePosition(mod model.ModuleType) int64 {
	for i, known := range model.ModuleOrder() {
		if mod == known {
			return int64(i)
		}
	}
	return 0
}

// Get returns the session view without side effects.
func (m *Manager) Get(sessionID string) (*View, error) {
	return m.view(sessionID)
}

// Resume reopens an interrupted session: it finds the first incomplete item
// in sequence order, moves the cursor there, and flips a freshly created
// session to in_progress. Resuming a finished session is an error.
func (m *Manager) Resume(sessionID string) (*View, error) {
	v, err := m.view(sessionID)
	if err != nil {
		return nil, err
	}
	if v.Session.Status.Terminal() {
		return nil, ErrSessionFinished
	}

	if v.Session.Status == model.SessionCreated {
		if err := m.store.UpdateSessionStatus(sessionID, model.SessionInProgress); err != nil {
			return nil, err
		}
		v.Session.Status = model.SessionInProgress
	}

	if v.Current != nil {
		if err := m.store.UpdateSessionCursor(sessionID, v.Current.Module, v.Current.Index); err != nil {
			return nil, err
		}
		v.Session.CurrentModule = v.Current.Module
		v.Session.CurrentIndex = v.Current.Index
	}
	return v, nil
}

// Unfinished resumes the user's most recent open session, or returns nil
// when there is none.
func (m *Manager) Unfinished(userID int64) (*View, error) {
	sess, err := m.store.LatestUnfinishedSession(userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	return m.Resume(sess.ID)
}

// NextItem moves the cursor to the first incomplete item in sequence order.
// When nothing incomplete remains the session is marked completed and
// Current is nil.
func (m *Manager) NextItem(sessionID string) (*View, error) {
	v, err := m.view(sessionID)
	if err != nil {
		return nil, err
	}
	if v.Session.Status.Terminal() {
		return nil, ErrSessionFinished
	}

	if v.Current == nil {
		if err := m.store.UpdateSessionStatus(sessionID, model.SessionCompleted); err != nil {
			return nil, err
		}
		return m.view(sessionID)
	}

	if err := m.store.UpdateSessionCursor(sessionID, v.Current.Module, v.Current.Index); err != nil {
		return nil, err
	}
	v.Session.CurrentModule = v.Current.Module
	v.Session.CurrentIndex = v.Current.Index
	return v, nil
}

// RestartModule wipes one module's progress: items return to not_started
// with the attempt counter bumped, prior recordings stay superseded on disk.
// A locked module cannot be restarted.
func (m *Manager) RestartModule(sessionID string, module model.ModuleType) (*View, error) {
	v, err := m.view(sessionID)
	if err != nil {
		return nil, err
	}
	if v.Session.Status.Terminal() {
		return nil, ErrSessionFinished
	}
	locked, err := m.store.ModuleLocked(sessionID, module)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrModuleLocked
	}

	if err := m.store.ResetModuleItems(sessionID, module); err != nil {
		return nil, err
	}
	if err := m.store.UpdateSessionCursor(sessionID, module, 0); err != nil {
		return nil, err
	}
	return m.view(sessionID)
}

// RestartSession abandons the session and starts a fresh one for the same
// user. The new session draws a new seed and therefore a new prompt
// selection; this is the only path that changes a user's prompt set. Mode
// and module may be overridden, empty values carry the previous session's
// over. The abandoned session and its recordings remain on record.
func (m *Manager) RestartSession(sessionID string, mode model.SessionMode, module model.ModuleType) (*View, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionFinished
	}

	if mode == "" {
		mode = sess.Mode
	}
	if module == "" {
		module = sess.Module
	}

	if err := m.store.UpdateSessionStatus(sessionID, model.SessionAbandoned); err != nil {
		return nil, err
	}
	return m.Create(sess.UserID, mode, module)
}

// Abandon marks the session abandoned, freeing the user's active slot.
func (m *Manager) Abandon(sessionID string) error {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return ErrSessionFinished
	}
	return m.store.UpdateSessionStatus(sessionID, model.SessionAbandoned)
}

func (m *Manager) view(sessionID string) (*View, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	items, err := m.store.SessionItems(sessionID)
	if err != nil {
		return nil, err
	}
	v := &View{Session: sess, Items: items}
	for i := range items {
		if items[i].Status != model.ItemCompleted {
			v.Current = &items[i]
			break
		}
	}
	return v, nil
}
