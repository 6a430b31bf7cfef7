package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
	"github.com/Xsert/french-fluency-forge-sub001/internal/store"
)

// DefaultCooldownDays is the waiting period between official exam attempts.
const DefaultCooldownDays = 14

// ErrCooldownActive rejects an official exam attempt inside the waiting
// period.
var ErrCooldownActive = errors.New("official exam cooldown is active")

// RetryPolicy gates official exam attempts: a user may retake once the
// cooldown has elapsed since their last completed official exam. Eligibility
// is always computed from the completion timestamps, never stored, so
// changing the cooldown applies to past completions too.
type RetryPolicy struct {
	store    *store.Store
	cooldown time.Duration
	now      func() time.Time
}

func NewRetryPolicy(st *store.Store, cooldownDays int) *RetryPolicy {
	if cooldownDays <= 0 {
		cooldownDays = DefaultCooldownDays
	}
	return &RetryPolicy{
		store:    st,
		cooldown: time.Duration(cooldownDays) * 24 * time.Hour,
		now:      time.Now,
	}
}

// CanTakeOfficial reports whether the user may start an official exam now.
// A user with no completed official exam is always eligible. The boundary is
// inclusive: exactly cooldown days after completion the user is eligible.
func (p *RetryPolicy) CanTakeOfficial(userID int64) (bool, error) {
	last, err := p.store.LatestOfficialCompletion(userID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return !p.now().Before(last.Add(p.cooldown)), nil
}

// NextAvailable returns when the user becomes eligible, or nil if they are
// eligible already.
func (p *RetryPolicy) NextAvailable(userID int64) (*time.Time, error) {
	last, err := p.store.LatestOfficialCompletion(userID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	next := last.Add(p.cooldown)
	if !p.now().Before(next) {
		return nil, nil
	}
	return &next, nil
}

// StartOfficial opens a new official exam attempt, enforcing the cooldown.
func (p *RetryPolicy) StartOfficial(userID int64, scenario, persona, tier string) (model.OfficialExam, error) {
	ok, err := p.CanTakeOfficial(userID)
	if err != nil {
		return model.OfficialExam{}, err
	}
	if !ok {
		return model.OfficialExam{}, ErrCooldownActive
	}

	exam := model.OfficialExam{
		ID:        uuid.NewString(),
		UserID:    userID,
		Scenario:  scenario,
		Persona:   persona,
		Tier:      tier,
		Official:  true,
		StartedAt: p.now(),
	}
	if err := p.store.CreateOfficialExam(exam); err != nil {
		return model.OfficialExam{}, err
	}
	return exam, nil
}

// CompleteOfficial finalizes an official exam attempt. A completed exam is
// immutable; the store rejects a second completion.
func (p *RetryPolicy) CompleteOfficial(examID, transcript string, scores model.ComponentScores) (model.OfficialExam, error) {
	if err := p.store.CompleteOfficialExam(examID, transcript, scores, p.now()); err != nil {
		return model.OfficialExam{}, err
	}
	return p.store.GetOfficialExam(examID)
}

// DaysUntilNext returns the whole days remaining before eligibility, rounded
// up, or 0 when eligible.
func (p *RetryPolicy) DaysUntilNext(userID int64) (int, error) {
	next, err := p.NextAvailable(userID)
	if err != nil {
		return 0, err
	}
	if next == nil {
		return 0, nil
	}
	remaining := next.Sub(p.now())
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days, nil
}
