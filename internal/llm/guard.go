package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// RubricScorer is the single-run scoring contract the guard wraps. *Client
// satisfies it.
type RubricScorer interface {
	ScoreWithRubric(ctx context.Context, transcript string, p model.Prompt) (*RubricScore, error)
}

// GuardConfig configures the determinism guard. It is passed explicitly at
// construction, never read from ambient process state.
type GuardConfig struct {
	Enabled     bool
	Runs        int
	SpreadLimit float64
}

// DefaultGuardConfig returns the reference guard settings: three runs,
// spread tolerance of 5 points.
func DefaultGuardConfig(enabled bool) GuardConfig {
	return GuardConfig{Enabled: enabled, Runs: 3, SpreadLimit: 5}
}

// Guard wraps a non-deterministic rubric scorer. When enabled it issues
// independent scoring runs and, on disagreement beyond the spread limit,
// selects the median run's full result so the reported score and its
// evidence always come from one actually-observed run.
type Guard struct {
	scorer RubricScorer
	cfg    GuardConfig
}

// NewGuard creates a guard around a scorer.
func NewGuard(scorer RubricScorer, cfg GuardConfig) *Guard {
	if cfg.Runs <= 0 {
		cfg.Runs = 3
	}
	return &Guard{scorer: scorer, cfg: cfg}
}

// Score runs the scorer, guarded if configured. It returns the selected
// result together with the instability flag and the observed spread. The
// flag is informational and persisted for audit, never an error.
func (g *Guard) Score(ctx context.Context, transcript string, p model.Prompt) (result *RubricScore, unstable bool, spread float64, err error) {
	if !g.cfg.Enabled || g.cfg.Runs <= 1 {
		result, err = g.scorer.ScoreWithRubric(ctx, transcript, p)
		return result, false, 0, err
	}

	runs := make([]*RubricScore, g.cfg.Runs)
	errs := make([]error, g.cfg.Runs)

	// The runs share no mutable state; issue them in parallel.
	var wg sync.WaitGroup
	for i := 0; i < g.cfg.Runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i], errs[i] = g.scorer.ScoreWithRubric(ctx, transcript, p)
		}(i)
	}
	wg.Wait()

	for i, runErr := range errs {
		if runErr != nil {
			return nil, false, 0, fmt.Errorf("guard run %d: %w", i+1, runErr)
		}
	}

	lo, hi := runs[0].Score, runs[0].Score
	for _, r := range runs[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}
	spread = hi - lo

	if spread <= g.cfg.SpreadLimit {
		return runs[0], false, spread, nil
	}

	// Disagreement: pick the median-scoring run wholesale rather than
	// averaging to a score no run actually asserted.
	sorted := make([]*RubricScore, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	median := sorted[len(sorted)/2]

	slog.Warn("unstable rubric scoring",
		"module", p.Module, "prompt_id", p.ID, "spread", spread, "selected_score", median.Score)

	return median, true, spread, nil
}
