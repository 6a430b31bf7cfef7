// Package scoring implements the closed-form numeric scorers: the banded
// fluency formula and the per-phoneme running statistics.
package scoring

import (
	"math"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// Version identifies the scoring rules. It is frozen into every session so
// later formula changes never silently rescore existing results.
const Version = "scorer-v1"

// speedBand maps an articulation-rate range to a subscore range. Within a
// band the subscore interpolates linearly.
type speedBand struct {
	loWPM, hiWPM     float64
	loScore, hiScore float64
}

var speedBands = []speedBand{
	{0, 45, 0, 10},
	{45, 65, 10, 25},
	{65, 85, 25, 40},
	{85, 110, 40, 55},
	{110, 140, 55, 60},
}

const (
	maxSpeedSubscore = 60
	maxPauseSubscore = 40

	longPausePenalty    = 5
	longPausePenaltyCap = 20
	maxPauseThreshold   = 2.5 // seconds
	maxPausePenalty     = 10
	pauseRatioThreshold = 0.35
	pauseRatioPenalty   = 10
)

// SpeedSubscore maps articulation rate (words per minute over speaking time,
// fillers excluded) to 0-60 via piecewise-linear band interpolation.
func SpeedSubscore(articulationWPM float64) int {
	if articulationWPM <= 0 {
		return 0
	}
	if articulationWPM >= speedBands[len(speedBands)-1].hiWPM {
		return maxSpeedSubscore
	}
	for _, b := range speedBands {
		if articulationWPM >= b.loWPM && articulationWPM < b.hiWPM {
			position := (articulationWPM - b.loWPM) / (b.hiWPM - b.loWPM)
			return int(math.Round(b.loScore + position*(b.hiScore-b.loScore)))
		}
	}
	return maxSpeedSubscore
}

// PauseSubscore scores pause control on 0-40. Only silence costs points;
// disfluencies never reach this formula. Penalties stack down to the floor.
func PauseSubscore(longPauseCount int, maxPause, pauseRatio float64) int {
	score := maxPauseSubscore

	pausePenalty := longPauseCount * longPausePenalty
	if pausePenalty < 0 {
		pausePenalty = 0
	}
	if pausePenalty > longPausePenaltyCap {
		pausePenalty = longPausePenaltyCap
	}
	score -= pausePenalty

	if maxPause > maxPauseThreshold {
		score -= maxPausePenalty
	}
	if pauseRatio > pauseRatioThreshold {
		score -= pauseRatioPenalty
	}

	if score < 0 {
		score = 0
	}
	return score
}

// ScoreFluency combines the speed and pause subscores. The two dimensions
// are independent and additive so a weakness in one is not doubly counted.
func ScoreFluency(m model.SpeechMetrics) model.FluencyResult {
	speed := SpeedSubscore(m.ArticulationWPM)
	pause := PauseSubscore(m.LongPauseCount, m.MaxPause, m.PauseRatio)
	return model.FluencyResult{
		Metrics:       m,
		SpeedSubscore: speed,
		PauseSubscore: pause,
		Total:         speed + pause,
	}
}
