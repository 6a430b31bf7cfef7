package scoring

import (
	"math"
	"sort"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

// FrenchPhonemes is the fixed inventory the pronunciation assessor reports
// against. Coverage is always computed over this set.
var FrenchPhonemes = []string{
	// Oral vowels
	"a", "ɑ", "e", "ɛ", "ə", "i", "o", "ɔ", "u", "y", "ø", "œ",
	// Nasal vowels
	"ɛ̃", "ɑ̃", "ɔ̃", "œ̃",
	// Semivowels
	"j", "w", "ɥ",
	// Consonants
	"p", "b", "t", "d", "k", "g", "f", "v", "s", "z",
	"ʃ", "ʒ", "m", "n", "ɲ", "ŋ", "l", "ʁ",
	// Loanword consonants
	"x", "ʔ",
}

// confidenceRate controls how fast confidence saturates with attempts.
const confidenceRate = 12.0

// DefaultConfidenceThreshold separates confident phoneme estimates from
// ones that still need more samples.
const DefaultConfidenceThreshold = 0.5

// Confidence returns 1 - e^(-attempts/12). It depends only on the attempt
// count, so low-sample phonemes stay flagged as uncertain regardless of how
// good or bad their mean looks.
func Confidence(attempts int) float64 {
	if attempts <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(attempts)/confidenceRate)
}

// OnlineMean folds a new score into a running mean without stored history.
// Iterating it over a score sequence yields the exact arithmetic mean.
func OnlineMean(oldMean float64, oldAttempts int, newScore float64) float64 {
	return (oldMean*float64(oldAttempts) + newScore) / float64(oldAttempts+1)
}

// PhonemeInsight is a snapshot-consistent stratified view over one user's
// phoneme statistics. All four views are derived from the same records.
type PhonemeInsight struct {
	Hardest   []model.PhonemeStat `json:"hardest"`
	Uncertain []model.PhonemeStat `json:"uncertain"`
	Strongest []model.PhonemeStat `json:"strongest"`
	Coverage  float64             `json:"coverage"`
}

// BuildInsight stratifies a single snapshot of one user's phoneme records.
// Hardest and Strongest only rank entries at or above the confidence
// threshold; Uncertain lists the rest ordered by fewest attempts first so
// the least-tested phonemes are prioritized for more testing.
func BuildInsight(stats []model.PhonemeStat, confidenceThreshold float64) PhonemeInsight {
	var confident, uncertain []model.PhonemeStat
	for _, s := range stats {
		s.Confidence = Confidence(s.Attempts)
		if s.Confidence >= confidenceThreshold {
			confident = append(confident, s)
		} else {
			uncertain = append(uncertain, s)
		}
	}

	hardest := make([]model.PhonemeStat, len(confident))
	copy(hardest, confident)
	sort.SliceStable(hardest, func(i, j int) bool { return hardest[i].Mean < hardest[j].Mean })

	strongest := make([]model.PhonemeStat, len(confident))
	copy(strongest, confident)
	sort.SliceStable(strongest, func(i, j int) bool { return strongest[i].Mean > strongest[j].Mean })

	sort.SliceStable(uncertain, func(i, j int) bool { return uncertain[i].Attempts < uncertain[j].Attempts })

	return PhonemeInsight{
		Hardest:   hardest,
		Uncertain: uncertain,
		Strongest: strongest,
		Coverage:  float64(len(stats)) / float64(len(FrenchPhonemes)),
	}
}
