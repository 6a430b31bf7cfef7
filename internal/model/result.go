package model

// ResultKind tags an ItemResult with its module-specific payload shape.
type ResultKind string

const (
	ResultFluency       ResultKind = "fluency"
	ResultPronunciation ResultKind = "pronunciation"
	ResultRubric        ResultKind = "rubric"
)

// SpeechMetrics are the raw timing measurements for one recording.
// ArticulationWPM is measured over speaking time only and excludes fillers.
type SpeechMetrics struct {
	ArticulationWPM float64 `json:"articulation_wpm"`
	LongPauseCount  int     `json:"long_pause_count"`
	MaxPause        float64 `json:"max_pause"`
	PauseRatio      float64 `json:"pause_ratio"`
	SpeakingTime    float64 `json:"speaking_time,omitempty"`
	TotalDuration   float64 `json:"total_duration,omitempty"`
}

// FluencyResult is the closed-form fluency score breakdown.
type FluencyResult struct {
	Metrics       SpeechMetrics `json:"metrics"`
	SpeedSubscore int           `json:"speed_subscore"`
	PauseSubscore int           `json:"pause_subscore"`
	Total         int           `json:"total"`
	Feedback      string        `json:"feedback,omitempty"`
}

// WordScore is a per-word pronunciation accuracy score.
type WordScore struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// PhonemeScore is a per-phoneme pronunciation accuracy score.
type PhonemeScore struct {
	Phoneme string  `json:"phoneme"`
	Score   float64 `json:"score"`
}

// PronunciationResult holds the pronunciation assessment breakdown.
type PronunciationResult struct {
	Overall  float64        `json:"overall"`
	Words    []WordScore    `json:"words,omitempty"`
	Phonemes []PhonemeScore `json:"phonemes,omitempty"`
}

// RubricResult holds an LLM-rubric score with its supporting evidence.
// Unstable and Spread are set by the determinism guard when independent
// scoring runs disagreed beyond the allowed spread.
type RubricResult struct {
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence,omitempty"`
	Feedback string   `json:"feedback,omitempty"`
	Unstable bool     `json:"unstable_scoring,omitempty"`
	Spread   float64  `json:"spread,omitempty"`
}

// ItemResult is the tagged result payload persisted for one item attempt.
// Exactly one of the module-specific fields is set, matching Kind.
type ItemResult struct {
	Kind          ResultKind           `json:"kind"`
	Transcript    string               `json:"transcript,omitempty"`
	Fluency       *FluencyResult       `json:"fluency,omitempty"`
	Pronunciation *PronunciationResult `json:"pronunciation,omitempty"`
	Rubric        *RubricResult        `json:"rubric,omitempty"`
}

// Score returns the headline 0-100 score of the result.
func (r ItemResult) Score() float64 {
	switch r.Kind {
	case ResultFluency:
		if r.Fluency != nil {
			return float64(r.Fluency.Total)
		}
	case ResultPronunciation:
		if r.Pronunciation != nil {
			return r.Pronunciation.Overall
		}
	case ResultRubric:
		if r.Rubric != nil {
			return r.Rubric.Score
		}
	}
	return 0
}
