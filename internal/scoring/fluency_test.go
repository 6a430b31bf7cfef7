package scoring

import (
	"testing"

	"github.com/Xsert/french-fluency-forge-sub001/internal/model"
)

func TestSpeedSubscoreBands(t *testing.T) {
	tests := []struct {
		name string
		wpm  float64
		want int
	}{
		{"zero", 0, 0},
		{"negative clamps to zero", -10, 0},
		{"band start 45", 45, 10},
		{"band start 65", 65, 25},
		{"band start 85", 85, 40},
		{"band start 110", 110, 55},
		{"mid band 100", 100, 49}, // 40 + 0.6*15
		{"top band 140", 140, 60},
		{"far above top", 1000, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeedSubscore(tt.wpm); got != tt.want {
				t.Errorf("SpeedSubscore(%v) = %d, want %d", tt.wpm, got, tt.want)
			}
		})
	}
}

func TestSpeedSubscoreMonotonic(t *testing.T) {
	prev := SpeedSubscore(0)
	for wpm := 1.0; wpm <= 200; wpm += 0.5 {
		got := SpeedSubscore(wpm)
		if got < prev {
			t.Fatalf("SpeedSubscore not monotonic: f(%v)=%d < f(%v)=%d", wpm, got, wpm-0.5, prev)
		}
		prev = got
	}
}

func TestPauseSubscore(t *testing.T) {
	tests := []struct {
		name       string
		longPauses int
		maxPause   float64
		pauseRatio float64
		want       int
	}{
		{"clean delivery", 0, 1.0, 0.1, 40},
		{"two long pauses", 2, 1.5, 0.2, 30},
		{"long pause penalty capped", 10, 1.5, 0.2, 20},
		{"max pause exceeded", 0, 3.0, 0.2, 30},
		{"pause ratio exceeded", 0, 1.0, 0.5, 30},
		{"all penalties stack", 2, 3.0, 0.4, 10},
		{"floor at zero", 100, 10.0, 0.9, 0},
		{"negative count treated as zero", -4, 1.0, 0.1, 40},
		{"negative count cannot offset other penalties", -100, 3.0, 0.5, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PauseSubscore(tt.longPauses, tt.maxPause, tt.pauseRatio)
			if got != tt.want {
				t.Errorf("PauseSubscore(%d, %v, %v) = %d, want %d",
					tt.longPauses, tt.maxPause, tt.pauseRatio, got, tt.want)
			}
		})
	}
}

func TestPauseSubscoreNeverNegative(t *testing.T) {
	for pauses := 0; pauses <= 100; pauses += 10 {
		for _, maxPause := range []float64{0, 2.6, 60} {
			for _, ratio := range []float64{0, 0.36, 1} {
				if got := PauseSubscore(pauses, maxPause, ratio); got < 0 {
					t.Fatalf("PauseSubscore(%d, %v, %v) = %d, below floor",
						pauses, maxPause, ratio, got)
				}
			}
		}
	}
}

func TestScoreFluencyReferenceScenario(t *testing.T) {
	// wpm 100 interpolates to 49; two long pauses, a 3s max pause, and a
	// 0.4 silence ratio take the pause subscore to 10.
	result := ScoreFluency(model.SpeechMetrics{
		ArticulationWPM: 100,
		LongPauseCount:  2,
		MaxPause:        3.0,
		PauseRatio:      0.4,
	})

	if result.SpeedSubscore != 49 {
		t.Errorf("speed subscore = %d, want 49", result.SpeedSubscore)
	}
	if result.PauseSubscore != 10 {
		t.Errorf("pause subscore = %d, want 10", result.PauseSubscore)
	}
	if result.Total != 59 {
		t.Errorf("total = %d, want 59", result.Total)
	}
}
