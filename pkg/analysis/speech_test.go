package analysis_test

import (
	"testing"

	"github.com/proctorly/vigil/pkg/analysis"
)

func flags(speech, silence int) []bool {
	out := make([]bool, 0, speech+silence)
	for range speech {
		out = append(out, true)
	}
	for range silence {
		out = append(out, false)
	}
	return out
}

func TestAggregateSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		frames []bool
		want   bool
	}{
		{"no frames", nil, false},
		{"empty slice", []bool{}, false},
		{"all silence", flags(0, 10), false},
		{"exactly at threshold is not speech", flags(3, 7), false},
		{"just above threshold", flags(4, 6), true},
		{"all speech", flags(10, 0), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := analysis.AggregateSpeech(tc.frames); got != tc.want {
				t.Fatalf("AggregateSpeech = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAggregateSpeechRatio(t *testing.T) {
	t.Parallel()

	// A stricter threshold flips a borderline tick.
	if analysis.AggregateSpeechRatio(flags(4, 6), 0.5) {
		t.Fatal("AggregateSpeechRatio(0.4, threshold 0.5) = true, want false")
	}
	if !analysis.AggregateSpeechRatio(flags(6, 4), 0.5) {
		t.Fatal("AggregateSpeechRatio(0.6, threshold 0.5) = false, want true")
	}
}
