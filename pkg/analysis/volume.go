package analysis

import "fmt"

// Level is the classified volume tier of a tick.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ClassifyVolume maps a live RMS energy value to a volume level using the
// session's calibration profile. It is a pure function: two ordered
// comparisons against the profile's low and medium thresholds, no state.
//
// Returns [ErrNotCalibrated] when profile is nil; calibration must precede
// analysis.
func ClassifyVolume(rmsEnergy float64, profile *CalibrationProfile) (Level, error) {
	if profile == nil {
		return "", fmt.Errorf("analysis: classify volume: %w", ErrNotCalibrated)
	}
	switch {
	case rmsEnergy < profile.Low:
		return LevelLow, nil
	case rmsEnergy < profile.Medium:
		return LevelMedium, nil
	default:
		return LevelHigh, nil
	}
}
