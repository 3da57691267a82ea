package analysis

import "fmt"

// AudioReport is the combined judgement for one audio tick.
type AudioReport struct {
	// Volume is the calibrated volume tier.
	Volume Level

	// SpeechDetected reports whether the tick contained human speech.
	SpeechDetected bool

	// Sounds lists the recognised background sound labels, in rule order.
	Sounds []Label

	// Suspicious is true when at least one background sound was recognised.
	Suspicious bool
}

// Report runs the full per-tick audio classification: volume against the
// profile, sound rules against the feature vector, and speech aggregation
// over the frame flags with the given ratio threshold.
//
// The feature vector is validated first; a malformed vector fails the whole
// tick with [ErrInvalidFeature] rather than producing a partial report.
func Report(fv FeatureVector, frames []bool, profile *CalibrationProfile, speechRatio float64) (AudioReport, error) {
	if err := fv.Validate(); err != nil {
		return AudioReport{}, err
	}
	volume, err := ClassifyVolume(fv.RMS, profile)
	if err != nil {
		return AudioReport{}, fmt.Errorf("analysis: report: %w", err)
	}

	sounds := ClassifySounds(fv)
	return AudioReport{
		Volume:         volume,
		SpeechDetected: AggregateSpeechRatio(frames, speechRatio),
		Sounds:         sounds,
		Suspicious:     len(sounds) > 0,
	}, nil
}
