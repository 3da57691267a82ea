// Package analysis implements the audio signal classification core of Vigil:
// noise-adaptive calibration, three-tier volume classification, rule-based
// background sound labelling, and speech activity aggregation.
//
// The package never touches raw audio or performs spectral math itself. It
// consumes feature vectors (RMS energy, spectral centroid/rolloff, zero
// crossing rate, band energy ratios) produced by an external feature
// extractor and per-frame speech flags produced by an external VAD, and
// turns them into categorical judgements.
//
// All functions are pure and safe for concurrent use. Errors follow a small
// sentinel taxonomy ([ErrInsufficientData], [ErrDegenerateSignal],
// [ErrNotCalibrated], [ErrInvalidFeature]) so callers can distinguish "the
// condition is false" from "the classification failed".
package analysis

import (
	"fmt"
	"math"
)

// BandEnergy holds the energy distribution across the three frequency bands
// used by the sound rules: low (≤500 Hz), mid (500–4000 Hz, the voice band),
// and high (>4000 Hz). Values are absolute energies, not ratios; ratios are
// derived on demand so a silent tick never divides by zero.
type BandEnergy struct {
	Low  float64
	Mid  float64
	High float64
}

// Total returns the summed energy across all bands.
func (b BandEnergy) Total() float64 {
	return b.Low + b.Mid + b.High
}

// FeatureVector is one tick's worth of precomputed audio features. It is
// transient: produced by the external feature extractor, consumed by the
// classifiers, and discarded.
type FeatureVector struct {
	// RMS is the root-mean-square energy of the tick's audio window.
	RMS float64

	// SpectralCentroid is the magnitude-weighted mean frequency in Hz.
	SpectralCentroid float64

	// SpectralRolloff is the normalised rolloff frequency in [0, 1]
	// (rolloff Hz divided by the sample rate).
	SpectralRolloff float64

	// ZeroCrossingRate is the fraction of sample pairs that change sign.
	ZeroCrossingRate float64

	// BandEnergy is the per-band energy split.
	BandEnergy BandEnergy
}

// Validate reports whether the feature vector is well formed. Negative
// energies and non-finite values indicate a broken extractor upstream and
// are surfaced as [ErrInvalidFeature] rather than silently classified.
func (fv FeatureVector) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"rms", fv.RMS},
		{"spectral_centroid", fv.SpectralCentroid},
		{"spectral_rolloff", fv.SpectralRolloff},
		{"zero_crossing_rate", fv.ZeroCrossingRate},
		{"band_energy.low", fv.BandEnergy.Low},
		{"band_energy.mid", fv.BandEnergy.Mid},
		{"band_energy.high", fv.BandEnergy.High},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("analysis: %s is not finite: %w", f.name, ErrInvalidFeature)
		}
		if f.v < 0 {
			return fmt.Errorf("analysis: %s is negative (%g): %w", f.name, f.v, ErrInvalidFeature)
		}
	}
	return nil
}

// bandRatio returns band / total for the vector's band energies, or 0 when
// the tick carries no energy at all. An empty-energy tick is an expected
// edge case, not a fault.
func bandRatio(band, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return band / total
}
