package analysis

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Preset bundles the cost/precision knobs of the calibration stage. Two
// presets are supported; both are configuration, not divergent code paths.
type Preset struct {
	// Name identifies the preset in config files and logs.
	Name string

	// MinSeparation is the minimum distance enforced between adjacent
	// volume thresholds. Violations are repaired by widening medium and
	// high upward.
	MinSeparation float64

	// Window is the RMS analysis window length.
	Window time.Duration

	// Step is the hop between consecutive windows. A step smaller than
	// Window overlaps windows.
	Step time.Duration
}

// PresetPrecise is the thorough calibration preset: 100ms non-overlapping
// windows and a strict threshold separation.
var PresetPrecise = Preset{
	Name:          "precise",
	MinSeparation: 0.01,
	Window:        100 * time.Millisecond,
	Step:          100 * time.Millisecond,
}

// PresetFast trades precision for speed: 200ms windows with half overlap
// and a looser threshold separation.
var PresetFast = Preset{
	Name:          "fast",
	MinSeparation: 0.001,
	Window:        200 * time.Millisecond,
	Step:          100 * time.Millisecond,
}

// PresetByName resolves a preset name from configuration. Returns
// [PresetPrecise] for the empty string.
func PresetByName(name string) (Preset, error) {
	switch name {
	case "", PresetPrecise.Name:
		return PresetPrecise, nil
	case PresetFast.Name:
		return PresetFast, nil
	}
	return Preset{}, fmt.Errorf("analysis: unknown calibration preset %q", name)
}

// CalibrationProfile holds the noise-adaptive volume thresholds derived from
// a baseline clip. Profiles are immutable once created and owned by the
// session that created them; re-calibration replaces the profile wholesale.
//
// Invariant: Low < Medium < High, with at least the preset's MinSeparation
// between adjacent thresholds.
type CalibrationProfile struct {
	Low    float64
	Medium float64
	High   float64

	// NoiseFloor and NoiseCeiling are the 10th and 90th percentile of the
	// baseline per-window RMS energies.
	NoiseFloor   float64
	NoiseCeiling float64

	// SampleRate is the sample rate of the baseline clip in Hz.
	SampleRate int
}

// CalibrationMetrics are optional diagnostic figures computed alongside a
// profile. They are informational only; nothing in the classification path
// depends on them.
type CalibrationMetrics struct {
	DynamicRangeDB float64
	SNREstimateDB  float64
	MaxAmplitude   float64
	MinAmplitude   float64
}

// Calibrator derives calibration profiles from baseline noise recordings.
// A Calibrator is stateless and safe for concurrent use.
type Calibrator struct {
	preset Preset
}

// NewCalibrator returns a Calibrator using the given preset.
func NewCalibrator(preset Preset) *Calibrator {
	return &Calibrator{preset: preset}
}

// Preset returns the preset this calibrator was built with.
func (c *Calibrator) Preset() Preset { return c.preset }

// Calibrate derives a profile from an ordered sequence of per-window RMS
// energies taken over the baseline clip. A baseline of at least 5 seconds
// (ideally 10) is recommended.
//
// Returns [ErrInsufficientData] when fewer than 2 windows are supplied and
// [ErrDegenerateSignal] when the baseline is pure silence.
func (c *Calibrator) Calibrate(windowRMS []float64, sampleRate int) (*CalibrationProfile, error) {
	if len(windowRMS) < 2 {
		return nil, fmt.Errorf("analysis: calibrate with %d windows: %w", len(windowRMS), ErrInsufficientData)
	}

	floor := percentile(windowRMS, 10)
	ceiling := percentile(windowRMS, 90)
	if ceiling == 0 {
		return nil, fmt.Errorf("analysis: calibrate: %w", ErrDegenerateSignal)
	}

	p := &CalibrationProfile{
		Low:          floor * 2.0,
		Medium:       floor + 0.6*(ceiling-floor),
		High:         ceiling * 1.5,
		NoiseFloor:   floor,
		NoiseCeiling: ceiling,
		SampleRate:   sampleRate,
	}

	// Repair threshold ordering by widening upward, never downward, so the
	// low threshold keeps tracking the measured noise floor.
	if p.Medium-p.Low < c.preset.MinSeparation {
		p.Medium = p.Low + c.preset.MinSeparation
	}
	if p.High-p.Medium < c.preset.MinSeparation {
		p.High = p.Medium + c.preset.MinSeparation
	}

	return p, nil
}

// CalibrateSignal frames a raw mono sample slice into per-window RMS values
// using the calibrator's preset and derives a profile from them. It is a
// convenience for callers holding a whole baseline clip rather than
// precomputed window energies.
func (c *Calibrator) CalibrateSignal(samples []float64, sampleRate int) (*CalibrationProfile, error) {
	return c.Calibrate(c.WindowRMS(samples, sampleRate), sampleRate)
}

// WindowRMS splits samples into windows per the preset and returns the RMS
// energy of each full window. Trailing samples that do not fill a window are
// dropped.
func (c *Calibrator) WindowRMS(samples []float64, sampleRate int) []float64 {
	if sampleRate <= 0 {
		return nil
	}
	win := int(float64(sampleRate) * c.preset.Window.Seconds())
	step := int(float64(sampleRate) * c.preset.Step.Seconds())
	if win <= 0 || step <= 0 {
		return nil
	}

	var out []float64
	for i := 0; i+win <= len(samples); i += step {
		out = append(out, rms(samples[i:i+win]))
	}
	return out
}

// Insights computes diagnostic metrics over the raw baseline samples. The
// quietest 20% of absolute amplitudes serve as the noise reference for the
// SNR estimate. Degenerate inputs yield zero-valued metrics rather than an
// error; insights are advisory.
func Insights(samples []float64) CalibrationMetrics {
	if len(samples) == 0 {
		return CalibrationMetrics{}
	}

	abs := make([]float64, len(samples))
	for i, s := range samples {
		abs[i] = math.Abs(s)
	}
	slices.Sort(abs)

	m := CalibrationMetrics{
		MinAmplitude: abs[0],
		MaxAmplitude: abs[len(abs)-1],
	}
	if m.MinAmplitude > 0 {
		m.DynamicRangeDB = 20 * math.Log10(m.MaxAmplitude/m.MinAmplitude)
	}

	noiseN := len(abs) / 5
	if noiseN == 0 {
		noiseN = 1
	}
	noise := mean(abs[:noiseN])
	signal := mean(abs)
	if noise > 0 {
		m.SNREstimateDB = 20 * math.Log10(signal/noise)
	}
	return m
}

// percentile computes the p-th percentile of values using linear
// interpolation between closest ranks. values is not modified.
func percentile(values []float64, p float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// rms returns the root-mean-square of samples.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// mean returns the arithmetic mean of values, or 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
