package analysis

import "errors"

// Sentinel errors for the classification core. All are local, recoverable
// conditions; callers match them with [errors.Is].
var (
	// ErrInsufficientData indicates the baseline clip produced too few RMS
	// windows for the percentile computation (fewer than 2).
	ErrInsufficientData = errors.New("insufficient baseline data for calibration")

	// ErrDegenerateSignal indicates a silence-only baseline (noise ceiling 0).
	// The resulting thresholds would be unusable; the caller should request a
	// fresh baseline recording instead of proceeding.
	ErrDegenerateSignal = errors.New("degenerate baseline signal")

	// ErrNotCalibrated indicates classification was attempted without a
	// calibration profile. Calibration must precede analysis.
	ErrNotCalibrated = errors.New("session is not calibrated")

	// ErrInvalidFeature indicates a malformed feature vector, e.g. negative
	// energies or non-finite values.
	ErrInvalidFeature = errors.New("invalid feature vector")
)
