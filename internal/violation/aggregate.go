package violation

import "github.com/proctorly/vigil/pkg/analysis"

// Defaults for the aggregation thresholds. The mismatch threshold is
// calibrated to the external face encoder's distance scale and must not be
// changed without also changing the encoder.
const (
	DefaultMismatchThreshold    = 0.6
	DefaultOcclusionLandmarkMin = 6
)

// Observation is one video tick's worth of externally computed face
// signals. The core never sees pixels; it judges these numbers.
type Observation struct {
	// FaceCount is the number of faces the external detector found.
	FaceCount int

	// LandmarksPresent reports whether a landmark set was extracted for
	// the primary face. Eye landmark counts are only meaningful when set.
	LandmarksPresent bool

	// LeftEyeLandmarks and RightEyeLandmarks count the landmark points
	// resolved for each eye of the primary face.
	LeftEyeLandmarks  int
	RightEyeLandmarks int

	// FaceDistance is the primary face's distance to the subject's cached
	// reference encoding. Nil when no reference encoding exists or the
	// frame face could not be encoded.
	FaceDistance *float64
}

// Aggregator evaluates face observations into candidate violations.
// The zero value is not usable; use [NewAggregator].
type Aggregator struct {
	mismatchThreshold    float64
	occlusionLandmarkMin int
}

// NewAggregator returns an Aggregator with the given thresholds. Zero
// values select the defaults.
func NewAggregator(mismatchThreshold float64, occlusionLandmarkMin int) *Aggregator {
	if mismatchThreshold == 0 {
		mismatchThreshold = DefaultMismatchThreshold
	}
	if occlusionLandmarkMin == 0 {
		occlusionLandmarkMin = DefaultOcclusionLandmarkMin
	}
	return &Aggregator{
		mismatchThreshold:    mismatchThreshold,
		occlusionLandmarkMin: occlusionLandmarkMin,
	}
}

// AggregateFace evaluates all face conditions for one tick. Every condition
// appears in the result exactly once, active or not, so the deduplicator can
// reset resolved tracks; dropping the negations would desynchronize
// cooldown state.
//
// The count-partition conditions (face_not_detected, multiple_faces) are
// mutually exclusive; occlusion and mismatch are independent of each other
// and of the count checks.
func (a *Aggregator) AggregateFace(obs Observation) []Candidate {
	candidates := []Candidate{
		{
			Type:       TypeFaceNotDetected,
			Active:     obs.FaceCount == 0,
			Supporting: map[string]any{"face_count": obs.FaceCount},
		},
		{
			Type:       TypeMultipleFaces,
			Active:     obs.FaceCount > 1,
			Supporting: map[string]any{"face_count": obs.FaceCount},
		},
	}

	occluded := obs.FaceCount >= 1 && obs.LandmarksPresent &&
		(obs.LeftEyeLandmarks < a.occlusionLandmarkMin || obs.RightEyeLandmarks < a.occlusionLandmarkMin)
	candidates = append(candidates, Candidate{
		Type:   TypeFacePartiallyBlocked,
		Active: occluded,
		Supporting: map[string]any{
			"left_eye_landmarks":  obs.LeftEyeLandmarks,
			"right_eye_landmarks": obs.RightEyeLandmarks,
		},
	})

	mismatch := Candidate{Type: TypeFaceMismatch}
	if obs.FaceCount >= 1 && obs.FaceDistance != nil {
		d := *obs.FaceDistance
		mismatch.Active = d > a.mismatchThreshold
		mismatch.Supporting = map[string]any{
			"face_distance":    d,
			"face_match_score": (1 - d) * 100,
		}
	}
	candidates = append(candidates, mismatch)

	return candidates
}

// AggregateAudio converts an audio tick's classification report into
// candidate violations: a high volume tier and any recognised suspicious
// background sound each track their own cooldown.
func AggregateAudio(report analysis.AudioReport) []Candidate {
	labels := make([]string, 0, len(report.Sounds))
	for _, l := range report.Sounds {
		labels = append(labels, string(l))
	}
	return []Candidate{
		{
			Type:       TypeVolumeHigh,
			Active:     report.Volume == analysis.LevelHigh,
			Supporting: map[string]any{"volume_level": string(report.Volume)},
		},
		{
			Type:       TypeSuspiciousSound,
			Active:     report.Suspicious,
			Supporting: map[string]any{"sounds": labels},
		},
	}
}
