// Package session ties the analysis pipeline together per monitored
// subject. A [Manager] owns the full lifecycle: a subject is calibrated
// once, then audio and face ticks flow through classification, violation
// aggregation, and alert deduplication until the subject is cleaned up.
//
// Ticks for one subject are serialised by a per-subject mutex, so cooldown
// state always advances in arrival order. Ticks for different subjects run
// concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/proctorly/vigil/internal/alert"
	"github.com/proctorly/vigil/internal/facecache"
	"github.com/proctorly/vigil/internal/observe"
	"github.com/proctorly/vigil/internal/violation"
	"github.com/proctorly/vigil/pkg/analysis"
	"github.com/proctorly/vigil/pkg/store"
)

// ErrUnknownSubject indicates an analysis tick for a subject that was never
// calibrated or was already cleaned up.
var ErrUnknownSubject = errors.New("session: unknown subject")

// ErrAlreadyCalibrated indicates a calibration request for a subject that
// already has an active monitor. Re-calibration requires cleanup first.
var ErrAlreadyCalibrated = errors.New("session: subject already calibrated")

// Publisher receives every emitted violation event, typically to fan it out
// to connected dashboards.
type Publisher interface {
	Publish(ev violation.Event)
}

// monitor is the per-subject state. A monitor exists only for calibrated
// subjects; its profile field is never nil. The mutex serialises this
// subject's ticks.
type monitor struct {
	mu      sync.Mutex
	profile *analysis.CalibrationProfile
}

// Manager coordinates monitors for all active subjects. Safe for
// concurrent use.
type Manager struct {
	calibrator  *analysis.Calibrator
	aggregator  *violation.Aggregator
	dedup       *alert.Deduplicator
	events      store.EventStore
	faces       *facecache.Cache
	publisher   Publisher
	metrics     *observe.Metrics
	speechRatio float64
	now         func() time.Time

	mu       sync.RWMutex
	monitors map[string]*monitor
}

// Params bundles the Manager's dependencies and tuning values.
type Params struct {
	Calibrator *analysis.Calibrator
	Aggregator *violation.Aggregator
	Dedup      *alert.Deduplicator
	Events     store.EventStore
	Faces      *facecache.Cache
	Publisher  Publisher
	Metrics    *observe.Metrics

	// SpeechRatioThreshold overrides the speech detection ratio. 0 selects
	// [analysis.DefaultSpeechRatio].
	SpeechRatioThreshold float64

	// Now overrides the time source for tests. Nil selects [time.Now].
	Now func() time.Time
}

// NewManager creates a Manager from params.
func NewManager(p Params) *Manager {
	if p.SpeechRatioThreshold == 0 {
		p.SpeechRatioThreshold = analysis.DefaultSpeechRatio
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Manager{
		calibrator:  p.Calibrator,
		aggregator:  p.Aggregator,
		dedup:       p.Dedup,
		events:      p.Events,
		faces:       p.Faces,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
		speechRatio: p.SpeechRatioThreshold,
		now:         p.Now,
		monitors:    make(map[string]*monitor),
	}
}

// Calibrate derives a calibration profile from the subject's baseline clip
// and activates monitoring for the subject. Audio ticks are rejected with
// [ErrUnknownSubject] until calibration succeeds; there is no way to
// construct a monitor without a profile.
//
// Returns [ErrAlreadyCalibrated] when the subject is already active.
func (m *Manager) Calibrate(ctx context.Context, subjectID string, samples []float64, sampleRate int) (*analysis.CalibrationProfile, analysis.CalibrationMetrics, error) {
	preset := m.calibrator.Preset().Name

	profile, err := m.calibrator.CalibrateSignal(samples, sampleRate)
	if err != nil {
		m.metrics.RecordCalibration(ctx, preset, "error")
		return nil, analysis.CalibrationMetrics{}, fmt.Errorf("session: calibrate %q: %w", subjectID, err)
	}
	insights := analysis.Insights(samples)

	m.mu.Lock()
	if _, exists := m.monitors[subjectID]; exists {
		m.mu.Unlock()
		m.metrics.RecordCalibration(ctx, preset, "duplicate")
		return nil, analysis.CalibrationMetrics{}, fmt.Errorf("session: calibrate %q: %w", subjectID, ErrAlreadyCalibrated)
	}
	m.monitors[subjectID] = &monitor{profile: profile}
	m.mu.Unlock()

	m.metrics.RecordCalibration(ctx, preset, "ok")
	m.metrics.ActiveSubjects.Add(ctx, 1)
	slog.Info("subject calibrated",
		"subject", subjectID,
		"preset", preset,
		"noise_floor", profile.NoiseFloor,
		"noise_ceiling", profile.NoiseCeiling,
	)
	return profile, insights, nil
}

// AnalyzeAudioTick classifies one audio tick for the subject and returns
// the tick's report plus any violation events that survived deduplication.
//
// Returns [ErrUnknownSubject] for uncalibrated subjects and the underlying
// analysis error when the tick's features are unusable. A failed tick emits
// nothing and leaves cooldown state untouched.
func (m *Manager) AnalyzeAudioTick(ctx context.Context, subjectID string, fv analysis.FeatureVector, speechFrames []bool) (analysis.AudioReport, []violation.Event, error) {
	start := m.now()
	mon, err := m.monitor(subjectID)
	if err != nil {
		m.metrics.RecordTickError(ctx, "audio")
		return analysis.AudioReport{}, nil, err
	}

	mon.mu.Lock()
	defer mon.mu.Unlock()

	report, err := analysis.Report(fv, speechFrames, mon.profile, m.speechRatio)
	if err != nil {
		m.metrics.RecordTickError(ctx, "audio")
		return analysis.AudioReport{}, nil, fmt.Errorf("session: audio tick for %q: %w", subjectID, err)
	}

	events := m.processCandidates(ctx, subjectID, violation.AggregateAudio(report))
	m.metrics.RecordTick(ctx, "audio", m.now().Sub(start).Seconds())
	return report, events, nil
}

// EvaluateFaceTick evaluates one video tick's face observation and returns
// any violation events that survived deduplication.
//
// When frameEncoding is non-empty and the observation carries no
// precomputed distance, the subject's cached reference encoding is used to
// compute one. A subject without a reference on record skips the mismatch
// check for the tick.
func (m *Manager) EvaluateFaceTick(ctx context.Context, subjectID string, obs violation.Observation, frameEncoding facecache.Encoding) ([]violation.Event, error) {
	start := m.now()
	mon, err := m.monitor(subjectID)
	if err != nil {
		m.metrics.RecordTickError(ctx, "face")
		return nil, err
	}

	mon.mu.Lock()
	defer mon.mu.Unlock()

	if obs.FaceDistance == nil && len(frameEncoding) > 0 && obs.FaceCount >= 1 {
		switch ref, err := m.faces.Get(ctx, subjectID); {
		case errors.Is(err, facecache.ErrNoReference):
			// No verified reference; mismatch cannot be judged this tick.
		case err != nil:
			m.metrics.RecordTickError(ctx, "face")
			return nil, fmt.Errorf("session: face tick for %q: %w", subjectID, err)
		default:
			d, derr := facecache.Distance(ref, frameEncoding)
			if derr != nil {
				m.metrics.RecordTickError(ctx, "face")
				return nil, fmt.Errorf("session: face tick for %q: %w", subjectID, derr)
			}
			obs.FaceDistance = &d
		}
	}

	events := m.processCandidates(ctx, subjectID, m.aggregator.AggregateFace(obs))
	m.metrics.RecordTick(ctx, "face", m.now().Sub(start).Seconds())
	return events, nil
}

// Cleanup ends monitoring for the subject: the monitor, all cooldown
// tracks, and the cached reference encoding are removed atomically enough
// that a subsequent calibration starts completely fresh. Cleaning up an
// unknown subject is a no-op.
func (m *Manager) Cleanup(ctx context.Context, subjectID string) {
	m.mu.Lock()
	mon, existed := m.monitors[subjectID]
	delete(m.monitors, subjectID)
	m.mu.Unlock()

	if !existed {
		return
	}

	// The monitor is unlinked, so no new tick can acquire it; taking its
	// lock waits out the in-flight tick that might still write cooldown
	// state.
	mon.mu.Lock()
	defer mon.mu.Unlock()

	m.dedup.Cleanup(subjectID)
	m.faces.Invalidate(subjectID)
	m.metrics.ActiveSubjects.Add(ctx, -1)
	slog.Info("subject monitoring ended", "subject", subjectID)
}

// Stats is a point-in-time snapshot of the manager's state, served by the
// status endpoint.
type Stats struct {
	ActiveSubjects int          `json:"active_subjects"`
	AlertTracks    alert.Counts `json:"alert_tracks"`
	CachedFaces    int          `json:"cached_faces"`
}

// Stats snapshots current subject, track, and cache counts.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	n := len(m.monitors)
	m.mu.RUnlock()
	return Stats{
		ActiveSubjects: n,
		AlertTracks:    m.dedup.Counts(),
		CachedFaces:    m.faces.Len(),
	}
}

// Profile returns the subject's calibration profile, or
// [ErrUnknownSubject].
func (m *Manager) Profile(subjectID string) (*analysis.CalibrationProfile, error) {
	mon, err := m.monitor(subjectID)
	if err != nil {
		return nil, err
	}
	return mon.profile, nil
}

// monitor looks up the subject's monitor.
func (m *Manager) monitor(subjectID string) (*monitor, error) {
	m.mu.RLock()
	mon, ok := m.monitors[subjectID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, subjectID)
	}
	return mon, nil
}

// processCandidates runs each candidate through the cooldown state machine
// and materialises the triggered ones as events: persisted, published, and
// counted. Persistence failures are logged but do not block the alert; a
// proctor seeing the alert matters more than the audit row.
func (m *Manager) processCandidates(ctx context.Context, subjectID string, candidates []violation.Candidate) []violation.Event {
	var events []violation.Event
	now := m.now()

	for _, c := range candidates {
		outcome := m.dedup.Observe(alert.Key{SubjectID: subjectID, Type: c.Type}, c.Active)
		switch outcome {
		case alert.OutcomeSuppressed:
			m.metrics.RecordAlertSuppressed(ctx, string(c.Type))
		case alert.OutcomeTriggered:
			ev := violation.NewEvent(subjectID, c.Type, now, c.Supporting)
			if err := m.events.InsertEvent(ctx, ev); err != nil {
				slog.Error("persist violation event failed",
					"subject", subjectID, "type", c.Type, "error", err)
			}
			if m.publisher != nil {
				m.publisher.Publish(ev)
			}
			m.metrics.RecordAlertEmitted(ctx, string(c.Type), string(ev.Severity))
			events = append(events, ev)
		}
	}
	return events
}
