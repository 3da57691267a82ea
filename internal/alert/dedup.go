package alert

import (
	"log/slog"
	"time"
)

// DefaultCooldown is the minimum time between repeated alerts of the same
// type for the same subject.
const DefaultCooldown = 30 * time.Second

// Outcome is the deduplicator's decision for one observation.
type Outcome string

const (
	// OutcomeTriggered means the observation should surface as an alert:
	// either a fresh onset or a re-alert after the cooldown elapsed.
	OutcomeTriggered Outcome = "triggered"

	// OutcomeSuppressed means the condition is ongoing but inside the
	// cooldown window.
	OutcomeSuppressed Outcome = "suppressed"

	// OutcomeResolved means the condition is not active this tick. The
	// track is reset; resolving an already-inactive track is a no-op.
	OutcomeResolved Outcome = "resolved"
)

// Emit reports whether the observation should produce an alert event.
func (o Outcome) Emit() bool { return o == OutcomeTriggered }

// Deduplicator runs the cooldown state machine over a [StateStore].
// It is safe for concurrent use; per-key read-modify-write cycles are
// atomic via [StateStore.Update]. Within one subject's stream the caller
// must deliver ticks in arrival order, since cooldown correctness depends
// on a monotonic clock per track.
type Deduplicator struct {
	store    StateStore
	cooldown time.Duration
	now      func() time.Time
}

// Option customises a [Deduplicator].
type Option func(*Deduplicator)

// WithClock overrides the time source, letting tests drive the cooldown
// window deterministically.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

// NewDeduplicator creates a Deduplicator over store. A non-positive
// cooldown selects [DefaultCooldown].
func NewDeduplicator(store StateStore, cooldown time.Duration, opts ...Option) *Deduplicator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	d := &Deduplicator{
		store:    store,
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cooldown returns the configured cooldown period.
func (d *Deduplicator) Cooldown() time.Duration { return d.cooldown }

// Observe runs one tick's condition through the state machine for key:
//
//   - Inactive → Active, triggered, when the condition is active (a fresh
//     onset always emits; no cooldown applies to the transition).
//   - Active → Active, triggered, when the condition is active and the
//     cooldown has elapsed since the last trigger.
//   - Active → Active, suppressed, when the condition is active inside the
//     cooldown window.
//   - any → Inactive, resolved, when the condition is not active.
func (d *Deduplicator) Observe(key Key, conditionActive bool) Outcome {
	now := d.now()
	var outcome Outcome

	d.store.Update(key, func(prev State, ok bool) State {
		if !conditionActive {
			outcome = OutcomeResolved
			return State{LastTrigger: now, Active: false}
		}
		if !ok || !prev.Active {
			outcome = OutcomeTriggered
			return State{LastTrigger: now, Active: true}
		}
		if now.Sub(prev.LastTrigger) > d.cooldown {
			outcome = OutcomeTriggered
			return State{LastTrigger: now, Active: true}
		}
		outcome = OutcomeSuppressed
		return prev
	})

	switch outcome {
	case OutcomeTriggered:
		slog.Info("alert triggered", "subject", key.SubjectID, "type", key.Type)
	case OutcomeSuppressed:
		slog.Debug("alert suppressed, cooldown active", "subject", key.SubjectID, "type", key.Type)
	}
	return outcome
}

// Cleanup removes every cooldown track for subjectID and returns the count
// removed. Called when a subject's session ends.
func (d *Deduplicator) Cleanup(subjectID string) int {
	n := d.store.DeleteSubject(subjectID)
	slog.Info("alert tracks cleaned up", "subject", subjectID, "removed", n)
	return n
}

// Counts reports track totals for introspection.
func (d *Deduplicator) Counts() Counts {
	return d.store.Counts()
}
