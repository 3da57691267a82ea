// Package violation defines the proctoring violation taxonomy and the
// per-tick aggregation that turns raw detector outputs (face counts,
// landmark completeness, face distance, audio reports) into candidate
// violations. Candidates are pre-deduplication: the alert package decides
// which of them surface as events.
package violation

import "time"

// Type names one violation category. Types are stable identifiers used as
// half of the alert cooldown key and in persisted events.
type Type string

const (
	TypeFaceNotDetected      Type = "face_not_detected"
	TypeMultipleFaces        Type = "multiple_faces"
	TypeFacePartiallyBlocked Type = "face_partially_blocked"
	TypeFaceMismatch         Type = "face_mismatch"
	TypeVolumeHigh           Type = "volume_high"
	TypeSuspiciousSound      Type = "suspicious_sound"
)

// Severity grades how urgently a violation needs human attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// severities is the static classification table. Identity violations are
// high, visibility violations are medium, everything else is low.
var severities = map[Type]Severity{
	TypeFaceMismatch:         SeverityHigh,
	TypeMultipleFaces:        SeverityHigh,
	TypeFaceNotDetected:      SeverityMedium,
	TypeFacePartiallyBlocked: SeverityMedium,
}

// SeverityOf returns the severity for t, defaulting to low for types not in
// the table.
func SeverityOf(t Type) Severity {
	if s, ok := severities[t]; ok {
		return s
	}
	return SeverityLow
}

// Event is one emitted violation. Events are immutable once created.
type Event struct {
	// SubjectID identifies the monitored person/session.
	SubjectID string `json:"subject_id"`

	// Type is the violation category.
	Type Type `json:"type"`

	// Severity is derived from the static classification table.
	Severity Severity `json:"severity"`

	// Timestamp is when the violation was observed.
	Timestamp time.Time `json:"timestamp"`

	// Supporting carries tick-level evidence (face distance, labels, ...).
	Supporting map[string]any `json:"supporting,omitempty"`
}

// NewEvent builds an Event for t with the severity table applied.
func NewEvent(subjectID string, t Type, ts time.Time, supporting map[string]any) Event {
	return Event{
		SubjectID:  subjectID,
		Type:       t,
		Severity:   SeverityOf(t),
		Timestamp:  ts,
		Supporting: supporting,
	}
}

// Candidate is one condition evaluated for a single tick, before cooldown
// deduplication. A candidate whose condition is false this tick still
// matters: it resets the cooldown track so the next occurrence counts as a
// fresh onset.
type Candidate struct {
	Type       Type
	Active     bool
	Supporting map[string]any
}
