// Package store defines the persistence contracts for Vigil's violation
// event history and reference face encodings, plus an in-memory
// implementation for tests and store-less deployments. The core engine
// never requires durable state; these stores are external collaborators it
// reports into.
package store

import (
	"context"
	"errors"

	"github.com/proctorly/vigil/internal/facecache"
	"github.com/proctorly/vigil/internal/violation"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// EventStore persists emitted violation events for later review.
// Implementations must be safe for concurrent use.
type EventStore interface {
	// InsertEvent appends one emitted event to the history.
	InsertEvent(ctx context.Context, ev violation.Event) error

	// ListEvents returns the most recent events for a subject, newest
	// first, up to limit. A non-positive limit returns all events.
	ListEvents(ctx context.Context, subjectID string, limit int) ([]violation.Event, error)

	// Ping probes the backing store for readiness checks.
	Ping(ctx context.Context) error
}

// ReferenceStore manages reference face encodings. It doubles as a
// [facecache.Source] for the in-process encoding cache.
type ReferenceStore interface {
	facecache.Source

	// PutReference stores or replaces the subject's reference encoding.
	PutReference(ctx context.Context, subjectID string, enc facecache.Encoding) error
}
