package store

import (
	"context"
	"sync"

	"github.com/proctorly/vigil/internal/facecache"
	"github.com/proctorly/vigil/internal/violation"
)

// Compile-time assertions that MemStore satisfies both contracts.
var (
	_ EventStore     = (*MemStore)(nil)
	_ ReferenceStore = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory implementation of [EventStore] and
// [ReferenceStore]. It is suitable for tests and for deployments that run
// without a database. The zero value is not ready; use [NewMemStore].
type MemStore struct {
	mu         sync.RWMutex
	events     map[string][]violation.Event
	references map[string]facecache.Encoding
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		events:     make(map[string][]violation.Event),
		references: make(map[string]facecache.Encoding),
	}
}

// InsertEvent implements [EventStore.InsertEvent].
func (s *MemStore) InsertEvent(_ context.Context, ev violation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.SubjectID] = append(s.events[ev.SubjectID], ev)
	return nil
}

// ListEvents implements [EventStore.ListEvents].
func (s *MemStore) ListEvents(_ context.Context, subjectID string, limit int) ([]violation.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[subjectID]
	out := make([]violation.Event, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, stored[i])
	}
	return out, nil
}

// Ping implements [EventStore.Ping]. An in-memory store is always ready.
func (s *MemStore) Ping(context.Context) error { return nil }

// FetchEncoding implements [facecache.Source].
func (s *MemStore) FetchEncoding(_ context.Context, subjectID string) (facecache.Encoding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enc, ok := s.references[subjectID]
	if !ok {
		return nil, facecache.ErrNoReference
	}
	return enc, nil
}

// PutReference implements [ReferenceStore.PutReference].
func (s *MemStore) PutReference(_ context.Context, subjectID string, enc facecache.Encoding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references[subjectID] = enc
	return nil
}
