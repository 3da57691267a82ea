// Package facecache caches reference face encodings per subject for the
// lifetime of the process. Encodings are expensive to produce (an external
// encoder call, usually backed by a database lookup), so the cache
// guarantees at most one fetch in flight per subject even under concurrent
// first lookups.
package facecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Encoding is a face embedding vector on the external encoder's scale.
// Encodings are never mutated after insertion, only replaced.
type Encoding []float32

// ErrNoReference indicates the subject has no verified reference face on
// record. Callers treat this as "skip the mismatch check", not as a fault.
var ErrNoReference = errors.New("no reference face encoding")

// Source produces reference encodings on cache misses.
type Source interface {
	// FetchEncoding returns the subject's reference encoding, or
	// [ErrNoReference] when none exists.
	FetchEncoding(ctx context.Context, subjectID string) (Encoding, error)
}

// Cache is a shared-read reference encoding cache. Entries live until
// explicitly invalidated. Safe for concurrent use.
type Cache struct {
	source Source
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]Encoding
}

// New returns a Cache backed by source.
func New(source Source) *Cache {
	return &Cache{
		source:  source,
		entries: make(map[string]Encoding),
	}
}

// Get returns the subject's reference encoding, fetching it from the source
// on first lookup. Concurrent misses for the same subject collapse into a
// single source call; the duplicate callers share its result. Fetch errors
// (including [ErrNoReference]) are not cached, so a later tick retries.
func (c *Cache) Get(ctx context.Context, subjectID string) (Encoding, error) {
	c.mu.RLock()
	enc, ok := c.entries[subjectID]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	v, err, shared := c.group.Do(subjectID, func() (any, error) {
		fetched, err := c.source.FetchEncoding(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[subjectID] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		if errors.Is(err, ErrNoReference) {
			return nil, err
		}
		return nil, fmt.Errorf("facecache: fetch encoding for %q: %w", subjectID, err)
	}
	if shared {
		slog.Debug("reference encoding fetch shared", "subject", subjectID)
	}
	return v.(Encoding), nil
}

// Invalidate drops the subject's cached encoding. The next Get re-fetches,
// replacing the entry wholesale.
func (c *Cache) Invalidate(subjectID string) {
	c.mu.Lock()
	delete(c.entries, subjectID)
	c.mu.Unlock()
}

// Len returns the number of cached encodings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
