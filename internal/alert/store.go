// Package alert implements the per-(subject, violation type) cooldown state
// machine that decides which candidate violations surface as alert events,
// and the sharded state store backing it.
//
// The design guarantees a bounded alert rate (at most one emission per
// cooldown period per active track) while never missing the onset of a
// violation: the first occurrence of a condition always emits immediately,
// and a resolved condition always resets its track.
package alert

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/proctorly/vigil/internal/violation"
)

// Key identifies one cooldown track.
type Key struct {
	SubjectID string
	Type      violation.Type
}

// State is the cooldown state of one track. Tracks are created lazily on
// first observation and removed in bulk when the subject's session ends.
type State struct {
	// LastTrigger is when this track last emitted an alert.
	LastTrigger time.Time

	// Active reports whether the condition is currently ongoing.
	Active bool
}

// Counts summarises a store's contents for introspection endpoints.
type Counts struct {
	Total  int `json:"total_tracks"`
	Active int `json:"active_tracks"`
}

// StateStore holds cooldown tracks. Implementations must be safe for
// concurrent use, and reads/writes for one subject must not block unrelated
// subjects.
type StateStore interface {
	// Get returns the state for key and whether a track exists.
	Get(key Key) (State, bool)

	// Update applies fn atomically to the track for key, creating it if
	// absent, and returns the stored result. fn receives the previous
	// state and whether the track existed.
	Update(key Key, fn func(prev State, ok bool) State) State

	// DeleteSubject removes every track belonging to subjectID and
	// returns the number removed. The removal is atomic with respect to
	// concurrent updates for the same subject.
	DeleteSubject(subjectID string) int

	// Counts reports the total and active track counts.
	Counts() Counts
}

// shardCount is a power of two so the shard index reduces to a mask.
const shardCount = 32

// ShardedStore is an in-memory [StateStore] partitioned by subject so that
// concurrent ticks for different subjects contend on different locks. All
// keys of one subject land in the same shard, which makes DeleteSubject
// atomic under a single shard lock.
type ShardedStore struct {
	shards [shardCount]shard
}

type shard struct {
	mu     sync.RWMutex
	tracks map[Key]State
}

// Compile-time check that ShardedStore satisfies StateStore.
var _ StateStore = (*ShardedStore)(nil)

// NewShardedStore returns an initialised [ShardedStore].
func NewShardedStore() *ShardedStore {
	s := &ShardedStore{}
	for i := range s.shards {
		s.shards[i].tracks = make(map[Key]State)
	}
	return s
}

// shardFor maps a subject to its shard. Keyed on subject only, not the full
// key, so a subject's tracks always share one shard.
func (s *ShardedStore) shardFor(subjectID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	return &s.shards[h.Sum32()&(shardCount-1)]
}

// Get implements [StateStore.Get].
func (s *ShardedStore) Get(key Key) (State, bool) {
	sh := s.shardFor(key.SubjectID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.tracks[key]
	return st, ok
}

// Update implements [StateStore.Update].
func (s *ShardedStore) Update(key Key, fn func(prev State, ok bool) State) State {
	sh := s.shardFor(key.SubjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev, ok := sh.tracks[key]
	next := fn(prev, ok)
	sh.tracks[key] = next
	return next
}

// DeleteSubject implements [StateStore.DeleteSubject].
func (s *ShardedStore) DeleteSubject(subjectID string) int {
	sh := s.shardFor(subjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	removed := 0
	for k := range sh.tracks {
		if k.SubjectID == subjectID {
			delete(sh.tracks, k)
			removed++
		}
	}
	return removed
}

// Counts implements [StateStore.Counts].
func (s *ShardedStore) Counts() Counts {
	var c Counts
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		c.Total += len(sh.tracks)
		for _, st := range sh.tracks {
			if st.Active {
				c.Active++
			}
		}
		sh.mu.RUnlock()
	}
	return c
}
