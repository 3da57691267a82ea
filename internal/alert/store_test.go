package alert_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/proctorly/vigil/internal/alert"
	"github.com/proctorly/vigil/internal/violation"
)

func TestShardedStore(t *testing.T) {
	t.Parallel()

	key := alert.Key{SubjectID: "s1", Type: violation.TypeFaceMismatch}

	t.Run("get on missing key", func(t *testing.T) {
		t.Parallel()
		s := alert.NewShardedStore()
		if _, ok := s.Get(key); ok {
			t.Fatal("Get: expected miss on empty store")
		}
	})

	t.Run("update creates and mutates", func(t *testing.T) {
		t.Parallel()
		s := alert.NewShardedStore()
		ts := time.Now()

		st := s.Update(key, func(prev alert.State, ok bool) alert.State {
			if ok {
				t.Error("Update: expected fresh key")
			}
			return alert.State{LastTrigger: ts, Active: true}
		})
		if !st.Active {
			t.Fatal("Update: returned state not active")
		}

		got, ok := s.Get(key)
		if !ok || !got.LastTrigger.Equal(ts) {
			t.Fatalf("Get after Update = %+v, %v", got, ok)
		}
	})

	t.Run("delete subject removes all and only its tracks", func(t *testing.T) {
		t.Parallel()
		s := alert.NewShardedStore()
		put := func(subject string, typ violation.Type) {
			s.Update(alert.Key{SubjectID: subject, Type: typ}, func(alert.State, bool) alert.State {
				return alert.State{Active: true}
			})
		}
		put("gone", violation.TypeFaceNotDetected)
		put("gone", violation.TypeMultipleFaces)
		put("gone", violation.TypeVolumeHigh)
		put("kept", violation.TypeFaceNotDetected)

		if n := s.DeleteSubject("gone"); n != 3 {
			t.Fatalf("DeleteSubject = %d, want 3", n)
		}
		if _, ok := s.Get(alert.Key{SubjectID: "gone", Type: violation.TypeMultipleFaces}); ok {
			t.Fatal("Get: deleted track still present")
		}
		if _, ok := s.Get(alert.Key{SubjectID: "kept", Type: violation.TypeFaceNotDetected}); !ok {
			t.Fatal("Get: unrelated subject's track was removed")
		}
		if c := s.Counts(); c.Total != 1 {
			t.Fatalf("Counts.Total = %d, want 1", c.Total)
		}
	})

	t.Run("counts distinguishes active tracks", func(t *testing.T) {
		t.Parallel()
		s := alert.NewShardedStore()
		s.Update(alert.Key{SubjectID: "a", Type: violation.TypeVolumeHigh}, func(alert.State, bool) alert.State {
			return alert.State{Active: true}
		})
		s.Update(alert.Key{SubjectID: "b", Type: violation.TypeVolumeHigh}, func(alert.State, bool) alert.State {
			return alert.State{Active: false}
		})
		if c := s.Counts(); c.Total != 2 || c.Active != 1 {
			t.Fatalf("Counts = %+v, want total 2, active 1", c)
		}
	})
}

func TestShardedStoreConcurrent(t *testing.T) {
	t.Parallel()

	s := alert.NewShardedStore()
	const subjects = 16
	const ticks = 200

	var wg sync.WaitGroup
	for i := range subjects {
		subject := fmt.Sprintf("subject-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := alert.Key{SubjectID: subject, Type: violation.TypeFaceNotDetected}
			for range ticks {
				s.Update(k, func(prev alert.State, ok bool) alert.State {
					return alert.State{Active: !prev.Active}
				})
				s.Get(k)
			}
			s.DeleteSubject(subject)
		}()
	}
	wg.Wait()

	if c := s.Counts(); c.Total != 0 {
		t.Fatalf("Counts.Total = %d after all subjects cleaned up, want 0", c.Total)
	}
}
