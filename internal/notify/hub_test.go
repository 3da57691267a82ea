package notify_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/proctorly/vigil/internal/notify"
	"github.com/proctorly/vigil/internal/violation"
)

func dialHub(t *testing.T, hub *notify.Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *notify.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count = %d, want %d", hub.SubscriberCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversEvent(t *testing.T) {
	t.Parallel()

	hub := notify.NewHub()
	conn := dialHub(t, hub)
	waitForSubscribers(t, hub, 1)

	ev := violation.NewEvent("subj-1", violation.TypeMultipleFaces,
		time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		map[string]any{"face_count": 2},
	)
	hub.Publish(ev)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}

	var got violation.Event
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if got.SubjectID != "subj-1" {
		t.Errorf("SubjectID = %q, want subj-1", got.SubjectID)
	}
	if got.Type != violation.TypeMultipleFaces {
		t.Errorf("Type = %q, want %q", got.Type, violation.TypeMultipleFaces)
	}
	if got.Severity != violation.SeverityHigh {
		t.Errorf("Severity = %q, want high", got.Severity)
	}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	hub := notify.NewHub()
	a := dialHub(t, hub)
	b := dialHub(t, hub)
	waitForSubscribers(t, hub, 2)

	hub.Publish(violation.NewEvent("subj-2", violation.TypeVolumeHigh, time.Now(), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, conn := range []*websocket.Conn{a, b} {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var got violation.Event
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.Type != violation.TypeVolumeHigh {
			t.Errorf("Type = %q, want %q", got.Type, violation.TypeVolumeHigh)
		}
	}
}

func TestHubRemovesDisconnectedSubscriber(t *testing.T) {
	t.Parallel()

	hub := notify.NewHub()
	conn := dialHub(t, hub)
	waitForSubscribers(t, hub, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "done")
	waitForSubscribers(t, hub, 0)
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	hub := notify.NewHub()
	// Must not panic or block.
	hub.Publish(violation.NewEvent("subj-3", violation.TypeFaceNotDetected, time.Now(), nil))
	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}
