// Package notify broadcasts violation events to connected WebSocket
// clients. Proctor dashboards subscribe to the /ws/alerts endpoint and
// receive every emitted [violation.Event] as a JSON text message.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/proctorly/vigil/internal/violation"
)

// writeTimeout bounds how long one message write to a subscriber may take.
const writeTimeout = 5 * time.Second

// subscriberBuffer is the per-subscriber outbound queue length. A
// subscriber that falls this far behind is disconnected rather than
// allowed to stall the broadcaster.
const subscriberBuffer = 16

type subscriber struct {
	events chan []byte
	drop   func()
}

// Hub fans violation events out to all connected subscribers. It is safe
// for concurrent use.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish sends ev to every connected subscriber. Subscribers whose
// outbound queue is full are disconnected. Publish never blocks on slow
// clients.
func (h *Hub) Publish(ev violation.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("notify: marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.events <- payload:
		default:
			s.drop()
		}
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a WebSocket connection and streams
// violation events to it until the client disconnects or the request
// context is cancelled.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("notify: websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Reads are discarded; the alert stream is one-way. CloseRead also
	// cancels the returned context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := &subscriber{events: make(chan []byte, subscriberBuffer)}
	closeSlow := sync.OnceFunc(func() {
		conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
	})
	sub.drop = closeSlow

	h.add(sub)
	defer h.remove(sub)

	for {
		select {
		case payload := <-sub.events:
			if err := writeWithTimeout(ctx, conn, payload); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
