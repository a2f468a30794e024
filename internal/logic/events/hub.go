package events

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber queue depth. Slow subscribers miss
// events rather than stalling the publisher.
const subscriberBuffer = 64

// Hub distributes events to subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel that receives published events and a cleanup
// function. The owner must call cleanup on teardown; it closes the channel
// and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish delivers e at most once to every current subscriber and never
// blocks. When a subscriber's queue is full, an ordinary event is dropped
// for that subscriber. A Critical event (capture result, session state,
// device change) instead displaces the oldest queued event, so each
// published capture result reaches every subscriber that keeps reading.
func (h *Hub) Publish(e Event) {
	if h == nil || e == nil {
		return
	}
	_, critical := e.(Critical)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		offer(ch, e, critical)
	}
}

// offer queues e on ch, evicting the oldest entries for critical events.
// It must not log: debug output may itself be published on the hub.
func offer(ch chan Event, e Event, critical bool) bool {
	select {
	case ch <- e:
		return true
	default:
	}
	if !critical {
		return false
	}
	for i := 0; i < subscriberBuffer; i++ {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
			return true
		default:
		}
	}
	return false
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Envelope is the wire form of an event on the SSE stream:
// {"t":"...","event":"zoom","data":{...}}
type Envelope struct {
	Time  string `json:"t"`
	Event string `json:"event"`
	Data  Event  `json:"data"`
}

// Encode serializes e for streaming.
func Encode(e Event, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Time:  now.Format(time.RFC3339),
		Event: e.Name(),
		Data:  e,
	})
}

// Writer returns an io.Writer that publishes each write as a LogLine, so the
// logger output can be mirrored onto the event stream.
func Writer(h *Hub) *logWriter {
	return &logWriter{h: h}
}

type logWriter struct {
	h *Hub
}

func (w *logWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.h.Publish(LogLine{Level: "info", Msg: msg})
	}
	return len(p), nil
}
