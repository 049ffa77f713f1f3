// Package stream fans request lifecycle events out to SSE subscribers so
// admin dashboards refresh without polling.
package stream

import (
	"context"
	"sync"
	"time"
)

// RequestEvent describes one change to a permission request.
type RequestEvent struct {
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id"`
	Email     string    `json:"email"`
	CompanyID string    `json:"company_id"`
	BranchID  string    `json:"branch_id"`
	Status    string    `json:"status"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event kinds published by the API layer.
const (
	KindFiled   = "request.filed"
	KindDecided = "request.decided"
	KindFolded  = "request.folded"
)

// Stream fan-outs request events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan RequestEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan RequestEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan RequestEvent {
	ch := make(chan RequestEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt RequestEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
