// Package changefeed tells connected clients that a user's subscription
// changed. Events carry no authority: receivers re-query the server.
package changefeed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBacklogSize      = 8
	DefaultSubscriberBuffer = 16
)

const (
	ReasonActivated = "activated"
	ReasonCancelled = "cancelled"
	ReasonUpgraded  = "upgraded"
	ReasonExpired   = "expired"
)

type Event struct {
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	PlanID         string    `json:"plan_id"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher is what writers depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Hub fans events out to in-process subscribers, one stream per user.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	backlogSize      int
	subscriberBuffer int
}

type stream struct {
	mu      sync.Mutex
	backlog []Event
	subs    map[uint64]chan Event
	nextID  uint64
}

type Subscription struct {
	hub    *Hub
	userID string
	id     uint64
	ch     chan Event
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		backlogSize:      DefaultBacklogSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers to current listeners of event.UserID. Slow listeners
// miss events rather than block the writer.
func (h *Hub) Publish(_ context.Context, event Event) {
	if h == nil {
		return
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[userID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.backlog = append(stream.backlog, event)
	if len(stream.backlog) > h.backlogSize {
		stream.backlog = stream.backlog[len(stream.backlog)-h.backlogSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener for userID and returns the recent backlog.
func (h *Hub) Subscribe(userID string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, errors.New("invalid_user_id")
	}

	stream := h.ensureStream(userID)
	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	backlog := append([]Event(nil), stream.backlog...)
	stream.mu.Unlock()

	return &Subscription{hub: h, userID: userID, id: id, ch: ch}, backlog, nil
}

// Listeners returns the number of open subscriptions for userID.
func (h *Hub) Listeners(userID string) int {
	h.mu.RLock()
	stream := h.streams[strings.TrimSpace(userID)]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return len(stream.subs)
}

func (h *Hub) ensureStream(userID string) *stream {
	h.mu.RLock()
	current := h.streams[userID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[userID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[userID] = current
	}
	return current
}

func (h *Hub) unsubscribe(userID string, id uint64) {
	h.mu.RLock()
	stream := h.streams[userID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[userID] != stream {
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, userID)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.userID, s.id)
	})
}
