// Package broadcast is the in-process fan-out behind the live endpoint.
// Delivery is at most once: a subscriber whose buffer is full misses the
// event and is expected to re-fetch state.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/vncsmyrnk/evote/internal/core/ports"
	"github.com/vncsmyrnk/evote/internal/metrics"
)

const DefaultBuffer = 32

type Hub struct {
	mu     sync.RWMutex
	subs   map[ports.Channel]map[*subscription]struct{}
	buffer int
	log    *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[ports.Channel]map[*subscription]struct{}),
		buffer: buffer,
		log:    logger,
	}
}

// Publish never blocks.
func (h *Hub) Publish(channel ports.Channel, event string, payload any) {
	msg := ports.Envelope{Channel: channel.String(), Event: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[channel] {
		if !sub.offer(msg) {
			metrics.BroadcastDroppedTotal.WithLabelValues(string(channel.Kind)).Inc()
			h.log.Warn("dropped live event", "channel", msg.Channel, "event", event)
		}
	}
}

func (h *Hub) Subscribe(channels ...ports.Channel) ports.Subscription {
	sub := &subscription{
		hub:      h,
		channels: channels,
		events:   make(chan ports.Envelope, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range channels {
		if h.subs[c] == nil {
			h.subs[c] = make(map[*subscription]struct{})
		}
		h.subs[c][sub] = struct{}{}
	}
	return sub
}

// Subscribers reports how many subscriptions listen on channel.
func (h *Hub) Subscribers(channel ports.Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range sub.channels {
		delete(h.subs[c], sub)
		if len(h.subs[c]) == 0 {
			delete(h.subs, c)
		}
	}
}

type subscription struct {
	hub      *Hub
	channels []ports.Channel
	events   chan ports.Envelope

	mu     sync.Mutex
	closed bool
}

func (s *subscription) Events() <-chan ports.Envelope {
	return s.events
}

func (s *subscription) Close() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *subscription) offer(msg ports.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- msg:
		return true
	default:
		return false
	}
}
