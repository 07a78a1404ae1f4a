// Package hub fans enriched contacts out to every attached subscriber.
//
// Each subscriber owns a bounded buffer. Publish never waits on a subscriber:
// when a buffer is full the oldest undelivered contact is dropped for that
// subscriber only, so a slow map client cannot stall the enricher or reorder
// what other subscribers see. Subscribers start strictly after the moment
// they attach; there is no replay.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/observability"
)

// DefaultCapacity is the number of pending contacts buffered per subscriber.
const DefaultCapacity = 10

var (
	// ErrClosed is returned by Publish after Close, and by Recv once a
	// subscription is detached and drained.
	ErrClosed = errors.New("hub closed")
)

// Hub is a multi-producer, multi-consumer broadcast of enriched contacts.
type Hub struct {
	capacity int
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	closed bool
}

// New creates a Hub buffering up to capacity contacts per subscriber. A
// non-positive capacity selects DefaultCapacity.
func New(capacity int, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		capacity: capacity,
		logger:   logger,
		metrics:  metrics,
		subs:     make(map[uuid.UUID]*Subscription),
	}
}

// Attach registers a new subscriber. It receives only contacts published
// after Attach returns. Attaching to a closed hub yields a detached subscription.
func (h *Hub) Attach() *Subscription {
	s := newSubscription(h, h.capacity)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.detach()
		return s
	}
	h.subs[s.id] = s
	h.metrics.HubSubscribers.Set(float64(len(h.subs)))
	h.logger.Info("subscriber attached", "subscriber", s.id, "subscribers", len(h.subs))
	return s
}

// Publish delivers c to every currently attached subscriber and returns how
// many received it. It never blocks on a subscriber. After Close it returns
// ErrClosed.
func (h *Hub) Publish(c domain.EnrichedContact) (int, error) {
	// Exclusive so concurrent publishers are seen in one order by everyone.
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}

	delivered := 0
	for _, s := range h.subs {
		ok, dropped := s.offer(c)
		if !ok {
			continue
		}
		delivered++
		if dropped {
			h.metrics.HubDropped.Inc()
			h.logger.Warn("subscriber lagging, dropped oldest contact",
				"subscriber", s.id,
				"dropped_total", s.Dropped(),
			)
		}
	}
	return delivered, nil
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close shuts the hub down from the producer side. Every subscriber is
// detached; each can still drain what was already buffered. Safe to call more
// than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		s.detach()
		delete(h.subs, id)
	}
	h.metrics.HubSubscribers.Set(0)
	h.logger.Info("hub closed")
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	h.metrics.HubSubscribers.Set(float64(len(h.subs)))
	h.logger.Info("subscriber detached", "subscriber", s.id, "subscribers", len(h.subs))
}

// Subscription is a cursor into the hub's stream for one subscriber.
type Subscription struct {
	id  uuid.UUID
	hub *Hub

	mu       sync.Mutex
	buf      []domain.EnrichedContact // ring buffer
	head     int
	size     int
	dropped  uint64
	detached bool

	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

func newSubscription(h *Hub, capacity int) *Subscription {
	return &Subscription{
		id:    uuid.New(),
		hub:   h,
		buf:   make([]domain.EnrichedContact, capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Recv returns the next contact in publish order, waiting until one arrives.
// It returns ErrClosed once the subscription is detached and its buffer is
// drained, or ctx.Err() if ctx ends first.
func (s *Subscription) Recv(ctx context.Context) (domain.EnrichedContact, error) {
	for {
		s.mu.Lock()
		if s.size > 0 {
			c := s.buf[s.head]
			s.buf[s.head] = domain.EnrichedContact{}
			s.head = (s.head + 1) % len(s.buf)
			s.size--
			more := s.size > 0
			s.mu.Unlock()
			if more {
				s.signal()
			}
			return c, nil
		}
		if s.detached {
			s.mu.Unlock()
			return domain.EnrichedContact{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.EnrichedContact{}, ctx.Err()
		case <-s.ready:
		case <-s.done:
		}
	}
}

// Dropped returns how many contacts were discarded because this subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription from the hub. Contacts already buffered
// remain readable. Safe to call more than once.
func (s *Subscription) Close() {
	s.detach()
	s.hub.remove(s)
}

// offer appends c, evicting the oldest buffered contact when full. It reports
// whether c was accepted and whether an older contact was dropped for it.
func (s *Subscription) offer(c domain.EnrichedContact) (accepted, dropped bool) {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return false, false
	}
	if s.size == len(s.buf) {
		s.buf[s.head] = domain.EnrichedContact{}
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.dropped++
		dropped = true
	}
	s.buf[(s.head+s.size)%len(s.buf)] = c
	s.size++
	s.mu.Unlock()

	s.signal()
	return true, dropped
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscription) detach() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}
