// Package queue provides the unbounded ingestion queue between the listener
// and the enricher.
//
// The queue keeps "empty, wait" and "closed, give up" apart: Pop blocks while
// the queue is empty and returns ErrClosed only once the producer side is gone
// and every buffered item has been handed out.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrClosed is returned by Push once either side has closed, and by Pop once
// the producer side has closed and the queue is drained.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO safe for one or more producers and consumers.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	sendClosed bool
	recvClosed bool
	// ready is signalled (non-blocking) whenever an item arrives.
	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	depth     prometheus.Gauge
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// ObserveDepth keeps g equal to the number of buffered items.
func (q *Queue[T]) ObserveDepth(g prometheus.Gauge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.depth = g
	q.reportDepth()
}

// Push appends v. It never blocks.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.sendClosed || q.recvClosed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.reportDepth()
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop removes and returns the oldest item, waiting while the queue is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.recvClosed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			remaining := len(q.items)
			if remaining == 0 {
				// Release the backing array once drained.
				q.items = nil
			}
			q.reportDepth()
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return v, nil
		}
		if q.sendClosed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.ready:
		case <-q.closed:
		}
	}
}

// CloseSend marks the producer side as permanently gone. Buffered items stay
// available to Pop. Safe to call more than once.
func (q *Queue[T]) CloseSend() {
	q.mu.Lock()
	q.sendClosed = true
	q.mu.Unlock()
	q.markClosed()
}

// CloseRecv marks the consumer side as permanently gone and drops anything
// still buffered. Later Push calls fail with ErrClosed. Safe to call more than once.
func (q *Queue[T]) CloseRecv() {
	q.mu.Lock()
	q.recvClosed = true
	q.items = nil
	q.reportDepth()
	q.mu.Unlock()
	q.markClosed()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// reportDepth must be called with q.mu held.
func (q *Queue[T]) reportDepth() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.items)))
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) markClosed() {
	q.closeOnce.Do(func() { close(q.closed) })
}
