package queue

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueFull is returned when a bounded queue is at capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when pushing to a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrCleared finishes requests dropped by Clear while the queue stays open.
	ErrCleared = errors.New("request cleared from queue")
)

// Queue is a FIFO of pending requests. Push never blocks, so it is safe to
// call from HTTP handlers while a single consumer pops.
type Queue struct {
	mu       sync.Mutex
	requests []*Request
	capacity int
	closed   bool
	logger   *slog.Logger
	notifyCh chan struct{}
}

// NewQueue creates a queue. A capacity of zero or less means unbounded.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		requests: make([]*Request, 0, capacity),
		capacity: capacity,
		logger:   logger,
		notifyCh: make(chan struct{}, 1),
	}
}

// Push appends r to the tail of the queue.
func (q *Queue) Push(r *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.capacity > 0 && len(q.requests) >= q.capacity {
		return ErrQueueFull
	}

	q.requests = append(q.requests, r)
	q.logger.Debug("request enqueued", "request_id", r.ID, "queue_depth", len(q.requests))

	// Wake the consumer
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}

	return nil
}

// Pop removes and returns the head of the queue, or nil when it is empty.
func (q *Queue) Pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return nil
	}
	r := q.requests[0]
	q.requests[0] = nil
	q.requests = q.requests[1:]
	return r
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Clear drops every pending request and returns how many were dropped.
// Dropped requests are finished so waiters are released, with ErrQueueClosed
// after Close and ErrCleared otherwise.
func (q *Queue) Clear() int {
	q.mu.Lock()
	dropped := q.requests
	q.requests = make([]*Request, 0, q.capacity)
	reason := ErrCleared
	if q.closed {
		reason = ErrQueueClosed
	}
	q.mu.Unlock()

	for _, r := range dropped {
		r.Finish(reason)
	}
	if len(dropped) > 0 {
		q.logger.Info("queue cleared", "requests_dropped", len(dropped))
	}
	return len(dropped)
}

// Close rejects further pushes. Pending requests stay poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Notify returns a channel that receives a value after a push. Signals are
// coalesced, so the consumer must drain until Pop returns nil.
func (q *Queue) Notify() <-chan struct{} {
	return q.notifyCh
}
