// Package workqueue provides the single-consumer FIFO queue that drains entity
// and derivation work.
//
// Each Queue owns exactly one worker goroutine. Push only appends; it never
// starts a second drain because the worker is the sole receiver. PushFront is
// available for urgent items.
package workqueue

import (
	"context"
	"fmt"
	"sync"
)

// ProcessFunc handles one queued item. It must contain its own errors.
type ProcessFunc[T any] func(ctx context.Context, item T)

// PanicHandler is told about a panic recovered while processing an item.
type PanicHandler[T any] func(item T, recovered interface{})

// Queue is a FIFO drained by one worker goroutine.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	busy    bool
	closed  bool
	idle    []chan struct{}
	wake    chan struct{}
	process ProcessFunc[T]
	onPanic PanicHandler[T]

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopped   chan struct{}
}

// Option configures a queue
type Option[T any] func(*Queue[T])

// WithPanicHandler sets the handler invoked when process panics
func WithPanicHandler[T any](handler PanicHandler[T]) Option[T] {
	return func(q *Queue[T]) {
		q.onPanic = handler
	}
}

// New creates a queue. The worker starts on the first push.
func New[T any](process ProcessFunc[T], opts ...Option[T]) *Queue[T] {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		wake:    make(chan struct{}, 1),
		process: process,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends an item to the back of the queue.
func (q *Queue[T]) Push(item T) error {
	return q.enqueue(item, false)
}

// PushFront inserts an item at the head of the queue.
func (q *Queue[T]) PushFront(item T) error {
	return q.enqueue(item, true)
}

func (q *Queue[T]) enqueue(item T, front bool) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if front {
		q.items = append([]T{item}, q.items...)
	} else {
		q.items = append(q.items, item)
	}
	q.mu.Unlock()

	q.startOnce.Do(func() {
		go q.run()
	})

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of items waiting to be processed
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Busy reports whether the worker is processing an item
func (q *Queue[T]) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Wait blocks until the queue is empty and the worker is idle.
func (q *Queue[T]) Wait(ctx context.Context) error {
	q.mu.Lock()
	if len(q.items) == 0 && !q.busy {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.idle = append(q.idle, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain removes every pending item and returns them. The item currently
// being processed, if any, runs to completion.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	if !q.busy {
		q.releaseIdle()
	}
	return items
}

// Close stops the worker after the current item. Pending items are dropped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.releaseIdle()
	q.mu.Unlock()

	q.cancel()
}

func (q *Queue[T]) run() {
	defer close(q.stopped)

	for {
		q.mu.Lock()
		if q.closed {
			q.busy = false
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.busy = false
			q.releaseIdle()
			q.mu.Unlock()

			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}

		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.busy = true
		q.mu.Unlock()

		q.handle(item)
	}
}

func (q *Queue[T]) handle(item T) {
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(item, r)
		}
	}()
	q.process(q.ctx, item)
}

// releaseIdle must be called with mu held.
func (q *Queue[T]) releaseIdle() {
	for _, ch := range q.idle {
		close(ch)
	}
	q.idle = nil
}

// Queue error definitions
var (
	ErrQueueClosed = &QueueError{Code: "QUEUE_CLOSED", Message: "work queue has been closed"}
)

// QueueError represents an error in queue operations.
type QueueError struct {
	Code    string
	Message string
}

func (qe *QueueError) Error() string {
	return fmt.Sprintf("%s: %s", qe.Code, qe.Message)
}
