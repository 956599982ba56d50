package mediaqueue

import (
	"container/list"
	"context"
	"sync"
)

// Queue admits at most a fixed number of concurrently running jobs. Excess
// jobs wait in FIFO order. The limit can be changed at any time and applies to
// work admitted afterwards.
type Queue struct {
	name    string
	metrics *Metrics

	mu      sync.Mutex
	limit   int
	active  int
	waiters list.List // of chan struct{}
}

// NewQueue creates a new Queue. A concurrency below one is raised to one.
func NewQueue(name string, concurrency int, metrics *Metrics) *Queue {
	q := &Queue{
		name:    name,
		metrics: metrics,
		limit:   max(concurrency, 1),
	}
	q.metrics.setConcurrency(name, q.limit)
	return q
}

// Name returns the queue name used in logs and metrics
func (q *Queue) Name() string {
	return q.name
}

// Concurrency returns the current limit
func (q *Queue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// SetConcurrency changes the limit. Raising it admits waiting jobs right away;
// lowering it never interrupts running jobs.
func (q *Queue) SetConcurrency(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.limit = max(n, 1)
	q.metrics.setConcurrency(q.name, q.limit)
	q.admitLocked()
}

// Active returns the number of running jobs
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Pending returns the number of waiting jobs
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

// Acquire blocks until a slot is free or ctx is done
func (q *Queue) Acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.active < q.limit && q.waiters.Len() == 0 {
		q.active++
		q.reportLocked()
		q.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := q.waiters.PushBack(ready)
	q.reportLocked()
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		select {
		case <-ready:
			// admitted while cancelling, hand the slot on
			q.active--
			q.admitLocked()
		default:
			q.waiters.Remove(elem)
			q.reportLocked()
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire
func (q *Queue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == 0 {
		panic("mediaqueue: release without acquire")
	}
	q.active--
	q.admitLocked()
}

func (q *Queue) admitLocked() {
	for q.active < q.limit {
		front := q.waiters.Front()
		if front == nil {
			break
		}
		q.waiters.Remove(front)
		q.active++
		close(front.Value.(chan struct{}))
	}
	q.reportLocked()
}

func (q *Queue) reportLocked() {
	q.metrics.setOccupancy(q.name, q.active, q.waiters.Len())
}

// Do runs fn once q admits it
func Do[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (T, error) {
	if err := q.Acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer q.Release()

	v, err := fn(ctx)
	q.metrics.observeJob(q.name, err)
	return v, err
}
