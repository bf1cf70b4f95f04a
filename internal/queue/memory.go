package queue

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/assethub/internal/models"
)

// MemoryQueue is an in-process queue. Delayed jobs are held by timers.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []*models.VectorizationJob
	pending int
	timers  map[*time.Timer]struct{}
	notify  chan struct{}
	closed  bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		timers: make(map[*time.Timer]struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.VectorizationJob) error {
	if err := validate(job); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	j := *job
	q.push(&j)
	return nil
}

// push appends and wakes one waiter. Caller holds mu.
func (q *MemoryQueue) push(job *models.VectorizationJob) {
	q.ready = append(q.ready, job)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) EnqueueAfter(ctx context.Context, job *models.VectorizationJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	if err := validate(job); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	j := *job
	q.pending++
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, t)
		q.pending--
		if !q.closed {
			q.push(&j)
		}
	})
	q.timers[t] = struct{}{}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.VectorizationJob, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready[0] = nil
			q.ready = q.ready[1:]
			if len(q.ready) > 0 {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + q.pending, nil
}

// Close drops scheduled jobs and wakes blocked consumers.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	q.ready = nil
	close(q.notify)
	return nil
}
