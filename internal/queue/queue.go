// Package queue carries vectorization jobs from the ingest gate to the worker pool.
// Delivery is at-least-once; consumers must tolerate duplicates.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/assethub/internal/models"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is the job queue consumed by the worker pool.
type Queue interface {
	// Enqueue makes job available immediately.
	Enqueue(ctx context.Context, job *models.VectorizationJob) error
	// EnqueueAfter makes job available once delay has elapsed.
	EnqueueAfter(ctx context.Context, job *models.VectorizationJob, delay time.Duration) error
	// Dequeue blocks up to timeout for a job. It returns nil, nil on timeout.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.VectorizationJob, error)
	// Len returns the number of jobs ready or scheduled.
	Len(ctx context.Context) (int, error)
	Close() error
}

// Options configures a queue backend.
type Options struct {
	Type          string
	Name          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New creates a queue of the configured type. Supported types: "memory" (default), "redis".
func New(ctx context.Context, opts Options) (Queue, error) {
	switch opts.Type {
	case "memory", "":
		return NewMemoryQueue(), nil
	case "redis":
		return NewRedisQueue(ctx, RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Name:     opts.Name,
		})
	default:
		return nil, fmt.Errorf("unknown queue type: %s (supported: memory, redis)", opts.Type)
	}
}

func validate(job *models.VectorizationJob) error {
	if job == nil || job.AssetID == "" {
		return fmt.Errorf("job must reference an asset")
	}
	if job.Type == "" {
		job.Type = models.JobTypeVectorize
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	return nil
}
