// Package worker consumes vectorization jobs and drives each asset through
// pending → processing → completed | failed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/queue"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/internal/video"
	"github.com/hyperjump/assethub/pkg/utils"
)

// FrameSampler extracts keyframes from a local video file.
type FrameSampler interface {
	Sample(ctx context.Context, path string) ([]video.Frame, error)
}

// Deps are the collaborators a worker needs.
type Deps struct {
	Catalog  storage.CatalogStore
	Blobs    objectstore.ObjectStore
	Embedder embedding.Embedder
	Index    vector.VectorIndex
	Sampler  FrameSampler
	Queue    queue.Queue
	Buckets  objectstore.Buckets
}

// Outcome is what happened to one delivery.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	// OutcomeRetried means the attempt failed and the job was rescheduled.
	OutcomeRetried Outcome = "retried"
	// OutcomeFailed means the attempt failed and no retry remains.
	OutcomeFailed Outcome = "failed"
	// OutcomeDropped means the delivery was acknowledged without work: the asset is
	// gone, already done, or leased by another delivery.
	OutcomeDropped Outcome = "dropped"
)

// Worker is a pool of job slots sharing one queue.
type Worker struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker pool. Call Start to begin consuming.
func New(deps Deps, opts Options, options ...Option) *Worker {
	w := &Worker{deps: deps, opts: opts.withDefaults()}
	for _, o := range options {
		o(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start launches the job slots. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("Starting workers", zap.Int("workers", w.opts.Workers))
	for i := 0; i < w.opts.Workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
}

// Stop signals the slots to exit and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info("All workers stopped")
}

func (w *Worker) loop(ctx context.Context, slot int) {
	defer w.wg.Done()
	logger := w.logger.With(zap.Int("slot", slot))
	logger.Debug("Worker slot started")
	defer logger.Debug("Worker slot stopped")

	for ctx.Err() == nil {
		job, err := w.deps.Queue.Dequeue(ctx, w.opts.PollTimeout)
		if errors.Is(err, queue.ErrClosed) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		// An in-flight job runs to completion or timeout even when the pool is stopping.
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// Process runs one delivery of job and applies the retry policy.
func (w *Worker) Process(ctx context.Context, job *models.VectorizationJob) Outcome {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("asset_id", job.AssetID),
		zap.Int("attempt", job.Attempt))

	if job.Type != "" && job.Type != models.JobTypeVectorize {
		logger.Warn("Dropping job of unknown type", zap.String("type", job.Type))
		return OutcomeDropped
	}

	claimed, err := w.deps.Catalog.ClaimAsset(ctx, job.AssetID, w.opts.staleAfter())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Info("Asset no longer exists, dropping job")
			return OutcomeDropped
		}
		// The status could not be changed; leave it and only reschedule.
		return w.retryOrGiveUp(ctx, job, apperrors.Transient(err), logger, false)
	}
	if !claimed {
		logger.Info("Asset not claimable, dropping job")
		return OutcomeDropped
	}
	logger.Info("Asset processing")

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	vectorID, err := w.run(jobCtx, job.AssetID)
	if err == nil {
		if err = w.deps.Catalog.SetVectorStatus(ctx, job.AssetID, models.StatusCompleted, vectorID); err == nil {
			logger.Info("Asset completed", zap.String("vector_id", vectorID))
			return OutcomeCompleted
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.Transient(fmt.Errorf("job exceeded %s: %w", w.opts.JobTimeout, err))
	}
	return w.retryOrGiveUp(ctx, job, err, logger, true)
}

func (w *Worker) retryOrGiveUp(ctx context.Context, job *models.VectorizationJob, cause error, logger *zap.Logger, markFailed bool) Outcome {
	if markFailed {
		if err := w.deps.Catalog.SetVectorStatus(ctx, job.AssetID, models.StatusFailed, ""); err != nil {
			logger.Error("Failed to mark asset failed", zap.Error(err))
		}
	}

	if !apperrors.Retryable(cause) {
		logger.Error("Asset failed permanently", zap.Error(cause))
		return OutcomeFailed
	}
	if job.Attempt >= w.opts.MaxAttempts {
		logger.Error("Asset failed, attempts exhausted",
			zap.Int("max_attempts", w.opts.MaxAttempts), zap.Error(cause))
		return OutcomeFailed
	}

	next := job.NextAttempt()
	if err := w.deps.Queue.EnqueueAfter(ctx, &next, w.opts.RetryDelay); err != nil {
		logger.Error("Failed to reschedule job", zap.Error(err), zap.NamedError("cause", cause))
		return OutcomeFailed
	}
	logger.Warn("Asset attempt failed, retrying",
		zap.Duration("delay", w.opts.RetryDelay),
		zap.Int("next_attempt", next.Attempt),
		zap.Error(cause))
	return OutcomeRetried
}

// run executes the image or video path and returns the asset's vector id.
// A panic in a collaborator is converted into an error.
func (w *Worker) run(ctx context.Context, assetID string) (vectorID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while vectorizing: %v\n%s", r, debug.Stack())
		}
	}()

	asset, err := w.deps.Catalog.GetAsset(ctx, assetID)
	if err != nil {
		return "", err
	}
	switch asset.Type {
	case models.AssetImage:
		return w.vectorizeImage(ctx, asset)
	case models.AssetVideo:
		return w.vectorizeVideo(ctx, asset)
	default:
		return "", apperrors.Permanent(fmt.Errorf("asset type %q has no embedding path", asset.Type))
	}
}
