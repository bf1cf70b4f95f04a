package worker

import "time"

// Options tunes the pool and its retry policy.
type Options struct {
	// Workers is the number of concurrent job slots. Each slot runs one job at a time.
	Workers int
	// MaxAttempts caps deliveries per job, counting the first.
	MaxAttempts int
	// RetryDelay is the fixed delay before a failed job is redelivered.
	RetryDelay time.Duration
	// JobTimeout is the wall-clock limit for one attempt.
	JobTimeout time.Duration
	// PollTimeout bounds each blocking dequeue.
	PollTimeout time.Duration
	// LeaseMargin is added to JobTimeout to decide when a processing lease is stale.
	LeaseMargin time.Duration
	// ScratchDir holds downloaded videos while they are sampled. Empty means os.TempDir.
	ScratchDir string
}

func (o Options) withDefaults() Options {
	out := o
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 60 * time.Second
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = time.Hour
	}
	if out.PollTimeout <= 0 {
		out.PollTimeout = 5 * time.Second
	}
	if out.LeaseMargin <= 0 {
		out.LeaseMargin = 5 * time.Minute
	}
	return out
}

// staleAfter is how long a processing lease is honored before another delivery may take it.
func (o Options) staleAfter() time.Duration {
	return o.JobTimeout + o.LeaseMargin
}
