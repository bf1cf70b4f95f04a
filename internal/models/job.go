package models

import "time"

// JobTypeVectorize is the only job type the worker pool consumes.
const JobTypeVectorize = "vectorize"

// VectorizationJob is the queue payload. It lives only in the queue.
type VectorizationJob struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	AssetID   string    `json:"asset_id"`
	AssetType AssetType `json:"asset_type"`
	// Attempt is 1 for the first delivery and grows with each retry.
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NextAttempt returns a copy of j scheduled as the following attempt.
func (j VectorizationJob) NextAttempt() VectorizationJob {
	j.Attempt++
	j.EnqueuedAt = time.Now().UTC()
	return j
}
