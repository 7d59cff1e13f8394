// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ashureev/maturity-report/internal/domain"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("not found")

// JobStore persists analysis job rows.
type JobStore interface {
	// CreateJob inserts a new job row.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by id. A missing row returns nil, nil.
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// ListJobs returns jobs matching filter, newest first.
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)

	// UpdateJobResult records the status, payload and error written back by
	// the analysis engine.
	UpdateJobResult(ctx context.Context, id, status string, result json.RawMessage, errMsg string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// KV is a string key/value store for small client-side state.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Sweeper removes key/value entries that have not been written for ttl.
type Sweeper interface {
	CleanupExpired(ctx context.Context, prefix string, ttl time.Duration) (int64, error)
}
