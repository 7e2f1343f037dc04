package storage

import (
	"context"
	"fmt"
)

// ArtifactStore is the persistence sink used for both resolved image
// writes and final artifact writes: a content write of (name, bytes)
// yielding a retrieval handle stable within the process that created
// it. Callers are responsible for collision-free names.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

// PersistenceError marks a failed artifact write. It crosses the
// pipeline boundary; partial artifacts from the same call must not be
// exposed as complete results.
type PersistenceError struct {
	Op   string
	Name string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for %q: %v", e.Op, e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StorageMetrics provides telemetry for storage operations
type StorageMetrics struct {
	OperationType string
	Duration      int64 // nanoseconds
	Success       bool
	Backend       string
	Error         error
}

// MetricsCollector receives storage operation metrics
type MetricsCollector interface {
	RecordMetric(metric StorageMetrics)
}
