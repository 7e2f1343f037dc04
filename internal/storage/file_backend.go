package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore is an ArtifactStore over a single directory. Handles are
// the stored filenames, resolvable to an absolute path for serving.
type FileStore struct {
	root    string
	metrics MetricsCollector
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(root string, metrics MetricsCollector) (*FileStore, error) {
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileStore{root: root, metrics: metrics}, nil
}

// Put writes data under name and returns the retrieval handle.
func (s *FileStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	start := time.Now()
	handle, err := s.put(name, data)
	s.record("put", start, err)
	return handle, err
}

func (s *FileStore) put(name string, data []byte) (string, error) {
	name = sanitizeName(name)
	if name == "" {
		return "", &PersistenceError{Op: "put", Name: name, Err: fmt.Errorf("empty artifact name")}
	}
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", &PersistenceError{Op: "put", Name: name, Err: err}
	}
	return name, nil
}

// Get reads the artifact for a handle.
func (s *FileStore) Get(ctx context.Context, handle string) ([]byte, error) {
	start := time.Now()
	data, err := os.ReadFile(s.Path(handle))
	if err != nil {
		err = &PersistenceError{Op: "get", Name: handle, Err: err}
	}
	s.record("get", start, err)
	return data, err
}

// Delete removes the artifact for a handle. Deleting a missing
// artifact is not an error.
func (s *FileStore) Delete(ctx context.Context, handle string) error {
	start := time.Now()
	err := os.Remove(s.Path(handle))
	if os.IsNotExist(err) {
		err = nil
	}
	if err != nil {
		err = &PersistenceError{Op: "delete", Name: handle, Err: err}
	}
	s.record("delete", start, err)
	return err
}

// Path resolves a handle to its on-disk location.
func (s *FileStore) Path(handle string) string {
	return filepath.Join(s.root, sanitizeName(handle))
}

func (s *FileStore) record(op string, start time.Time, err error) {
	s.metrics.RecordMetric(StorageMetrics{
		OperationType: op,
		Duration:      time.Since(start).Nanoseconds(),
		Success:       err == nil,
		Backend:       "file",
		Error:         err,
	})
}

// sanitizeName strips any path components so handles cannot escape
// the store root.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
