package settings

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("setting not found")

// Change is one recorded settings mutation, newest first in history
// listings.
type Change struct {
	Key       string    `json:"key"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
}

// Store persists runtime-tunable settings as string key/value pairs
// and keeps a mutation history for auditing.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
	History(ctx context.Context, key string, limit int) ([]Change, error)
	Close()
}

// GetString reads a key, returning def when unset.
func GetString(ctx context.Context, s Store, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// GetBool reads a boolean key, returning def when unset or malformed.
func GetBool(ctx context.Context, s Store, key string, def bool) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt reads an integer key, returning def when unset or malformed.
func GetInt(ctx context.Context, s Store, key string, def int) int {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetFloat reads a float key, returning def when unset or malformed.
func GetFloat(ctx context.Context, s Store, key string, def float64) float64 {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
