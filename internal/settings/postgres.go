package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/pkg/logging"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS user_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settings_history (
	id         BIGSERIAL PRIMARY KEY,
	key        TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_settings_history_key ON settings_history (key, changed_at DESC);
`

// PostgresStore keeps settings in Postgres with a per-key mutation
// history.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresStore connects to databaseURL and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting settings store: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring settings schema: %w", err)
	}
	return &PostgresStore{pool: pool, log: logging.GetLogger("settings")}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM user_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	defer tx.Rollback(ctx)

	var old *string
	err = tx.QueryRow(ctx, `SELECT value FROM user_settings WHERE key = $1 FOR UPDATE`, key).Scan(&old)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO settings_history (key, old_value, new_value) VALUES ($1, $2, $3)`,
		key, old, value); err != nil {
		return fmt.Errorf("recording setting change %q: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	s.log.Debug().Str("key", key).Msg("Setting updated")
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_settings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM user_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("listing settings: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) History(ctx context.Context, key string, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT key, COALESCE(old_value, ''), new_value, changed_at
		FROM settings_history WHERE key = $1
		ORDER BY changed_at DESC, id DESC LIMIT $2`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history for %q: %w", key, err)
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Key, &c.OldValue, &c.NewValue, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("reading history for %q: %w", key, err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
