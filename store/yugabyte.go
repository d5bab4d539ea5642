package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yugabyte/pgx/v5"
	"github.com/yugabyte/pgx/v5/pgxpool"
)

// YugabyteStore keeps state in YugabyteDB through the cluster aware pgx
// driver, so "load_balance=true" in the DSN spreads connections over tservers.
type YugabyteStore struct {
	pool *pgxpool.Pool
}

func NewYugabyteStore(ctx context.Context, dsn string) (*YugabyteStore, error) {
	if dsn == "" {
		return nil, errors.New("yugabyte dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect yugabyte: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping yugabyte: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  state_key TEXT PRIMARY KEY,
  state_value BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`, stateTable)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create %s table: %w", stateTable, err)
	}

	return &YugabyteStore{pool: pool}, nil
}

func (y *YugabyteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := y.pool.QueryRow(ctx, "SELECT state_value FROM "+stateTable+" WHERE state_key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (y *YugabyteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := y.pool.Exec(ctx, `INSERT INTO `+stateTable+` (state_key, state_value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (state_key) DO UPDATE SET
  state_value = excluded.state_value,
  updated_at = excluded.updated_at`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (y *YugabyteStore) Delete(ctx context.Context, key string) error {
	if _, err := y.pool.Exec(ctx, "DELETE FROM "+stateTable+" WHERE state_key = $1", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (y *YugabyteStore) Close() error {
	y.pool.Close()
	return nil
}

var _ Store = (*YugabyteStore)(nil)
