package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/feedgen/common/database"
	"github.com/telhawk-systems/feedgen/internal/models"
)

// CheckpointStore persists a consumer's cursor between runs.
type CheckpointStore interface {
	// Load returns the saved cursor; ok is false when none was saved.
	Load(ctx context.Context, consumer string) (c models.Cursor, ok bool, err error)
	Save(ctx context.Context, consumer string, c models.Cursor) error
}

// NoopCheckpointStore never remembers anything.
type NoopCheckpointStore struct{}

func (NoopCheckpointStore) Load(context.Context, string) (models.Cursor, bool, error) {
	return models.Cursor{}, false, nil
}

func (NoopCheckpointStore) Save(context.Context, string, models.Cursor) error { return nil }

// MemoryCheckpointStore keeps checkpoints for the life of the process.
type MemoryCheckpointStore struct {
	mu   sync.Mutex
	data map[string]models.Cursor
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{data: make(map[string]models.Cursor)}
}

func (s *MemoryCheckpointStore) Load(_ context.Context, consumer string) (models.Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[consumer]
	return c, ok, nil
}

func (s *MemoryCheckpointStore) Save(_ context.Context, consumer string, c models.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[consumer] = c
	return nil
}

// PostgresCheckpointStore stores checkpoints in consumer_cursors.
type PostgresCheckpointStore struct {
	pool *pgxpool.Pool
}

func NewPostgresCheckpointStore(pool *pgxpool.Pool) *PostgresCheckpointStore {
	return &PostgresCheckpointStore{pool: pool}
}

func (s *PostgresCheckpointStore) Load(ctx context.Context, consumer string) (models.Cursor, bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var c models.Cursor
	err := s.pool.QueryRow(ctx,
		`SELECT time_us, last_id FROM consumer_cursors WHERE consumer = $1`, consumer,
	).Scan(&c.Sequence, &c.StorageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Cursor{}, false, nil
	}
	if err != nil {
		return models.Cursor{}, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return c, true, nil
}

func (s *PostgresCheckpointStore) Save(ctx context.Context, consumer string, c models.Cursor) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO consumer_cursors (consumer, time_us, last_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (consumer) DO UPDATE
		SET time_us = EXCLUDED.time_us, last_id = EXCLUDED.last_id, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, consumer, c.Sequence, c.StorageID); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// RedisCheckpointStore stores each checkpoint as a hash under prefix+consumer.
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCheckpointStore(client *redis.Client, prefix string) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "feedgen:checkpoint:"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix}
}

func (s *RedisCheckpointStore) key(consumer string) string {
	return s.prefix + consumer
}

func (s *RedisCheckpointStore) Load(ctx context.Context, consumer string) (models.Cursor, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(consumer)).Result()
	if err != nil {
		return models.Cursor{}, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if len(vals) == 0 {
		return models.Cursor{}, false, nil
	}

	// time_us and last_id are kept for operators; cursor is authoritative
	raw, ok := vals["cursor"]
	if !ok || raw == "" {
		return models.Cursor{}, false, fmt.Errorf("%w: checkpoint %s has no cursor field", models.ErrInvalidCursor, consumer)
	}
	c, err := models.ParseCursor(raw)
	if err != nil {
		return models.Cursor{}, false, err
	}
	return c, true, nil
}

func (s *RedisCheckpointStore) Save(ctx context.Context, consumer string, c models.Cursor) error {
	err := s.client.HSet(ctx, s.key(consumer),
		"time_us", c.Sequence,
		"last_id", c.StorageID,
		"cursor", c.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
