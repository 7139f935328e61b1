package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/feedgen/common/database"
	"github.com/telhawk-systems/feedgen/internal/models"
)

const eventColumns = `id, uri, cid, did, collection, rkey, time_us, created_at,
	langs, text, reply_root_uri, reply_parent_uri, record, raw`

// PoolConfig sizes the pgx pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns the pool sizing used when none is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        25,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	}
}

// PostgresEventStore is the EventStore backed by the posts table.
type PostgresEventStore struct {
	pool       *pgxpool.Pool
	connString string
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, connString string, pc PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		config.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		config.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresEventStore connects to connString with the default pool sizing.
func NewPostgresEventStore(ctx context.Context, connString string) (*PostgresEventStore, error) {
	return NewPostgresEventStoreWithPool(ctx, connString, DefaultPoolConfig())
}

// NewPostgresEventStoreWithPool connects with explicit pool sizing.
func NewPostgresEventStoreWithPool(ctx context.Context, connString string, pc PoolConfig) (*PostgresEventStore, error) {
	pool, err := NewPool(ctx, connString, pc)
	if err != nil {
		return nil, err
	}
	return &PostgresEventStore{pool: pool, connString: connString}, nil
}

// Pool exposes the underlying pool so the checkpoint store can share it.
func (s *PostgresEventStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresEventStore) Close() {
	s.pool.Close()
}

func (s *PostgresEventStore) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresEventStore) Describe() string {
	return RedactConnString(s.connString)
}

// InsertIfAbsent inserts e, relying on the unique uri index for idempotence.
func (s *PostgresEventStore) InsertIfAbsent(ctx context.Context, e *models.Event) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	langs := e.Langs
	if langs == nil {
		langs = []string{}
	}
	langsJSON, err := json.Marshal(langs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal langs: %w", err)
	}

	query := `
		INSERT INTO posts
		(uri, cid, did, collection, rkey, time_us, created_at, langs, text,
		 reply_root_uri, reply_parent_uri, record, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (uri) DO NOTHING
		RETURNING id
	`

	var id int64
	err = s.pool.QueryRow(ctx, query,
		e.URI,
		e.CID,
		e.DID,
		e.Collection,
		e.RKey,
		e.TimeUS,
		e.CreatedAt.UTC(),
		langsJSON,
		e.Text,
		e.ReplyRootURI,
		e.ReplyParentURI,
		jsonOrEmpty(e.Record),
		jsonOrEmpty(e.Raw),
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	e.StorageID = id
	return true, nil
}

func (s *PostgresEventStore) QueryRange(ctx context.Context, collection string, after models.Cursor, limit int) ([]*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + eventColumns + `
		FROM posts
		WHERE ($1 = '' OR collection = $1)
		  AND (time_us, id) > ($2, $3)
		ORDER BY time_us ASC, id ASC
		LIMIT $4`

	rows, err := s.pool.Query(ctx, query, collection, after.Sequence, after.StorageID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query range: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresEventStore) QueryLatestBefore(ctx context.Context, q LatestQuery) ([]*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Collection != "" {
		add("collection = $%d", q.Collection)
	}
	if q.Before != nil {
		add("time_us < $%d", *q.Before)
	}
	if q.DID != "" {
		add("did = $%d", q.DID)
	}
	if q.TextContains != "" {
		add(`text ILIKE $%d ESCAPE '\'`, "%"+EscapeLike(q.TextContains)+"%")
	}

	query := `SELECT ` + eventColumns + ` FROM posts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(" ORDER BY time_us DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest events: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresEventStore) QueryMostRecent(ctx context.Context, collection string) (*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + eventColumns + `
		FROM posts
		WHERE ($1 = '' OR collection = $1)
		ORDER BY time_us DESC, id DESC
		LIMIT 1`

	e, err := scanEvent(s.pool.QueryRow(ctx, query, collection))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query most recent event: %w", err)
	}
	return e, nil
}

func (s *PostgresEventStore) Count(ctx context.Context, collection string) (int64, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM posts WHERE ($1 = '' OR collection = $1)`, collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func collectEvents(rows pgx.Rows) ([]*models.Event, error) {
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var (
		e         models.Event
		langsJSON []byte
		record    []byte
		raw       []byte
	)
	err := row.Scan(
		&e.StorageID,
		&e.URI,
		&e.CID,
		&e.DID,
		&e.Collection,
		&e.RKey,
		&e.TimeUS,
		&e.CreatedAt,
		&langsJSON,
		&e.Text,
		&e.ReplyRootURI,
		&e.ReplyParentURI,
		&record,
		&raw,
	)
	if err != nil {
		return nil, err
	}

	if len(langsJSON) > 0 {
		if err := json.Unmarshal(langsJSON, &e.Langs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal langs: %w", err)
		}
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.Record = json.RawMessage(record)
	e.Raw = json.RawMessage(raw)
	return &e, nil
}

func jsonOrEmpty(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte(`{}`)
	}
	return b
}

// EscapeLike escapes LIKE metacharacters so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RedactConnString masks the password in a postgres URL or key=value DSN.
func RedactConnString(conn string) string {
	if u, err := url.Parse(conn); err == nil && u.Scheme != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}

	var kept []string
	for _, kv := range strings.Fields(conn) {
		if strings.HasPrefix(kv, "password=") {
			kept = append(kept, "password=xxxxx")
			continue
		}
		kept = append(kept, kv)
	}
	return strings.Join(kept, " ")
}
