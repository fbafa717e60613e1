package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kevinvandever/secureask/internal/db"
	"github.com/kevinvandever/secureask/internal/model"
)

const postgresMigration = `
CREATE TABLE IF NOT EXISTS response_cache (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL UNIQUE,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);

CREATE TABLE IF NOT EXISTS query_log (
	id                 TEXT PRIMARY KEY,
	question           TEXT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'processing',
	sources            JSONB NOT NULL DEFAULT '[]',
	citation_count     INTEGER NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_query_log_status ON query_log(status);
CREATE INDEX IF NOT EXISTS idx_query_log_user ON query_log(user_id);
CREATE INDEX IF NOT EXISTS idx_query_log_created_at ON query_log(created_at DESC);
`

// preparedStatements are registered on every pooled connection so hot-path
// queries skip the parse step.
var preparedStatements = map[string]string{
	"get_cached_response": `SELECT payload FROM response_cache
		WHERE cache_key = $1 AND expires_at > now()
		ORDER BY cached_at DESC LIMIT 1`,
	"set_cached_response": `INSERT INTO response_cache (id, cache_key, payload, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key) DO UPDATE SET payload = $3, cached_at = $4, expires_at = $5`,
	"delete_expired_responses": `DELETE FROM response_cache WHERE expires_at <= now()`,
	"count_cached_responses": `SELECT
		COALESCE(SUM(CASE WHEN expires_at > now() THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN expires_at <= now() THEN 1 ELSE 0 END), 0)
		FROM response_cache`,
	"insert_query": `INSERT INTO query_log (id, question, user_id, status, sources, citation_count, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"complete_query": `UPDATE query_log SET status = $1, citation_count = $2, processing_time_ms = $3, completed_at = $4
		WHERE id = $5`,
	"get_query": `SELECT id, question, user_id, status, sources, citation_count, processing_time_ms, created_at, completed_at
		FROM query_log WHERE id = $1`,
}

// PoolConfig tunes the pgx connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresStore implements Store on a PostgreSQL pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to PostgreSQL and verifies the connection.
func NewPostgres(ctx context.Context, connString string, cfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if cfg != nil {
		if cfg.MaxConns > 0 {
			pgxCfg.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			pgxCfg.MinConns = cfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	s := &PostgresStore{pool: pool, closeFn: pool.Close}
	if err := s.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetCachedResponse(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, "get_cached_response", key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached response")
	}
	return payload, nil
}

func (s *PostgresStore) SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, "set_cached_response",
		uuid.New().String(), key, payload, now, now.Add(ttl))
	if err != nil {
		return eris.Wrap(err, "postgres: set cached response")
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, "delete_expired_responses")
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired responses")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountCachedResponses(ctx context.Context) (int, int, error) {
	var live, expired int
	err := s.pool.QueryRow(ctx, "count_cached_responses").Scan(&live, &expired)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: count cached responses")
	}
	return live, expired, nil
}

func (s *PostgresStore) CreateQuery(ctx context.Context, entry *model.QueryLogEntry) error {
	sources, err := marshalSources(entry.Sources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, "insert_query",
		entry.ID, entry.Question, entry.UserID, string(entry.Status), sources,
		entry.CitationCount, entry.ProcessingTimeMS, createdAt)
	if err != nil {
		return eris.Wrap(err, "postgres: create query")
	}
	return nil
}

func (s *PostgresStore) CompleteQuery(ctx context.Context, id string, status model.QueryStatus, citationCount int, processingTimeMS int64) error {
	tag, err := s.pool.Exec(ctx, "complete_query",
		string(status), citationCount, processingTimeMS, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "postgres: complete query")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: query not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetQuery(ctx context.Context, id string) (*model.QueryLogEntry, error) {
	entry, err := scanPGQueryEntry(s.pool.QueryRow(ctx, "get_query", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQueryNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get query")
	}
	return entry, nil
}

func (s *PostgresStore) ListQueries(ctx context.Context, filter QueryFilter) ([]model.QueryLogEntry, error) {
	query := `SELECT id, question, user_id, status, sources, citation_count, processing_time_ms, created_at, completed_at
		FROM query_log`
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queries")
	}
	defer rows.Close()

	var entries []model.QueryLogEntry
	for rows.Next() {
		entry, err := scanPGQueryEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list queries")
	}
	return entries, nil
}

func scanPGQueryEntry(row scannable) (*model.QueryLogEntry, error) {
	var (
		entry       model.QueryLogEntry
		status      string
		sources     []byte
		completedAt *time.Time
	)
	err := row.Scan(&entry.ID, &entry.Question, &entry.UserID, &status, &sources,
		&entry.CitationCount, &entry.ProcessingTimeMS, &entry.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	entry.Status = model.QueryStatus(status)
	if err := unmarshalSources(sources, &entry.Sources); err != nil {
		return nil, eris.Wrap(err, "unmarshal sources")
	}
	entry.CompletedAt = completedAt
	return &entry, nil
}
