package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kevinvandever/secureask/internal/model"
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS response_cache (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_response_cache_key ON response_cache(cache_key);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);

CREATE TABLE IF NOT EXISTS query_log (
	id                 TEXT PRIMARY KEY,
	question           TEXT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'processing',
	sources            TEXT NOT NULL DEFAULT '[]',
	citation_count     INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL,
	completed_at       DATETIME
);

CREATE INDEX IF NOT EXISTS idx_query_log_status ON query_log(status);
CREATE INDEX IF NOT EXISTS idx_query_log_user ON query_log(user_id);
CREATE INDEX IF NOT EXISTS idx_query_log_created_at ON query_log(created_at);
`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn and applies connection pragmas.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open database")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedResponse(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM response_cache
		 WHERE cache_key = ? AND expires_at > datetime('now')
		 ORDER BY cached_at DESC LIMIT 1`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached response")
	}
	return []byte(payload), nil
}

func (s *SQLiteStore) SetCachedResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (id, cache_key, payload, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), key, string(payload), now, now.Add(ttl))
	if err != nil {
		return eris.Wrap(err, "sqlite: set cached response")
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired responses")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CountCachedResponses(ctx context.Context) (int, int, error) {
	var live, expired int
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN expires_at > datetime('now') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at <= datetime('now') THEN 1 ELSE 0 END), 0)
		 FROM response_cache`).Scan(&live, &expired)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: count cached responses")
	}
	return live, expired, nil
}

func (s *SQLiteStore) CreateQuery(ctx context.Context, entry *model.QueryLogEntry) error {
	sources, err := marshalSources(entry.Sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_log (id, question, user_id, status, sources, citation_count, processing_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Question, entry.UserID, string(entry.Status), string(sources),
		entry.CitationCount, entry.ProcessingTimeMS, createdAt)
	if err != nil {
		return eris.Wrap(err, "sqlite: create query")
	}
	return nil
}

func (s *SQLiteStore) CompleteQuery(ctx context.Context, id string, status model.QueryStatus, citationCount int, processingTimeMS int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE query_log SET status = ?, citation_count = ?, processing_time_ms = ?, completed_at = ?
		 WHERE id = ?`,
		string(status), citationCount, processingTimeMS, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete query")
	}
	return checkRowsAffected(res, "query", id)
}

func (s *SQLiteStore) GetQuery(ctx context.Context, id string) (*model.QueryLogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, user_id, status, sources, citation_count, processing_time_ms, created_at, completed_at
		 FROM query_log WHERE id = ?`, id)
	entry, err := scanQueryEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrQueryNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get query")
	}
	return entry, nil
}

func (s *SQLiteStore) ListQueries(ctx context.Context, filter QueryFilter) ([]model.QueryLogEntry, error) {
	query := `SELECT id, question, user_id, status, sources, citation_count, processing_time_ms, created_at, completed_at
		 FROM query_log`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list queries")
	}
	defer rows.Close()

	var entries []model.QueryLogEntry
	for rows.Next() {
		entry, err := scanQueryEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query")
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list queries")
	}
	return entries, nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanQueryEntry(row scannable) (*model.QueryLogEntry, error) {
	var (
		entry       model.QueryLogEntry
		status      string
		sources     string
		completedAt sql.NullTime
	)
	err := row.Scan(&entry.ID, &entry.Question, &entry.UserID, &status, &sources,
		&entry.CitationCount, &entry.ProcessingTimeMS, &entry.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	entry.Status = model.QueryStatus(status)
	if err := unmarshalSources([]byte(sources), &entry.Sources); err != nil {
		return nil, eris.Wrap(err, "unmarshal sources")
	}
	if completedAt.Valid {
		t := completedAt.Time
		entry.CompletedAt = &t
	}
	return &entry, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found: %s", entity, id)
	}
	return nil
}
