package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/lib/pq"
)

// PostgresStore keeps records in a PostgreSQL table.
type PostgresStore struct {
	DB *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// PostgresDSN builds a connection string from PG_HOST, PG_PORT, PG_USER,
// PG_PASS, PG_DB_NAME and PG_SSL_MODE, falling back to local defaults.
func PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("PG_HOST", "localhost"),
		getEnv("PG_PORT", "5432"),
		getEnv("PG_USER", "postgres"),
		getEnv("PG_PASS", ""),
		getEnv("PG_DB_NAME", "postgres"),
		getEnv("PG_SSL_MODE", "disable"),
	)
}

func getEnv(env, def string) string {
	x := os.Getenv(env)
	if x == "" {
		return def
	}
	return x
}

// OpenPostgresStore connects to dsn, verifies the connection and ensures the
// downloads table exists. An empty dsn uses PostgresDSN.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		dsn = PostgresDSN()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres database: %w", err)
	}
	s := &PostgresStore{DB: db}
	if err := s.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("creating `downloads` postgres table: %w", err)
	}
	return nil
}

const createTableQuery = `
CREATE TABLE IF NOT EXISTS downloads (
	id            TEXT PRIMARY KEY,
	original_url  TEXT NOT NULL,
	platform      TEXT NOT NULL,
	title         TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	author        TEXT NOT NULL DEFAULT '',
	duration      BIGINT NOT NULL DEFAULT 0,
	quality       TEXT NOT NULL,
	media_url     TEXT NOT NULL,
	headers       JSONB NOT NULL DEFAULT '{}',
	file_path     TEXT NOT NULL DEFAULT '',
	file_size     BIGINT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
)`

const recordColumns = `id, original_url, platform, title, file_name, thumbnail_url, author,
	duration, quality, media_url, headers, file_path, file_size, status, progress,
	error, created_at, completed_at`

// DropTable removes the downloads table. Used by tests.
func (s *PostgresStore) DropTable(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "DROP TABLE IF EXISTS downloads"); err != nil {
		return fmt.Errorf("dropping table `downloads`: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return fmt.Errorf("creating record %s: serializing headers: %w", r.ID, err)
	}
	if r.Headers == nil {
		headers = []byte("{}")
	}
	if _, err := s.DB.ExecContext(
		ctx,
		"INSERT INTO downloads ("+recordColumns+") VALUES "+
			"($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)",
		r.ID, r.OriginalURL, string(r.Platform), r.Title, r.FileName, r.ThumbnailURL,
		r.Author, r.Duration, string(r.Quality), r.MediaURL, headers, r.FilePath,
		r.FileSize, string(r.Status), r.Progress, r.Error, r.CreatedAt, nullTime(r.CompletedAt),
	); err != nil {
		const errUniqueViolation = "23505"
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == errUniqueViolation {
			return fmt.Errorf("creating record: %w", &ExistsError{ID: r.ID})
		}
		return fmt.Errorf("creating record %s: %w", r.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r         Record
		p, q, st  string
		headers   []byte
		completed sql.NullTime
	)
	if err := row.Scan(
		&r.ID, &r.OriginalURL, &p, &r.Title, &r.FileName, &r.ThumbnailURL,
		&r.Author, &r.Duration, &q, &r.MediaURL, &headers, &r.FilePath,
		&r.FileSize, &st, &r.Progress, &r.Error, &r.CreatedAt, &completed,
	); err != nil {
		return nil, err
	}
	r.Platform = platform.Platform(p)
	r.Quality = platform.QualityTier(q)
	r.Status = Status(st)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &r.Headers); err != nil {
			return nil, fmt.Errorf("deserializing headers: %w", err)
		}
		if len(r.Headers) == 0 {
			r.Headers = nil
		}
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	r, err := scanRecord(s.DB.QueryRowContext(
		ctx,
		"SELECT "+recordColumns+" FROM downloads WHERE id = $1",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, fmt.Errorf("fetching record %s: %w", id, err)
	}
	return r, nil
}

// Update locks the row for the duration of fn, so concurrent updates to the
// same record are serialized by the database.
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(r *Record) error) (rec *Record, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if e := tx.Rollback(); e != nil {
				err = errors.Join(err, fmt.Errorf("rolling back transaction: %w", e))
			}
		}
	}()

	r, err := scanRecord(tx.QueryRowContext(
		ctx,
		"SELECT "+recordColumns+" FROM downloads WHERE id = $1 FOR UPDATE",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, fmt.Errorf("updating record %s: %w", id, err)
	}

	if err = fn(r); err != nil {
		return nil, err
	}
	r.ID = id

	headers := []byte("{}")
	if r.Headers != nil {
		if headers, err = json.Marshal(r.Headers); err != nil {
			return nil, fmt.Errorf("updating record %s: serializing headers: %w", id, err)
		}
	}
	if _, err = tx.ExecContext(
		ctx,
		`UPDATE downloads SET original_url = $2, platform = $3, title = $4, file_name = $5,
			thumbnail_url = $6, author = $7, duration = $8, quality = $9, media_url = $10,
			headers = $11, file_path = $12, file_size = $13, status = $14, progress = $15,
			error = $16, created_at = $17, completed_at = $18
		WHERE id = $1`,
		r.ID, r.OriginalURL, string(r.Platform), r.Title, r.FileName, r.ThumbnailURL,
		r.Author, r.Duration, string(r.Quality), r.MediaURL, headers, r.FilePath,
		r.FileSize, string(r.Status), r.Progress, r.Error, r.CreatedAt, nullTime(r.CompletedAt),
	); err != nil {
		return nil, fmt.Errorf("updating record %s: %w", id, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := s.DB.QueryRowContext(
		ctx,
		"DELETE FROM downloads WHERE id = $1 RETURNING id",
		id,
	).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM downloads"
	var args []any
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		query += " WHERE status = ANY($1)"
		args = append(args, pq.Array(statuses))
	}
	if f.OrderBy == OrderCompleted {
		query += " ORDER BY completed_at DESC NULLS LAST, created_at DESC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning into records: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
