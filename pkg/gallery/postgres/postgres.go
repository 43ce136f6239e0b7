// Package postgres provides a PostgreSQL-backed implementation of
// gallery.Store. Centroids are stored as pgvector columns; the pgvector
// extension must be available in the target database — [Migrate] installs
// it automatically via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voxauth/pkg/gallery"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

const ddlSpeakers = `
CREATE TABLE IF NOT EXISTS speakers (
    speaker_id   TEXT         PRIMARY KEY,
    speaker_name TEXT         NOT NULL DEFAULT '',
    pin_digest   BYTEA,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlVoiceprints returns the voiceprint DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at
// schema creation time.
func ddlVoiceprints(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS voiceprints (
    speaker_id  TEXT         NOT NULL REFERENCES speakers (speaker_id) ON DELETE CASCADE,
    digit       TEXT         NOT NULL CHECK (digit ~ '^[0-9]$'),
    embedding   vector(%d)   NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (speaker_id, digit)
);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It
// is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the output dimension of the configured
// speaker model (e.g. 192 for CAM++). Changing this value after the first
// migration requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSpeakers,
		ddlVoiceprints(embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// Store is the PostgreSQL-backed gallery store. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

var _ gallery.Store = (*Store)(nil)

// NewStore creates a Store, establishes a connection pool to the database
// at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool, dims: embeddingDimensions}, nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Exists reports whether a speaker with the given ID is enrolled.
func (s *Store) Exists(ctx context.Context, speakerID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM speakers WHERE speaker_id = $1)`, speakerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres store: exists: %w", err)
	}
	return exists, nil
}

// Commit inserts the speaker row and all ten voiceprint rows in a single
// transaction. A unique violation on the speaker ID maps to
// [gallery.ErrSpeakerExists].
func (s *Store) Commit(ctx context.Context, speaker gallery.Speaker, centroids map[string][]float32) error {
	if speaker.ID == "" {
		return fmt.Errorf("postgres store: speaker id is empty")
	}
	if err := gallery.ValidateGallery(centroids); err != nil {
		return err
	}
	for d, v := range centroids {
		if len(v) != s.dims {
			return fmt.Errorf("postgres store: digit %s centroid has %d dims, want %d", d, len(v), s.dims)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO speakers (speaker_id, speaker_name, pin_digest) VALUES ($1, $2, $3)`,
		speaker.ID, speaker.Name, speaker.PINDigest,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return gallery.ErrSpeakerExists
		}
		return fmt.Errorf("postgres store: insert speaker: %w", err)
	}

	for i := range len(gallery.Digits) {
		d := gallery.Digits[i : i+1]
		_, err = tx.Exec(ctx,
			`INSERT INTO voiceprints (speaker_id, digit, embedding) VALUES ($1, $2, $3)`,
			speaker.ID, d, pgvector.NewVector(centroids[d]),
		)
		if err != nil {
			return fmt.Errorf("postgres store: insert voiceprint %s: %w", d, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Load returns the speaker profile and its digit-to-centroid gallery.
func (s *Store) Load(ctx context.Context, speakerID string) (*gallery.Speaker, map[string][]float32, error) {
	sp := &gallery.Speaker{ID: speakerID}
	err := s.pool.QueryRow(ctx,
		`SELECT speaker_name, pin_digest, created_at FROM speakers WHERE speaker_id = $1`, speakerID,
	).Scan(&sp.Name, &sp.PINDigest, &sp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, gallery.ErrSpeakerNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store: load speaker: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT digit, embedding FROM voiceprints WHERE speaker_id = $1 ORDER BY digit`, speakerID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store: load voiceprints: %w", err)
	}
	defer rows.Close()

	centroids := make(map[string][]float32, len(gallery.Digits))
	for rows.Next() {
		var digit string
		var vec pgvector.Vector
		if err := rows.Scan(&digit, &vec); err != nil {
			return nil, nil, fmt.Errorf("postgres store: scan voiceprint: %w", err)
		}
		centroids[digit] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres store: iterate voiceprints: %w", err)
	}
	return sp, centroids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
