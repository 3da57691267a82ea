// Package postgres provides the PostgreSQL-backed implementation of Vigil's
// event history and reference face stores.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS. Reference encodings are
// stored in a vector column matching the external face encoder's dimension
// (128 for dlib-style encoders).
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/proctorly/vigil/internal/facecache"
	"github.com/proctorly/vigil/internal/violation"
	"github.com/proctorly/vigil/pkg/store"
)

// Compile-time interface checks.
var (
	_ store.EventStore     = (*Store)(nil)
	_ store.ReferenceStore = (*Store)(nil)
)

// EncodingDimensions is the face embedding dimension of the external
// encoder. Changing it after the first migration requires a manual schema
// change.
const EncodingDimensions = 128

// Store is the PostgreSQL-backed violation event history and reference face
// store. All operations share a single [pgxpool.Pool] and are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the database at
// dsn, registers pgvector types on every connection, and runs [Migrate] to
// ensure all required tables and extensions exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types so encoding columns can be scanned into and
	// inserted from pgvector.Vector values.
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

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping implements [store.EventStore.Ping].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertEvent implements [store.EventStore.InsertEvent].
func (s *Store) InsertEvent(ctx context.Context, ev violation.Event) error {
	const q = `
		INSERT INTO violation_events (subject_id, type, severity, occurred_at, supporting)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		ev.SubjectID,
		string(ev.Type),
		string(ev.Severity),
		ev.Timestamp,
		ev.Supporting,
	)
	if err != nil {
		return fmt.Errorf("postgres store: insert event: %w", err)
	}
	return nil
}

// ListEvents implements [store.EventStore.ListEvents]. Events are returned
// newest first.
func (s *Store) ListEvents(ctx context.Context, subjectID string, limit int) ([]violation.Event, error) {
	q := `
		SELECT subject_id, type, severity, occurred_at, supporting
		FROM   violation_events
		WHERE  subject_id = $1
		ORDER  BY occurred_at DESC`
	args := []any{subjectID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list events: %w", err)
	}
	defer rows.Close()

	var events []violation.Event
	for rows.Next() {
		var ev violation.Event
		var typ, sev string
		if err := rows.Scan(&ev.SubjectID, &typ, &sev, &ev.Timestamp, &ev.Supporting); err != nil {
			return nil, fmt.Errorf("postgres store: scan event: %w", err)
		}
		ev.Type = violation.Type(typ)
		ev.Severity = violation.Severity(sev)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate events: %w", err)
	}
	return events, nil
}

// FetchEncoding implements [facecache.Source]. It returns
// [facecache.ErrNoReference] when the subject has no stored reference face.
func (s *Store) FetchEncoding(ctx context.Context, subjectID string) (facecache.Encoding, error) {
	const q = `SELECT encoding FROM reference_faces WHERE subject_id = $1`

	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, q, subjectID).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, facecache.ErrNoReference
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: fetch encoding: %w", err)
	}
	return facecache.Encoding(vec.Slice()), nil
}

// PutReference implements [store.ReferenceStore.PutReference] as an upsert.
func (s *Store) PutReference(ctx context.Context, subjectID string, enc facecache.Encoding) error {
	const q = `
		INSERT INTO reference_faces (subject_id, encoding, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (subject_id)
		DO UPDATE SET encoding = EXCLUDED.encoding, updated_at = now()`

	_, err := s.pool.Exec(ctx, q, subjectID, pgvector.NewVector(enc))
	if err != nil {
		return fmt.Errorf("postgres store: put reference: %w", err)
	}
	return nil
}
