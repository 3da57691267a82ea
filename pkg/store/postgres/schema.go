package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExtensions = `CREATE EXTENSION IF NOT EXISTS vector;`

const ddlViolationEvents = `
CREATE TABLE IF NOT EXISTS violation_events (
    id          BIGSERIAL    PRIMARY KEY,
    subject_id  TEXT         NOT NULL,
    type        TEXT         NOT NULL,
    severity    TEXT         NOT NULL,
    occurred_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    supporting  JSONB        NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_violation_events_subject
    ON violation_events (subject_id);

CREATE INDEX IF NOT EXISTS idx_violation_events_subject_time
    ON violation_events (subject_id, occurred_at);
`

var ddlReferenceFaces = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS reference_faces (
    subject_id  TEXT         PRIMARY KEY,
    encoding    VECTOR(%d)   NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`, EncodingDimensions)

// Migrate creates the pgvector extension and all tables used by [Store].
// All statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlExtensions, ddlViolationEvents, ddlReferenceFaces} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres store: apply ddl: %w", err)
		}
	}
	return nil
}
