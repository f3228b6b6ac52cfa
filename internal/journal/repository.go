package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores session events in append-only fashion.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	// List returns the most recent records, newest first.
	List(ctx context.Context, limit int) ([]Record, error)
}

const schema = `CREATE TABLE IF NOT EXISTS session_events (
    id          UUID PRIMARY KEY,
    kind        TEXT NOT NULL,
    identity    TEXT NOT NULL DEFAULT '',
    network     TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    generation  BIGINT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS session_events_occurred_at_idx ON session_events (occurred_at DESC)`

// PostgresRepository stores session events in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the session_events table when it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create session_events: %w", err)
	}
	return nil
}

// Append inserts a record.
func (r *PostgresRepository) Append(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO session_events (id, kind, identity, network, detail, generation, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Kind, rec.Identity, rec.Network, rec.Detail, int64(rec.Generation), rec.At.UTC())
	return err
}

// List fetches the latest records.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT id, kind, identity, network, detail, generation, occurred_at
        FROM session_events ORDER BY occurred_at DESC, id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			generation int64
			at         time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Identity, &rec.Network, &rec.Detail, &generation, &at); err != nil {
			return nil, err
		}
		rec.Generation = uint64(generation)
		rec.At = at.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
