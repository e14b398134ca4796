package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the backing table on first use. Appends are keyed by
// client id and read back in insertion order.
const schema = `
CREATE TABLE IF NOT EXISTS conversation_entries (
    id         BIGSERIAL PRIMARY KEY,
    client_id  TEXT        NOT NULL,
    role       TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    agent_id   TEXT        NOT NULL DEFAULT '',
    agent_name TEXT        NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_entries_client_idx
    ON conversation_entries (client_id, id)`

// PGStore is a Store backed by a PostgreSQL conversation_entries table.
// All methods are safe for concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore connects to dsn, ensures the schema exists and returns the
// store. Close releases the pool.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Append implements Store.
func (s *PGStore) Append(ctx context.Context, clientID string, e Entry) error {
	const q = `
		INSERT INTO conversation_entries
		    (client_id, role, text, agent_id, agent_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		clientID,
		e.Role,
		e.Text,
		e.AgentID,
		e.AgentName,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PGStore) Recent(ctx context.Context, clientID string, limit int) ([]Entry, error) {
	q := `
		SELECT role, text, agent_id, agent_name, created_at
		FROM   conversation_entries
		WHERE  client_id = $1
		ORDER  BY id`
	args := []any{clientID}
	if limit > 0 {
		// Take the newest rows, then restore chronological order.
		q = `
			SELECT role, text, agent_id, agent_name, created_at FROM (
			    SELECT id, role, text, agent_id, agent_name, created_at
			    FROM   conversation_entries
			    WHERE  client_id = $1
			    ORDER  BY id DESC
			    LIMIT  $2
			) newest ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Role, &e.Text, &e.AgentID, &e.AgentName, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Ping verifies database connectivity, for health checks.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
