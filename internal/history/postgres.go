package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the turn log. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    id              BIGSERIAL    PRIMARY KEY,
    conversation_id TEXT         NOT NULL,
    user_text       TEXT         NOT NULL,
    assistant_text  TEXT         NOT NULL DEFAULT '',
    intent          TEXT         NOT NULL DEFAULT '',
    at              TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_conv_at
    ON conversation_turns (conversation_id, at);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_fts
    ON conversation_turns USING GIN (to_tsvector('english', user_text || ' ' || assistant_text));
`

// Migrate applies Schema on pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists every turn in PostgreSQL and serves the recent
// window from an in-process [MemoryStore], so a slow database never delays a
// reply.
type PostgresStore struct {
	pool   *pgxpool.Pool
	window *MemoryStore
}

// NewPostgresStore connects to dsn, pings the server and runs Migrate.
func NewPostgresStore(ctx context.Context, dsn string, maxTurns int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, window: NewMemoryStore(maxTurns)}, nil
}

// Append implements Store. The turn enters the window even if the insert
// fails; the insert error is still returned.
func (s *PostgresStore) Append(ctx context.Context, conversationID string, t Turn) error {
	if err := s.window.Append(ctx, conversationID, t); err != nil {
		return err
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}
	const q = `
		INSERT INTO conversation_turns (conversation_id, user_text, assistant_text, intent, at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, q, conversationID, t.User, t.Assistant, t.Intent, t.At); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent implements Store. A conversation unknown to this process (for
// example after a restart) is loaded from the database.
func (s *PostgresStore) Recent(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	if s.window.has(conversationID) {
		return s.window.Recent(ctx, conversationID, n)
	}
	limit := n
	if limit <= 0 {
		limit = s.window.max
	}
	const q = `
		SELECT user_text, assistant_text, intent, at FROM (
		    SELECT user_text, assistant_text, intent, at
		    FROM   conversation_turns
		    WHERE  conversation_id = $1
		    ORDER  BY at DESC
		    LIMIT  $2
		) t ORDER BY at`
	rows, err := s.pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return collectTurns(rows)
}

// Search runs a full-text query over all persisted turns, newest first.
func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]Turn, error) {
	if strings.TrimSpace(query) == "" {
		return []Turn{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT user_text, assistant_text, intent, at
		FROM   conversation_turns
		WHERE  to_tsvector('english', user_text || ' ' || assistant_text) @@ plainto_tsquery('english', $1)
		ORDER  BY at DESC
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	return collectTurns(rows)
}

// Forget implements Store. Persisted rows are kept.
func (s *PostgresStore) Forget(ctx context.Context, conversationID string) error {
	return s.window.Forget(ctx, conversationID)
}

// Ping reports whether the database is reachable. Used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func collectTurns(rows pgx.Rows) ([]Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.User, &t.Assistant, &t.Intent, &t.At)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}
