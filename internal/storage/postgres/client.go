// Package postgres stores extraction blobs and the turn log in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/storage"
	"github.com/genai-pages/backend/internal/storage/models"
	"github.com/genai-pages/backend/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS extraction_blobs (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS turn_history (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	persona TEXT NOT NULL DEFAULT '',
	user_message TEXT NOT NULL,
	reply TEXT NOT NULL,
	grounded BOOLEAN NOT NULL DEFAULT FALSE,
	document_count INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turn_history(session_id, created_at);
`

// Client wraps a PostgreSQL connection pool
type Client struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool and verifies it with a ping
func Connect(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Postgres client initialized")
	return &Client{pool: pool}, nil
}

func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.pool.QueryRow(ctx, `SELECT value FROM extraction_blobs WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return value, nil
}

func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO extraction_blobs (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to put blob: %w", err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM extraction_blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (c *Client) Clear(ctx context.Context) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM extraction_blobs`)
	if err != nil {
		return fmt.Errorf("failed to clear blobs: %w", err)
	}
	logger.Info("Extraction blobs cleared", zap.Int64("rows", tag.RowsAffected()))
	return nil
}

func (c *Client) RecordTurn(ctx context.Context, record *models.TurnRecord) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO turn_history (id, session_id, mode, persona, user_message, reply,
			grounded, document_count, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.SessionID, record.Mode, record.Persona, record.UserMessage,
		record.Reply, record.Grounded, record.DocumentCount, record.LatencyMS, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn record: %w", err)
	}
	return nil
}

// ListTurns returns the session's most recent turns, oldest first. A
// non-positive limit returns all of them.
func (c *Client) ListTurns(ctx context.Context, sessionID string, limit int) ([]models.TurnRecord, error) {
	query := `
		SELECT id, session_id, mode, persona, user_message, reply, grounded,
			document_count, latency_ms, created_at
		FROM (
			SELECT * FROM turn_history
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := c.pool.Query(ctx, query, sessionID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn history: %w", err)
	}
	defer rows.Close()

	records := []models.TurnRecord{}
	for rows.Next() {
		var r models.TurnRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Mode, &r.Persona, &r.UserMessage, &r.Reply,
			&r.Grounded, &r.DocumentCount, &r.LatencyMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
