package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/storage"
	"github.com/genai-pages/backend/internal/storage/models"
	"github.com/genai-pages/backend/pkg/logger"
)

type Client struct {
	db   *sql.DB
	path string
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err = db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, path: dbPath}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS extraction_blobs (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turn_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		persona TEXT,
		user_message TEXT NOT NULL,
		reply TEXT NOT NULL,
		grounded INTEGER DEFAULT 0,
		document_count INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turn_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turn_history(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM extraction_blobs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return value, nil
}

func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO extraction_blobs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	if _, err := c.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to put blob: %w", err)
	}

	logger.Debug("Blob stored", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM extraction_blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (c *Client) Clear(ctx context.Context) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM extraction_blobs`)
	if err != nil {
		return fmt.Errorf("failed to clear blobs: %w", err)
	}

	n, _ := res.RowsAffected()
	logger.Info("Extraction blobs cleared", zap.Int64("rows", n))
	return nil
}

func (c *Client) RecordTurn(ctx context.Context, record *models.TurnRecord) error {
	query := `
		INSERT INTO turn_history (id, session_id, mode, persona, user_message, reply,
			grounded, document_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	grounded := 0
	if record.Grounded {
		grounded = 1
	}

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.SessionID,
		record.Mode,
		record.Persona,
		record.UserMessage,
		record.Reply,
		grounded,
		record.DocumentCount,
		record.LatencyMS,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn record: %w", err)
	}

	logger.Debug("Turn recorded",
		zap.String("turn_id", record.ID),
		zap.String("session_id", record.SessionID),
	)
	return nil
}

// ListTurns returns the session's turns oldest first.
func (c *Client) ListTurns(ctx context.Context, sessionID string, limit int) ([]models.TurnRecord, error) {
	query := `
		SELECT id, session_id, mode, persona, user_message, reply, grounded,
			document_count, latency_ms, created_at
		FROM (
			SELECT * FROM turn_history
			WHERE session_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC
	`

	if limit <= 0 {
		limit = -1
	}

	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get turn history: %w", err)
	}
	defer rows.Close()

	records := []models.TurnRecord{}
	for rows.Next() {
		var r models.TurnRecord
		var persona sql.NullString
		var grounded int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.SessionID, &r.Mode, &persona, &r.UserMessage, &r.Reply,
			&grounded, &r.DocumentCount, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Persona = persona.String
		r.Grounded = grounded == 1
		r.CreatedAt = time.Unix(0, createdAt)
		records = append(records, r)
	}

	return records, rows.Err()
}
