// Package storage defines the durable key/value contract shared by the
// extraction cache backends, and the turn log written by the chat engine.
package storage

import (
	"context"
	"errors"

	"github.com/genai-pages/backend/internal/storage/models"
)

var ErrNotFound = errors.New("storage: key not found")

// Store is a durable blob store. Put overwrites; Get returns ErrNotFound for
// absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

type TurnRecorder interface {
	RecordTurn(ctx context.Context, record *models.TurnRecord) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]models.TurnRecord, error)
}
