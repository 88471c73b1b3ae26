// Package backend opens the durable store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/cache/redis"
	"github.com/genai-pages/backend/internal/storage"
	"github.com/genai-pages/backend/internal/storage/postgres"
	"github.com/genai-pages/backend/internal/storage/sqlite"
	"github.com/genai-pages/backend/pkg/config"
	"github.com/genai-pages/backend/pkg/logger"
	"github.com/genai-pages/backend/pkg/retry"
)

var ErrUnsupportedBackend = errors.New("unsupported storage backend")

// Backend is an opened store. Turns is nil for backends without a turn log.
type Backend struct {
	Name  string
	Store storage.Store
	Turns storage.TurnRecorder
	ping  func(ctx context.Context) error
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() error {
	return b.Store.Close()
}

// Open connects to the configured backend, retrying transient connection
// failures with backoff.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	rc := retry.DefaultConfig("storage.connect." + cfg.Storage.Backend)
	rc.Logger = logger.GetLogger()
	rc.Retryable = func(err error) bool { return !errors.Is(err, ErrUnsupportedBackend) }

	b, err := retry.DoWithResult(ctx, rc, func(ctx context.Context) (*Backend, error) {
		return open(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Storage backend ready", zap.String("backend", b.Name))
	return b, nil
}

func open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		c, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := c.InitSchema(); err != nil {
			c.Close()
			return nil, err
		}
		return &Backend{Name: "sqlite", Store: c, Turns: c, ping: c.Ping}, nil

	case "postgres":
		c, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := c.InitSchema(ctx); err != nil {
			c.Close()
			return nil, err
		}
		return &Backend{Name: "postgres", Store: c, Turns: c, ping: c.Ping}, nil

	case "redis":
		ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
		c, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: "redis", Store: c, ping: c.Ping}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Storage.Backend)
	}
}
