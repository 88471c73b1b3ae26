package backend

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genai-pages/backend/pkg/config"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "genai.db")

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "sqlite", b.Name)
	assert.NotNil(t, b.Turns)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Storage.Backend = "redis"
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "redis", b.Name)
	assert.Nil(t, b.Turns)
}

func TestOpen_Unsupported(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Backend = "etcd"

	_, err := Open(context.Background(), cfg)
	require.ErrorIs(t, err, ErrUnsupportedBackend)
}
