package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/storage/sqlite"
)

func newTestProcessor(t *testing.T, maxBytes int64) (*Processor, *extraction.Cache) {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	cache := extraction.NewCache(db)
	p := NewProcessor(cache, maxBytes)
	p.debounce = 20 * time.Millisecond
	return p, cache
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessFile(t *testing.T) {
	ctx := context.Background()
	p, cache := newTestProcessor(t, 0)
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "hello world")

	res, err := p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "notes.txt", res.SourceName)

	rec, err := cache.Lookup(ctx, extraction.Hash([]byte("hello world")))
	require.NoError(t, err)
	assert.Equal(t, "hello world", rec.ExtractedText)

	res, err = p.ProcessFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestProcessFile_Rejections(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t, 4)
	dir := t.TempDir()

	_, err := p.ProcessFile(ctx, writeFile(t, dir, "big.txt", "more than four bytes"))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = p.ProcessFile(ctx, writeFile(t, dir, "tool.exe", "x"))
	assert.ErrorIs(t, err, extraction.ErrUnsupportedFormat)

	_, err = p.ProcessFile(ctx, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestProcessDir(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProcessor(t, 0)
	dir := t.TempDir()

	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "b.md", "alpha")
	writeFile(t, dir, "page.html", "<html><body><p>beta</p></body></html>")
	writeFile(t, dir, "blank.txt", "   ")
	writeFile(t, dir, "image.png", "not really")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	summary, err := p.ProcessDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 3, Cached: 1, Skipped: 2, Failed: 1}, summary)
}

func TestWatch_ProcessesNewFiles(t *testing.T) {
	p, cache := newTestProcessor(t, 0)
	dir := t.TempDir()
	writeFile(t, dir, "existing.txt", "already here")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, dir) }()

	require.Eventually(t, func() bool {
		_, err := cache.Lookup(context.Background(), extraction.Hash([]byte("already here")))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	writeFile(t, dir, "new.txt", "fresh upload")
	require.Eventually(t, func() bool {
		_, err := cache.Lookup(context.Background(), extraction.Hash([]byte("fresh upload")))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	p, _ := newTestProcessor(t, 0)
	err := p.Watch(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
