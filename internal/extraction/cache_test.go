package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genai-pages/backend/internal/storage"
	"github.com/genai-pages/backend/internal/storage/sqlite"
)

type memStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	putErr  error
	putHits int
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putHits++
	if m.putErr != nil {
		return m.putErr
	}
	m.blobs[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = make(map[string][]byte)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

type countingExtractor struct {
	calls int
	text  string
	err   error
}

func (c *countingExtractor) extract(context.Context, Document) (string, error) {
	c.calls++
	return c.text, c.err
}

func TestHash_DeterministicAndContentOnly(t *testing.T) {
	a := Hash([]byte("hello"))
	assert.Equal(t, a, Hash([]byte("hello")))
	assert.Len(t, a, 64)

	seen := map[string]string{}
	for _, in := range []string{"", "hello", "hello ", "Hello", "hello\n", "\x00"} {
		d := Hash([]byte(in))
		prev, dup := seen[d]
		assert.False(t, dup, "digest collision between %q and %q", prev, in)
		seen[d] = in
	}
}

func TestExtractOrFetch_KeyedByContentNotName(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cache := NewCache(store)
	ex := &countingExtractor{text: "hello-text"}

	first, err := cache.ExtractOrFetch(ctx, Document{Name: "A.pdf", Content: []byte("hello")}, ex.extract)
	require.NoError(t, err)
	assert.Equal(t, "hello-text", first.Text)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, ex.calls)

	record, err := cache.Lookup(ctx, Hash([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello-text", record.ExtractedText)
	assert.Equal(t, "A.pdf", record.SourceName)

	second, err := cache.ExtractOrFetch(ctx, Document{Name: "B.pdf", Content: []byte("hello")}, ex.extract)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.True(t, second.FromCache)
	assert.Equal(t, "B.pdf", second.SourceName)
	assert.Equal(t, 1, ex.calls, "extractor must run at most once per content")
}

func TestLookup_Absent(t *testing.T) {
	cache := NewCache(newMemStore())

	_, err := cache.Lookup(context.Background(), Hash([]byte("nothing")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IdempotentOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cache := NewCache(store)
	digest := Hash([]byte("x"))

	require.NoError(t, cache.Store(ctx, digest, "text", "x.txt"))
	require.NoError(t, cache.Store(ctx, digest, "text", "x.txt"))

	record, err := cache.Lookup(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, "text", record.ExtractedText)
	assert.Equal(t, digest, record.ContentHash)
	assert.Equal(t, 1, store.len())
}

func TestExtractOrFetch_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cache := NewCache(store)
	ex := &countingExtractor{err: errors.New("password required")}
	doc := Document{Name: "locked.pdf", Content: []byte("%PDF-encrypted")}

	_, err := cache.ExtractOrFetch(ctx, doc, ex.extract)
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "password required")
	assert.Zero(t, store.len())

	_, err = cache.ExtractOrFetch(ctx, doc, ex.extract)
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, 2, ex.calls)
}

func TestExtractOrFetch_BlankTextIsFailure(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	ex := &countingExtractor{text: " \n\t "}

	_, err := cache.ExtractOrFetch(context.Background(), Document{Name: "blank.txt", Content: []byte("   ")}, ex.extract)
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Zero(t, store.len())
}

func TestExtractOrFetch_StoreFailureStillReturnsText(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("disk full")
	cache := NewCache(store)
	ex := &countingExtractor{text: "body"}

	res, err := cache.ExtractOrFetch(context.Background(), Document{Name: "a.txt", Content: []byte("body")}, ex.extract)
	require.NoError(t, err)
	assert.Equal(t, "body", res.Text)
	assert.Equal(t, 1, store.putHits)
}

func TestExtractOrFetch_CorruptEntryIsReextracted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cache := NewCache(store)
	content := []byte("doc")
	store.blobs[Hash(content)] = []byte("{not json")
	ex := &countingExtractor{text: "fresh"}

	res, err := cache.ExtractOrFetch(ctx, Document{Name: "d.txt", Content: content}, ex.extract)
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.Text)
	assert.Equal(t, 1, ex.calls)

	var record Record
	require.NoError(t, json.Unmarshal(store.blobs[Hash(content)], &record))
	assert.Equal(t, "fresh", record.ExtractedText)
}

func TestExtractOrFetch_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	doc := Document{Name: "report.txt", Content: []byte("quarterly numbers")}

	db, err := sqlite.NewClient(path)
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	ex := &countingExtractor{text: "quarterly numbers"}
	_, err = NewCache(db).ExtractOrFetch(ctx, doc, ex.extract)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := sqlite.NewClient(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.InitSchema())

	res, err := NewCache(reopened).ExtractOrFetch(ctx, doc, ex.extract)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, ex.calls)
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	cache := NewCache(store)
	ex := &countingExtractor{text: "t"}
	doc := Document{Name: "a.txt", Content: []byte("a")}

	_, err := cache.ExtractOrFetch(ctx, doc, ex.extract)
	require.NoError(t, err)
	require.NoError(t, cache.Clear(ctx))

	_, err = cache.ExtractOrFetch(ctx, doc, ex.extract)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.calls)
}
