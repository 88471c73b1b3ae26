// Package extraction turns document bytes into plain text and remembers the
// result by content digest, so a document is only ever extracted once no
// matter what it is called or when it is uploaded again.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/internal/storage"
	"github.com/genai-pages/backend/pkg/logger"
	"github.com/genai-pages/backend/pkg/utils"
)

// Document is raw uploaded content and its display name.
type Document struct {
	Name    string
	Content []byte
}

// Record is the persisted form of one extraction, keyed by ContentHash.
type Record struct {
	ContentHash   string    `json:"content_hash"`
	ExtractedText string    `json:"extracted_text"`
	SourceName    string    `json:"source_name"`
	CreatedAt     time.Time `json:"created_at"`
}

type Result struct {
	Digest     string
	Text       string
	SourceName string
	FromCache  bool
}

// ExtractFunc produces the text of a document. Per-page problems belong in
// the returned text as placeholders; an error means nothing usable came out.
type ExtractFunc func(ctx context.Context, doc Document) (string, error)

type Cache struct {
	store storage.Store
	now   func() time.Time
}

func NewCache(store storage.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Hash is the content digest used as the cache key. Names and upload
// metadata never contribute to it.
func Hash(content []byte) string {
	return utils.HashBytes(content)
}

// Lookup returns the record stored under digest, or ErrNotFound.
func (c *Cache) Lookup(ctx context.Context, digest string) (*Record, error) {
	blob, err := c.store.Get(ctx, digest)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("failed to decode extraction record %s: %w", digest, err)
	}
	return &record, nil
}

// Store writes text under digest. Writing the same digest twice is harmless.
func (c *Cache) Store(ctx context.Context, digest, text, sourceName string) error {
	blob, err := json.Marshal(Record{
		ContentHash:   digest,
		ExtractedText: text,
		SourceName:    sourceName,
		CreatedAt:     c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode extraction record: %w", err)
	}

	if err := c.store.Put(ctx, digest, blob); err != nil {
		return fmt.Errorf("failed to store extraction record: %w", err)
	}
	return nil
}

// ExtractOrFetch returns the cached text for doc's content, extracting and
// storing it on a miss.
func (c *Cache) ExtractOrFetch(ctx context.Context, doc Document, extract ExtractFunc) (*Result, error) {
	digest := Hash(doc.Content)

	record, err := c.Lookup(ctx, digest)
	switch {
	case err == nil:
		metrics.CacheHits.WithLabelValues("extraction").Inc()
		logger.Debug("Extraction cache hit",
			zap.String("digest", digest),
			zap.String("name", doc.Name),
			zap.String("first_seen_as", record.SourceName),
		)
		return &Result{Digest: digest, Text: record.ExtractedText, SourceName: doc.Name, FromCache: true}, nil
	case errors.Is(err, ErrNotFound):
		metrics.CacheMisses.WithLabelValues("extraction").Inc()
	default:
		// An unreadable entry is treated like a miss; extraction rewrites it.
		metrics.CacheMisses.WithLabelValues("extraction").Inc()
		logger.Warn("Extraction cache lookup failed", zap.String("digest", digest), zap.Error(err))
	}

	start := time.Now()
	text, err := extract(ctx, doc)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("no text found")
	}
	if err != nil {
		metrics.ExtractionDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		logger.Warn("Extraction failed", zap.String("name", doc.Name), zap.Error(err))
		if errors.Is(err, ErrExtractionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, doc.Name, err)
	}
	metrics.ExtractionDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	if err := c.Store(ctx, digest, text, doc.Name); err != nil {
		metrics.CacheWriteFailures.Inc()
		logger.Error("Extraction succeeded but could not be cached",
			zap.String("digest", digest),
			zap.String("name", doc.Name),
			zap.Error(err),
		)
	}

	logger.Info("Document extracted",
		zap.String("digest", digest),
		zap.String("name", doc.Name),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)

	return &Result{Digest: digest, Text: text, SourceName: doc.Name}, nil
}

// Clear drops every cached extraction.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}
