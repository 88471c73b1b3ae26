// Package ingestion warms the extraction cache from files on disk, either in
// one pass over a directory or by watching it for new uploads.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/pkg/logger"
)

var ErrFileTooLarge = errors.New("file too large")

type Processor struct {
	cache    *extraction.Cache
	maxBytes int64
	debounce time.Duration
}

type Summary struct {
	Processed int `json:"processed"`
	Cached    int `json:"cached"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// NewProcessor builds a processor that rejects files above maxBytes; zero
// means no limit.
func NewProcessor(cache *extraction.Cache, maxBytes int64) *Processor {
	return &Processor{
		cache:    cache,
		maxBytes: maxBytes,
		debounce: 500 * time.Millisecond,
	}
}

func (p *Processor) ProcessFile(ctx context.Context, path string) (*extraction.Result, error) {
	extract, err := extraction.ForFile(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if p.maxBytes > 0 && info.Size() > p.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, info.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := extraction.Document{Name: filepath.Base(path), Content: content}
	res, err := p.cache.ExtractOrFetch(ctx, doc, extract)
	if err != nil {
		metrics.DocumentsProcessed.WithLabelValues("disk", "failed").Inc()
		return nil, err
	}
	metrics.DocumentsProcessed.WithLabelValues("disk", "ok").Inc()

	logger.Info("File processed",
		zap.String("path", path),
		zap.String("digest", res.Digest),
		zap.Bool("from_cache", res.FromCache),
	)
	return res, nil
}

// ProcessDir extracts every supported file directly under dir. Failures are
// counted and logged, they do not stop the pass.
func (p *Processor) ProcessDir(ctx context.Context, dir string) (Summary, error) {
	var summary Summary

	entries, err := os.ReadDir(dir)
	if err != nil {
		return summary, fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if entry.IsDir() || !extraction.Supported(entry.Name()) {
			summary.Skipped++
			continue
		}

		res, err := p.ProcessFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			summary.Failed++
			logger.Warn("Failed to process file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		summary.Processed++
		if res.FromCache {
			summary.Cached++
		}
	}

	logger.Info("Directory processed",
		zap.String("dir", dir),
		zap.Int("processed", summary.Processed),
		zap.Int("cached", summary.Cached),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Watch processes dir once and then every supported file created or
// rewritten in it until ctx is done. Bursts of writes to one file are
// collapsed into a single extraction.
func (p *Processor) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if _, err := p.ProcessDir(ctx, dir); err != nil && ctx.Err() == nil {
		logger.Warn("Initial directory pass failed", zap.Error(err))
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			wg.Done()
		}
		wg.Add(1)
		var timer *time.Timer
		timer = time.AfterFunc(p.debounce, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == timer {
				delete(pending, path)
			}
			mu.Unlock()
			if _, err := p.ProcessFile(ctx, path); err != nil {
				logger.Warn("Failed to process watched file", zap.String("path", path), zap.Error(err))
			}
		})
		pending[path] = timer
	}

	logger.Info("Watching directory", zap.String("dir", dir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !extraction.Supported(event.Name) {
				continue
			}
			schedule(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		}
	}
}
