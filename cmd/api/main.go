package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/analysis"
	"github.com/genai-pages/backend/internal/api"
	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/ingestion"
	"github.com/genai-pages/backend/internal/llm"
	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/internal/storage/backend"
	"github.com/genai-pages/backend/pkg/config"
	appLogger "github.com/genai-pages/backend/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting GenAI Pages API Server", zap.String("version", version))
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to open storage backend", zap.Error(err))
	}
	defer store.Close()

	llmClient, err := llm.NewClient(ctx, llm.OptionsFromConfig(cfg.LLM))
	if err != nil {
		appLogger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	defer llmClient.Close()

	cache := extraction.NewCache(store.Store)
	engine := chat.NewEngine(llmClient, cache, store.Turns, conversation.Config{
		GroundedMaxTokens:   cfg.Grounding.MaxTokens,
		GroundedTemperature: cfg.Grounding.Temperature,
	})
	analyzer := analysis.NewAnalyzer(llmClient, analysis.Config{
		MaxImageBytes: cfg.Analysis.MaxImageBytes,
		MaxTokens:     cfg.Analysis.MaxTokens,
	})

	if cfg.Ingestion.WatchDir != "" {
		processor := ingestion.NewProcessor(cache, int64(cfg.Server.BodyLimit))
		go func() {
			if err := processor.Watch(ctx, cfg.Ingestion.WatchDir); err != nil {
				appLogger.Error("Directory watcher stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Server.IdleWorkspaceMins > 0 {
		go evictIdle(ctx, engine, time.Duration(cfg.Server.IdleWorkspaceMins)*time.Minute)
	}

	app, limiter := api.NewApp(cfg.Server, api.Deps{
		Engine:   engine,
		Cache:    cache,
		Analyzer: analyzer,
		Store:    store,
		Version:  version,
	})
	defer limiter.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("storage", store.Name),
		zap.String("llm_provider", llmClient.Provider()),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func evictIdle(ctx context.Context, engine *chat.Engine, idle time.Duration) {
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Evict(idle)
		}
	}
}
