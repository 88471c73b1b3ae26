// Command docchat extracts documents and chats with personas or document
// content from the terminal, sharing the server's cache and configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/llm"
	"github.com/genai-pages/backend/internal/storage/backend"
	"github.com/genai-pages/backend/pkg/config"
	"github.com/genai-pages/backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "docchat",
	Short:         "Chat with personas or your documents from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// env is what every subcommand opens from configuration.
type env struct {
	cfg   *config.Config
	store *backend.Backend
	cache *extraction.Cache
	llm   llm.Client
}

func openEnv(ctx context.Context, withLLM bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, "console", "stderr"); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, store: store, cache: extraction.NewCache(store.Store)}
	if withLLM {
		e.llm, err = llm.NewClient(ctx, llm.OptionsFromConfig(cfg.LLM))
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *env) engine() *chat.Engine {
	return chat.NewEngine(e.llm, e.cache, e.store.Turns, conversation.Config{
		GroundedMaxTokens:   e.cfg.Grounding.MaxTokens,
		GroundedTemperature: e.cfg.Grounding.Temperature,
	})
}

func (e *env) Close() {
	if e.llm != nil {
		e.llm.Close()
	}
	e.store.Close()
	logger.Sync()
}

func readDocument(path string) (extraction.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return extraction.Document{Name: baseName(path), Content: content}, nil
}
