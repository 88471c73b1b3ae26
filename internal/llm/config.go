package llm

import (
	"time"

	"github.com/genai-pages/backend/pkg/config"
)

// OptionsFromConfig maps the llm section of the application config onto
// client options.
func OptionsFromConfig(cfg config.LLMConfig) Options {
	opts := Options{
		Provider:        cfg.Provider,
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		Model:           cfg.Model,
		VisionModel:     cfg.VisionModel,
		Temperature:     cfg.Temperature,
		MaxTokens:       cfg.MaxTokens,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: time.Duration(cfg.BreakerCooldown) * time.Second,
	}
	if cfg.CountTokens {
		opts.Tokens = NewTokenCounter()
	}
	return opts
}
