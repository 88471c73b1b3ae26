package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/pkg/circuitbreaker"
	"github.com/genai-pages/backend/pkg/logger"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one completion call. Zero MaxTokens or Temperature fall
// back to the client defaults; an empty Model uses the configured model.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float32
}

type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// VisionRequest asks the vision model to describe one image.
type VisionRequest struct {
	Instructions string
	Prompt       string
	Image        []byte
	MIMEType     string
	MaxTokens    int
	Temperature  float32
}

type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Describe(ctx context.Context, req VisionRequest) (*ChatResponse, error)
	Provider() string
	Close() error
}

type Options struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	VisionModel     string
	Temperature     float32
	MaxTokens       int
	// Timeout bounds each call; zero leaves cancellation to the caller.
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	// Tokens, when set, estimates prompt size before each chat call.
	Tokens          *TokenCounter
}

// provider is a single-attempt transport to one completion service.
type provider interface {
	chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	describe(ctx context.Context, req VisionRequest) (*ChatResponse, error)
	name() string
	close() error
}

// NewClient builds the configured provider behind a circuit breaker. A
// missing API key is not an error here; calls fail with
// ErrAuthenticationFailed.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	var p provider
	var err error

	switch opts.Provider {
	case "", "openai":
		p = newOpenAIProvider(opts)
	case "gemini":
		p, err = newGeminiProvider(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newGuardedClient(p, opts), nil
}

type guardedClient struct {
	p       provider
	cb      *circuitbreaker.CircuitBreaker
	timeout time.Duration
	tokens  *TokenCounter
	model   string
}

func newGuardedClient(p provider, opts Options) *guardedClient {
	cb := circuitbreaker.New("llm."+p.name(), circuitbreaker.Config{
		FailureThreshold: uint32(max(opts.BreakerFailures, 0)),
		Cooldown:         opts.BreakerCooldown,
		IsFailure:        countsAgainstProvider,
		OnStateChange:    observeBreaker,
		Logger:           logger.GetLogger(),
	})

	logger.Info("LLM client initialized",
		zap.String("provider", p.name()),
		zap.String("model", opts.Model),
		zap.String("vision_model", opts.VisionModel),
	)

	return &guardedClient{p: p, cb: cb, timeout: opts.Timeout, tokens: opts.Tokens, model: opts.Model}
}

func (c *guardedClient) Provider() string { return c.p.name() }

func (c *guardedClient) Close() error { return c.p.close() }

func (c *guardedClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &ServiceError{Kind: ErrInvalidRequest, Provider: c.p.name(), Err: errors.New("no messages")}
	}

	if c.tokens != nil {
		model := req.Model
		if model == "" {
			model = c.model
		}
		n := c.tokens.CountMessages(model, req.Messages)
		metrics.LLMPromptTokens.WithLabelValues(c.p.name()).Observe(float64(n))
		logger.Debug("Prompt size estimated", zap.Int("tokens", n), zap.Int("messages", len(req.Messages)))
	}

	var resp *ChatResponse
	err := c.call(ctx, "chat", func(ctx context.Context) error {
		var err error
		resp, err = c.p.chat(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	observeUsage(c.p.name(), resp.Usage)
	return resp, nil
}

func (c *guardedClient) Describe(ctx context.Context, req VisionRequest) (*ChatResponse, error) {
	if len(req.Image) == 0 {
		return nil, &ServiceError{Kind: ErrInvalidRequest, Provider: c.p.name(), Err: errors.New("empty image")}
	}

	var resp *ChatResponse
	err := c.call(ctx, "describe", func(ctx context.Context) error {
		var err error
		resp, err = c.p.describe(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	observeUsage(c.p.name(), resp.Usage)
	return resp, nil
}

func (c *guardedClient) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.cb.Execute(func() error { return fn(ctx) })
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		err = &ServiceError{Kind: ErrServiceUnavailable, Provider: c.p.name(), Err: err}
	}

	metrics.LLMRequestDuration.WithLabelValues(c.p.name(), op).Observe(time.Since(start).Seconds())
	metrics.LLMRequestsTotal.WithLabelValues(c.p.name(), op, outcome(err)).Inc()

	if err != nil {
		logger.Warn("LLM call failed",
			zap.String("provider", c.p.name()),
			zap.String("op", op),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// countsAgainstProvider keeps caller mistakes and bad credentials from
// opening the circuit.
func countsAgainstProvider(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrServiceUnavailable)
}

func observeBreaker(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	metrics.BreakerState.WithLabelValues(name).Set(float64(to))
}

func observeUsage(provider string, u Usage) {
	if u.PromptTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(provider, "prompt").Add(float64(u.PromptTokens))
	}
	if u.CompletionTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(provider, "completion").Add(float64(u.CompletionTokens))
	}
}
