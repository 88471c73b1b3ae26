package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/pkg/logger"
)

type openAIProvider struct {
	client      *openai.Client
	hasKey      bool
	model       string
	visionModel string
	temperature float32
	maxTokens   int
}

func newOpenAIProvider(opts Options) *openAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = openai.GPT4
	}
	visionModel := opts.VisionModel
	if visionModel == "" {
		visionModel = "gpt-4o"
	}

	return &openAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		hasKey:      opts.APIKey != "",
		model:       model,
		visionModel: visionModel,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

func (p *openAIProvider) name() string { return "openai" }

func (p *openAIProvider) close() error { return nil }

func (p *openAIProvider) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !p.hasKey {
		return nil, missingKey(p.name())
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: firstNonZero(req.Temperature, p.temperature),
		MaxTokens:   firstNonZero(req.MaxTokens, p.maxTokens),
	})
	if err != nil {
		return nil, classifyOpenAI(fmt.Errorf("failed to create completion: %w", err))
	}

	return p.toResponse(resp)
}

func (p *openAIProvider) describe(ctx context.Context, req VisionRequest) (*ChatResponse, error) {
	if !p.hasKey {
		return nil, missingKey(p.name())
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MIMEType, base64.StdEncoding.EncodeToString(req.Image))

	var messages []openai.ChatCompletionMessage
	if req.Instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailHigh,
			}},
		},
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.visionModel,
		Messages:    messages,
		MaxTokens:   firstNonZero(req.MaxTokens, p.maxTokens),
		Temperature: firstNonZero(req.Temperature, p.temperature),
	})
	if err != nil {
		return nil, classifyOpenAI(fmt.Errorf("failed to create vision completion: %w", err))
	}

	return p.toResponse(resp)
}

func (p *openAIProvider) toResponse(resp openai.ChatCompletionResponse) (*ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, &ServiceError{Kind: ErrServiceUnavailable, Provider: p.name(), Err: errors.New("no choices in response")}
	}

	logger.Debug("LLM completion generated",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func firstNonZero[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
