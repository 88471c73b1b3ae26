package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/genai-pages/backend/pkg/logger"
)

type geminiProvider struct {
	client      *genai.Client
	model       string
	visionModel string
	temperature float32
	maxTokens   int
}

// newGeminiProvider leaves client nil without a key so the missing
// credential surfaces per call instead of at startup.
func newGeminiProvider(ctx context.Context, opts Options) (*geminiProvider, error) {
	p := &geminiProvider{
		model:       opts.Model,
		visionModel: opts.VisionModel,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
	if p.model == "" || strings.HasPrefix(p.model, "gpt-") {
		p.model = "gemini-1.5-flash"
	}
	if p.visionModel == "" || strings.HasPrefix(p.visionModel, "gpt-") {
		p.visionModel = p.model
	}

	if opts.APIKey == "" {
		return p, nil
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *geminiProvider) name() string { return "gemini" }

func (p *geminiProvider) close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *geminiProvider) configure(modelName string, temperature float32, maxTokens int) *genai.GenerativeModel {
	model := p.client.GenerativeModel(modelName)
	if t := firstNonZero(temperature, p.temperature); t != 0 {
		model.SetTemperature(t)
	}
	if n := firstNonZero(maxTokens, p.maxTokens); n > 0 {
		model.SetMaxOutputTokens(int32(n))
	}
	return model
}

// chat maps the message list onto a chat session: system messages become
// the system instruction, the last user message is sent, and everything
// before it is replayed as history.
func (p *geminiProvider) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.client == nil {
		return nil, missingKey(p.name())
	}

	var system []string
	var turns []Message
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return nil, &ServiceError{Kind: ErrInvalidRequest, Provider: p.name(), Err: errors.New("last message must be from the user")}
	}

	modelName := firstNonZero(req.Model, p.model)
	model := p.configure(modelName, req.Temperature, req.MaxTokens)
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}

	cs := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return nil, classifyGemini(fmt.Errorf("failed to send message: %w", err))
	}

	return p.toResponse(modelName, resp)
}

func (p *geminiProvider) describe(ctx context.Context, req VisionRequest) (*ChatResponse, error) {
	if p.client == nil {
		return nil, missingKey(p.name())
	}

	model := p.configure(p.visionModel, req.Temperature, req.MaxTokens)
	if req.Instructions != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instructions)}}
	}

	format := strings.TrimPrefix(req.MIMEType, "image/")
	resp, err := model.GenerateContent(ctx, genai.ImageData(format, req.Image), genai.Text(req.Prompt))
	if err != nil {
		return nil, classifyGemini(fmt.Errorf("failed to generate content: %w", err))
	}

	return p.toResponse(p.visionModel, resp)
}

func (p *geminiProvider) toResponse(modelName string, resp *genai.GenerateContentResponse) (*ChatResponse, error) {
	text, err := extractText(resp)
	if err != nil {
		return nil, &ServiceError{Kind: ErrServiceUnavailable, Provider: p.name(), Err: err}
	}

	out := &ChatResponse{Content: text, Model: modelName}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	logger.Debug("LLM completion generated",
		zap.String("model", modelName),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
