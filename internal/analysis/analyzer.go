// Package analysis sends a single image with a fixed instruction set to the
// vision model.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/llm"
	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/pkg/logger"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
)

const systemInstructions = "You are a medical AI assistant designed to help healthcare professionals analyze medical images. " +
	"Provide detailed, structured analysis while emphasizing the importance of professional medical consultation."

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type Describer interface {
	Describe(ctx context.Context, req llm.VisionRequest) (*llm.ChatResponse, error)
}

type Config struct {
	MaxImageBytes int
	MaxTokens     int
	Temperature   float32
}

type Analyzer struct {
	describer Describer
	cfg       Config
}

type Report struct {
	Kind      Kind      `json:"kind"`
	Text      string    `json:"analysis"`
	MIMEType  string    `json:"mime_type"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAnalyzer(describer Describer, cfg Config) *Analyzer {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 20 * 1024 * 1024
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	return &Analyzer{describer: describer, cfg: cfg}
}

// SniffImage returns the MIME type of image if it is one the vision models
// accept.
func SniffImage(image []byte) (string, error) {
	mimeType := http.DetectContentType(image)
	if !supportedTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
	return mimeType, nil
}

func (a *Analyzer) Analyze(ctx context.Context, image []byte, kind Kind) (*Report, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	if len(image) > a.cfg.MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(image), a.cfg.MaxImageBytes)
	}

	mimeType, err := SniffImage(image)
	if err != nil {
		return nil, err
	}

	resp, err := a.describer.Describe(ctx, llm.VisionRequest{
		Instructions: systemInstructions,
		Prompt:       kind.Prompt(),
		Image:        image,
		MIMEType:     mimeType,
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
	})
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(kind.String(), "failed").Inc()
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}
	metrics.AnalysesTotal.WithLabelValues(kind.String(), "ok").Inc()

	logger.Info("Image analyzed",
		zap.String("kind", kind.String()),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(image)),
	)

	return &Report{
		Kind:      kind,
		Text:      resp.Content,
		MIMEType:  mimeType,
		Model:     resp.Model,
		CreatedAt: time.Now().UTC(),
	}, nil
}
