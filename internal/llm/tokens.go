package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/pkg/logger"
)

// TokenCounter estimates prompt sizes with the OpenAI BPE tables. Encodings
// are loaded lazily per model and cached.
type TokenCounter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (t *TokenCounter) encoding(model string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("Token encoding unavailable", zap.String("model", model), zap.Error(err))
			t.encodings[model] = nil
			return nil
		}
	}
	t.encodings[model] = enc
	return enc
}

// Count returns the token length of text, or a rough four-characters-per
// token estimate when no encoding can be loaded.
func (t *TokenCounter) Count(model, text string) int {
	if enc := t.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// CountMessages follows the chat format overhead of three tokens per
// message plus three for the reply primer.
func (t *TokenCounter) CountMessages(model string, messages []Message) int {
	total := 3
	for _, m := range messages {
		total += 3 + t.Count(model, string(m.Role)) + t.Count(model, m.Content)
	}
	return total
}
