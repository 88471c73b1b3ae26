// Package conversation keeps the ordered dialogue of one user and mediates
// every turn through the completion service.
package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/llm"
	"github.com/genai-pages/backend/pkg/logger"
)

type Message = llm.Message

const (
	RoleSystem    = llm.RoleSystem
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

// Completer is the single network boundary a session touches.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type State int

const (
	StateEmpty State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "empty"
}

// Scope selects the system message of a turn. A non-nil Corpus puts the
// turn in grounding mode and takes precedence over Persona.
type Scope struct {
	Persona Persona
	Corpus  *Corpus
}

func (s Scope) Grounded() bool {
	return s.Corpus != nil
}

type Config struct {
	// Model overrides the completion client's default model.
	Model string
	// Grounded turns use these generation parameters; other turns use the
	// client defaults.
	GroundedMaxTokens   int
	GroundedTemperature float32
}

func DefaultConfig() Config {
	return Config{
		GroundedMaxTokens:   1000,
		GroundedTemperature: 0.3,
	}
}

// Session is an append-only history owned by a single writer. Callers
// serialize AppendTurn; every accessor hands out a copy.
type Session struct {
	completer Completer
	cfg       Config
	history   []Message
}

func NewSession(completer Completer, cfg Config) *Session {
	return &Session{completer: completer, cfg: cfg}
}

// AppendTurn sends utterance with the prior history and, on success,
// appends the user message and the reply together. On failure the history
// is left exactly as it was.
func (s *Session) AppendTurn(ctx context.Context, utterance string, scope Scope) (string, []Message, error) {
	if !scope.Persona.Valid() {
		return "", s.History(), fmt.Errorf("%w: %d", ErrUnknownPersona, int(scope.Persona))
	}

	if scope.Grounded() && scope.Corpus.IsEmpty() {
		logger.Debug("Grounded turn with empty corpus answered locally")
		return NoContentReply, s.History(), nil
	}

	req := s.buildRequest(utterance, scope)
	resp, err := s.completer.Chat(ctx, req)
	if err != nil {
		return "", s.History(), fmt.Errorf("failed to complete turn: %w", err)
	}

	s.history = append(s.history,
		Message{Role: RoleUser, Content: utterance},
		Message{Role: RoleAssistant, Content: resp.Content},
	)

	logger.Debug("Turn appended",
		zap.Int("history_len", len(s.history)),
		zap.Bool("grounded", scope.Grounded()),
		zap.String("persona", scope.Persona.String()),
	)

	return resp.Content, s.History(), nil
}

func (s *Session) buildRequest(utterance string, scope Scope) llm.ChatRequest {
	messages := make([]Message, 0, len(s.history)+2)

	req := llm.ChatRequest{Model: s.cfg.Model}
	switch {
	case scope.Grounded():
		messages = append(messages, Message{Role: RoleSystem, Content: groundingPrompt(scope.Corpus.Text())})
		req.MaxTokens = s.cfg.GroundedMaxTokens
		req.Temperature = s.cfg.GroundedTemperature
	case scope.Persona != PersonaNone:
		messages = append(messages, Message{Role: RoleSystem, Content: scope.Persona.Prompt()})
	}

	messages = append(messages, s.history...)
	messages = append(messages, Message{Role: RoleUser, Content: utterance})
	req.Messages = messages
	return req
}

// Clear drops the whole history.
func (s *Session) Clear() {
	s.history = nil
}

func (s *Session) History() []Message {
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) State() State {
	if len(s.history) == 0 {
		return StateEmpty
	}
	return StateActive
}

func (s *Session) Len() int {
	return len(s.history)
}

// Questions counts user messages in the history.
func (s *Session) Questions() int {
	n := 0
	for _, m := range s.history {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
