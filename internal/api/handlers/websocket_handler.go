package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine     *chat.Engine
	maxMessage int
}

func NewWebSocketHandler(engine *chat.Engine, maxMessage int) *WebSocketHandler {
	return &WebSocketHandler{
		engine:     engine,
		maxMessage: maxMessage,
	}
}

type wsMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// HandleConnection serves one socket bound to the session in the route, or
// to the session_id of each message when the route has none. Turns run
// under a context that is cancelled once the client goes away.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	bound := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("session_id", bound))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("session_id", bound))
	}()

	messages := h.readMessages(ctx, cancel, c)

	for msg := range messages {
		id := msg.SessionID
		if bound != "" {
			id = bound
		}

		var err error
		switch msg.Type {
		case "turn":
			err = h.streamTurn(ctx, c, id, msg.Content)
		case "clear":
			err = h.engine.ClearHistory(id)
			if err == nil {
				err = c.WriteJSON(map[string]any{"type": "cleared"})
			}
		default:
			h.sendError(c, "unknown message type", "invalid_request")
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("WebSocket request failed", zap.String("session_id", id), zap.Error(err))
			h.sendError(c, err.Error(), classify(err).kind)
		}
	}
}

// readMessages is the only reader of c. It cancels ctx when the peer
// closes or the read fails, which aborts a turn in flight.
func (h *WebSocketHandler) readMessages(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn) <-chan wsMessage {
	out := make(chan wsMessage)

	go func() {
		defer close(out)
		defer cancel()

		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("Failed to read WebSocket message", zap.Error(err))
				}
				return
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (h *WebSocketHandler) streamTurn(ctx context.Context, c *websocket.Conn, id, content string) error {
	if strings.TrimSpace(content) == "" {
		h.sendError(c, "message is required", "invalid_request")
		return nil
	}
	if err := checkMessageLength(content, h.maxMessage); err != nil {
		h.sendError(c, err.Error(), "invalid_request")
		return nil
	}

	if err := h.sendChunk(c, "status", "Thinking..."); err != nil {
		return err
	}

	result, err := h.engine.Ask(ctx, id, content)
	if err != nil {
		return err
	}

	words := splitIntoWords(result.Reply)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]any{
		"type":       "complete",
		"message_id": result.ID,
		"answered":   result.Answered,
		"grounded":   result.Grounded,
		"latency_ms": result.LatencyMS,
		"history":    result.History,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]any{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg, kind string) {
	_ = c.WriteJSON(map[string]any{
		"type":       "error",
		"error":      errorMsg,
		"error_kind": kind,
	})
}

// splitIntoWords keeps line breaks as their own tokens so clients can
// rebuild the reply layout from the chunks.
func splitIntoWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		switch r {
		case ' ', '\n':
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
			if r == '\n' {
				words = append(words, "\n")
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}
