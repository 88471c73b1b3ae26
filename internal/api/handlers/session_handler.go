package handlers

import (
	"fmt"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
	"github.com/genai-pages/backend/internal/middleware/validation"
)

type SessionHandler struct {
	engine     *chat.Engine
	validator  *validation.Validator
	maxMessage int
}

// NewSessionHandler builds the REST session handler. Messages longer than
// maxMessage runes are rejected; zero disables the check.
func NewSessionHandler(engine *chat.Engine, validator *validation.Validator, maxMessage int) *SessionHandler {
	return &SessionHandler{
		engine:     engine,
		validator:  validator,
		maxMessage: maxMessage,
	}
}

func checkMessageLength(message string, limit int) error {
	if limit > 0 && utf8.RuneCountInString(message) > limit {
		return &validation.Error{Fields: map[string]string{
			"message": fmt.Sprintf("must be at most %d characters", limit),
		}}
	}
	return nil
}

type createSessionRequest struct {
	Mode    string `json:"mode" validate:"omitempty,oneof=chat documents"`
	Persona string `json:"persona"`
}

type turnRequest struct {
	Message string `json:"message" validate:"notblank"`
}

type personaRequest struct {
	Persona string `json:"persona" validate:"required"`
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req createSessionRequest
	if len(c.Body()) > 0 {
		if err := h.validator.Bind(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	mode, err := chat.ParseMode(req.Mode)
	if err != nil {
		return respondError(c, err)
	}
	persona, err := conversation.ParsePersona(req.Persona)
	if err != nil {
		return respondError(c, err)
	}

	snap, err := h.engine.Create(mode, persona)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(snap)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	snap, err := h.engine.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	if err := h.engine.Delete(c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) Ask(c *fiber.Ctx) error {
	var req turnRequest
	if err := h.validator.Bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := checkMessageLength(req.Message, h.maxMessage); err != nil {
		return respondError(c, err)
	}

	result, err := h.engine.Ask(c.UserContext(), c.Params("id"), req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func (h *SessionHandler) ClearHistory(c *fiber.Ctx) error {
	if err := h.engine.ClearHistory(c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) SetPersona(c *fiber.Ctx) error {
	var req personaRequest
	if err := h.validator.Bind(c, &req); err != nil {
		return respondError(c, err)
	}
	persona, err := conversation.ParsePersona(req.Persona)
	if err != nil {
		return respondError(c, err)
	}

	snap, err := h.engine.SetPersona(c.Params("id"), persona)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

func (h *SessionHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.engine.Stats(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

func (h *SessionHandler) Turns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	turns, err := h.engine.Turns(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"turns": turns})
}

func (h *SessionHandler) Personas(c *fiber.Ctx) error {
	type entry struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	}

	out := make([]entry, 0, len(conversation.Personas()))
	for _, p := range conversation.Personas() {
		out = append(out, entry{Name: p.String(), Title: p.Title()})
	}
	return c.JSON(fiber.Map{"personas": out})
}
