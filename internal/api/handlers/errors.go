package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/analysis"
	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/conversation"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/fetch"
	"github.com/genai-pages/backend/internal/ingestion"
	"github.com/genai-pages/backend/internal/llm"
	"github.com/genai-pages/backend/internal/middleware/validation"
	"github.com/genai-pages/backend/pkg/logger"
)

type errorClass struct {
	status int
	kind   string
}

// classify maps a failure onto the status code and the stable error_kind
// clients switch on.
func classify(err error) errorClass {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return errorClass{fiber.StatusBadRequest, "invalid_request"}
	case errors.Is(err, chat.ErrWorkspaceNotFound), errors.Is(err, chat.ErrDocumentNotFound):
		return errorClass{fiber.StatusNotFound, "not_found"}
	case errors.Is(err, llm.ErrAuthenticationFailed):
		return errorClass{fiber.StatusBadGateway, "authentication"}
	case errors.Is(err, llm.ErrQuotaExceeded):
		return errorClass{fiber.StatusTooManyRequests, "quota"}
	case errors.Is(err, llm.ErrServiceUnavailable):
		return errorClass{fiber.StatusServiceUnavailable, "unavailable"}
	case errors.Is(err, fetch.ErrFetchFailed):
		return errorClass{fiber.StatusBadGateway, "fetch_failed"}
	case errors.Is(err, extraction.ErrExtractionFailed):
		return errorClass{fiber.StatusUnprocessableEntity, "extraction_failed"}
	case errors.Is(err, analysis.ErrImageTooLarge), errors.Is(err, ingestion.ErrFileTooLarge),
		errors.Is(err, fetch.ErrTooLarge):
		return errorClass{fiber.StatusRequestEntityTooLarge, "too_large"}
	case errors.Is(err, llm.ErrInvalidRequest),
		errors.Is(err, conversation.ErrUnknownPersona),
		errors.Is(err, analysis.ErrUnknownKind),
		errors.Is(err, analysis.ErrUnsupportedImage),
		errors.Is(err, extraction.ErrUnsupportedFormat),
		errors.Is(err, fetch.ErrInvalidURL),
		errors.Is(err, chat.ErrInvalidMode),
		errors.Is(err, chat.ErrWrongMode):
		return errorClass{fiber.StatusBadRequest, "invalid_request"}
	case errors.Is(err, context.DeadlineExceeded):
		return errorClass{fiber.StatusGatewayTimeout, "timeout"}
	default:
		return errorClass{fiber.StatusInternalServerError, "internal"}
	}
}

func respondError(c *fiber.Ctx, err error) error {
	class := classify(err)

	body := fiber.Map{
		"error":      err.Error(),
		"error_kind": class.kind,
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}

	if class.status >= fiber.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.String("error_kind", class.kind),
			zap.Error(err),
		)
		if class.kind == "internal" {
			body["error"] = "Internal server error"
		}
	}

	return c.Status(class.status).JSON(body)
}
