package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/fetch"
	"github.com/genai-pages/backend/internal/middleware/validation"
	"github.com/genai-pages/backend/pkg/logger"
)

type DocumentHandler struct {
	engine    *chat.Engine
	cache     *extraction.Cache
	fetcher   *fetch.Client
	validator *validation.Validator
	maxDocs   int
}

func NewDocumentHandler(engine *chat.Engine, cache *extraction.Cache, fetcher *fetch.Client, validator *validation.Validator, maxDocs int) *DocumentHandler {
	if maxDocs <= 0 {
		maxDocs = 20
	}
	return &DocumentHandler{
		engine:    engine,
		cache:     cache,
		fetcher:   fetcher,
		validator: validator,
		maxDocs:   maxDocs,
	}
}

type addURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// AddURL downloads a remote page or file and adds it like an upload.
func (h *DocumentHandler) AddURL(c *fiber.Ctx) error {
	var req addURLRequest
	if err := h.validator.Bind(c, &req); err != nil {
		return respondError(c, err)
	}

	doc, err := h.fetcher.Fetch(c.UserContext(), req.URL)
	if err != nil {
		return respondError(c, err)
	}

	res, err := h.engine.AddDocument(c.UserContext(), c.Params("id"), doc)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

type uploadFailure struct {
	Name      string `json:"name"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// Upload extracts every file of the multipart "files" field into the
// session corpus. A file that fails is reported next to the ones that
// succeeded; the request only fails when none did.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, &validation.Error{Fields: map[string]string{"files": "multipart form required"}})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return respondError(c, &validation.Error{Fields: map[string]string{"files": "is required"}})
	}
	if len(files) > h.maxDocs {
		return respondError(c, &validation.Error{Fields: map[string]string{"files": fmt.Sprintf("at most %d files per request", h.maxDocs)}})
	}

	id := c.Params("id")
	added := make([]*chat.DocumentResult, 0, len(files))
	var failures []uploadFailure
	var firstErr error

	for _, fh := range files {
		doc, err := readUpload(fh)
		if err == nil {
			var res *chat.DocumentResult
			res, err = h.engine.AddDocument(c.UserContext(), id, doc)
			if err == nil {
				added = append(added, res)
				continue
			}
		}

		if firstErr == nil {
			firstErr = err
		}
		logger.Warn("Document rejected", zap.String("session_id", id), zap.String("file", fh.Filename), zap.Error(err))
		failures = append(failures, uploadFailure{Name: fh.Filename, Error: err.Error(), ErrorKind: classify(err).kind})
	}

	if len(added) == 0 {
		return respondError(c, firstErr)
	}

	return c.JSON(fiber.Map{
		"documents": added,
		"failed":    failures,
	})
}

func readUpload(fh *multipart.FileHeader) (extraction.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return extraction.Document{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return extraction.Document{Name: fh.Filename, Content: content}, nil
}

func (h *DocumentHandler) Remove(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return respondError(c, &validation.Error{Fields: map[string]string{"name": "invalid escape"}})
	}
	if err := h.engine.RemoveDocument(c.Params("id"), name); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *DocumentHandler) Clear(c *fiber.Ctx) error {
	if err := h.engine.ClearDocuments(c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ClearCache drops every cached extraction. Sessions keep the text they
// already hold.
func (h *DocumentHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.cache.Clear(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	logger.Info("Extraction cache cleared")
	return c.SendStatus(fiber.StatusNoContent)
}
