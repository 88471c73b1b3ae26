package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/genai-pages/backend/internal/analysis"
	"github.com/genai-pages/backend/internal/middleware/validation"
)

type AnalysisHandler struct {
	analyzer *analysis.Analyzer
}

func NewAnalysisHandler(analyzer *analysis.Analyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer}
}

// Analyze reads the multipart "image" file and the "kind" form value.
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	kind, err := analysis.ParseKind(c.FormValue("kind", "general"))
	if err != nil {
		return respondError(c, err)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return respondError(c, &validation.Error{Fields: map[string]string{"image": "is required"}})
	}
	f, err := fh.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		return respondError(c, err)
	}

	report, err := h.analyzer.Analyze(c.UserContext(), image, kind)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func (h *AnalysisHandler) Kinds(c *fiber.Ctx) error {
	names := make([]string, 0, len(analysis.Kinds()))
	for _, k := range analysis.Kinds() {
		names = append(names, k.String())
	}
	return c.JSON(fiber.Map{"kinds": names})
}
