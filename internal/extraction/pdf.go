package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/pkg/logger"
)

// PageText is the outcome of reading one page. Err marks a page whose text
// could not be read.
type PageText struct {
	Number int
	Text   string
	Err    error
}

// PDF extracts the text of every page. Unreadable pages become inline
// placeholders; the document fails only when no page yields any text.
func PDF(ctx context.Context, doc Document) (string, error) {
	if len(doc.Content) == 0 {
		return "", fmt.Errorf("%w: %s: empty file", ErrExtractionFailed, doc.Name)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if n, err := api.PageCount(bytes.NewReader(doc.Content), conf); err != nil {
		logger.Warn("PDF preflight failed, trying text reader",
			zap.String("name", doc.Name),
			zap.Error(err),
		)
	} else if n == 0 {
		return "", fmt.Errorf("%w: %s: document has no pages", ErrExtractionFailed, doc.Name)
	}

	reader, err := openPDF(doc.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExtractionFailed, doc.Name, err)
	}

	total := reader.NumPage()
	if total == 0 {
		return "", fmt.Errorf("%w: %s: document has no pages", ErrExtractionFailed, doc.Name)
	}

	pages := make([]PageText, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := readPage(reader, i)
		pages = append(pages, PageText{Number: i, Text: text, Err: err})
	}

	return AssemblePages(doc.Name, pages)
}

// AssemblePages joins pages under "--- Page N ---" headers.
func AssemblePages(name string, pages []PageText) (string, error) {
	var sb strings.Builder
	readable := 0
	var lastErr error

	for _, p := range pages {
		text := p.Text
		if p.Err != nil {
			lastErr = p.Err
			metrics.ExtractionPageFailures.Inc()
			logger.Warn("Could not extract text from page",
				zap.String("name", name),
				zap.Int("page", p.Number),
				zap.Error(p.Err),
			)
			text = fmt.Sprintf("[page %d: text could not be extracted: %v]", p.Number, p.Err)
		} else if strings.TrimSpace(text) != "" {
			readable++
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n%s\n", p.Number, text)
	}

	if readable == 0 {
		if lastErr != nil {
			return "", fmt.Errorf("%w: %s: no readable pages: %w", ErrExtractionFailed, name, lastErr)
		}
		return "", fmt.Errorf("%w: %s: no text found", ErrExtractionFailed, name)
	}
	return sb.String(), nil
}

// The text reader panics on some malformed inputs; both entry points turn
// that into an error.
func openPDF(content []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	r, err = pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return r, nil
}

func readPage(r *pdf.Reader, number int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page: %v", rec)
		}
	}()

	page := r.Page(number)
	if page.V.IsNull() {
		return "", fmt.Errorf("page object missing")
	}
	return page.GetPlainText(nil)
}
