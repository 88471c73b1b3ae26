package extraction

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`\s+`)

// HTML returns the visible body text with layout chrome removed.
func HTML(_ context.Context, doc Document) (string, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Content))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExtractionFailed, doc.Name, err)
	}

	page.Find("script, style, nav, footer, header, aside, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var sb strings.Builder
	if title := strings.TrimSpace(page.Find("title").First().Text()); title != "" {
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(whitespace.ReplaceAllString(page.Find("body").Text(), " ")))

	return sb.String(), nil
}

// PlainText accepts UTF-8 text as is.
func PlainText(_ context.Context, doc Document) (string, error) {
	if !utf8.Valid(doc.Content) {
		return "", fmt.Errorf("%w: %s: not valid UTF-8 text", ErrExtractionFailed, doc.Name)
	}
	return strings.TrimPrefix(string(doc.Content), "\ufeff"), nil
}

var byExtension = map[string]ExtractFunc{
	".pdf":      PDF,
	".html":     HTML,
	".htm":      HTML,
	".txt":      PlainText,
	".md":       PlainText,
	".markdown": PlainText,
	".csv":      PlainText,
}

// ForFile picks the extractor for a file name by extension.
func ForFile(name string) (ExtractFunc, error) {
	fn, ok := byExtension[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	return fn, nil
}

// Supported reports whether ForFile would accept name.
func Supported(name string) bool {
	_, ok := byExtension[strings.ToLower(filepath.Ext(name))]
	return ok
}
