// Package fetch downloads remote documents so they can be extracted like
// uploads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/pkg/logger"
)

var (
	ErrInvalidURL  = errors.New("invalid document url")
	ErrFetchFailed = errors.New("failed to fetch document")
	ErrTooLarge    = errors.New("remote document too large")
)

var extensionsByType = map[string]string{
	"text/html":             ".html",
	"application/xhtml+xml": ".html",
	"application/pdf":       ".pdf",
	"text/plain":            ".txt",
	"text/markdown":         ".md",
	"text/csv":              ".csv",
}

type Client struct {
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
}

func NewClient(timeout time.Duration, maxBytes int64) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 20 * 1024 * 1024
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		userAgent:  "genai-pages-fetcher/1.0",
	}
}

// Fetch downloads rawURL and names the document so that extraction.ForFile
// picks the extractor matching its content type.
func (c *Client) Fetch(ctx context.Context, rawURL string) (extraction.Document, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return extraction.Document{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return extraction.Document{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return extraction.Document{}, fmt.Errorf("%w: %s returned status %d", ErrFetchFailed, u.Host, resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return extraction.Document{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return extraction.Document{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if int64(len(body)) > c.maxBytes {
		return extraction.Document{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}

	name, err := documentName(u, resp.Header.Get("Content-Type"))
	if err != nil {
		return extraction.Document{}, err
	}

	logger.Info("Remote document fetched",
		zap.String("url", u.String()),
		zap.String("name", name),
		zap.Int("bytes", len(body)),
	)
	return extraction.Document{Name: name, Content: body}, nil
}

// documentName keeps the last path segment when it already has a supported
// extension and otherwise derives one from the content type.
func documentName(u *url.URL, contentType string) (string, error) {
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		base = ""
	}
	if base != "" && extraction.Supported(base) {
		return base, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	ext, ok := extensionsByType[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: content type %q", extraction.ErrUnsupportedFormat, contentType)
	}

	stem := u.Host
	if base != "" {
		stem = strings.TrimSuffix(base, path.Ext(base))
	}
	return stem + ext, nil
}
