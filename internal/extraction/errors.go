package extraction

import (
	"errors"

	"github.com/genai-pages/backend/internal/storage"
)

var (
	// ErrExtractionFailed means no usable text came out of a document.
	// Nothing is cached for it.
	ErrExtractionFailed = errors.New("extraction failed")

	ErrUnsupportedFormat = errors.New("unsupported document format")

	ErrNotFound = storage.ErrNotFound
)
