package vision

import (
	"context"

	"github.com/slipvault/slipvault/internal/extraction"
)

// Analyzer extracts structured slip fields straight from an image using a
// vision-capable model. It is a single-shot call: no retries, and the
// caller's context bounds the request.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (extraction.Fields, error)
	Close() error
}

// ExtractionError is the typed failure for the vision path. The reason is
// shown to the user so they can choose between retry, manual entry, or the
// heuristic extractor.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func failure(reason string, err error) *ExtractionError {
	return &ExtractionError{Reason: reason, Err: err}
}
