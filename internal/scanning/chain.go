package scanning

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Chain tries extractors in order. It moves to the next one only when the
// current one cannot read the document at all (unsupported format or no
// text layer); any other failure is returned as is.
type Chain struct {
	extractors []Extractor
}

// NewChain creates a Chain over the given extractors
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

func (c *Chain) Extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, error) {
	var lastErr error = Permanent("chain", ErrUnsupportedFormat)
	for _, e := range c.extractors {
		text, err := e.Extract(ctx, doc)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrUnsupportedFormat) && !errors.Is(err, ErrNoTextLayer) {
			return invoice.ExtractedText{}, err
		}
		slog.Debug("Extractor skipped document", "document", doc.Name, "error", err)
		lastErr = err
	}
	return invoice.ExtractedText{}, lastErr
}

// Close closes every extractor and returns the first error
func (c *Chain) Close() error {
	var first error
	for _, e := range c.extractors {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
