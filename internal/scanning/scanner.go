// Package scanning turns invoice documents into text. Implementations wrap an
// LLM (Gemini, Ollama), a local OCR engine (Tesseract) or the document's own
// text layer.
package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Extractor defines the interface for text extraction
type Extractor interface {
	// Extract returns the text of a document and a confidence in [0,1]
	Extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, error)
	// Close closes the extractor and releases resources
	Close() error
}

// ErrUnsupportedFormat is returned for documents an extractor cannot read
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrorKind tells the caller whether retrying may help
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// ExtractionError is a classified extraction failure
type ExtractionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure
func Transient(op string, err error) error {
	return &ExtractionError{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a failure that retrying cannot fix
func Permanent(op string, err error) error {
	return &ExtractionError{Kind: KindPermanent, Op: op, Err: err}
}

// IsTransient reports whether an extraction error is worth retrying.
// Unclassified errors are treated as transient; cancellation never is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind == KindTransient
	}
	return true
}

// statusError classifies an HTTP status from a remote engine
func statusError(op string, code int, err error) error {
	if code == 429 || code >= 500 {
		return Transient(op, err)
	}
	return Permanent(op, err)
}
