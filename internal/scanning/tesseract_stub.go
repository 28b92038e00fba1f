//go:build !ocr

package scanning

import (
	"context"
	"errors"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// ErrOCRNotEnabled is returned when Tesseract support was not compiled in.
// Rebuild with -tags ocr to enable it.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Tesseract is a stub used when the "ocr" build tag is not set
type Tesseract struct{}

// NewTesseract returns ErrOCRNotEnabled
func NewTesseract(lang string) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Extract returns a permanent ErrOCRNotEnabled failure
func (t *Tesseract) Extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, error) {
	return invoice.ExtractedText{}, Permanent("tesseract", ErrOCRNotEnabled)
}

// Close is a no-op and is safe on a nil receiver
func (t *Tesseract) Close() error {
	return nil
}
