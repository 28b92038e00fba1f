package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// ErrNoTextLayer is returned for PDFs without embedded text
var ErrNoTextLayer = errors.New("document has no text layer")

// PlainText reads text that is already in the document: .txt files and the
// text layer of digital PDFs. Images are not supported.
type PlainText struct{}

// NewPlainText creates a PlainText extractor
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Extract returns the document's own text
func (p *PlainText) Extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return invoice.ExtractedText{}, err
	}

	switch doc.Format {
	case invoice.FormatText:
		if !utf8.Valid(doc.Data) {
			return invoice.ExtractedText{}, Permanent("plaintext read", fmt.Errorf("text is not valid UTF-8"))
		}
		text := string(doc.Data)
		// Typed text has no recognition error; only layout cues count.
		return invoice.NewExtractedText(text, blendConfidence(1, heuristicConfidence(text))), nil
	case invoice.FormatPDF:
		text, err := pdfText(doc.Data)
		if err != nil {
			return invoice.ExtractedText{}, Permanent("plaintext pdf", err)
		}
		if strings.TrimSpace(strings.ReplaceAll(text, "\f", "")) == "" {
			return invoice.ExtractedText{}, Permanent("plaintext pdf", ErrNoTextLayer)
		}
		return invoice.NewExtractedText(text, blendConfidence(1, heuristicConfidence(text))), nil
	}
	return invoice.ExtractedText{}, Permanent("plaintext read", fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format))
}

// Close is a no-op
func (p *PlainText) Close() error {
	return nil
}
