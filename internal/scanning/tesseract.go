//go:build ocr

package scanning

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Tesseract runs OCR locally through gosseract. It requires Tesseract to be
// installed and the binary to be built with -tags ocr.
type Tesseract struct {
	mu     sync.Mutex // gosseract clients are not safe for concurrent use
	client *gosseract.Client
}

// NewTesseract creates a Tesseract extractor for the given languages,
// e.g. "eng" or "eng+deu"
func NewTesseract(lang string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if lang != "" {
		if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting tesseract language: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}
	return &Tesseract{client: client}, nil
}

// Extract OCRs every page after grayscale and contrast enhancement
func (t *Tesseract) Extract(ctx context.Context, doc invoice.RawDocument) (invoice.ExtractedText, error) {
	pages, err := renderPages(doc)
	if err != nil {
		return invoice.ExtractedText{}, Permanent("tesseract render", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		b        strings.Builder
		confSum  float64
		confSeen int
	)
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return invoice.ExtractedText{}, err
		}
		enhanced, err := enhanceForOCR(page)
		if err != nil {
			return invoice.ExtractedText{}, Permanent("tesseract enhance", err)
		}
		if err := t.client.SetImageFromBytes(enhanced); err != nil {
			return invoice.ExtractedText{}, Permanent("tesseract image", fmt.Errorf("page %d: %w", i+1, err))
		}
		text, err := t.client.Text()
		if err != nil {
			return invoice.ExtractedText{}, Transient("tesseract ocr", fmt.Errorf("page %d: %w", i+1, err))
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(strings.TrimSpace(text))

		boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err == nil {
			for _, box := range boxes {
				confSum += box.Confidence
				confSeen++
			}
		}
	}

	text := b.String()
	conf := heuristicConfidence(text)
	if confSeen > 0 {
		conf = blendConfidence(confSum/float64(confSeen)/100, conf)
	}
	return invoice.NewExtractedText(text, conf), nil
}

// Close releases the Tesseract client
func (t *Tesseract) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
