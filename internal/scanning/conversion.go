package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// transcribePrompt is the shared prompt used by all LLM providers. The model
// only transcribes; field extraction happens in the parser.
const transcribePrompt = `You are transcribing an invoice document. Read every piece of text in the image and write it out exactly as printed.

Rules:
- Preserve the original line breaks and reading order, top to bottom, left to right
- Keep labels together with their values on the same line (e.g. "Invoice Number: INV-001")
- Copy numbers, dates and currency symbols exactly; do not reformat or convert them
- Do not summarise, translate, correct or explain anything
- Do not add any text before or after the transcription
- Do not use markdown code blocks`

// MaxPages caps how many PDF pages are rendered per document
const MaxPages = 5

// renderPages converts a document into one PNG per page. Images are a single
// page; PDFs are rendered with go-fitz up to MaxPages.
func renderPages(doc invoice.RawDocument) ([][]byte, error) {
	switch doc.Format {
	case invoice.FormatPDF:
		return pdfToImages(doc.Data)
	case invoice.FormatPNG, invoice.FormatJPEG, invoice.FormatHEIC:
		img, err := decodeImage(doc.Data, doc.Format)
		if err != nil {
			return nil, err
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format)
}

// pdfToImages renders each PDF page as PNG
func pdfToImages(pdfData []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n > MaxPages {
		n = MaxPages
	}
	pages := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, data)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	return pages, nil
}

// pdfText returns the embedded text layer of a PDF, joined by form feeds
func pdfText(pdfData []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage() && i < MaxPages; i++ {
		txt, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("reading PDF page %d text: %w", i+1, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

// decodeImage decodes JPEG, PNG and HEIC data
func decodeImage(data []byte, format invoice.Format) (image.Image, error) {
	if format == invoice.FormatHEIC || isHEICFormat(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// enhanceForOCR grayscales, boosts contrast and sharpens a page image.
// Large scans are scaled down to keep OCR time bounded.
func enhanceForOCR(pngData []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	if b := img.Bounds(); b.Dx() > 3000 || b.Dy() > 3000 {
		img = imaging.Fit(img, 3000, 3000, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding enhanced page: %w", err)
	}
	return buf.Bytes(), nil
}

// cleanTranscript strips markdown fences an LLM may wrap its answer in
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
