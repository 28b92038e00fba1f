// Package invoice holds the values that flow through the intake pipeline:
// raw documents, extracted text, parsed candidates, verdicts and results.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawDocument is an uploaded invoice file as handed to the extraction step
type RawDocument struct {
	Name   string `json:"name"`
	Format Format `json:"format"`
	Data   []byte `json:"-"`
}

// ExtractedText is what an extraction engine produced for a document
type ExtractedText struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
}

// NewExtractedText clamps confidence into [0,1]
func NewExtractedText(text string, confidence float64) ExtractedText {
	return ExtractedText{Text: text, Confidence: clamp01(confidence)}
}

// Field names a parsed invoice field
type Field string

const (
	FieldInvoiceNumber Field = "invoice_number"
	FieldVendorName    Field = "vendor_name"
	FieldInvoiceDate   Field = "invoice_date"
	FieldAmount        Field = "amount"
	FieldTaxAmount     Field = "tax_amount"
)

// Fields lists every parsed field in reporting order
var Fields = []Field{
	FieldInvoiceNumber,
	FieldVendorName,
	FieldInvoiceDate,
	FieldAmount,
	FieldTaxAmount,
}

// CandidateInvoice is the parser's output. Nil pointers are absent fields.
type CandidateInvoice struct {
	InvoiceNumber   *string           `json:"invoice_number,omitempty"`
	VendorName      *string           `json:"vendor_name,omitempty"`
	InvoiceDate     *time.Time        `json:"invoice_date,omitempty"`
	Amount          *decimal.Decimal  `json:"amount,omitempty"`
	TaxAmount       *decimal.Decimal  `json:"tax_amount,omitempty"`
	FieldConfidence map[Field]float64 `json:"field_confidence"`
}

// NewCandidate returns a candidate with every field absent
func NewCandidate() CandidateInvoice {
	conf := make(map[Field]float64, len(Fields))
	for _, f := range Fields {
		conf[f] = 0
	}
	return CandidateInvoice{FieldConfidence: conf}
}

// Has reports whether a field was populated
func (c CandidateInvoice) Has(f Field) bool {
	switch f {
	case FieldInvoiceNumber:
		return c.InvoiceNumber != nil
	case FieldVendorName:
		return c.VendorName != nil
	case FieldInvoiceDate:
		return c.InvoiceDate != nil
	case FieldAmount:
		return c.Amount != nil
	case FieldTaxAmount:
		return c.TaxAmount != nil
	}
	return false
}

// Confidence returns the confidence of a field, 0 when absent
func (c CandidateInvoice) Confidence(f Field) float64 {
	if !c.Has(f) {
		return 0
	}
	return c.FieldConfidence[f]
}

// Set helpers keep the value/confidence invariant in one place.

func (c *CandidateInvoice) SetInvoiceNumber(v string, conf float64) {
	c.InvoiceNumber = &v
	c.setConfidence(FieldInvoiceNumber, conf)
}

func (c *CandidateInvoice) SetVendorName(v string, conf float64) {
	c.VendorName = &v
	c.setConfidence(FieldVendorName, conf)
}

func (c *CandidateInvoice) SetInvoiceDate(v time.Time, conf float64) {
	c.InvoiceDate = &v
	c.setConfidence(FieldInvoiceDate, conf)
}

func (c *CandidateInvoice) SetAmount(v decimal.Decimal, conf float64) {
	c.Amount = &v
	c.setConfidence(FieldAmount, conf)
}

func (c *CandidateInvoice) SetTaxAmount(v decimal.Decimal, conf float64) {
	c.TaxAmount = &v
	c.setConfidence(FieldTaxAmount, conf)
}

func (c *CandidateInvoice) setConfidence(f Field, conf float64) {
	if c.FieldConfidence == nil {
		c.FieldConfidence = make(map[Field]float64, len(Fields))
	}
	c.FieldConfidence[f] = clamp01(conf)
}

// Key identifies an accepted invoice for duplicate detection. All parts are
// already normalized.
type Key struct {
	Vendor string `json:"vendor"`
	Number string `json:"number"`
	Amount string `json:"amount"`
}

// String is the canonical form used as an index key
func (k Key) String() string {
	return k.Vendor + "\x1f" + k.Number + "\x1f" + k.Amount
}

// IsZero reports whether the key was never built
func (k Key) IsZero() bool {
	return k == Key{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
