package intake

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Invoice is an accepted invoice persisted for reporting
type Invoice struct {
	ID                   string                    `json:"id"`
	InvoiceNumber        string                    `json:"invoice_number"`
	VendorName           string                    `json:"vendor_name"`
	InvoiceDate          *time.Time                `json:"invoice_date,omitempty"`
	Amount               decimal.Decimal           `json:"amount"`
	TaxAmount            *decimal.Decimal          `json:"tax_amount,omitempty"`
	FieldConfidence      map[invoice.Field]float64 `json:"field_confidence"`
	ExtractionConfidence float64                   `json:"extraction_confidence"`
	Key                  invoice.Key               `json:"key"`
	DocumentName         string                    `json:"document_name"`
	Filename             string                    `json:"filename"`
	ContentType          string                    `json:"content_type"`
	Reviewed             bool                      `json:"reviewed"` // stored after manual review
	CreatedAt            time.Time                 `json:"created_at"`
}

// Record is the audit trail entry kept for every processed document
type Record struct {
	ID        string                   `json:"id"`
	Result    invoice.ProcessingResult `json:"result"`
	Summary   string                   `json:"summary"`
	InvoiceID string                   `json:"invoice_id,omitempty"`
	ReviewID  string                   `json:"review_id,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// Review parks a result flagged for manual review
type Review struct {
	ID          string                   `json:"id"`
	Result      invoice.ProcessingResult `json:"result"`
	Filename    string                   `json:"filename"`
	ContentType string                   `json:"content_type"`
	CreatedAt   time.Time                `json:"created_at"`
}

// Stats summarises the store
type Stats struct {
	TotalInvoices     int                         `json:"total_invoices"`
	TotalAmount       decimal.Decimal             `json:"total_amount"`
	TotalTax          decimal.Decimal             `json:"total_tax"`
	AverageConfidence float64                     `json:"average_confidence"`
	PendingReviews    int                         `json:"pending_reviews"`
	ByStatus          map[invoice.FinalStatus]int `json:"by_status"`
}

// newInvoice builds the persisted form of a candidate. The candidate must
// carry the key fields.
func newInvoice(id string, result invoice.ProcessingResult, filename, contentType string, now time.Time) *Invoice {
	c := result.Candidate
	inv := &Invoice{
		ID:                   id,
		InvoiceDate:          c.InvoiceDate,
		TaxAmount:            c.TaxAmount,
		FieldConfidence:      c.FieldConfidence,
		ExtractionConfidence: result.Extraction.Confidence,
		Key:                  result.Key,
		DocumentName:         result.DocumentName,
		Filename:             filename,
		ContentType:          contentType,
		CreatedAt:            now,
	}
	if c.InvoiceNumber != nil {
		inv.InvoiceNumber = *c.InvoiceNumber
	}
	if c.VendorName != nil {
		inv.VendorName = *c.VendorName
	}
	if c.Amount != nil {
		inv.Amount = *c.Amount
	}
	return inv
}

// averageConfidence is the mean confidence of populated fields
func (i *Invoice) averageConfidence() float64 {
	var sum float64
	var n int
	for _, conf := range i.FieldConfidence {
		if conf > 0 {
			sum += conf
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
