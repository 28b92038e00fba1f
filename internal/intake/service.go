// Package intake persists processed invoices and serves them over HTTP.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Processor runs a document through the intake pipeline
type Processor interface {
	Process(ctx context.Context, doc invoice.RawDocument) (*invoice.ProcessingResult, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Outcome is what an upload produced
type Outcome struct {
	Result    invoice.ProcessingResult `json:"result"`
	Summary   string                   `json:"summary"`
	InvoiceID string                   `json:"invoice_id,omitempty"`
	ReviewID  string                   `json:"review_id,omitempty"`
}

// Service handles invoice operations
type Service struct {
	db          DB
	processor   Processor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID IDs and the wall clock
func NewService(db DB, processor Processor, storage Storage) *Service {
	return NewServiceWithDeps(db, processor, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, processor Processor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		processor:   processor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long names
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "invoice"
	}
	return base + strings.ToLower(ext)
}

// ProcessDocument stores an uploaded document, runs it through the pipeline
// and persists the outcome. Stored invoices and flagged reviews keep the
// document; other outcomes drop it. Every outcome is written to the audit
// trail. Errors are infrastructure failures only.
func (s *Service) ProcessDocument(ctx context.Context, filename string, data []byte, contentType string) (*Outcome, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	format := invoice.FormatFromContentType(contentType)
	if format == "" {
		format = invoice.FormatFromFilename(filename)
	}
	if format != "" {
		contentType = format.ContentType()
	}

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	result, err := s.processor.Process(ctx, invoice.RawDocument{Name: filename, Format: format, Data: data})
	if err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("processing document: %w", err)
	}

	outcome := &Outcome{}
	keepFile := false
	switch result.FinalStatus {
	case invoice.FinalStored:
		inv := newInvoice(id, *result, savedPath, contentType, now)
		err := s.db.StoreInvoice(inv)
		switch {
		case errors.Is(err, ErrDuplicate):
			*result = result.AsDuplicate()
		case err != nil:
			s.removeFile(savedPath)
			return nil, fmt.Errorf("storing invoice: %w", err)
		default:
			outcome.InvoiceID = inv.ID
			keepFile = true
		}
	case invoice.FinalFlaggedForReview:
		review := &Review{ID: id, Result: *result, Filename: savedPath, ContentType: contentType, CreatedAt: now}
		if err := s.db.SaveReview(review); err != nil {
			s.removeFile(savedPath)
			return nil, fmt.Errorf("saving review: %w", err)
		}
		outcome.ReviewID = review.ID
		keepFile = true
	}
	if !keepFile {
		s.removeFile(savedPath)
	}

	outcome.Result = *result
	outcome.Summary = result.Summary()
	rec := &Record{
		ID:        id,
		Result:    *result,
		Summary:   outcome.Summary,
		InvoiceID: outcome.InvoiceID,
		ReviewID:  outcome.ReviewID,
		CreatedAt: now,
	}
	if err := s.db.SaveResult(rec); err != nil {
		return nil, fmt.Errorf("saving result: %w", err)
	}

	slog.Info("Document processed",
		"id", id,
		"document", filename,
		"status", result.FinalStatus,
		"summary", outcome.Summary,
	)
	return outcome, nil
}

func (s *Service) removeFile(name string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete file", "filename", name, "error", err)
	}
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns all stored invoices
func (s *Service) ListInvoices() ([]*Invoice, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// GetInvoiceFile retrieves the original document of an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, string, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice: %w", err)
	}

	data, err := s.storage.Get(inv.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice file: %w", err)
	}

	return data, inv.ContentType, nil
}

// ListResults returns the audit trail
func (s *Service) ListResults() ([]*Record, error) {
	records, err := s.db.ListResults()
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return records, nil
}

// ListReviews returns results waiting for manual review
func (s *Service) ListReviews() ([]*Review, error) {
	reviews, err := s.db.ListReviews()
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	return reviews, nil
}

// ConfirmReview stores a flagged invoice. It returns ErrDuplicate, and drops
// the review, when an invoice with the same key was stored in the meantime.
func (s *Service) ConfirmReview(id string) (*Invoice, error) {
	review, err := s.db.GetReview(id)
	if err != nil {
		return nil, fmt.Errorf("getting review: %w", err)
	}
	if review.Result.Key.IsZero() {
		return nil, fmt.Errorf("review %s has no invoice key", id)
	}

	inv := newInvoice(review.ID, review.Result, review.Filename, review.ContentType, s.timeSource.Now())
	inv.Reviewed = true
	storeErr := s.db.StoreInvoice(inv)
	if storeErr != nil && !errors.Is(storeErr, ErrDuplicate) {
		return nil, fmt.Errorf("storing reviewed invoice: %w", storeErr)
	}

	if err := s.db.DeleteReview(id); err != nil {
		return nil, fmt.Errorf("deleting review: %w", err)
	}
	if storeErr != nil {
		s.removeFile(review.Filename)
		slog.Info("Reviewed invoice is a duplicate", "id", id, "key", review.Result.Key.String())
		return nil, fmt.Errorf("confirming review %s: %w", id, storeErr)
	}

	slog.Info("Review confirmed", "id", id, "vendor", inv.VendorName, "invoice_number", inv.InvoiceNumber)
	return inv, nil
}

// DismissReview drops a flagged invoice and its document
func (s *Service) DismissReview(id string) error {
	review, err := s.db.GetReview(id)
	if err != nil {
		return fmt.Errorf("getting review: %w", err)
	}
	if err := s.db.DeleteReview(id); err != nil {
		return fmt.Errorf("deleting review: %w", err)
	}
	s.removeFile(review.Filename)
	return nil
}

// Stats summarises stored invoices, pending reviews and outcomes
func (s *Service) Stats() (*Stats, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	records, err := s.db.ListResults()
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	reviews, err := s.db.ListReviews()
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}

	stats := &Stats{
		TotalInvoices:  len(invoices),
		TotalAmount:    decimal.Zero,
		TotalTax:       decimal.Zero,
		PendingReviews: len(reviews),
		ByStatus:       make(map[invoice.FinalStatus]int, len(invoice.FinalStatuses)),
	}
	for _, status := range invoice.FinalStatuses {
		stats.ByStatus[status] = 0
	}

	var confSum float64
	for _, inv := range invoices {
		stats.TotalAmount = stats.TotalAmount.Add(inv.Amount)
		if inv.TaxAmount != nil {
			stats.TotalTax = stats.TotalTax.Add(*inv.TaxAmount)
		}
		confSum += inv.averageConfidence()
	}
	if len(invoices) > 0 {
		stats.AverageConfidence = confSum / float64(len(invoices))
	}
	for _, rec := range records {
		stats.ByStatus[rec.Result.FinalStatus]++
	}
	return stats, nil
}
