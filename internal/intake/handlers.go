package intake

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps a final status to the upload response code
func statusFor(status invoice.FinalStatus) int {
	switch status {
	case invoice.FinalStored:
		return http.StatusCreated
	case invoice.FinalFlaggedForReview:
		return http.StatusAccepted
	case invoice.FinalRejectedDuplicate:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleUploadInvoice accepts a multipart "file" upload and processes it
func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxSize)
	if err := r.ParseMultipartForm(s.maxSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	outcome, err := s.service.ProcessDocument(r.Context(), header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("Error processing invoice", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, statusFor(outcome.Result.FinalStatus), outcome)
}

// handleListInvoices returns all stored invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.GetInvoice(r.PathValue("id"))
	if err != nil {
		s.notFoundOr500(w, err, "Invoice not found")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleGetInvoiceFile returns the original document of an invoice
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetInvoiceFile(r.PathValue("id"))
	if err != nil {
		s.notFoundOr500(w, err, "File not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleListResults returns the audit trail
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListResults()
	if err != nil {
		slog.Error("Error listing results", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleListReviews returns flagged invoices waiting for review
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.service.ListReviews()
	if err != nil {
		slog.Error("Error listing reviews", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// handleConfirmReview stores a flagged invoice
func (s *Server) handleConfirmReview(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.ConfirmReview(r.PathValue("id"))
	if errors.Is(err, ErrDuplicate) {
		writeError(w, http.StatusConflict, "Invoice is a duplicate of a stored invoice")
		return
	}
	if err != nil {
		s.notFoundOr500(w, err, "Review not found")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// handleDismissReview drops a flagged invoice
func (s *Server) handleDismissReview(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DismissReview(r.PathValue("id")); err != nil {
		s.notFoundOr500(w, err, "Review not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats returns store statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		slog.Error("Error computing stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleExport streams the XLSX export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	if err := s.service.ExportXLSX(w); err != nil {
		slog.Error("Error exporting invoices", "error", err)
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) notFoundOr500(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	slog.Error("Request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
