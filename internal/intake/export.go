package intake

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Invoices"

var exportHeaders = []string{
	"Invoice Date",
	"Vendor",
	"Invoice Number",
	"Amount",
	"Tax",
	"Confidence",
	"Reviewed",
	"Document",
	"Stored At",
}

// ExportXLSX writes every stored invoice to an XLSX workbook
func (s *Service) ExportXLSX(w io.Writer) error {
	start := s.timeSource.Now()

	invoices, err := s.db.ListInvoices()
	if err != nil {
		return fmt.Errorf("listing invoices: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet rather than leaving an empty one behind
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := writeRows(f, invoices); err != nil {
		return err
	}

	for _, col := range []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 14}, // date
		{"B", "B", 32}, // vendor
		{"C", "C", 20}, // number
		{"D", "F", 12}, // amounts, confidence
		{"H", "H", 40}, // document
		{"I", "I", 22},
	} {
		if err := f.SetColWidth(exportSheet, col.from, col.to, col.width); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Exported invoices",
		"rows", len(invoices),
		"elapsed_ms", s.timeSource.Now().Sub(start).Milliseconds(),
	)
	return nil
}

// cellSetter is the part of *excelize.File the row writer needs
type cellSetter interface {
	SetCellValue(sheet, cell string, value interface{}) error
}

// writeRows writes the header and one row per invoice, stopping at the first
// failed cell
func writeRows(cells cellSetter, invoices []*Invoice) error {
	var writeErr error
	write := func(col, row int, v any) {
		if writeErr != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err == nil {
			err = cells.SetCellValue(exportSheet, cell, v)
		}
		if err != nil {
			writeErr = fmt.Errorf("writing cell %d/%d: %w", col, row, err)
		}
	}

	for i, h := range exportHeaders {
		write(i+1, 1, h)
	}
	for i, inv := range invoices {
		row := i + 2
		if inv.InvoiceDate != nil {
			write(1, row, inv.InvoiceDate.Format("2006-01-02"))
		} else {
			write(1, row, "")
		}
		write(2, row, inv.VendorName)
		write(3, row, inv.InvoiceNumber)
		write(4, row, inv.Amount.InexactFloat64())
		if inv.TaxAmount != nil {
			write(5, row, inv.TaxAmount.InexactFloat64())
		} else {
			write(5, row, "")
		}
		write(6, row, fmt.Sprintf("%.2f", inv.averageConfidence()))
		write(7, row, inv.Reviewed)
		write(8, row, inv.DocumentName)
		write(9, row, inv.CreatedAt.UTC().Format(time.RFC3339))
	}
	return writeErr
}
