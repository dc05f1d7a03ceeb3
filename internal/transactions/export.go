package transactions

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

var exportHeader = []string{
	"id", "supplier", "category", "amount", "date", "description",
	"subcategory", "location", "fiscal_year", "spend_band",
	"payment_method", "invoice_number",
}

// WriteCSV streams the filtered transactions as CSV. Free-text cells are
// re-sanitised on the way out so a value that predates ingestion-side
// sanitisation cannot execute as a formula in a spreadsheet.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, orgID int64, filters Filters) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	err := s.Export(ctx, orgID, filters, func(row Row) error {
		return cw.Write([]string{
			formatInt(row.ID),
			escapeFormula(row.SupplierName),
			escapeFormula(row.CategoryName),
			row.Amount.StringFixed(2),
			row.Date.Format("2006-01-02"),
			escapeFormula(row.Description),
			escapeFormula(row.Subcategory),
			escapeFormula(row.Location),
			formatInt(int64(row.FiscalYear)),
			escapeFormula(row.SpendBand),
			escapeFormula(row.PaymentMethod),
			escapeFormula(row.InvoiceNumber),
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func escapeFormula(value string) string {
	if value == "" {
		return value
	}
	if strings.ContainsRune("=+-@\t\r\n", rune(value[0])) {
		return "'" + value
	}
	return value
}

func formatInt(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
