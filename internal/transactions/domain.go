// Package transactions exposes read, export and bulk maintenance operations
// over committed spend records.
package transactions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one spend record joined with its supplier and category names.
type Row struct {
	ID            int64           `json:"id"`
	SupplierID    int64           `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name"`
	CategoryID    int64           `json:"category_id"`
	CategoryName  string          `json:"category_name"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description,omitempty"`
	Subcategory   string          `json:"subcategory,omitempty"`
	Location      string          `json:"location,omitempty"`
	FiscalYear    int             `json:"fiscal_year,omitempty"`
	SpendBand     string          `json:"spend_band,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	UploadBatchID string          `json:"upload_batch_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Filters narrows a listing or export.
type Filters struct {
	SupplierID int64
	CategoryID int64
	DateFrom   *time.Time
	DateTo     *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	FiscalYear int
	Search     string
	SortBy     string
	SortDir    string
	Page       int
	Limit      int
}

// Offset converts page/limit into a storage offset.
func (f Filters) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// DuplicateGroup is a cluster of committed rows sharing supplier, amount and
// date, surfaced for manual review of rows that slipped past ingestion
// detection (for example through concurrent uploads).
type DuplicateGroup struct {
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Count        int             `json:"count"`
	IDs          []int64         `json:"transaction_ids"`
}

var (
	// ErrNotFound indicates the transaction does not exist in the organization.
	ErrNotFound = errors.New("transactions: not found")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("transactions: validation failed")
)
