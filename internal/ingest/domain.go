// Package ingest implements batch ingestion of procurement transaction files:
// row validation, duplicate detection and upload bookkeeping.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UploadStatus is the lifecycle state of a DataUpload.
type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusPartial    UploadStatus = "partial"
	UploadStatusFailed     UploadStatus = "failed"
)

// Transaction is one procurement spend record. Immutable once created;
// deletion is logical and never cascades to suppliers or categories.
type Transaction struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	SupplierID     int64           `json:"supplier_id"`
	CategoryID     int64           `json:"category_id"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description,omitempty"`
	Subcategory    string          `json:"subcategory,omitempty"`
	Location       string          `json:"location,omitempty"`
	FiscalYear     int             `json:"fiscal_year,omitempty"`
	SpendBand      string          `json:"spend_band,omitempty"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	InvoiceNumber  string          `json:"invoice_number,omitempty"`
	UploadBatchID  string          `json:"upload_batch_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RowError is one rejected input row, kept on the upload's error log.
type RowError struct {
	RowIndex int               `json:"row_index"`
	Message  string            `json:"error_message"`
	Raw      map[string]string `json:"original_row_data,omitempty"`
}

// DataUpload tracks one ingestion run of a file. Rows are never deleted
// automatically; the record is the audit trail for the batch.
type DataUpload struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	FileName       string       `json:"file_name"`
	FileSize       int64        `json:"file_size"`
	BatchID        string       `json:"batch_id"`
	TotalRows      int          `json:"total_rows"`
	SuccessfulRows int          `json:"successful_rows"`
	FailedRows     int          `json:"failed_rows"`
	DuplicateRows  int          `json:"duplicate_rows"`
	Status         UploadStatus `json:"status"`
	ErrorLog       []RowError   `json:"error_log"`
	CreatedAt      time.Time    `json:"created_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

var (
	// ErrNotFound indicates the upload does not exist in the organization.
	ErrNotFound = errors.New("ingest: upload not found")
	// ErrFileInvalid indicates the file failed pre-ingestion validation.
	ErrFileInvalid = errors.New("ingest: invalid file")
	// ErrTooManyRows indicates the file exceeds the per-upload row cap.
	ErrTooManyRows = errors.New("ingest: row limit exceeded")
)

// IngestionError is a batch-level failure. The upload row has already been
// marked failed with whatever counts were committed; callers can keep polling
// the upload by id.
type IngestionError struct {
	UploadID int64
	BatchID  string
	Err      error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest: batch %s failed: %v", e.BatchID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
