package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for uploads and the
// transactions they produce.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uploadColumns = `id, organization_id, file_name, file_size, batch_id,
	total_rows, successful_rows, failed_rows, duplicate_rows, status,
	error_log, created_at, completed_at`

// CreateUpload inserts a new upload row in status processing and returns it
// with storage-assigned fields populated.
func (r *Repository) CreateUpload(ctx context.Context, upload DataUpload) (DataUpload, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO data_uploads (organization_id, file_name, file_size, batch_id, status, error_log)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb)
		RETURNING id, created_at`,
		upload.OrganizationID, upload.FileName, upload.FileSize, upload.BatchID, UploadStatusProcessing,
	)
	if err := row.Scan(&upload.ID, &upload.CreatedAt); err != nil {
		return DataUpload{}, fmt.Errorf("ingest: create upload: %w", err)
	}
	upload.Status = UploadStatusProcessing
	upload.ErrorLog = []RowError{}
	return upload, nil
}

// GetUpload returns one upload scoped to the organization.
func (r *Repository) GetUpload(ctx context.Context, orgID, id int64) (DataUpload, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM data_uploads
		WHERE id = $1 AND organization_id = $2`,
		id, orgID,
	)
	upload, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DataUpload{}, ErrNotFound
		}
		return DataUpload{}, fmt.Errorf("ingest: get upload: %w", err)
	}
	return upload, nil
}

// ListUploads returns the organization's uploads, newest first.
func (r *Repository) ListUploads(ctx context.Context, orgID int64, limit, offset int) ([]DataUpload, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadColumns+`
		FROM data_uploads
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		orgID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ingest: list uploads: %w", err)
	}
	defer rows.Close()

	uploads := make([]DataUpload, 0, limit)
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("ingest: list uploads: %w", err)
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

// UpdateProgress writes in-flight counters back to the upload row.
func (r *Repository) UpdateProgress(ctx context.Context, uploadID int64, counts Counts, errorLog []RowError) error {
	payload, err := marshalErrorLog(errorLog)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE data_uploads
		SET total_rows = $2, successful_rows = $3, failed_rows = $4, duplicate_rows = $5, error_log = $6
		WHERE id = $1`,
		uploadID, counts.Total, counts.Successful, counts.Failed, counts.Duplicates, payload,
	)
	if err != nil {
		return fmt.Errorf("ingest: update progress: %w", err)
	}
	return nil
}

// Finalize moves the upload to a terminal status with its final counters.
func (r *Repository) Finalize(ctx context.Context, uploadID int64, status UploadStatus, counts Counts, errorLog []RowError, completedAt time.Time) error {
	payload, err := marshalErrorLog(errorLog)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE data_uploads
		SET status = $2, total_rows = $3, successful_rows = $4, failed_rows = $5,
		    duplicate_rows = $6, error_log = $7, completed_at = $8
		WHERE id = $1`,
		uploadID, status, counts.Total, counts.Successful, counts.Failed, counts.Duplicates, payload, completedAt,
	)
	if err != nil {
		return fmt.Errorf("ingest: finalize upload: %w", err)
	}
	return nil
}

// InsertTransaction persists one accepted row.
func (r *Repository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO transactions (
			organization_id, supplier_id, category_id, amount, transaction_date,
			description, subcategory, location, fiscal_year, spend_band,
			payment_method, invoice_number, upload_batch_id
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		tx.OrganizationID, tx.SupplierID, tx.CategoryID, tx.Amount.String(), tx.Date,
		tx.Description, tx.Subcategory, tx.Location, tx.FiscalYear, tx.SpendBand,
		tx.PaymentMethod, tx.InvoiceNumber, tx.UploadBatchID,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("ingest: insert transaction: %w", err)
	}
	return id, nil
}

// FindMatches returns committed transactions that could collide with a
// candidate. Logically deleted rows never participate.
func (r *Repository) FindMatches(ctx context.Context, orgID, supplierID int64, amount decimal.Decimal, date time.Time, invoiceNumber string) ([]Match, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_number,
		       amount = $3::numeric AS amount_equal,
		       transaction_date = $4 AS date_equal
		FROM transactions
		WHERE organization_id = $1 AND supplier_id = $2 AND NOT is_deleted
		  AND ((invoice_number <> '' AND invoice_number = $5)
		       OR (amount = $3::numeric AND transaction_date = $4))
		ORDER BY id
		LIMIT 20`,
		orgID, supplierID, amount.String(), date, invoiceNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("ingest: find matches: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.TransactionID, &m.InvoiceNumber, &m.AmountEqual, &m.DateEqual); err != nil {
			return nil, fmt.Errorf("ingest: find matches: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func marshalErrorLog(errorLog []RowError) ([]byte, error) {
	if errorLog == nil {
		errorLog = []RowError{}
	}
	payload, err := json.Marshal(errorLog)
	if err != nil {
		return nil, fmt.Errorf("ingest: marshal error log: %w", err)
	}
	return payload, nil
}

func scanUpload(row pgx.Row) (DataUpload, error) {
	var (
		upload  DataUpload
		payload []byte
	)
	if err := row.Scan(
		&upload.ID, &upload.OrganizationID, &upload.FileName, &upload.FileSize, &upload.BatchID,
		&upload.TotalRows, &upload.SuccessfulRows, &upload.FailedRows, &upload.DuplicateRows, &upload.Status,
		&payload, &upload.CreatedAt, &upload.CompletedAt,
	); err != nil {
		return DataUpload{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &upload.ErrorLog); err != nil {
			return DataUpload{}, err
		}
	}
	if upload.ErrorLog == nil {
		upload.ErrorLog = []RowError{}
	}
	return upload, nil
}
