package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory BatchStore plus MatchStore: duplicate detection
// sees exactly what the pipeline has inserted.
type memStore struct {
	mu           sync.Mutex
	nextTxID     int64
	transactions []Transaction

	status      UploadStatus
	counts      Counts
	errorLog    []RowError
	completedAt *time.Time
	flushes     []Counts
}

func (m *memStore) InsertTransaction(_ context.Context, tx Transaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	tx.ID = m.nextTxID
	m.transactions = append(m.transactions, tx)
	return tx.ID, nil
}

func (m *memStore) UpdateProgress(_ context.Context, _ int64, counts Counts, errorLog []RowError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = counts
	m.errorLog = errorLog
	m.flushes = append(m.flushes, counts)
	return nil
}

func (m *memStore) Finalize(_ context.Context, _ int64, status UploadStatus, counts Counts, errorLog []RowError, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.counts = counts
	m.errorLog = errorLog
	m.completedAt = &completedAt
	return nil
}

func (m *memStore) FindMatches(_ context.Context, orgID, supplierID int64, amount decimal.Decimal, date time.Time, invoiceNumber string) ([]Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []Match
	for _, tx := range m.transactions {
		if tx.OrganizationID != orgID || tx.SupplierID != supplierID {
			continue
		}
		amountEqual := tx.Amount.Equal(amount)
		dateEqual := tx.Date.Equal(date)
		invoiceEqual := invoiceNumber != "" && tx.InvoiceNumber == invoiceNumber
		if invoiceEqual || (amountEqual && dateEqual) {
			matches = append(matches, Match{
				TransactionID: tx.ID,
				InvoiceNumber: tx.InvoiceNumber,
				AmountEqual:   amountEqual,
				DateEqual:     dateEqual,
			})
		}
	}
	return matches, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline(store *memStore, maxRows int) *Pipeline {
	return NewPipeline(store, NewDuplicateDetector(store), testLogger(), nil, nil, maxRows)
}

func testUpload() DataUpload {
	return DataUpload{ID: 1, OrganizationID: 1, BatchID: "batch-1", Status: UploadStatusProcessing}
}

func runCSV(t *testing.T, p *Pipeline, content string, skipDuplicates bool) (Counts, error) {
	t.Helper()
	src, err := NewCSVSource(strings.NewReader(content))
	require.NoError(t, err)
	defer src.Close()
	validator := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())
	return p.Run(context.Background(), testUpload(), src, validator, skipDuplicates)
}

const cleanCSV = `supplier,category,amount,date,invoice_number
Acme Corp,IT Services,100.00,2024-01-15,INV-1
Beta Ltd,Office,250.50,2024-01-16,INV-2
Acme Corp,IT Services,75.25,2024-02-01,INV-3
`

func TestPipelineCleanRunCompletes(t *testing.T) {
	store := &memStore{}
	counts, err := runCSV(t, testPipeline(store, 0), cleanCSV, true)
	require.NoError(t, err)
	require.Equal(t, Counts{Total: 3, Successful: 3}, counts)
	require.Equal(t, UploadStatusCompleted, store.status)
	require.Len(t, store.transactions, 3)
	require.NotNil(t, store.completedAt)
	require.Empty(t, store.errorLog)
	for _, tx := range store.transactions {
		require.Equal(t, "batch-1", tx.UploadBatchID)
		require.EqualValues(t, 1, tx.OrganizationID)
	}
}

func TestPipelinePartialRun(t *testing.T) {
	content := `supplier,category,amount,date
Acme Corp,IT Services,100.00,2024-01-15
Beta Ltd,Office,not-a-number,2024-01-16
Gamma Inc,Travel,50.00,2024-01-17
`
	store := &memStore{}
	counts, err := runCSV(t, testPipeline(store, 0), content, true)
	require.NoError(t, err)
	require.Equal(t, Counts{Total: 3, Successful: 2, Failed: 1}, counts)
	require.Equal(t, UploadStatusPartial, store.status)
	require.Len(t, store.transactions, 2)
	require.Len(t, store.errorLog, 1)
	require.Equal(t, 3, store.errorLog[0].RowIndex, "header is row 1, failing row is row 3")
}

func TestPipelineAllRowsInvalidFails(t *testing.T) {
	content := `supplier,category,amount,date
Acme,IT,bad,2024-01-15
Beta,Office,also bad,2024-01-16
`
	store := &memStore{}
	counts, err := runCSV(t, testPipeline(store, 0), content, true)
	require.NoError(t, err)
	require.Equal(t, Counts{Total: 2, Failed: 2}, counts)
	require.Equal(t, UploadStatusFailed, store.status)
	require.Empty(t, store.transactions)
}

func TestPipelineReingestIsIdempotent(t *testing.T) {
	store := &memStore{}
	p := testPipeline(store, 0)

	counts, err := runCSV(t, p, cleanCSV, true)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Successful)

	counts, err = runCSV(t, p, cleanCSV, true)
	require.NoError(t, err)
	require.Equal(t, Counts{Total: 3, Duplicates: 3}, counts)
	require.Equal(t, UploadStatusCompleted, store.status, "all-duplicate run completes")
	require.Len(t, store.transactions, 3, "no new rows on re-ingest")
	require.Equal(t, counts.Total, counts.Successful+counts.Failed+counts.Duplicates)
}

func TestPipelineDuplicatesInsertedWhenNotSkipped(t *testing.T) {
	store := &memStore{}
	p := testPipeline(store, 0)

	_, err := runCSV(t, p, cleanCSV, true)
	require.NoError(t, err)

	counts, err := runCSV(t, p, cleanCSV, false)
	require.NoError(t, err)
	require.Equal(t, Counts{Total: 3, Successful: 3, Duplicates: 3}, counts)
	require.Equal(t, UploadStatusCompleted, store.status)
	require.Len(t, store.transactions, 6, "duplicates are persisted as-is")
}

func TestPipelineInvoiceMatchBeatsAmountChange(t *testing.T) {
	store := &memStore{}
	p := testPipeline(store, 0)

	_, err := runCSV(t, p, cleanCSV, true)
	require.NoError(t, err)

	// Same invoice number, different amount: still the same document.
	content := `supplier,category,amount,date,invoice_number
Acme Corp,IT Services,999.99,2024-01-15,INV-1
`
	counts, err := runCSV(t, p, content, true)
	require.NoError(t, err)
	require.Equal(t, Counts{Total: 1, Duplicates: 1}, counts)
	require.Len(t, store.transactions, 3)
}

func TestPipelineRowCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("supplier,category,amount,date\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&sb, "Acme,IT,%d.00,2024-01-15\n", i+1)
	}

	store := &memStore{}
	_, err := runCSV(t, testPipeline(store, 3), sb.String(), true)
	require.Error(t, err)

	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	require.ErrorIs(t, ingErr.Err, ErrTooManyRows)
	require.Equal(t, UploadStatusFailed, store.status)
}

func TestPipelineHeaderOnlyFileFails(t *testing.T) {
	store := &memStore{}
	_, err := runCSV(t, testPipeline(store, 0), "supplier,category,amount,date\n", true)
	require.Error(t, err)

	var ingErr *IngestionError
	require.ErrorAs(t, err, &ingErr)
	require.ErrorIs(t, ingErr.Err, ErrFileInvalid)
	require.Equal(t, UploadStatusFailed, store.status)
}

func TestPipelineErrorLogCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("supplier,category,amount,date\n")
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&sb, "Acme,IT,bad-%d,2024-01-15\n", i)
	}

	store := &memStore{}
	counts, err := runCSV(t, testPipeline(store, 0), sb.String(), true)
	require.NoError(t, err)
	require.Equal(t, 150, counts.Failed, "counters keep the full total")
	require.Len(t, store.errorLog, maxErrorLogEntries)
	require.Equal(t, UploadStatusFailed, store.status)
}

func TestPipelineFlushesProgressForRejectedRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("supplier,category,amount,date\n")
	for i := 0; i < progressFlushEvery+10; i++ {
		fmt.Fprintf(&sb, "Acme,IT,bad-%d,2024-01-15\n", i)
	}

	store := &memStore{}
	counts, err := runCSV(t, testPipeline(store, 0), sb.String(), true)
	require.NoError(t, err)
	require.Equal(t, progressFlushEvery+10, counts.Failed)
	require.NotEmpty(t, store.flushes, "interim counters are written even when every row is rejected")
	require.Equal(t, progressFlushEvery, store.flushes[0].Failed)
	require.Equal(t, progressFlushEvery, store.flushes[0].Total)
}

func TestPipelineCancelledContextFailsBatch(t *testing.T) {
	store := &memStore{}
	p := testPipeline(store, 0)

	src, err := NewCSVSource(strings.NewReader(cleanCSV))
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	validator := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())
	_, err = p.Run(ctx, testUpload(), src, validator, true)
	require.Error(t, err)
	require.Equal(t, UploadStatusFailed, store.status, "cancelled batch still lands in a terminal state")
}
