package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// maxErrorLogEntries caps the per-upload error log so a pathological file
// cannot balloon the upload row. The failed counter keeps the full total.
const maxErrorLogEntries = 100

// progressFlushEvery controls how often in-flight counters are written back
// to the upload row during a run.
const progressFlushEvery = 500

// BatchStore is the storage surface the pipeline needs while a batch runs.
type BatchStore interface {
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	UpdateProgress(ctx context.Context, uploadID int64, counts Counts, errorLog []RowError) error
	Finalize(ctx context.Context, uploadID int64, status UploadStatus, counts Counts, errorLog []RowError, completedAt time.Time) error
}

// BatchMetrics receives per-row and per-batch observations. Implemented by
// observability.Metrics; nil disables instrumentation.
type BatchMetrics interface {
	ObserveIngestRows(outcome string, n int)
	ObserveIngestBatch(d time.Duration)
}

// CacheBumper invalidates derived analytics for an organization after new
// rows land. Implemented by the analytics cache; nil disables invalidation.
type CacheBumper interface {
	Bump(ctx context.Context, orgID int64) error
}

// Pipeline drives one ingestion batch: stream rows from a source, validate,
// inspect for duplicates, insert, and fold the outcome log into the upload
// row. A Pipeline is stateless across runs and safe for concurrent batches.
type Pipeline struct {
	store    BatchStore
	detector *DuplicateDetector
	logger   *slog.Logger
	metrics  BatchMetrics
	cache    CacheBumper
	maxRows  int
}

// NewPipeline wires a pipeline. metrics and cache may be nil.
func NewPipeline(store BatchStore, detector *DuplicateDetector, logger *slog.Logger, metrics BatchMetrics, cache CacheBumper, maxRows int) *Pipeline {
	return &Pipeline{
		store:    store,
		detector: detector,
		logger:   logger,
		metrics:  metrics,
		cache:    cache,
		maxRows:  maxRows,
	}
}

// Run processes one upload whose DataUpload row already exists in status
// processing. It returns the folded counts on success; on a batch-level
// failure it marks the upload failed, preserving whatever counts were
// committed, and returns an *IngestionError.
//
// Row-level problems never abort the batch: each becomes a rejected event
// with a sanitised entry in the error log.
func (p *Pipeline) Run(ctx context.Context, upload DataUpload, src RowSource, validator *Validator, skipDuplicates bool) (Counts, error) {
	started := time.Now()
	events := make([]RowEvent, 0, 256)
	var errorLog []RowError

	logRowError := func(rowErr *RowError) {
		if len(errorLog) < maxErrorLogEntries {
			errorLog = append(errorLog, *rowErr)
		}
	}
	// Flushing counts every outcome, so polling clients see progress even
	// when a file produces mostly rejections or duplicates.
	record := func(ev RowEvent) {
		events = append(events, ev)
		if len(events)%progressFlushEvery == 0 {
			if err := p.store.UpdateProgress(ctx, upload.ID, foldCounts(events), errorLog); err != nil {
				p.logger.Warn("progress flush failed", "upload_id", upload.ID, "error", err)
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, upload, events, errorLog, err)
		}

		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.fail(ctx, upload, events, errorLog, err)
		}
		if p.maxRows > 0 && len(events) >= p.maxRows {
			return p.fail(ctx, upload, events, errorLog, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, p.maxRows))
		}

		if msg, ok := row.Values["_parse_error"]; ok {
			record(RowEvent{RowIndex: row.Index, Kind: EventRejected})
			logRowError(&RowError{RowIndex: row.Index, Message: sanitizeErrorMessage(msg)})
			continue
		}

		cand, rowErr := validator.Validate(ctx, upload.OrganizationID, row)
		if rowErr != nil {
			record(RowEvent{RowIndex: row.Index, Kind: EventRejected})
			logRowError(rowErr)
			continue
		}

		result, err := p.detector.Inspect(ctx, upload.OrganizationID, cand)
		if err != nil {
			if ctx.Err() != nil {
				return p.fail(ctx, upload, events, errorLog, err)
			}
			record(RowEvent{RowIndex: row.Index, Kind: EventRejected})
			logRowError(&RowError{RowIndex: row.Index, Message: sanitizeErrorMessage(err.Error()), Raw: row.Values})
			continue
		}

		if result.Duplicate {
			if result.Ambiguous {
				p.logger.Warn("ambiguous duplicate match",
					"upload_id", upload.ID, "row_index", row.Index, "matched_id", result.MatchedID)
			}
			if skipDuplicates {
				record(RowEvent{RowIndex: row.Index, Kind: EventDuplicate})
				continue
			}
			if err := p.insert(ctx, upload, cand); err != nil {
				if ctx.Err() != nil {
					return p.fail(ctx, upload, events, errorLog, err)
				}
				record(RowEvent{RowIndex: row.Index, Kind: EventRejected})
				logRowError(&RowError{RowIndex: row.Index, Message: sanitizeErrorMessage(err.Error()), Raw: row.Values})
				continue
			}
			record(RowEvent{RowIndex: row.Index, Kind: EventDuplicate, Inserted: true})
			continue
		}

		if err := p.insert(ctx, upload, cand); err != nil {
			if ctx.Err() != nil {
				return p.fail(ctx, upload, events, errorLog, err)
			}
			record(RowEvent{RowIndex: row.Index, Kind: EventRejected})
			logRowError(&RowError{RowIndex: row.Index, Message: sanitizeErrorMessage(err.Error()), Raw: row.Values})
			continue
		}
		record(RowEvent{RowIndex: row.Index, Kind: EventAccepted})
	}

	counts := foldCounts(events)
	if counts.Total == 0 {
		return p.fail(ctx, upload, events, errorLog, fmt.Errorf("%w: file contains no data rows", ErrFileInvalid))
	}

	status := terminalStatus(counts)
	if err := p.store.Finalize(ctx, upload.ID, status, counts, errorLog, time.Now().UTC()); err != nil {
		return p.fail(ctx, upload, events, errorLog, err)
	}

	if p.cache != nil && counts.Successful > 0 {
		if err := p.cache.Bump(ctx, upload.OrganizationID); err != nil {
			p.logger.Warn("analytics cache bump failed", "org_id", upload.OrganizationID, "error", err)
		}
	}
	p.observe(counts, started)

	p.logger.Info("ingestion batch finished",
		"upload_id", upload.ID,
		"batch_id", upload.BatchID,
		"status", status,
		"total", counts.Total,
		"successful", counts.Successful,
		"failed", counts.Failed,
		"duplicates", counts.Duplicates,
		"duration", time.Since(started))
	return counts, nil
}

func (p *Pipeline) insert(ctx context.Context, upload DataUpload, cand Candidate) error {
	_, err := p.store.InsertTransaction(ctx, cand.transaction(upload.OrganizationID, upload.BatchID))
	return err
}

// fail marks the upload failed while keeping the counts committed so far.
// Finalization runs detached from ctx so a cancelled batch still lands in a
// terminal state.
func (p *Pipeline) fail(ctx context.Context, upload DataUpload, events []RowEvent, errorLog []RowError, cause error) (Counts, error) {
	counts := foldCounts(events)
	if len(errorLog) < maxErrorLogEntries {
		errorLog = append(errorLog, RowError{Message: sanitizeErrorMessage(cause.Error())})
	}

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.Finalize(finalizeCtx, upload.ID, UploadStatusFailed, counts, errorLog, time.Now().UTC()); err != nil {
		p.logger.Error("failed to finalize upload", "upload_id", upload.ID, "error", err)
	}
	if p.cache != nil && counts.Successful > 0 {
		if err := p.cache.Bump(finalizeCtx, upload.OrganizationID); err != nil {
			p.logger.Warn("analytics cache bump failed", "org_id", upload.OrganizationID, "error", err)
		}
	}
	p.observe(counts, time.Time{})

	p.logger.Error("ingestion batch failed",
		"upload_id", upload.ID, "batch_id", upload.BatchID, "error", cause)
	return counts, &IngestionError{UploadID: upload.ID, BatchID: upload.BatchID, Err: cause}
}

func (p *Pipeline) observe(counts Counts, started time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveIngestRows("successful", counts.Successful)
	p.metrics.ObserveIngestRows("failed", counts.Failed)
	p.metrics.ObserveIngestRows("duplicate", counts.Duplicates)
	if !started.IsZero() {
		p.metrics.ObserveIngestBatch(time.Since(started))
	}
}
