package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/spendlens/spendlens/internal/ingest"
	jobmetrics "github.com/spendlens/spendlens/internal/jobs"
)

// IngestUploadJob drives one spooled upload through the ingestion pipeline.
type IngestUploadJob struct {
	Service *ingest.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// Timeout bounds one batch; expiry marks the upload failed with
	// whatever partial counts exist.
	Timeout time.Duration
}

// NewIngestUploadJob wires dependencies for the upload handler.
func NewIngestUploadJob(service *ingest.Service, logger *slog.Logger, metrics *jobmetrics.Metrics, timeout time.Duration) *IngestUploadJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &IngestUploadJob{Service: service, Logger: logger, Metrics: metrics, Timeout: timeout}
}

// Handle processes TaskIngestUpload tasks.
func (j *IngestUploadJob) Handle(ctx context.Context, t *asynq.Task) error {
	var task ingest.IngestionTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return asynq.SkipRetry
	}

	runCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	tracker := j.Metrics.Track(TaskIngestUpload)
	err := tracker.End(j.Service.ProcessTask(runCtx, task))
	if err == nil {
		return nil
	}

	// The upload row is already finalized as failed with its partial
	// counts; retrying would double-insert the successful rows.
	var ingErr *ingest.IngestionError
	if errors.As(err, &ingErr) {
		j.Logger.Error("ingestion batch failed",
			"upload_id", ingErr.UploadID, "batch_id", ingErr.BatchID, "error", ingErr.Err)
		return asynq.SkipRetry
	}
	j.Logger.Error("ingestion task failed", "upload_id", task.UploadID, "error", err)
	return err
}
