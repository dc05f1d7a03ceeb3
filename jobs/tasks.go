// Package jobs defines the background task types and the Asynq worker that
// processes them.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/spendlens/spendlens/internal/ingest"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueIngest carries ingestion batches; weighted above default so
	// uploads drain before housekeeping.
	QueueIngest = "ingest"

	// TaskIngestUpload processes one spooled upload file.
	TaskIngestUpload = "spend:ingest_upload"
	// TaskAnalyticsWarmup precomputes analytics views for active
	// organizations.
	TaskAnalyticsWarmup = "spend:analytics_warmup"
)

// AnalyticsWarmupPayload selects which organizations to warm. An empty
// OrganizationIDs warms every active organization.
type AnalyticsWarmupPayload struct {
	OrganizationIDs []int64 `json:"organization_ids,omitempty"`
}

// NewIngestUploadTask constructs an Asynq task for one spooled upload.
func NewIngestUploadTask(task ingest.IngestionTask) (*asynq.Task, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIngestUpload, data, asynq.Queue(QueueIngest), asynq.MaxRetry(2)), nil
}

// NewAnalyticsWarmupTask constructs an Asynq task for cache warmup.
func NewAnalyticsWarmupTask(payload AnalyticsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsWarmup, data, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue and satisfies the ingestion service's
// enqueuer port.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueIngestion submits one spooled upload for background processing.
func (c *Client) EnqueueIngestion(ctx context.Context, task ingest.IngestionTask) error {
	t, err := NewIngestUploadTask(task)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, t)
	return err
}

// EnqueueAnalyticsWarmup submits a cache warmup run.
func (c *Client) EnqueueAnalyticsWarmup(ctx context.Context, payload AnalyticsWarmupPayload) error {
	t, err := NewAnalyticsWarmupTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, t)
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
