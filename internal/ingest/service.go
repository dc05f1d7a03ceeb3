package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spendlens/spendlens/internal/masterdata/categories"
	"github.com/spendlens/spendlens/internal/masterdata/suppliers"
)

// UploadStore is the full storage surface of the ingestion service.
type UploadStore interface {
	BatchStore
	CreateUpload(ctx context.Context, upload DataUpload) (DataUpload, error)
	GetUpload(ctx context.Context, orgID, id int64) (DataUpload, error)
	ListUploads(ctx context.Context, orgID int64, limit, offset int) ([]DataUpload, error)
}

// IngestionTask is the payload handed to the background worker for one
// spooled upload.
type IngestionTask struct {
	UploadID       int64  `json:"upload_id"`
	OrganizationID int64  `json:"organization_id"`
	FilePath       string `json:"file_path"`
	FileName       string `json:"file_name"`
	SkipDuplicates bool   `json:"skip_duplicates"`
}

// TaskEnqueuer hands an ingestion task to the background job queue. A nil
// enqueuer makes the service process uploads in-process instead.
type TaskEnqueuer interface {
	EnqueueIngestion(ctx context.Context, task IngestionTask) error
}

// ServiceConfig carries the ingestion limits and locale settings.
type ServiceConfig struct {
	SpoolDir string
	MaxBytes int64
	MaxRows  int
	DayFirst bool
	// Timeout bounds one in-process batch run.
	Timeout time.Duration
}

// Service accepts uploads, spools them to disk and drives batch processing
// either through the job queue or an in-process goroutine.
type Service struct {
	store      UploadStore
	pipeline   *Pipeline
	suppliers  SupplierResolver
	categories CategoryResolver
	enqueuer   TaskEnqueuer
	logger     *slog.Logger
	cfg        ServiceConfig
}

// NewService wires the ingestion service. enqueuer may be nil.
func NewService(store UploadStore, pipeline *Pipeline, sup SupplierResolver, cat CategoryResolver, enqueuer TaskEnqueuer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Service{
		store:      store,
		pipeline:   pipeline,
		suppliers:  sup,
		categories: cat,
		enqueuer:   enqueuer,
		logger:     logger,
		cfg:        cfg,
	}
}

// StartUpload validates and spools the file, creates the upload row and
// schedules processing. It returns immediately with the upload in status
// processing; callers poll GetUpload for the outcome.
func (s *Service) StartUpload(ctx context.Context, orgID int64, fileName string, file io.Reader, skipDuplicates bool) (DataUpload, error) {
	fileName = sanitizeFileName(fileName)

	path, size, err := s.spool(fileName, file)
	if err != nil {
		return DataUpload{}, err
	}

	head, err := readHead(path)
	if err != nil {
		_ = os.Remove(path)
		return DataUpload{}, err
	}
	if err := ValidateUploadFile(fileName, size, s.cfg.MaxBytes, head); err != nil {
		_ = os.Remove(path)
		return DataUpload{}, err
	}

	upload, err := s.store.CreateUpload(ctx, DataUpload{
		OrganizationID: orgID,
		FileName:       fileName,
		FileSize:       size,
		BatchID:        uuid.NewString(),
	})
	if err != nil {
		_ = os.Remove(path)
		return DataUpload{}, err
	}

	task := IngestionTask{
		UploadID:       upload.ID,
		OrganizationID: orgID,
		FilePath:       path,
		FileName:       fileName,
		SkipDuplicates: skipDuplicates,
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueIngestion(ctx, task); err != nil {
			_ = os.Remove(path)
			return DataUpload{}, fmt.Errorf("ingest: enqueue upload %d: %w", upload.ID, err)
		}
		return upload, nil
	}

	// No queue configured: run the batch in the background, detached from
	// the request context.
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()
		if err := s.ProcessTask(runCtx, task); err != nil {
			s.logger.Error("in-process ingestion failed", "upload_id", task.UploadID, "error", err)
		}
	}()
	return upload, nil
}

// ProcessTask runs one spooled upload to completion and removes the spool
// file. Called by the job worker and the in-process fallback.
func (s *Service) ProcessTask(ctx context.Context, task IngestionTask) error {
	defer func() {
		if err := os.Remove(task.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("spool cleanup failed", "path", task.FilePath, "error", err)
		}
	}()

	upload, err := s.store.GetUpload(ctx, task.OrganizationID, task.UploadID)
	if err != nil {
		return fmt.Errorf("ingest: load upload %d: %w", task.UploadID, err)
	}
	if upload.Status != UploadStatusProcessing {
		// Retried task for an already finalized upload; processing again
		// would double-insert rows.
		s.logger.Info("skipping finalized upload", "upload_id", upload.ID, "status", upload.Status)
		return nil
	}

	f, err := os.Open(task.FilePath)
	if err != nil {
		_, ferr := s.pipeline.fail(ctx, upload, nil, nil, fmt.Errorf("spooled file unavailable"))
		return ferr
	}
	defer f.Close()

	src, err := NewRowSource(task.FileName, f)
	if err != nil {
		_, ferr := s.pipeline.fail(ctx, upload, nil, nil, err)
		return ferr
	}
	defer src.Close()

	validator := NewValidator(DefaultValidatorConfig(s.cfg.DayFirst), s.suppliers, s.categories)
	_, err = s.pipeline.Run(ctx, upload, src, validator, task.SkipDuplicates)
	return err
}

// GetUpload returns one upload scoped to the organization.
func (s *Service) GetUpload(ctx context.Context, orgID, id int64) (DataUpload, error) {
	if id <= 0 {
		return DataUpload{}, ErrNotFound
	}
	return s.store.GetUpload(ctx, orgID, id)
}

// ListUploads returns the organization's uploads, newest first.
func (s *Service) ListUploads(ctx context.Context, orgID int64, limit, offset int) ([]DataUpload, error) {
	return s.store.ListUploads(ctx, orgID, limit, offset)
}

// spool copies the upload to the spool directory under a random name,
// enforcing the size cap while copying.
func (s *Service) spool(fileName string, file io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.cfg.SpoolDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("ingest: spool dir: %w", err)
	}
	path := filepath.Join(s.cfg.SpoolDir, uuid.NewString()+filepath.Ext(fileName))
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("ingest: spool file: %w", err)
	}

	limit := s.cfg.MaxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	size, err := io.Copy(dst, io.LimitReader(file, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("ingest: spool copy: %w", err)
	}
	if size > limit {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("%w: file size exceeds %d bytes", ErrFileInvalid, limit)
	}
	return path, size, nil
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read spool head: %w", err)
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ingest: read spool head: %w", err)
	}
	return head[:n], nil
}

// supplierResolverAdapter exposes the masterdata supplier repository through
// the validator's resolver port.
type supplierResolverAdapter struct {
	repo suppliers.Repository
}

// NewSupplierResolver adapts the supplier repository for row validation.
func NewSupplierResolver(repo suppliers.Repository) SupplierResolver {
	return supplierResolverAdapter{repo: repo}
}

func (a supplierResolverAdapter) GetOrCreateByName(ctx context.Context, orgID int64, name string) (int64, error) {
	supplier, err := a.repo.GetOrCreateByName(ctx, orgID, name)
	if err != nil {
		return 0, err
	}
	return supplier.ID, nil
}

func (a supplierResolverAdapter) Exists(ctx context.Context, orgID, id int64) (bool, error) {
	_, err := a.repo.Get(ctx, orgID, id)
	if errors.Is(err, suppliers.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// categoryResolverAdapter exposes the masterdata category repository through
// the validator's resolver port.
type categoryResolverAdapter struct {
	repo categories.Repository
}

// NewCategoryResolver adapts the category repository for row validation.
func NewCategoryResolver(repo categories.Repository) CategoryResolver {
	return categoryResolverAdapter{repo: repo}
}

func (a categoryResolverAdapter) GetOrCreateByName(ctx context.Context, orgID int64, name string) (int64, error) {
	category, err := a.repo.GetOrCreateByName(ctx, orgID, name)
	if err != nil {
		return 0, err
	}
	return category.ID, nil
}

func (a categoryResolverAdapter) Exists(ctx context.Context, orgID, id int64) (bool, error) {
	_, err := a.repo.Get(ctx, orgID, id)
	if errors.Is(err, categories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
