package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxBulkDeleteIDs caps one bulk delete request.
const maxBulkDeleteIDs = 1000

// defaultDuplicateWindow is how far back the duplicate report looks.
const defaultDuplicateWindow = 30 * 24 * time.Hour

// Service applies business rules over the transaction repository.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the transactions service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns a filtered page of transactions with the unpaged total.
func (s *Service) List(ctx context.Context, orgID int64, filters Filters) ([]Row, int, error) {
	if err := validateFilters(filters); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, orgID, filters)
}

// Get returns one transaction scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, id int64) (Row, error) {
	if id <= 0 {
		return Row{}, ErrNotFound
	}
	return s.repo.Get(ctx, orgID, id)
}

// Export streams every row matching the filters into fn, oldest first.
func (s *Service) Export(ctx context.Context, orgID int64, filters Filters, fn func(Row) error) error {
	if err := validateFilters(filters); err != nil {
		return err
	}
	return s.repo.ForEach(ctx, orgID, filters, fn)
}

// BulkDelete logically deletes the given transactions. Rows already deleted
// or belonging to another organization are silently skipped; the returned
// count is how many actually changed.
func (s *Service) BulkDelete(ctx context.Context, orgID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no transaction ids given", ErrValidation)
	}
	if len(ids) > maxBulkDeleteIDs {
		return 0, fmt.Errorf("%w: at most %d transactions per request", ErrValidation, maxBulkDeleteIDs)
	}
	for _, id := range ids {
		if id <= 0 {
			return 0, fmt.Errorf("%w: invalid transaction id %d", ErrValidation, id)
		}
	}
	deleted, err := s.repo.BulkDelete(ctx, orgID, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("bulk delete", "org_id", orgID, "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

// DuplicateReport returns clusters of recent rows sharing supplier, amount
// and date.
func (s *Service) DuplicateReport(ctx context.Context, orgID int64, window time.Duration, limit int) ([]DuplicateGroup, error) {
	if window <= 0 {
		window = defaultDuplicateWindow
	}
	return s.repo.DuplicateGroups(ctx, orgID, window, limit)
}

func validateFilters(filters Filters) error {
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return fmt.Errorf("%w: date_from is after date_to", ErrValidation)
	}
	if filters.MinAmount != nil && filters.MaxAmount != nil && filters.MinAmount.GreaterThan(*filters.MaxAmount) {
		return fmt.Errorf("%w: min_amount is greater than max_amount", ErrValidation)
	}
	return nil
}
