package suppliers

import (
	"context"
	"fmt"
	"strings"

	"github.com/spendlens/spendlens/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, orgID int64, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, orgID, filters)
}

func (s *Service) Get(ctx context.Context, orgID, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("%w: invalid supplier id", ErrValidation)
	}
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) Create(ctx context.Context, orgID int64, supplier Supplier) (Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return Supplier{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	supplier.OrganizationID = orgID
	supplier.IsActive = true
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, orgID, id int64, supplier Supplier) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid supplier id", ErrValidation)
	}
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return s.repo.Update(ctx, orgID, id, supplier)
}

func (s *Service) Deactivate(ctx context.Context, orgID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid supplier id", ErrValidation)
	}
	return s.repo.Deactivate(ctx, orgID, id)
}
