package categories

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

func (s *Service) List(ctx context.Context, orgID int64, filters shared.ListFilters) ([]Category, int, error) {
	return s.repo.List(ctx, orgID, filters)
}

func (s *Service) Get(ctx context.Context, orgID, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, fmt.Errorf("%w: invalid category id", ErrValidation)
	}
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) Create(ctx context.Context, orgID int64, category Category) (Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if category.ParentID != nil {
		if _, err := s.repo.Get(ctx, orgID, *category.ParentID); err != nil {
			return Category{}, fmt.Errorf("%w: parent category", ErrValidation)
		}
	}
	category.OrganizationID = orgID
	category.IsActive = true
	return s.repo.Create(ctx, category)
}

func (s *Service) Update(ctx context.Context, orgID, id int64, category Category) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid category id", ErrValidation)
	}
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if category.ParentID != nil {
		if err := s.checkCycle(ctx, orgID, id, *category.ParentID); err != nil {
			return err
		}
	}
	return s.repo.Update(ctx, orgID, id, category)
}

func (s *Service) Deactivate(ctx context.Context, orgID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid category id", ErrValidation)
	}
	return s.repo.Deactivate(ctx, orgID, id)
}

// checkCycle walks the ancestor chain from the proposed parent and rejects the
// assignment when it reaches the category being updated.
func (s *Service) checkCycle(ctx context.Context, orgID, id, parentID int64) error {
	current := parentID
	for depth := 0; depth < 64; depth++ {
		if current == id {
			return ErrCycle
		}
		parent, err := s.repo.Get(ctx, orgID, current)
		if err != nil {
			return fmt.Errorf("%w: parent category", ErrValidation)
		}
		if parent.ParentID == nil {
			return nil
		}
		current = *parent.ParentID
	}
	return ErrCycle
}
