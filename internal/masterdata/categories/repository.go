package categories

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spendlens/spendlens/internal/masterdata/shared"
)

// Repository describes category persistence, scoped to one organization.
type Repository interface {
	List(ctx context.Context, orgID int64, filters shared.ListFilters) ([]Category, int, error)
	Get(ctx context.Context, orgID, id int64) (Category, error)
	GetOrCreateByName(ctx context.Context, orgID int64, name string) (Category, error)
	Create(ctx context.Context, category Category) (Category, error)
	Update(ctx context.Context, orgID, id int64, category Category) error
	Deactivate(ctx context.Context, orgID, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

var sortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
}

func (r *repository) List(ctx context.Context, orgID int64, filters shared.ListFilters) ([]Category, int, error) {
	query := `SELECT id, organization_id, name, parent_id, is_active, created_at, updated_at
		FROM categories WHERE organization_id = $1`
	args := []any{orgID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		query += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}

	countQuery := `SELECT COUNT(*) FROM categories WHERE organization_id = $1`
	countArgs := []any{orgID}
	if filters.Search != "" {
		countQuery += ` AND name ILIKE $2`
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY " + shared.SortOrder(filters.SortBy, filters.SortDir, sortColumns, "name ASC")

	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (Category, error) {
	var c Category
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, parent_id, is_active, created_at, updated_at
		 FROM categories WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// GetOrCreateByName resolves a category by case-insensitive name, creating an
// active one when no match exists. Used by the ingestion validator.
func (r *repository) GetOrCreateByName(ctx context.Context, orgID int64, name string) (Category, error) {
	var c Category
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, parent_id, is_active, created_at, updated_at
		 FROM categories WHERE organization_id = $1 AND lower(name) = lower($2) AND is_active`, orgID, name).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Category{}, err
	}
	now := time.Now()
	err = r.db.QueryRow(ctx,
		`INSERT INTO categories (organization_id, name, is_active, created_at, updated_at)
		 VALUES ($1, $2, TRUE, $3, $3)
		 ON CONFLICT (organization_id, lower(name)) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING id, organization_id, name, parent_id, is_active, created_at, updated_at`,
		orgID, name, now).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, category Category) (Category, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (organization_id, name, parent_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		category.OrganizationID, category.Name, category.ParentID, category.IsActive, now).
		Scan(&category.ID)
	if err != nil {
		return Category{}, err
	}
	category.CreatedAt = now
	category.UpdatedAt = now
	return category, nil
}

func (r *repository) Update(ctx context.Context, orgID, id int64, category Category) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE categories SET name = $1, parent_id = $2, is_active = $3, updated_at = $4
		 WHERE organization_id = $5 AND id = $6`,
		category.Name, category.ParentID, category.IsActive, time.Now(), orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE categories SET is_active = FALSE, updated_at = $1 WHERE organization_id = $2 AND id = $3`,
		time.Now(), orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
