package suppliers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spendlens/spendlens/internal/masterdata/shared"
)

// Repository describes supplier persistence. All operations are scoped to a
// single organization.
type Repository interface {
	List(ctx context.Context, orgID int64, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, orgID, id int64) (Supplier, error)
	GetOrCreateByName(ctx context.Context, orgID int64, name string) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, orgID, id int64, supplier Supplier) error
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
	"code":       "code",
	"name":       "name",
	"created_at": "created_at",
}

func (r *repository) List(ctx context.Context, orgID int64, filters shared.ListFilters) ([]Supplier, int, error) {
	query := `SELECT id, organization_id, code, name, is_active, created_at, updated_at
		FROM suppliers WHERE organization_id = $1`
	args := []any{orgID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	countQuery := `SELECT COUNT(*) FROM suppliers WHERE organization_id = $1`
	countArgs := []any{orgID}
	if filters.Search != "" {
		countQuery += ` AND (name ILIKE $2 OR code ILIKE $2)`
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

	var result []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Code, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, s)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, code, name, is_active, created_at, updated_at
		 FROM suppliers WHERE organization_id = $1 AND id = $2`, orgID, id).
		Scan(&s.ID, &s.OrganizationID, &s.Code, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

// GetOrCreateByName resolves a supplier by case-insensitive name, creating an
// active one when no match exists. Used by the ingestion validator.
func (r *repository) GetOrCreateByName(ctx context.Context, orgID int64, name string) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, code, name, is_active, created_at, updated_at
		 FROM suppliers WHERE organization_id = $1 AND lower(name) = lower($2) AND is_active`, orgID, name).
		Scan(&s.ID, &s.OrganizationID, &s.Code, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, err
	}
	// Insert races with concurrent uploads resolving the same name; on a
	// conflict the existing row wins and is re-read.
	now := time.Now()
	err = r.db.QueryRow(ctx,
		`INSERT INTO suppliers (organization_id, name, is_active, created_at, updated_at)
		 VALUES ($1, $2, TRUE, $3, $3)
		 ON CONFLICT (organization_id, lower(name)) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING id, organization_id, code, name, is_active, created_at, updated_at`,
		orgID, name, now).
		Scan(&s.ID, &s.OrganizationID, &s.Code, &s.Name, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Supplier{}, err
	}
	return s, nil
}

func (r *repository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx,
		`INSERT INTO suppliers (organization_id, code, name, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		supplier.OrganizationID, supplier.Code, supplier.Name, supplier.IsActive, now).
		Scan(&supplier.ID)
	if err != nil {
		return Supplier{}, err
	}
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}

func (r *repository) Update(ctx context.Context, orgID, id int64, supplier Supplier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE suppliers SET code = $1, name = $2, is_active = $3, updated_at = $4
		 WHERE organization_id = $5 AND id = $6`,
		supplier.Code, supplier.Name, supplier.IsActive, time.Now(), orgID, id)
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
		`UPDATE suppliers SET is_active = FALSE, updated_at = $1 WHERE organization_id = $2 AND id = $3`,
		time.Now(), orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
