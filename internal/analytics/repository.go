package analytics

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository loads the filtered transaction set a view is computed over.
type Repository interface {
	Rows(ctx context.Context, orgID int64, filters Filters) ([]Row, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Rows(ctx context.Context, orgID int64, filters Filters) ([]Row, error) {
	query := `
		SELECT t.supplier_id, s.name, t.category_id, c.name, t.amount::text, t.transaction_date
		FROM transactions t
		JOIN suppliers s ON s.id = t.supplier_id
		JOIN categories c ON c.id = t.category_id
		WHERE t.organization_id = $1 AND NOT t.is_deleted`
	args := []any{orgID}
	argCount := 1

	if filters.DateFrom != nil {
		argCount++
		query += ` AND t.transaction_date >= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateFrom)
	}
	if filters.DateTo != nil {
		argCount++
		query += ` AND t.transaction_date <= $` + strconv.Itoa(argCount)
		args = append(args, *filters.DateTo)
	}
	if filters.SupplierID > 0 {
		argCount++
		query += ` AND t.supplier_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.SupplierID)
	}
	if filters.CategoryID > 0 {
		argCount++
		query += ` AND t.category_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.CategoryID)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var (
			row    Row
			amount string
		)
		if err := rows.Scan(&row.SupplierID, &row.SupplierName, &row.CategoryID, &row.CategoryName, &amount, &row.Date); err != nil {
			return nil, err
		}
		row.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
