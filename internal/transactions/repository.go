package transactions

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository is the storage surface for committed transactions.
type Repository interface {
	List(ctx context.Context, orgID int64, filters Filters) ([]Row, int, error)
	Get(ctx context.Context, orgID, id int64) (Row, error)
	// ForEach streams every row matching the filters, oldest first, into fn.
	// Used by exports to avoid materialising the full result set.
	ForEach(ctx context.Context, orgID int64, filters Filters, fn func(Row) error) error
	// BulkDelete marks the given rows deleted and returns how many changed.
	BulkDelete(ctx context.Context, orgID int64, ids []int64) (int64, error)
	// DuplicateGroups returns clusters of rows sharing supplier, amount and
	// date that were created inside the trailing window.
	DuplicateGroups(ctx context.Context, orgID int64, window time.Duration, limit int) ([]DuplicateGroup, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

var sortColumns = map[string]string{
	"date":     "t.transaction_date",
	"amount":   "t.amount",
	"supplier": "s.name",
	"category": "c.name",
	"created":  "t.created_at",
}

const rowColumns = `t.id, t.supplier_id, s.name, t.category_id, c.name,
	t.amount::text, t.transaction_date, t.description, t.subcategory, t.location,
	t.fiscal_year, t.spend_band, t.payment_method, t.invoice_number,
	t.upload_batch_id, t.created_at`

const rowJoins = ` FROM transactions t
	JOIN suppliers s ON s.id = t.supplier_id
	JOIN categories c ON c.id = t.category_id
	WHERE t.organization_id = $1 AND NOT t.is_deleted`

func buildFilterClause(filters Filters, args *[]any) string {
	clause := ""
	argCount := len(*args)

	add := func(cond string, value any) string {
		argCount++
		*args = append(*args, value)
		return " AND " + cond + "$" + strconv.Itoa(argCount)
	}

	if filters.SupplierID > 0 {
		clause += add("t.supplier_id = ", filters.SupplierID)
	}
	if filters.CategoryID > 0 {
		clause += add("t.category_id = ", filters.CategoryID)
	}
	if filters.DateFrom != nil {
		clause += add("t.transaction_date >= ", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		clause += add("t.transaction_date <= ", *filters.DateTo)
	}
	if filters.MinAmount != nil {
		clause += add("t.amount >= ", filters.MinAmount.String())
	}
	if filters.MaxAmount != nil {
		clause += add("t.amount <= ", filters.MaxAmount.String())
	}
	if filters.FiscalYear > 0 {
		clause += add("t.fiscal_year = ", filters.FiscalYear)
	}
	if filters.Search != "" {
		argCount++
		n := strconv.Itoa(argCount)
		clause += ` AND (t.description ILIKE $` + n + ` OR t.invoice_number ILIKE $` + n + ` OR s.name ILIKE $` + n + `)`
		*args = append(*args, "%"+filters.Search+"%")
	}
	return clause
}

func (r *repository) List(ctx context.Context, orgID int64, filters Filters) ([]Row, int, error) {
	args := []any{orgID}
	clause := buildFilterClause(filters, &args)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+rowJoins+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "t.transaction_date DESC, t.id DESC"
	if col, ok := sortColumns[filters.SortBy]; ok {
		dir := "ASC"
		if filters.SortDir == "desc" {
			dir = "DESC"
		}
		order = col + " " + dir + ", t.id DESC"
	}
	query := `SELECT ` + rowColumns + rowJoins + clause + ` ORDER BY ` + order

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	argCount := len(args)
	query += ` LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
	args = append(args, limit, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := make([]Row, 0, limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (Row, error) {
	args := []any{orgID, id}
	row, err := scanRow(r.db.QueryRow(ctx, `SELECT `+rowColumns+rowJoins+` AND t.id = $2`, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Row{}, ErrNotFound
		}
		return Row{}, err
	}
	return row, nil
}

func (r *repository) ForEach(ctx context.Context, orgID int64, filters Filters, fn func(Row) error) error {
	args := []any{orgID}
	clause := buildFilterClause(filters, &args)
	query := `SELECT ` + rowColumns + rowJoins + clause + ` ORDER BY t.transaction_date ASC, t.id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *repository) BulkDelete(ctx context.Context, orgID int64, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET is_deleted = TRUE
		WHERE organization_id = $1 AND id = ANY($2) AND NOT is_deleted`,
		orgID, ids,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) DuplicateGroups(ctx context.Context, orgID int64, window time.Duration, limit int) ([]DuplicateGroup, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	since := time.Now().Add(-window)
	rows, err := r.db.Query(ctx, `
		SELECT t.supplier_id, s.name, t.amount::text, t.transaction_date,
		       COUNT(*) AS cnt, array_agg(t.id ORDER BY t.id) AS ids
		FROM transactions t
		JOIN suppliers s ON s.id = t.supplier_id
		WHERE t.organization_id = $1 AND NOT t.is_deleted AND t.created_at >= $2
		GROUP BY t.supplier_id, s.name, t.amount, t.transaction_date
		HAVING COUNT(*) > 1
		ORDER BY COUNT(*) DESC, s.name ASC
		LIMIT $3`,
		orgID, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var (
			g      DuplicateGroup
			amount string
		)
		if err := rows.Scan(&g.SupplierID, &g.SupplierName, &amount, &g.Date, &g.Count, &g.IDs); err != nil {
			return nil, err
		}
		g.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanRow(src pgx.Row) (Row, error) {
	var (
		row    Row
		amount string
	)
	if err := src.Scan(
		&row.ID, &row.SupplierID, &row.SupplierName, &row.CategoryID, &row.CategoryName,
		&amount, &row.Date, &row.Description, &row.Subcategory, &row.Location,
		&row.FiscalYear, &row.SpendBand, &row.PaymentMethod, &row.InvoiceNumber,
		&row.UploadBatchID, &row.CreatedAt,
	); err != nil {
		return Row{}, err
	}
	var err error
	row.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Row{}, err
	}
	return row, nil
}
