package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// RawRow is one parsed input row: column name (lower-cased header) to raw
// cell value, plus the row's position in the file for error reporting.
type RawRow struct {
	Index  int
	Values map[string]string
}

// Candidate is a validated row ready for duplicate inspection and insertion.
type Candidate struct {
	SupplierID    int64
	CategoryID    int64
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	Subcategory   string
	Location      string
	FiscalYear    int
	SpendBand     string
	PaymentMethod string
	InvoiceNumber string
}

// transaction materialises the candidate for a given organization and batch.
func (c Candidate) transaction(orgID int64, batchID string) Transaction {
	return Transaction{
		OrganizationID: orgID,
		SupplierID:     c.SupplierID,
		CategoryID:     c.CategoryID,
		Amount:         c.Amount,
		Date:           c.Date,
		Description:    c.Description,
		Subcategory:    c.Subcategory,
		Location:       c.Location,
		FiscalYear:     c.FiscalYear,
		SpendBand:      c.SpendBand,
		PaymentMethod:  c.PaymentMethod,
		InvoiceNumber:  c.InvoiceNumber,
		UploadBatchID:  batchID,
	}
}

// SupplierResolver resolves supplier references during validation.
type SupplierResolver interface {
	GetOrCreateByName(ctx context.Context, orgID int64, name string) (int64, error)
	Exists(ctx context.Context, orgID, id int64) (bool, error)
}

// CategoryResolver resolves category references during validation.
type CategoryResolver interface {
	GetOrCreateByName(ctx context.Context, orgID int64, name string) (int64, error)
	Exists(ctx context.Context, orgID, id int64) (bool, error)
}

// ValidatorConfig controls row parsing.
type ValidatorConfig struct {
	// DateFormats are tried in order; the first successful parse wins.
	DateFormats []string
	// MaxAmount caps the absolute value of a parsed amount.
	MaxAmount decimal.Decimal
}

// DefaultDateFormats returns the accepted date layouts. Ambiguous numeric
// dates are resolved by the configured locale, not guessed per row.
func DefaultDateFormats(dayFirst bool) []string {
	numeric := []string{"01/02/2006", "01-02-2006", "1/2/2006"}
	if dayFirst {
		numeric = []string{"02/01/2006", "02-01-2006", "2/1/2006"}
	}
	formats := []string{"2006-01-02", "2006/01/02"}
	formats = append(formats, numeric...)
	return append(formats, "Jan 2, 2006", "2 Jan 2006", "January 2, 2006")
}

// DefaultValidatorConfig mirrors the defaults used by the ingestion service.
func DefaultValidatorConfig(dayFirst bool) ValidatorConfig {
	return ValidatorConfig{
		DateFormats: DefaultDateFormats(dayFirst),
		MaxAmount:   decimal.RequireFromString("999999999999.99"),
	}
}

// Validator normalises and validates raw rows into candidates. One Validator
// serves one batch: resolved entity names are cached per instance so repeated
// supplier/category names hit storage once.
type Validator struct {
	cfg        ValidatorConfig
	suppliers  SupplierResolver
	categories CategoryResolver

	folder        cases.Caser
	supplierCache map[string]int64
	categoryCache map[string]int64
}

// NewValidator constructs a Validator for a single batch.
func NewValidator(cfg ValidatorConfig, suppliers SupplierResolver, categories CategoryResolver) *Validator {
	if len(cfg.DateFormats) == 0 {
		cfg.DateFormats = DefaultDateFormats(false)
	}
	if cfg.MaxAmount.IsZero() {
		cfg.MaxAmount = decimal.RequireFromString("999999999999.99")
	}
	return &Validator{
		cfg:           cfg,
		suppliers:     suppliers,
		categories:    categories,
		folder:        cases.Fold(),
		supplierCache: make(map[string]int64),
		categoryCache: make(map[string]int64),
	}
}

// Validate turns one raw row into a candidate or a structured rejection.
// Malformed input never aborts the batch: every parse failure becomes a
// RowError.
func (v *Validator) Validate(ctx context.Context, orgID int64, row RawRow) (Candidate, *RowError) {
	var cand Candidate

	amount, err := parseAmount(row.Values["amount"], v.cfg.MaxAmount)
	if err != nil {
		return Candidate{}, v.reject(row, err.Error())
	}
	cand.Amount = amount

	date, err := v.parseDate(row.Values["date"])
	if err != nil {
		return Candidate{}, v.reject(row, err.Error())
	}
	cand.Date = date

	supplierID, err := v.resolveSupplier(ctx, orgID, row.Values)
	if err != nil {
		return Candidate{}, v.reject(row, err.Error())
	}
	cand.SupplierID = supplierID

	categoryID, err := v.resolveCategory(ctx, orgID, row.Values)
	if err != nil {
		return Candidate{}, v.reject(row, err.Error())
	}
	cand.CategoryID = categoryID

	cand.Description = sanitizeCell(row.Values["description"])
	cand.Subcategory = sanitizeCell(row.Values["subcategory"])
	cand.Location = sanitizeCell(row.Values["location"])
	cand.SpendBand = sanitizeCell(row.Values["spend_band"])
	cand.PaymentMethod = sanitizeCell(row.Values["payment_method"])
	cand.InvoiceNumber = sanitizeCell(row.Values["invoice_number"])

	if raw := strings.TrimSpace(row.Values["fiscal_year"]); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1900 || year > 9999 {
			return Candidate{}, v.reject(row, fmt.Sprintf("invalid fiscal_year value: %s", raw))
		}
		cand.FiscalYear = year
	} else {
		cand.FiscalYear = date.Year()
	}

	return cand, nil
}

func (v *Validator) reject(row RawRow, message string) *RowError {
	return &RowError{
		RowIndex: row.Index,
		Message:  sanitizeErrorMessage(message),
		Raw:      row.Values,
	}
}

func (v *Validator) resolveSupplier(ctx context.Context, orgID int64, values map[string]string) (int64, error) {
	if raw := strings.TrimSpace(values["supplier_id"]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid supplier_id value: %s", raw)
		}
		ok, err := v.suppliers.Exists(ctx, orgID, id)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("supplier %d does not belong to the organization", id)
		}
		return id, nil
	}

	name := sanitizeCell(values["supplier"])
	if name == "" || name == "'" {
		return 0, fmt.Errorf("supplier is required")
	}
	key := v.folder.String(name)
	if id, ok := v.supplierCache[key]; ok {
		return id, nil
	}
	id, err := v.suppliers.GetOrCreateByName(ctx, orgID, name)
	if err != nil {
		return 0, err
	}
	v.supplierCache[key] = id
	return id, nil
}

func (v *Validator) resolveCategory(ctx context.Context, orgID int64, values map[string]string) (int64, error) {
	if raw := strings.TrimSpace(values["category_id"]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid category_id value: %s", raw)
		}
		ok, err := v.categories.Exists(ctx, orgID, id)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("category %d does not belong to the organization", id)
		}
		return id, nil
	}

	name := sanitizeCell(values["category"])
	if name == "" || name == "'" {
		return 0, fmt.Errorf("category is required")
	}
	key := v.folder.String(name)
	if id, ok := v.categoryCache[key]; ok {
		return id, nil
	}
	id, err := v.categories.GetOrCreateByName(ctx, orgID, name)
	if err != nil {
		return 0, err
	}
	v.categoryCache[key] = id
	return id, nil
}

var currencySymbols = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "", " ", "")

// parseAmount accepts common currency formatting: thousands separators, a
// leading symbol, and parentheses or a minus sign for credits/returns.
// Negative amounts are kept as-is so credits flow through aggregation.
func parseAmount(raw string, maxAmount decimal.Decimal) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("amount is required")
	}
	negative := false
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		negative = true
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	cleaned := currencySymbols.Replace(trimmed)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount value: %s", raw)
	}
	if negative {
		amount = amount.Neg()
	}
	if amount.Abs().GreaterThan(maxAmount) {
		return decimal.Decimal{}, fmt.Errorf("amount exceeds maximum allowed value")
	}
	return amount, nil
}

func (v *Validator) parseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range v.cfg.DateFormats {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format: %s", raw)
}
