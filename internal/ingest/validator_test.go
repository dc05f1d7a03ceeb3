package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	ids    map[string]int64
	nextID int64
	calls  int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{ids: make(map[string]int64), nextID: 1}
}

func (f *fakeResolver) GetOrCreateByName(_ context.Context, _ int64, name string) (int64, error) {
	f.calls++
	key := strings.ToLower(name)
	if id, ok := f.ids[key]; ok {
		return id, nil
	}
	id := f.nextID
	f.nextID++
	f.ids[key] = id
	return id, nil
}

func (f *fakeResolver) Exists(_ context.Context, _ int64, id int64) (bool, error) {
	for _, known := range f.ids {
		if known == id {
			return true, nil
		}
	}
	return false, nil
}

func row(index int, values map[string]string) RawRow {
	return RawRow{Index: index, Values: values}
}

func TestValidatorAcceptsWellFormedRow(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())

	cand, rowErr := v.Validate(context.Background(), 1, row(2, map[string]string{
		"supplier":       "Acme Corp",
		"category":       "IT Services",
		"amount":         "$1,250.50",
		"date":           "2024-03-15",
		"description":    "Laptop batch",
		"invoice_number": "INV-001",
	}))
	require.Nil(t, rowErr)
	require.True(t, cand.Amount.Equal(decimal.RequireFromString("1250.50")))
	require.Equal(t, 2024, cand.Date.Year())
	require.Equal(t, 2024, cand.FiscalYear)
	require.Equal(t, "INV-001", cand.InvoiceNumber)
	require.NotZero(t, cand.SupplierID)
	require.NotZero(t, cand.CategoryID)
}

func TestValidatorAmountFormats(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain", "100", "100", true},
		{"decimal", "99.99", "99.99", true},
		{"currency symbol", "$1,250.50", "1250.50", true},
		{"thousands", "1,234,567.89", "1234567.89", true},
		{"parentheses credit", "(250.00)", "-250.00", true},
		{"minus sign", "-42.50", "-42.50", true},
		{"pound", "£75.25", "75.25", true},
		{"empty", "", "", false},
		{"words", "ten dollars", "", false},
		{"too large", "9999999999999.99", "", false},
	}
	maxAmount := decimal.RequireFromString("999999999999.99")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAmount(tc.raw, maxAmount)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestValidatorDateLocale(t *testing.T) {
	us := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())
	eu := NewValidator(DefaultValidatorConfig(true), newFakeResolver(), newFakeResolver())

	usDate, err := us.parseDate("03/04/2024")
	require.NoError(t, err)
	require.Equal(t, "2024-03-04", usDate.Format("2006-01-02"))

	euDate, err := eu.parseDate("03/04/2024")
	require.NoError(t, err)
	require.Equal(t, "2024-04-03", euDate.Format("2006-01-02"))

	iso, err := us.parseDate("2024-12-31")
	require.NoError(t, err)
	require.Equal(t, "2024-12-31", iso.Format("2006-01-02"))

	_, err = us.parseDate("not a date")
	require.Error(t, err)
}

func TestValidatorRejectsMissingFields(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())

	cases := []struct {
		name   string
		values map[string]string
	}{
		{"missing amount", map[string]string{"supplier": "A", "category": "C", "date": "2024-01-01"}},
		{"missing date", map[string]string{"supplier": "A", "category": "C", "amount": "10"}},
		{"missing supplier", map[string]string{"category": "C", "amount": "10", "date": "2024-01-01"}},
		{"missing category", map[string]string{"supplier": "A", "amount": "10", "date": "2024-01-01"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, rowErr := v.Validate(context.Background(), 1, row(5, tc.values))
			require.NotNil(t, rowErr)
			require.Equal(t, 5, rowErr.RowIndex)
			require.NotEmpty(t, rowErr.Message)
		})
	}
}

func TestValidatorExplicitIDsMustBelongToOrg(t *testing.T) {
	sup := newFakeResolver()
	cat := newFakeResolver()
	supID, err := sup.GetOrCreateByName(context.Background(), 1, "Acme")
	require.NoError(t, err)
	catID, err := cat.GetOrCreateByName(context.Background(), 1, "IT")
	require.NoError(t, err)

	v := NewValidator(DefaultValidatorConfig(false), sup, cat)
	values := map[string]string{
		"supplier_id": "1", "category_id": "1",
		"amount": "10", "date": "2024-01-01",
	}
	cand, rowErr := v.Validate(context.Background(), 1, row(2, values))
	require.Nil(t, rowErr)
	require.Equal(t, supID, cand.SupplierID)
	require.Equal(t, catID, cand.CategoryID)

	values["supplier_id"] = "999"
	_, rowErr = v.Validate(context.Background(), 1, row(3, values))
	require.NotNil(t, rowErr)
	require.Contains(t, rowErr.Message, "does not belong")
}

func TestValidatorSanitizesFormulaPrefixes(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())

	cand, rowErr := v.Validate(context.Background(), 1, row(2, map[string]string{
		"supplier":    "=cmd|'/C calc'!A0",
		"category":    "IT",
		"amount":      "10",
		"date":        "2024-01-01",
		"description": "@SUM(A1:A9)",
	}))
	require.Nil(t, rowErr)
	require.Equal(t, "'@SUM(A1:A9)", cand.Description)
}

func TestValidatorCachesResolvedNames(t *testing.T) {
	sup := newFakeResolver()
	v := NewValidator(DefaultValidatorConfig(false), sup, newFakeResolver())

	for i := 0; i < 5; i++ {
		_, rowErr := v.Validate(context.Background(), 1, row(i+2, map[string]string{
			"supplier": "ACME corp",
			"category": "IT",
			"amount":   "10",
			"date":     "2024-01-01",
		}))
		require.Nil(t, rowErr)
	}
	// Differently cased repeats of the same supplier hit storage once.
	require.Equal(t, 1, sup.calls)
}

func TestValidatorFiscalYear(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(false), newFakeResolver(), newFakeResolver())
	base := map[string]string{
		"supplier": "A", "category": "C", "amount": "10", "date": "2024-06-01",
	}

	cand, rowErr := v.Validate(context.Background(), 1, row(2, base))
	require.Nil(t, rowErr)
	require.Equal(t, 2024, cand.FiscalYear)

	base["fiscal_year"] = "2023"
	cand, rowErr = v.Validate(context.Background(), 1, row(3, base))
	require.Nil(t, rowErr)
	require.Equal(t, 2023, cand.FiscalYear)

	base["fiscal_year"] = "later"
	_, rowErr = v.Validate(context.Background(), 1, row(4, base))
	require.NotNil(t, rowErr)
}
