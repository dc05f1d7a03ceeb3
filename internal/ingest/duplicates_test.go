package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type staticMatchStore struct {
	matches []Match
}

func (s staticMatchStore) FindMatches(context.Context, int64, int64, decimal.Decimal, time.Time, string) ([]Match, error) {
	return s.matches, nil
}

func candidate(invoice string) Candidate {
	return Candidate{
		SupplierID:    7,
		CategoryID:    3,
		Amount:        decimal.RequireFromString("100.00"),
		Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		InvoiceNumber: invoice,
	}
}

func TestDetectorInvoiceMatchIsAuthoritative(t *testing.T) {
	det := NewDuplicateDetector(staticMatchStore{matches: []Match{
		{TransactionID: 11, InvoiceNumber: "INV-1", AmountEqual: false, DateEqual: false},
	}})

	res, err := det.Inspect(context.Background(), 1, candidate("INV-1"))
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.EqualValues(t, 11, res.MatchedID)
	require.False(t, res.Ambiguous)
}

func TestDetectorTupleFallbackWhenInvoiceMissing(t *testing.T) {
	det := NewDuplicateDetector(staticMatchStore{matches: []Match{
		{TransactionID: 12, InvoiceNumber: "", AmountEqual: true, DateEqual: true},
	}})

	res, err := det.Inspect(context.Background(), 1, candidate(""))
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.EqualValues(t, 12, res.MatchedID)
}

func TestDetectorDifferentInvoicesAreDistinct(t *testing.T) {
	// Same supplier, amount and date, but both sides carry an invoice number
	// and they differ: legitimate repeat purchase, not a duplicate.
	det := NewDuplicateDetector(staticMatchStore{matches: []Match{
		{TransactionID: 13, InvoiceNumber: "INV-OLD", AmountEqual: true, DateEqual: true},
	}})

	res, err := det.Inspect(context.Background(), 1, candidate("INV-NEW"))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
}

func TestDetectorAmbiguousWhenSignalsDisagree(t *testing.T) {
	det := NewDuplicateDetector(staticMatchStore{matches: []Match{
		{TransactionID: 14, InvoiceNumber: "INV-9", AmountEqual: false, DateEqual: true},
		{TransactionID: 15, InvoiceNumber: "", AmountEqual: true, DateEqual: true},
	}})

	res, err := det.Inspect(context.Background(), 1, candidate("INV-9"))
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.EqualValues(t, 14, res.MatchedID, "invoice match wins")
	require.True(t, res.Ambiguous)
}

func TestDetectorNoMatches(t *testing.T) {
	det := NewDuplicateDetector(staticMatchStore{})
	res, err := det.Inspect(context.Background(), 1, candidate("INV-1"))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
}
