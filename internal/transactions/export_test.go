package transactions

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	repo := &fakeRepo{rows: []Row{
		{
			ID:           1,
			SupplierName: "Acme Corp",
			CategoryName: "IT Services",
			Amount:       decimal.RequireFromString("1250.5"),
			Date:         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Description:  "Laptops",
			FiscalYear:   2024,
		},
		{
			ID:           2,
			SupplierName: "=cmd|'/C calc'!A0",
			CategoryName: "Office",
			Amount:       decimal.RequireFromString("-42"),
			Date:         time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
			Description:  "@injection",
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, testService(repo).WriteCSV(context.Background(), &buf, 1, Filters{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, exportHeader, records[0])

	require.Equal(t, "1", records[1][0])
	require.Equal(t, "Acme Corp", records[1][1])
	require.Equal(t, "1250.50", records[1][3])
	require.Equal(t, "2024-03-15", records[1][4])
	require.Equal(t, "2024", records[1][8])

	// Formula-looking values leave with a quote prefix.
	require.Equal(t, "'=cmd|'/C calc'!A0", records[2][1])
	require.Equal(t, "'@injection", records[2][5])
	require.Equal(t, "-42.00", records[2][3], "amounts are numeric, never escaped")
}
