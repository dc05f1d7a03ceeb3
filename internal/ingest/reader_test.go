package ingest

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestValidateUploadFile(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		size     int64
		head     []byte
		wantErr  bool
	}{
		{"csv ok", "spend.csv", 1024, []byte("supplier,amount"), false},
		{"xlsx ok", "spend.XLSX", 1024, nil, false},
		{"wrong extension", "spend.pdf", 1024, nil, true},
		{"empty file", "spend.csv", 0, nil, true},
		{"oversized", "spend.csv", 2048, []byte("a"), true},
		{"binary masquerading as csv", "spend.csv", 100, []byte{0x50, 0x4b, 0x00, 0x01}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUploadFile(tc.fileName, tc.size, 1024, tc.head)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrFileInvalid)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCSVSourceHeaderNormalization(t *testing.T) {
	content := "Supplier, Category ,AMOUNT,Date,Invoice Number\nAcme,IT,10,2024-01-01,INV-1\n"
	src, err := NewCSVSource(strings.NewReader(content))
	require.NoError(t, err)
	defer src.Close()

	row, err := src.Next()
	require.NoError(t, err)
	require.Equal(t, 2, row.Index)
	require.Equal(t, "Acme", row.Values["supplier"])
	require.Equal(t, "IT", row.Values["category"])
	require.Equal(t, "10", row.Values["amount"])
	require.Equal(t, "INV-1", row.Values["invoice_number"])

	_, err = src.Next()
	require.Equal(t, io.EOF, err)
}

func TestCSVSourceStripsByteOrderMark(t *testing.T) {
	content := "\uFEFFsupplier,category,amount,date\nAcme,IT,10,2024-01-01\n"
	src, err := NewCSVSource(strings.NewReader(content))
	require.NoError(t, err)
	defer src.Close()

	row, err := src.Next()
	require.NoError(t, err)
	require.Equal(t, "Acme", row.Values["supplier"], "BOM-prefixed header column still maps")
}

func TestCSVSourceMissingRequiredColumns(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("supplier,amount\nAcme,10\n"))
	require.ErrorIs(t, err, ErrFileInvalid)
	require.Contains(t, err.Error(), "category")
	require.Contains(t, err.Error(), "date")
}

func TestCSVSourceIDColumnsSatisfyRequirement(t *testing.T) {
	content := "supplier_id,category_id,amount,date\n1,2,10,2024-01-01\n"
	src, err := NewCSVSource(strings.NewReader(content))
	require.NoError(t, err)
	defer src.Close()
}

func TestCSVSourceShortRow(t *testing.T) {
	content := "supplier,category,amount,date\nAcme,IT\n"
	src, err := NewCSVSource(strings.NewReader(content))
	require.NoError(t, err)
	defer src.Close()

	row, err := src.Next()
	require.NoError(t, err)
	require.Equal(t, "Acme", row.Values["supplier"])
	_, ok := row.Values["amount"]
	require.False(t, ok, "missing trailing cells stay absent")
}

func TestXLSXSource(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Supplier", "Category", "Amount", "Date"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Acme", "IT", "10.50", "2024-01-01"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"Beta", "Office", "20", "2024-01-02"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	src, err := NewXLSXSource(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer src.Close()

	row, err := src.Next()
	require.NoError(t, err)
	require.Equal(t, 2, row.Index)
	require.Equal(t, "Acme", row.Values["supplier"])
	require.Equal(t, "10.50", row.Values["amount"])

	row, err = src.Next()
	require.NoError(t, err)
	require.Equal(t, "Beta", row.Values["supplier"])

	_, err = src.Next()
	require.Equal(t, io.EOF, err)
}

func TestXLSXSourceMissingHeader(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = NewXLSXSource(bytes.NewReader(buf.Bytes()))
	require.ErrorIs(t, err, ErrFileInvalid)
}

func TestNewRowSourceUnknownExtension(t *testing.T) {
	_, err := NewRowSource("spend.txt", strings.NewReader(""))
	require.ErrorIs(t, err, ErrFileInvalid)
}
