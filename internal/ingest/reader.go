package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RowSource streams raw rows from an uploaded file one at a time, keeping
// memory bounded regardless of file size. Next returns io.EOF when the
// source is exhausted.
type RowSource interface {
	Next() (RawRow, error)
	Close() error
}

// ValidateUploadFile rejects files before a batch starts: wrong extension,
// empty or oversized files, and binary content masquerading as CSV.
func ValidateUploadFile(name string, size, maxBytes int64, head []byte) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		if bytes.ContainsRune(head, 0) {
			return fmt.Errorf("%w: file appears to be binary, not CSV", ErrFileInvalid)
		}
	case ".xlsx":
	default:
		return fmt.Errorf("%w: file must have a .csv or .xlsx extension", ErrFileInvalid)
	}
	if size <= 0 {
		return fmt.Errorf("%w: file is empty", ErrFileInvalid)
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("%w: file size exceeds %d bytes", ErrFileInvalid, maxBytes)
	}
	return nil
}

// NewRowSource picks a reader implementation from the file extension.
func NewRowSource(name string, r io.Reader) (RowSource, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return NewCSVSource(r)
	case ".xlsx":
		return NewXLSXSource(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type", ErrFileInvalid)
	}
}

type csvSource struct {
	reader *csv.Reader
	header []string
	rowNum int
	closer io.Closer
}

// NewCSVSource builds a streaming source over CSV content. The first record
// is the header; column names are normalised to snake_case lookups.
func NewCSVSource(r io.Reader) (RowSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	record, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header row", ErrFileInvalid)
	}
	header := normalizeHeader(record)
	if err := requireColumns(header); err != nil {
		return nil, err
	}

	src := &csvSource{reader: reader, header: header, rowNum: 1}
	if closer, ok := r.(io.Closer); ok {
		src.closer = closer
	}
	return src, nil
}

func (s *csvSource) Next() (RawRow, error) {
	record, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return RawRow{}, io.EOF
	}
	s.rowNum++
	if err != nil {
		// A malformed CSV line is a row-level problem, not a batch failure.
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return RawRow{Index: s.rowNum, Values: map[string]string{"_parse_error": err.Error()}}, nil
		}
		return RawRow{}, err
	}
	return RawRow{Index: s.rowNum, Values: zipRow(s.header, record)}, nil
}

func (s *csvSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

type xlsxSource struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
	rowNum int
}

// NewXLSXSource builds a streaming source over the first sheet of an XLSX
// workbook using excelize's row iterator.
func NewXLSXSource(r io.Reader) (RowSource, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileInvalid, err)
	}
	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrFileInvalid)
	}
	rows, err := file.Rows(sheets[0])
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileInvalid, err)
	}
	if !rows.Next() {
		_ = rows.Close()
		_ = file.Close()
		return nil, fmt.Errorf("%w: missing header row", ErrFileInvalid)
	}
	record, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		_ = file.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileInvalid, err)
	}
	header := normalizeHeader(record)
	if err := requireColumns(header); err != nil {
		_ = rows.Close()
		_ = file.Close()
		return nil, err
	}
	return &xlsxSource{file: file, rows: rows, header: header, rowNum: 1}, nil
}

func (s *xlsxSource) Next() (RawRow, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return RawRow{}, err
		}
		return RawRow{}, io.EOF
	}
	s.rowNum++
	record, err := s.rows.Columns()
	if err != nil {
		return RawRow{}, err
	}
	return RawRow{Index: s.rowNum, Values: zipRow(s.header, record)}, nil
}

func (s *xlsxSource) Close() error {
	_ = s.rows.Close()
	return s.file.Close()
}

// requiredColumns must be present in the header before any row is processed.
var requiredColumns = []string{"supplier", "category", "amount", "date"}

func requireColumns(header []string) error {
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	var missing []string
	for _, col := range requiredColumns {
		// An explicit id column satisfies the supplier/category requirement.
		if (col == "supplier" && present["supplier_id"]) || (col == "category" && present["category_id"]) {
			continue
		}
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required columns: %s", ErrFileInvalid, strings.Join(missing, ", "))
	}
	return nil
}

func normalizeHeader(record []string) []string {
	header := make([]string, len(record))
	for i, col := range record {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))
		header[i] = strings.ReplaceAll(col, " ", "_")
	}
	return header
}

func zipRow(header, record []string) map[string]string {
	values := make(map[string]string, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		if i < len(record) {
			values[col] = record[i]
		}
	}
	return values
}
