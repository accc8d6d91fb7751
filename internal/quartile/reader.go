package quartile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadOptions controls how ReadRows parses its input.
type ReadOptions struct {
	// Delimiter is the CSV field separator. Zero means ','.
	Delimiter rune
	// Sheet is the worksheet of an .xlsx file. Empty means the first sheet.
	Sheet string
}

// ReadRows loads all rows of path. Files ending in .xlsx or .xlsm are read
// as workbooks, everything else as delimited text.
func ReadRows(path string, opts ReadOptions) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts.Sheet)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, opts.Delimiter)
}

// ReadCSV reads every record from r. Quotes are parsed leniently and rows
// may have differing field counts.
func ReadCSV(r io.Reader, delimiter rune) ([][]string, error) {
	if delimiter == 0 {
		delimiter = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// ReadXLSX reads every row of sheet from the workbook at path.
func ReadXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return rows, nil
}
