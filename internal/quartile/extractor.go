// Package quartile extracts a journal title to quartile mapping from a
// ranking export (SJR and similar) by locating columns through their headers.
package quartile

import (
	"io"
	"strings"

	"github.com/helixir/institution-sync/internal/domain"
	"github.com/helixir/institution-sync/internal/snapshot"
)

// Accepted header spellings, compared after lowercasing and trimming.
var (
	TitleHeaders    = []string{"title", "source title", "journal title"}
	QuartileHeaders = []string{"sjr best quartile", "best quartile", "quartile"}
)

const utf8BOM = "\ufeff"

// Columns holds the located column indexes.
type Columns struct {
	Title    int
	Quartile int
}

// width is the minimum row length that holds both columns.
func (c Columns) width() int {
	return max(c.Title, c.Quartile) + 1
}

// LocateColumns finds the first title and quartile columns in header.
// It returns a *domain.HeaderError naming the normalized header when either
// column is missing.
func LocateColumns(header []string) (Columns, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	cols := Columns{
		Title:    indexOfAny(normalized, TitleHeaders),
		Quartile: indexOfAny(normalized, QuartileHeaders),
	}
	if cols.Title < 0 || cols.Quartile < 0 {
		return Columns{}, &domain.HeaderError{Header: normalized}
	}
	return cols, nil
}

// Extract builds the mapping from rows, the first of which is the header.
// Rows too short to hold both columns, rows with an empty title and rows whose
// quartile is not Q1..Q4 are skipped. A later row wins on a title collision.
func Extract(rows [][]string) (domain.QuartileMapping, error) {
	if len(rows) == 0 {
		return nil, domain.ErrEmptyInput
	}

	cols, err := LocateColumns(rows[0])
	if err != nil {
		return nil, err
	}

	mapping := make(domain.QuartileMapping)
	for _, row := range rows[1:] {
		if len(row) < cols.width() {
			continue
		}
		title := strings.TrimSpace(validUTF8(row[cols.Title]))
		if title == "" {
			continue
		}
		q, ok := domain.ParseQuartile(validUTF8(row[cols.Quartile]))
		if !ok {
			continue
		}
		mapping[domain.NormalizeTitle(title)] = q
	}
	return mapping, nil
}

// WriteJSON writes mapping with sorted keys and 2-space indent.
func WriteJSON(w io.Writer, mapping domain.QuartileMapping) error {
	if mapping == nil {
		mapping = domain.QuartileMapping{}
	}
	return snapshot.Encode(w, mapping)
}

// WriteFile writes mapping to path atomically.
func WriteFile(path string, mapping domain.QuartileMapping) error {
	if mapping == nil {
		mapping = domain.QuartileMapping{}
	}
	return snapshot.WriteFile(path, mapping)
}

// validUTF8 drops invalid byte sequences from a cell.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(validUTF8(h), utf8BOM)
	return strings.ToLower(strings.TrimSpace(h))
}

func indexOfAny(cells, accepted []string) int {
	for i, c := range cells {
		for _, a := range accepted {
			if c == a {
				return i
			}
		}
	}
	return -1
}
