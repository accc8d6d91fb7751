package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercase conversion", input: "Nature Communications", expected: "nature communications"},
		{name: "trim both ends", input: "  The Lancet  ", expected: "the lancet"},
		{name: "collapse multiple spaces", input: "Journal   of   Physics", expected: "journal of physics"},
		{name: "collapse tabs and newlines", input: "Cell\t\nReports", expected: "cell reports"},
		{name: "empty string", input: "", expected: ""},
		{name: "only whitespace", input: " \t\n ", expected: ""},
		{name: "non-ascii preserved", input: "Revista  Española", expected: "revista española"},
		{name: "collapse no-break space", input: "Nature\u00a0Communications", expected: "nature communications"},
		{name: "collapse mixed unicode spaces", input: "\u2003Acta \u00a0\u2009Physica\u3000", expected: "acta physica"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}
}

func TestNormalizeTitle_Idempotent(t *testing.T) {
	once := NormalizeTitle("  Physical   Review  Letters ")
	assert.Equal(t, once, NormalizeTitle(once))
}

func TestParseQuartile(t *testing.T) {
	tests := []struct {
		input string
		want  Quartile
		ok    bool
	}{
		{"Q1", Q1, true},
		{"q2", Q2, true},
		{" Q3 ", Q3, true},
		{"q4\t", Q4, true},
		{"Q5", "", false},
		{"Q0", "", false},
		{"-", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseQuartile(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSnapshot(t *testing.T) {
	t.Run("count matches items", func(t *testing.T) {
		items := []WorkRecord{{DOI: "10.1/a"}, {DOI: "10.1/b"}, {DOI: "10.1/c"}}
		snap := NewSnapshot(time.Date(2024, 3, 9, 14, 5, 7, 999, time.UTC), items)

		assert.Equal(t, 3, snap.Count)
		assert.Len(t, snap.Items, snap.Count)
		assert.Equal(t, "2024-03-09T14:05:07Z", snap.Updated)
	})

	t.Run("converts to UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		snap := NewSnapshot(time.Date(2024, 1, 1, 1, 0, 0, 0, loc), nil)

		assert.Equal(t, "2023-12-31T23:00:00Z", snap.Updated)
	})

	t.Run("nil items serialize as empty array", func(t *testing.T) {
		snap := NewSnapshot(time.Now(), nil)
		assert.Equal(t, 0, snap.Count)

		data, err := json.Marshal(snap)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"items":[]`)
	})
}

func TestWorkRecord_JSONFieldNames(t *testing.T) {
	year := 2021
	rec := WorkRecord{
		DOI:       "10.1000/xyz",
		Title:     "A title",
		Year:      &year,
		Type:      "article",
		Citations: 4,
		Authors:   []string{"Ada Lovelace"},
		Journal:   "Nature",
		ISSNs:     []string{"0028-0836"},
		URL:       "https://doi.org/10.1000/xyz",
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"doi", "title", "year", "type", "citations", "authors", "journal", "issns", "url", "is_retracted"} {
		assert.Contains(t, fields, key)
	}
	assert.Len(t, fields, 10)
}

func TestWorkRecord_NilYearIsNull(t *testing.T) {
	data, err := json.Marshal(WorkRecord{Authors: []string{}, ISSNs: []string{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"year":null`)
}

func TestErrors(t *testing.T) {
	t.Run("RateLimitError unwraps to ErrRateLimited", func(t *testing.T) {
		err := NewRateLimitError("OpenAlex", 429, 5*time.Second)
		assert.True(t, errors.Is(err, ErrRateLimited))
		assert.Contains(t, err.Error(), "retry after 5s")
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("RateLimitError without hint", func(t *testing.T) {
		err := NewRateLimitError("OpenAlex", 403, 0)
		assert.Equal(t, "rate limited by OpenAlex (status 403)", err.Error())
	})

	t.Run("ExternalAPIError unwraps cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := NewExternalAPIError("OpenAlex", 500, "internal", cause)
		assert.True(t, errors.Is(err, cause))
		assert.Equal(t, "OpenAlex API error (status 500): internal", err.Error())

		var apiErr *ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 500, apiErr.StatusCode)
	})

	t.Run("HeaderError names the header", func(t *testing.T) {
		err := &HeaderError{Header: []string{"rank", "name"}}
		assert.True(t, errors.Is(err, ErrMissingColumns))
		assert.Contains(t, err.Error(), `"rank", "name"`)
	})

	t.Run("ValidationError unwraps to ErrInvalidInput", func(t *testing.T) {
		err := NewValidationError("paging.max_pages", "must be positive")
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Equal(t, "validation error: paging.max_pages: must be positive", err.Error())
	})
}
