// Package domain provides the record types shared by the fetcher and the
// quartile extractor.
package domain

import "time"

// SnapshotTimeFormat is the layout of Snapshot.Updated (ISO-8601, UTC, second precision).
const SnapshotTimeFormat = "2006-01-02T15:04:05Z"

// StartCursor is the wildcard pagination cursor that requests the first page.
const StartCursor = "*"

// WorkRecord is one normalized publication.
type WorkRecord struct {
	// DOI without any resolver prefix. May be empty.
	DOI string `json:"doi"`

	Title string `json:"title"`

	// Year is nil when the source has no publication year.
	Year *int `json:"year"`

	Type string `json:"type"`

	Citations int `json:"citations"`

	// Authors holds author display names in authorship order.
	Authors []string `json:"authors"`

	Journal string `json:"journal"`

	// ISSNs are uppercase. Never nil.
	ISSNs []string `json:"issns"`

	// URL is the landing page, or a doi.org link when only a DOI is known.
	URL string `json:"url"`

	IsRetracted bool `json:"is_retracted"`
}

// Snapshot is the document written at the end of a fetch run.
type Snapshot struct {
	Updated string       `json:"updated"`
	Count   int          `json:"count"`
	Items   []WorkRecord `json:"items"`
}

// NewSnapshot builds a snapshot stamped with now (converted to UTC).
// Count always equals len(Items).
func NewSnapshot(now time.Time, items []WorkRecord) *Snapshot {
	if items == nil {
		items = []WorkRecord{}
	}
	return &Snapshot{
		Updated: now.UTC().Format(SnapshotTimeFormat),
		Count:   len(items),
		Items:   items,
	}
}
