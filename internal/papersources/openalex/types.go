// Package openalex provides a cursor-paging client for the OpenAlex works API.
//
// OpenAlex is a free, open catalog of scholarly works. This package fetches
// one page of works at a time for an institution and normalizes each work
// into a domain.WorkRecord.
//
// API Documentation: https://docs.openalex.org/
package openalex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PageResponse represents the top-level response from the works endpoint.
type PageResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains pagination metadata.
type Meta struct {
	Count      int    `json:"count"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor"`
}

// Work represents a scholarly work. Only the fields in the select list are populated.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	PublicationYear *int         `json:"publication_year"`
	Type            string       `json:"type"`
	CitedByCount    *int         `json:"cited_by_count"`
	Authorships     []Authorship `json:"authorships"`
	IsRetracted     *bool        `json:"is_retracted"`

	// HostVenue is the legacy venue object; newer responses omit it.
	HostVenue *Venue `json:"host_venue"`

	// PrimaryLocation carries the venue under Source in newer responses.
	PrimaryLocation *Location `json:"primary_location"`
}

// Authorship represents an author's contribution to a work.
type Authorship struct {
	AuthorPosition string     `json:"author_position"`
	Author         AuthorInfo `json:"author"`
}

// AuthorInfo contains basic author information.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Location represents where a work is available.
type Location struct {
	Source         *Venue `json:"source"`
	LandingPageURL string `json:"landing_page_url"`
	PDFURL         string `json:"pdf_url"`
}

// Venue is a publication venue. It decodes both the legacy host_venue object
// and the primary_location.source object, which share these fields.
type Venue struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	ISSN        ISSNList `json:"issn"`
	ISSNL       string   `json:"issn_l"`
	URL         string   `json:"url"`
	Type        string   `json:"type"`
}

// ISSNList decodes an ISSN field that may be null, a single string, or an array.
type ISSNList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *ISSNList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decoding issn string: %w", err)
		}
		*l = ISSNList{single}
		return nil
	}

	var many []*string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("decoding issn list: %w", err)
	}
	out := make(ISSNList, 0, len(many))
	for _, s := range many {
		if s != nil {
			out = append(out, *s)
		}
	}
	*l = out
	return nil
}
