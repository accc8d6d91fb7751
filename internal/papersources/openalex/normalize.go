package openalex

import (
	"strings"

	"github.com/helixir/institution-sync/internal/domain"
)

// doiResolver is the resolver used to build a URL for works that only have a DOI.
const doiResolver = "https://doi.org/"

// doiPrefixes are stripped from DOIs, in order.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// ToRecord converts an OpenAlex Work to a domain.WorkRecord.
// Missing optional fields are defaulted rather than reported.
func ToRecord(work *Work) domain.WorkRecord {
	doi := NormalizeDOI(work.DOI)
	venue := resolveVenue(work)

	rec := domain.WorkRecord{
		DOI:     doi,
		Title:   work.Title,
		Type:    work.Type,
		Authors: authorNames(work.Authorships),
		ISSNs:   []string{},
		URL:     landingURL(work, doi),
	}
	if work.PublicationYear != nil {
		year := *work.PublicationYear
		rec.Year = &year
	}
	if work.CitedByCount != nil && *work.CitedByCount > 0 {
		rec.Citations = *work.CitedByCount
	}
	if work.IsRetracted != nil {
		rec.IsRetracted = *work.IsRetracted
	}
	if venue != nil {
		rec.Journal = venue.DisplayName
		rec.ISSNs = venueISSNs(venue)
	}

	return rec
}

// NormalizeDOI strips resolver URL prefixes and surrounding whitespace.
// It is idempotent and preserves case.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range doiPrefixes {
			if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
				doi = strings.TrimSpace(doi[len(prefix):])
				stripped = true
			}
		}
	}
	return doi
}

// resolveVenue returns the venue from whichever response shape is present.
// primary_location.source wins when it carries any venue data; the legacy
// host_venue object is the fallback.
func resolveVenue(work *Work) *Venue {
	if work.PrimaryLocation != nil && hasVenueData(work.PrimaryLocation.Source) {
		return work.PrimaryLocation.Source
	}
	if hasVenueData(work.HostVenue) {
		return work.HostVenue
	}
	return nil
}

func hasVenueData(v *Venue) bool {
	return v != nil && (v.DisplayName != "" || len(v.ISSN) > 0 || v.ISSNL != "")
}

func authorNames(authorships []Authorship) []string {
	names := make([]string, 0, len(authorships))
	for _, a := range authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}
	return names
}

func venueISSNs(v *Venue) []string {
	issns := make([]string, 0, len(v.ISSN))
	for _, issn := range v.ISSN {
		issn = strings.ToUpper(strings.TrimSpace(issn))
		if issn != "" {
			issns = append(issns, issn)
		}
	}
	if len(issns) == 0 && strings.TrimSpace(v.ISSNL) != "" {
		issns = append(issns, strings.ToUpper(strings.TrimSpace(v.ISSNL)))
	}
	return issns
}

func landingURL(work *Work, doi string) string {
	if work.PrimaryLocation != nil && work.PrimaryLocation.LandingPageURL != "" {
		return work.PrimaryLocation.LandingPageURL
	}
	if work.HostVenue != nil && work.HostVenue.URL != "" {
		return work.HostVenue.URL
	}
	if doi != "" {
		return doiResolver + doi
	}
	return ""
}
