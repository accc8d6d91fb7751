package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/institution-sync/internal/domain"
	"github.com/helixir/institution-sync/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default request ceiling per second.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 60 * time.Second

	// MaxPerPage is the OpenAlex per-page upper bound.
	MaxPerPage = 200

	// RedactedEmail replaces the contact email in logged URLs.
	RedactedEmail = "hidden%40example.org"

	// sourceName identifies OpenAlex in errors.
	sourceName = "OpenAlex"

	// maxBodyBytes bounds how much of a page body is decoded.
	maxBodyBytes = 64 << 20

	// maxErrorBodyBytes bounds how much of an error body is kept.
	maxErrorBodyBytes = 1 << 20
)

// DefaultSelect is the field-selection list sent with every request.
var DefaultSelect = []string{
	"id", "doi", "title", "authorships", "host_venue", "publication_year",
	"type", "cited_by_count", "primary_location", "is_retracted",
}

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool. It is sent as the
	// mailto parameter, in the User-Agent and in the From header.
	Email string

	// ROR is the institution ROR code (not the full https://ror.org/ URL).
	ROR string

	// FromDate and ToDate bound the publication date, inclusive (YYYY-MM-DD).
	FromDate string
	ToDate   string

	// Select lists the fields to return. Defaults to DefaultSelect.
	Select []string

	// Timeout is the request timeout. Defaults to 60 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to 10.
	RateLimit float64
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if len(c.Select) == 0 {
		c.Select = DefaultSelect
	}
	c.ROR = strings.TrimPrefix(strings.TrimSpace(c.ROR), "https://ror.org/")
}

// Page is one decoded page of works.
type Page struct {
	Records    []domain.WorkRecord
	NextCursor string
	StatusCode int
}

// Client fetches pages of works for one institution.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
}

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		UserAgent: papersources.UserAgentFor(cfg.Email),
		From:      cfg.Email,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("source", sourceName).Logger(),
	}
}

// FetchPage requests one page of works at cursor.
//
// Throttling responses (403, 429) return a *domain.RateLimitError carrying the
// Retry-After hint. Other non-200 statuses return a *domain.ExternalAPIError.
// A body that is not valid JSON returns an error wrapping domain.ErrMalformedResponse.
func (c *Client) FetchPage(ctx context.Context, cursor string, perPage int) (*Page, error) {
	pageURL, err := c.buildPageURL(cursor, perPage)
	if err != nil {
		return nil, fmt.Errorf("building page URL: %w", err)
	}

	c.logger.Info().Str("url", RedactURL(pageURL, c.config.Email)).Msg("GET")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", c.redactError(err))
	}
	defer resp.Body.Close()

	if papersources.IsThrottleStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, domain.NewRateLimitError(
			sourceName,
			resp.StatusCode,
			papersources.ParseRetryAfter(resp.Header.Get("Retry-After")),
		)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, domain.NewExternalAPIError(
			sourceName,
			resp.StatusCode,
			strings.TrimSpace(string(body)),
			nil,
		)
	}

	var pageResp PageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&pageResp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	records := make([]domain.WorkRecord, 0, len(pageResp.Results))
	for i := range pageResp.Results {
		records = append(records, ToRecord(&pageResp.Results[i]))
	}

	return &Page{
		Records:    records,
		NextCursor: pageResp.Meta.NextCursor,
		StatusCode: resp.StatusCode,
	}, nil
}

// Filter returns the filter expression for the configured institution and date range.
func (c *Client) Filter() string {
	filters := []string{"institutions.ror:" + c.config.ROR}
	if c.config.FromDate != "" {
		filters = append(filters, "from_publication_date:"+c.config.FromDate)
	}
	if c.config.ToDate != "" {
		filters = append(filters, "to_publication_date:"+c.config.ToDate)
	}
	return strings.Join(filters, ",")
}

// buildPageURL constructs the works URL with query parameters.
func (c *Client) buildPageURL(cursor string, perPage int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimSuffix(baseURL.Path, "/") + "/works"

	if cursor == "" {
		cursor = domain.StartCursor
	}
	if perPage <= 0 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	query := url.Values{}
	query.Set("per-page", strconv.Itoa(perPage))
	query.Set("cursor", cursor)
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	query.Set("filter", c.Filter())
	query.Set("select", strings.Join(c.config.Select, ","))

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// redactError hides the contact email in the request URL that net/http
// embeds in transport errors.
func (c *Client) redactError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = RedactURL(urlErr.URL, c.config.Email)
	}
	return err
}

// RedactURL replaces every occurrence of email in rawURL, raw or query-escaped,
// with RedactedEmail.
func RedactURL(rawURL, email string) string {
	if email == "" {
		return rawURL
	}
	redacted := strings.ReplaceAll(rawURL, url.QueryEscape(email), RedactedEmail)
	return strings.ReplaceAll(redacted, email, RedactedEmail)
}
