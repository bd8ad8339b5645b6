// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation looks up citation counts on Semantic Scholar and decides
// whether a paper qualifies as a classic.
package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-tracker/internal/httputil"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// scholarAPIBase is the Semantic Scholar Graph API root. Declared as a var
// so tests can substitute an httptest server.
var scholarAPIBase = "https://api.semanticscholar.org/graph/v1"

const scholarFields = "title,citationCount,influentialCitationCount,year,authors,venue"

// MaxRetries is the lookup retry ceiling.
const MaxRetries = 2

const op = "citation lookup"

// Thresholds are the minimum counts a classic paper must reach. Both must
// be met.
type Thresholds struct {
	MinCitations   int
	MinInfluential int
}

// Accept reports whether m qualifies as classic. A paper that was not found
// never qualifies.
func (t Thresholds) Accept(m types.CitationMetrics) bool {
	return m.Found && m.CitationCount >= t.MinCitations && m.InfluentialCount >= t.MinInfluential
}

// Client queries Semantic Scholar with a minimum spacing between lookups.
// The spacing is owned by the instance, so separate clients do not share it.
type Client struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	HTTP      *http.Client
	Retry     httputil.Policy
	Logger    zerolog.Logger

	limiter *rate.Limiter
}

// New returns a Client spacing lookups at least requestDelay apart. A
// non-positive delay disables spacing.
func New(cfg types.ScholarConfig, requestDelay time.Duration, retry httputil.Policy, logger zerolog.Logger) *Client {
	retry.MaxRetries = MaxRetries
	return &Client{
		BaseURL:   scholarAPIBase,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
		HTTP:      httputil.NewClient(cfg.Timeout),
		Retry:     retry,
		Logger:    logger,
		limiter:   newLimiter(requestDelay),
	}
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// scholarResponse is the /paper/search response body.
type scholarResponse struct {
	Total int `json:"total"`
	Data  []struct {
		PaperID                  string `json:"paperId"`
		Title                    string `json:"title"`
		CitationCount            int    `json:"citationCount"`
		InfluentialCitationCount int    `json:"influentialCitationCount"`
		Year                     int    `json:"year"`
		Venue                    string `json:"venue"`
	} `json:"data"`
}

// Lookup searches for title and returns the metrics of the top match. An
// empty result set is reported as Found == false with no error.
func (c *Client) Lookup(ctx context.Context, title string) (types.CitationMetrics, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return types.CitationMetrics{}, err
	}

	return httputil.Do(ctx, c.Retry, op, func(ctx context.Context) (types.CitationMetrics, error) {
		return c.search(ctx, title)
	})
}

func (c *Client) search(ctx context.Context, title string) (types.CitationMetrics, error) {
	params := url.Values{
		"query":  {title},
		"fields": {scholarFields},
		"limit":  {"1"},
	}
	reqURL := strings.TrimRight(c.BaseURL, "/") + "/paper/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.CitationMetrics{}, fmt.Errorf("creating request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.Send(client, req, op)
	if err != nil {
		return types.CitationMetrics{}, err
	}
	defer resp.Body.Close()

	var sr scholarResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return types.CitationMetrics{}, httputil.Malformed(op, fmt.Errorf("decoding response: %w", err))
	}
	if len(sr.Data) == 0 {
		return types.CitationMetrics{}, nil
	}

	top := sr.Data[0]
	return types.CitationMetrics{
		Found:            true,
		CitationCount:    top.CitationCount,
		InfluentialCount: top.InfluentialCitationCount,
		Year:             top.Year,
	}, nil
}

// IsClassic looks up title and applies t. A lookup that fails after retries
// is logged and treated as not found.
func (c *Client) IsClassic(ctx context.Context, title string, t Thresholds) bool {
	m, err := c.Lookup(ctx, title)
	if err != nil {
		c.Logger.Warn().Err(err).Str("title", shorten(title)).Msg("citation lookup failed, treating as not found")
		return false
	}
	if !m.Found {
		c.Logger.Debug().Str("title", shorten(title)).Msg("paper not found in Semantic Scholar")
		return false
	}

	ok := t.Accept(m)
	if ok {
		c.Logger.Info().
			Str("title", shorten(title)).
			Int("citations", m.CitationCount).
			Int("influential", m.InfluentialCount).
			Msg("classic paper identified")
	}
	return ok
}

// FilterTitles returns the titles that qualify as classic, in input order.
// Titles are deduplicated case-insensitively first so each is looked up once.
func (c *Client) FilterTitles(ctx context.Context, titles []string, t Thresholds) []string {
	unique := DedupTitles(titles)
	var classic []string
	for _, title := range unique {
		if ctx.Err() != nil {
			break
		}
		if c.IsClassic(ctx, title, t) {
			classic = append(classic, title)
		}
	}
	c.Logger.Info().Int("classic", len(classic)).Int("candidates", len(unique)).Msg("filtered classic papers")
	return classic
}

// NormalizeTitle is the key titles are deduplicated on.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// DedupTitles drops titles whose normalized form was already seen, keeping
// the first occurrence.
func DedupTitles(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles))
	for _, title := range titles {
		key := NormalizeTitle(title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, title)
	}
	return out
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= 50 {
		return s
	}
	return string(r[:50]) + "..."
}
