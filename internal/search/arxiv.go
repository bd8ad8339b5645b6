// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-tracker/internal/httputil"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "http://export.arxiv.org/api/query"

// arxivPDFBase is used when an entry carries no PDF link.
const arxivPDFBase = "https://arxiv.org/pdf/"

// maxPageSize is the largest page requested from the arXiv API.
const maxPageSize = 100

const op = "arxiv search"

// Sort keys accepted by the arXiv API.
const (
	SortRelevance       = "relevance"
	SortSubmittedDate   = "submittedDate"
	SortLastUpdatedDate = "lastUpdatedDate"
)

// ArxivClient pages through arXiv Atom search results.
type ArxivClient struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
	Retry     httputil.Policy
	Logger    zerolog.Logger

	// PageSize is the number of entries requested per page (at most 100).
	PageSize int

	// PageDelay is the pause between consecutive page requests.
	PageDelay time.Duration

	// Sleep waits out PageDelay. Nil uses httputil.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewArxivClient returns a client configured from cfg.
func NewArxivClient(cfg types.SearchConfig, retry httputil.Policy, logger zerolog.Logger) *ArxivClient {
	base := arxivAPIBase
	if cfg.APIURL != "" {
		base = cfg.APIURL
	}
	return &ArxivClient{
		BaseURL:   base,
		UserAgent: cfg.UserAgent,
		HTTP:      httputil.NewClient(cfg.Timeout),
		Retry:     retry,
		Logger:    logger,
		PageSize:  maxPageSize,
		PageDelay: cfg.PageDelay,
		Sleep:     retry.Sleep,
	}
}

// Each requests up to maxResults entries for query sorted by sortBy in
// descending order and calls visit for each parsed paper. Iteration stops
// when visit returns false, the results run out, or maxResults entries have
// been read.
func (c *ArxivClient) Each(ctx context.Context, query, sortBy string, maxResults int, visit func(types.Paper) bool) error {
	pageSize := c.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = httputil.Sleep
	}

	for start := 0; start < maxResults; {
		if start > 0 && c.PageDelay > 0 {
			if err := sleep(ctx, c.PageDelay); err != nil {
				return err
			}
		}

		n := min(pageSize, maxResults-start)
		feed, err := httputil.Do(ctx, c.Retry, op, func(ctx context.Context) (arxivFeed, error) {
			return c.fetchPage(ctx, query, sortBy, start, n)
		})
		if err != nil {
			return err
		}

		c.Logger.Debug().
			Str("query", query).
			Int("start", start).
			Int("entries", len(feed.Entries)).
			Int("total", feed.TotalResults).
			Msg("fetched arxiv page")

		for _, entry := range feed.Entries {
			if !visit(entry.paper()) {
				return nil
			}
		}

		start += len(feed.Entries)
		if len(feed.Entries) < n || (feed.TotalResults > 0 && start >= feed.TotalResults) {
			return nil
		}
	}
	return nil
}

func (c *ArxivClient) fetchPage(ctx context.Context, query, sortBy string, start, n int) (arxivFeed, error) {
	params := url.Values{
		"search_query": {query},
		"start":        {strconv.Itoa(start)},
		"max_results":  {strconv.Itoa(n)},
		"sortBy":       {sortBy},
		"sortOrder":    {"descending"},
	}
	reqURL := c.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return arxivFeed{}, fmt.Errorf("creating request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.Send(client, req, op)
	if err != nil {
		return arxivFeed{}, err
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return arxivFeed{}, httputil.Malformed(op, fmt.Errorf("parsing arXiv response: %w", err))
	}

	// The API reports query errors as a single entry under /api/errors.
	if len(feed.Entries) == 1 && strings.Contains(feed.Entries[0].ID, "/api/errors") {
		return arxivFeed{}, &httputil.Error{
			Kind: httputil.KindClient,
			Op:   op,
			Err:  errors.New(strings.TrimSpace(feed.Entries[0].Summary)),
		}
	}
	return feed, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	TotalResults int          `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	Entries      []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Updated    string          `xml:"updated"`
	Authors    []arxivAuthor   `xml:"author"`
	Links      []arxivLink     `xml:"link"`
	Categories []arxivCategory `xml:"category"`
	Comment    string          `xml:"http://arxiv.org/schemas/atom comment"`
	JournalRef string          `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

func (e arxivEntry) paper() types.Paper {
	p := types.Paper{
		ID:         extractArxivID(e.ID),
		Title:      collapseSpace(e.Title),
		Abstract:   collapseSpace(e.Summary),
		Comment:    collapseSpace(e.Comment),
		JournalRef: collapseSpace(e.JournalRef),
	}
	for _, a := range e.Authors {
		p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		p.Published = t
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated)); err == nil {
		p.Updated = t
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			p.PDFURL = l.Href
			break
		}
	}
	if p.PDFURL == "" && p.ID != "" {
		p.PDFURL = arxivPDFBase + p.ID
	}
	return p
}

// extractArxivID pulls the versioned arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" becomes "2301.07041v1").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.LastIndex(idURL, prefix)
	if idx < 0 {
		return strings.TrimSpace(idURL)
	}
	return strings.TrimSpace(idURL[idx+len(prefix):])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
