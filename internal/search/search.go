// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds papers on arXiv for the two run modes: recent papers
// in a category within a day window, and classic papers within a year
// window, optionally filtered by keywords and citation counts.
package search

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

// Paging factors: how many arXiv entries are requested per wanted paper.
const (
	recentOverfetch  = 2
	classicOverfetch = 5
)

// Source is the arXiv query interface the searcher depends on.
type Source interface {
	Each(ctx context.Context, query, sortBy string, maxResults int, visit func(types.Paper) bool) error
}

// TitleFilter decides whether a candidate title is kept in classic mode.
type TitleFilter func(ctx context.Context, title string) bool

// Output is the result of one search. Requested and Found differ when fewer
// papers matched than were asked for; classic mode does not relax its
// criteria to make up the shortfall.
type Output struct {
	Papers    []types.Paper
	Requested int
	Scanned   int

	// Duplicates counts classic-mode candidates dropped as repeated titles.
	Duplicates int

	// Rejected counts classic-mode candidates the title filter refused.
	Rejected int
}

// Found returns the number of papers returned.
func (o Output) Found() int { return len(o.Papers) }

// Shortfall reports whether fewer papers were found than requested.
func (o Output) Shortfall() bool { return len(o.Papers) < o.Requested }

// RecentQuery selects papers submitted in the last Days days.
type RecentQuery struct {
	Category   string
	Days       int
	MaxResults int
}

// ClassicQuery selects influential papers from the last YearsBack years.
type ClassicQuery struct {
	Category   string
	YearsBack  int
	MaxResults int
	Keywords   []string

	// Filter, when set, is consulted for every date-qualified, non-duplicate
	// candidate.
	Filter TitleFilter
}

// Searcher runs recent and classic searches against a Source.
type Searcher struct {
	Source Source
	Logger zerolog.Logger

	// Now returns the current time. Tests pin it.
	Now func() time.Time
}

// New returns a Searcher over src.
func New(src Source, logger zerolog.Logger) *Searcher {
	return &Searcher{Source: src, Logger: logger, Now: time.Now}
}

func (s *Searcher) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Recent returns up to q.MaxResults papers in q.Category published within
// the last q.Days days, newest first.
func (s *Searcher) Recent(ctx context.Context, q RecentQuery) (Output, error) {
	out := Output{Requested: q.MaxResults}
	if q.MaxResults <= 0 {
		return out, nil
	}

	end := s.now()
	start := end.AddDate(0, 0, -q.Days)
	query := "cat:" + q.Category

	s.Logger.Info().Str("category", q.Category).Int("days", q.Days).Int("max_results", q.MaxResults).Msg("searching recent papers")

	err := s.Source.Each(ctx, query, SortSubmittedDate, q.MaxResults*recentOverfetch, func(p types.Paper) bool {
		out.Scanned++
		if inWindow(p.Published, start, end) {
			out.Papers = append(out.Papers, p)
		}
		return len(out.Papers) < q.MaxResults
	})
	if err != nil {
		return out, fmt.Errorf("searching arXiv: %w", err)
	}

	if len(out.Papers) == 0 {
		s.Logger.Warn().Str("category", q.Category).Int("days", q.Days).Msg("no papers found")
	}
	return out, nil
}

// Classic returns up to q.MaxResults papers in q.Category, ranked by
// relevance, published within the last q.YearsBack*365 days. Titles are
// deduplicated case-insensitively before the filter is consulted.
func (s *Searcher) Classic(ctx context.Context, q ClassicQuery) (Output, error) {
	out := Output{Requested: q.MaxResults}
	if q.MaxResults <= 0 {
		return out, nil
	}

	end := s.now()
	start := end.AddDate(0, 0, -q.YearsBack*365)
	query := BuildClassicQuery(q.Category, q.Keywords)

	s.Logger.Info().
		Str("query", query).
		Int("years_back", q.YearsBack).
		Int("max_results", q.MaxResults).
		Bool("citation_filter", q.Filter != nil).
		Msg("searching classic papers")

	seen := make(map[string]bool)
	err := s.Source.Each(ctx, query, SortRelevance, q.MaxResults*classicOverfetch, func(p types.Paper) bool {
		out.Scanned++
		if !inWindow(p.Published, start, end) {
			return true
		}
		key := strings.ToLower(strings.TrimSpace(p.Title))
		if seen[key] {
			out.Duplicates++
			return true
		}
		seen[key] = true

		if q.Filter != nil && !q.Filter(ctx, p.Title) {
			out.Rejected++
			s.Logger.Debug().Str("title", p.Title).Msg("candidate rejected by citation filter")
			return ctx.Err() == nil
		}
		out.Papers = append(out.Papers, p)
		return len(out.Papers) < q.MaxResults
	})
	if err != nil {
		return out, fmt.Errorf("searching arXiv: %w", err)
	}

	if len(out.Papers) == 0 {
		s.Logger.Warn().Str("category", q.Category).Int("years_back", q.YearsBack).Msg("no classic papers found")
		if q.Filter != nil {
			s.Logger.Warn().Msg("try lowering the citation thresholds or widening the year window")
		}
	}
	return out, nil
}

// BuildClassicQuery returns "cat:{category}" with keywords OR-joined into an
// AND clause. Multi-word keywords are quoted as phrases.
func BuildClassicQuery(category string, keywords []string) string {
	var terms []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.ContainsAny(kw, " \t") {
			kw = `"` + strings.Join(strings.Fields(kw), " ") + `"`
		}
		terms = append(terms, "all:"+kw)
	}

	query := "cat:" + category
	if len(terms) > 0 {
		query += " AND (" + strings.Join(terms, " OR ") + ")"
	}
	return query
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// FormatTable writes a numbered table of papers to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Papers) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-18s  %-60s  %-24s  %s\n", "#", "arXiv ID", "Title", "Authors", "Published")
	fmt.Fprintln(w, strings.Repeat("-", 122))

	for i, p := range out.Papers {
		published := ""
		if !p.Published.IsZero() {
			published = p.Published.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-4d  %-18s  %-60s  %-24s  %s\n",
			i+1, p.ID, truncate(p.Title, 60), truncate(formatAuthors(p.Authors), 24), published)
	}

	fmt.Fprintf(w, "\n%d of %d requested papers found (%d scanned", len(out.Papers), out.Requested, out.Scanned)
	if out.Duplicates > 0 {
		fmt.Fprintf(w, ", %d duplicates", out.Duplicates)
	}
	if out.Rejected > 0 {
		fmt.Fprintf(w, ", %d below citation thresholds", out.Rejected)
	}
	fmt.Fprintln(w, ")")
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return authors[0]
	default:
		return authors[0] + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
