// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the Markdown artifacts of a run: one report per
// analysed paper and an index over the successful reports, plus a BibTeX
// file and a YAML manifest of the same papers.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

const (
	// IndexFile is the name of the run index written under the output dir.
	IndexFile = "index.md"

	// maxSlugLen caps the title part of a report file name, in characters.
	maxSlugLen = 50

	// indexAuthors is how many authors an index entry lists before "et al.".
	indexAuthors = 3

	dateFormat      = "2006-01-02"
	timestampFormat = "2006-01-02 15:04:05"
)

var (
	invalidSlugChars = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
)

// SearchParams describes the search that produced a run, for the index.
type SearchParams struct {
	Category   string `yaml:"category"`
	Days       int    `yaml:"days,omitempty"`
	MaxResults int    `yaml:"max_results"`

	Classic        bool `yaml:"classic,omitempty"`
	YearsBack      int  `yaml:"years_back,omitempty"`
	CitationFilter bool `yaml:"citation_filter,omitempty"`
	MinCitations   int  `yaml:"min_citations,omitempty"`
	MinInfluential int  `yaml:"min_influential,omitempty"`
}

// Writer writes reports into Dir. Now stamps generation times; tests pin it.
type Writer struct {
	Dir string
	Now func() time.Time
}

// New returns a Writer rooted at dir.
func New(dir string) *Writer {
	return &Writer{Dir: dir, Now: time.Now}
}

func (w *Writer) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// SanitizeFilename turns a title into a file-name slug: lowercased, spaces
// to underscores, characters outside letters, digits, "_" and "-" removed,
// underscore runs collapsed, capped at 50 characters, trailing underscores
// trimmed.
func SanitizeFilename(title string) string {
	s := strings.ReplaceAll(strings.ToLower(title), " ", "_")
	s = invalidSlugChars.ReplaceAllString(s, "")
	s = underscoreRuns.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > maxSlugLen {
		s = string(r[:maxSlugLen])
	}
	return strings.TrimRight(s, "_")
}

// FileName returns the report file name for p. It depends only on the
// paper's ID and title, so rewriting a report replaces it.
func FileName(p types.Paper) string {
	return strings.ReplaceAll(p.ID, "/", "_") + "_" + SanitizeFilename(p.Title) + ".md"
}

// WriteReport renders the report for p with the given analysis and writes
// it, overwriting any earlier report for the same paper. It returns the
// written path.
func (w *Writer) WriteReport(p types.Paper, analysis string) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(w.Dir, FileName(p))
	if err := os.WriteFile(path, []byte(RenderReport(p, analysis, w.now())), 0o644); err != nil {
		return "", fmt.Errorf("writing report %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// RenderReport returns the Markdown report for p.
func RenderReport(p types.Paper, analysis string, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)

	b.WriteString("## Paper Information\n\n")
	fmt.Fprintf(&b, "- **arXiv ID**: %s\n", p.ID)
	fmt.Fprintf(&b, "- **Authors**: %s\n", strings.Join(p.Authors, ", "))
	fmt.Fprintf(&b, "- **Published**: %s\n", formatDate(p.Published))
	fmt.Fprintf(&b, "- **Categories**: %s\n", strings.Join(p.Categories, ", "))
	fmt.Fprintf(&b, "- **PDF**: %s\n", p.PDFURL)
	if p.JournalRef != "" {
		fmt.Fprintf(&b, "- **Journal Ref**: %s\n", p.JournalRef)
	}
	if p.Comment != "" {
		fmt.Fprintf(&b, "- **Comment**: %s\n", p.Comment)
	}

	fmt.Fprintf(&b, "\n## Abstract\n\n%s\n\n---\n\n", p.Abstract)
	fmt.Fprintf(&b, "## Detailed Analysis\n\n%s\n\n---\n\n", analysis)
	fmt.Fprintf(&b, "*Report generated: %s*\n", generated.Format(timestampFormat))
	return b.String()
}

// WriteIndex writes index.md listing outcomes in the given order and returns
// its path. Callers pass only successful outcomes.
func (w *Writer) WriteIndex(outcomes []types.AnalysisOutcome, params *SearchParams) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(w.Dir, IndexFile)
	if err := os.WriteFile(path, []byte(RenderIndex(outcomes, params, w.now())), 0o644); err != nil {
		return "", fmt.Errorf("writing index: %w", err)
	}
	return path, nil
}

// RenderIndex returns the Markdown index over outcomes.
func RenderIndex(outcomes []types.AnalysisOutcome, params *SearchParams, generated time.Time) string {
	stamp := generated.Format(timestampFormat)

	var b strings.Builder
	b.WriteString("# Paper Reading Report Index\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", stamp)

	if params != nil {
		b.WriteString("\n## Search Parameters\n\n")
		fmt.Fprintf(&b, "- **Category**: %s\n", params.Category)
		if params.Classic {
			fmt.Fprintf(&b, "- **Classic papers**: last %d years", params.YearsBack)
			if params.CitationFilter {
				fmt.Fprintf(&b, ", at least %d citations and %d influential citations", params.MinCitations, params.MinInfluential)
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "- **Time Range**: last %d days\n", params.Days)
		}
		fmt.Fprintf(&b, "- **Max Results**: %d\n", params.MaxResults)
	}

	b.WriteString("\n## Reports\n\n")
	fmt.Fprintf(&b, "Processed %d papers:\n\n", len(outcomes))
	for i, o := range outcomes {
		fmt.Fprintf(&b, "%d. [%s](./%s) - %s (%s)\n",
			i+1, o.Paper.Title, filepath.Base(o.ReportPath), indexAuthorList(o.Paper.Authors), formatDate(o.Paper.Published))
	}

	fmt.Fprintf(&b, "\n---\n\n*Index generated at %s*\n", stamp)
	return b.String()
}

func indexAuthorList(authors []string) string {
	if len(authors) <= indexAuthors {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:indexAuthors], ", ") + " et al."
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(dateFormat)
}
