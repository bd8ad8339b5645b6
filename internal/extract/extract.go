// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns a downloaded PDF into cleaned plain text for analysis.
// Oversized documents are read partially: only the leading and trailing pages
// are extracted, since abstracts and introductions come early and conclusions
// come late.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

var (
	// ErrNotFound is returned when the PDF path does not exist.
	ErrNotFound = errors.New("pdf file not found")

	// ErrEmptyText is returned when no text survives extraction and cleanup.
	ErrEmptyText = errors.New("no text extracted from pdf")
)

// Document is the subset of a PDF reader the extractor needs.
// Pages are numbered from 1.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	Close() error
}

// Opener opens the PDF at path.
type Opener func(path string) (Document, error)

// Extractor reads text from PDFs under a page budget.
type Extractor struct {
	// MaxPages is the page count above which only HeadPages leading and
	// TailPages trailing pages are read.
	MaxPages  int
	HeadPages int
	TailPages int

	// Open defaults to the ledongthuc/pdf reader.
	Open Opener

	Logger zerolog.Logger
}

// New returns an Extractor configured from cfg.
func New(cfg types.ExtractConfig, logger zerolog.Logger) *Extractor {
	return &Extractor{
		MaxPages:  cfg.MaxPages,
		HeadPages: cfg.HeadPages,
		TailPages: cfg.TailPages,
		Open:      OpenPDF,
		Logger:    logger,
	}
}

// Extract returns the cleaned text of the PDF at path. Pages that fail to
// extract are logged and skipped; ErrEmptyText is returned only when the
// combined text of every selected page is empty.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	open := e.Open
	if open == nil {
		open = OpenPDF
	}
	doc, err := open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer doc.Close()

	total := doc.NumPages()
	pages := SelectPages(total, e.MaxPages, e.HeadPages, e.TailPages)
	if len(pages) < total {
		e.Logger.Warn().
			Str("path", path).
			Int("pages", total).
			Int("max_pages", e.MaxPages).
			Ints("selected", pages).
			Msg("document exceeds page cap, extracting head and tail only")
	}

	var parts []string
	for _, n := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.PageText(n)
		if err != nil {
			e.Logger.Warn().Err(err).Str("path", path).Int("page", n).Msg("page extraction failed")
			continue
		}
		cleaned := CleanText(text)
		if cleaned == "" {
			e.Logger.Debug().Str("path", path).Int("page", n).Msg("no text on page")
			continue
		}
		parts = append(parts, cleaned)
	}

	full := strings.Join(parts, "\n\n")
	if strings.TrimSpace(full) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyText, path)
	}

	e.Logger.Debug().Str("path", path).Int("chars", len(full)).Int("pages", len(parts)).Msg("extracted text")
	return full, nil
}

// SelectPages returns the 1-based page numbers to read from a document of
// total pages. When total does not exceed maxPages every page is selected.
// Otherwise the first head and last tail pages are selected, in order and
// without duplicates. A non-positive maxPages selects every page.
func SelectPages(total, maxPages, head, tail int) []int {
	if total <= 0 {
		return nil
	}
	if maxPages <= 0 || total <= maxPages {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	head = min(max(head, 0), total)
	tail = min(max(tail, 0), total)

	var pages []int
	for n := 1; n <= head; n++ {
		pages = append(pages, n)
	}
	for n := max(total-tail+1, head+1); n <= total; n++ {
		pages = append(pages, n)
	}
	return pages
}

var (
	spacesRe     = regexp.MustCompile(` +`)
	hyphenWrapRe = regexp.MustCompile(`(\w+)-\n(\w+)`)
	brokenLineRe = regexp.MustCompile(`([a-z,])\n([a-z])`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes text pulled from one PDF page: runs of spaces collapse
// to one, words hyphenated across a line break are rejoined, lines broken
// mid-sentence are joined with a space, three or more newlines collapse to a
// paragraph break, and every line is trimmed.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = spacesRe.ReplaceAllString(text, " ")
	text = hyphenWrapRe.ReplaceAllString(text, "${1}${2}")
	text = brokenLineRe.ReplaceAllString(text, "${1} ${2}")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
