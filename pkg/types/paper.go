// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-tracker pipeline:
// papers found by search, citation metrics used by the classic filter, the
// per-paper analysis outcome, and run configuration.
package types

import "time"

// Paper holds arXiv metadata for one search result. It is built by the
// search stage and read-only afterwards.
type Paper struct {
	// ID is the arXiv identifier including its version (e.g. "2401.01234v1"
	// or "hep-th/9901001v2").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title with whitespace collapsed.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Published is the first submission time.
	Published time.Time `json:"published" yaml:"published"`

	// Updated is the time of the latest revision.
	Updated time.Time `json:"updated" yaml:"updated"`

	// Abstract is the paper summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Categories lists subject categories, primary first.
	Categories []string `json:"categories" yaml:"categories"`

	// PDFURL is the location of the PDF.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// Comment is the optional author comment (page counts, venue notes).
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// JournalRef is the optional journal reference.
	JournalRef string `json:"journal_ref,omitempty" yaml:"journal_ref,omitempty"`
}

// CitationMetrics is the result of one citation-database lookup.
type CitationMetrics struct {
	Found            bool `json:"found" yaml:"found"`
	CitationCount    int  `json:"citation_count" yaml:"citation_count"`
	InfluentialCount int  `json:"influential_count" yaml:"influential_count"`

	// Year is the publication year reported by the database, or 0.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`
}
