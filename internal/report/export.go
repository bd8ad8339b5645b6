// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

const (
	// ReferencesFile holds one BibTeX entry per successful paper.
	ReferencesFile = "references.bib"

	// ManifestFile is the machine-readable companion of index.md.
	ManifestFile = "index.yaml"
)

// Manifest is the YAML form of a run index.
type Manifest struct {
	GeneratedAt string          `yaml:"generated_at"`
	Search      *SearchParams   `yaml:"search,omitempty"`
	Papers      []ManifestEntry `yaml:"papers"`
}

// ManifestEntry describes one successful paper.
type ManifestEntry struct {
	ID                string   `yaml:"id"`
	Title             string   `yaml:"title"`
	Authors           []string `yaml:"authors"`
	Published         string   `yaml:"published"`
	Report            string   `yaml:"report"`
	CitationKey       string   `yaml:"citation_key"`
	TokensUsed        int      `yaml:"tokens_used,omitempty"`
	ProcessingSeconds float64  `yaml:"processing_seconds"`
}

// WriteManifest writes index.yaml over outcomes and returns its path.
func (w *Writer) WriteManifest(outcomes []types.AnalysisOutcome, params *SearchParams) (string, error) {
	keys := CitationKeys(outcomes)
	m := Manifest{
		GeneratedAt: w.now().Format(timestampFormat),
		Search:      params,
		Papers:      make([]ManifestEntry, 0, len(outcomes)),
	}
	for i, o := range outcomes {
		m.Papers = append(m.Papers, ManifestEntry{
			ID:                o.Paper.ID,
			Title:             o.Paper.Title,
			Authors:           o.Paper.Authors,
			Published:         formatDate(o.Paper.Published),
			Report:            filepath.Base(o.ReportPath),
			CitationKey:       keys[i],
			TokensUsed:        o.TokensUsed,
			ProcessingSeconds: o.ProcessingTime.Round(10 * time.Millisecond).Seconds(),
		})
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(w.Dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	return path, nil
}

// WriteReferences writes references.bib over outcomes and returns its path.
func (w *Writer) WriteReferences(outcomes []types.AnalysisOutcome) (string, error) {
	path := filepath.Join(w.Dir, ReferencesFile)
	if err := os.WriteFile(path, []byte(GenerateBibTeX(outcomes)), 0o644); err != nil {
		return "", fmt.Errorf("writing references: %w", err)
	}
	return path, nil
}

// GenerateBibTeX produces one @misc arXiv entry per outcome, in order.
func GenerateBibTeX(outcomes []types.AnalysisOutcome) string {
	keys := CitationKeys(outcomes)
	var b strings.Builder
	for i, o := range outcomes {
		p := o.Paper
		fmt.Fprintf(&b, "@misc{%s,\n", keys[i])
		fmt.Fprintf(&b, "  title = {%s},\n", p.Title)
		if len(p.Authors) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(p.Authors, " and "))
		}
		if !p.Published.IsZero() {
			fmt.Fprintf(&b, "  year = {%d},\n", p.Published.Year())
		}
		fmt.Fprintf(&b, "  eprint = {%s},\n", p.ID)
		b.WriteString("  archivePrefix = {arXiv},\n")
		if len(p.Categories) > 0 {
			fmt.Fprintf(&b, "  primaryClass = {%s},\n", p.Categories[0])
		}
		if p.JournalRef != "" {
			fmt.Fprintf(&b, "  note = {%s},\n", p.JournalRef)
		}
		fmt.Fprintf(&b, "  url = {https://arxiv.org/abs/%s},\n", p.ID)
		b.WriteString("}\n\n")
	}
	return b.String()
}

// CitationKeys returns an AuthorYearWord key per outcome. Colliding keys get
// a, b, c... suffixes in order of appearance.
func CitationKeys(outcomes []types.AnalysisOutcome) []string {
	keys := make([]string, len(outcomes))
	counts := make(map[string]int)
	for i, o := range outcomes {
		keys[i] = citationKey(o.Paper)
		counts[keys[i]]++
	}

	next := make(map[string]int)
	for i, k := range keys {
		if counts[k] < 2 {
			continue
		}
		keys[i] = k + string(rune('a'+next[k]%26))
		next[k]++
	}
	return keys
}

func citationKey(p types.Paper) string {
	surname := "Anon"
	if len(p.Authors) > 0 {
		if f := strings.Fields(p.Authors[0]); len(f) > 0 {
			surname = keyWord(f[len(f)-1])
		}
	}
	year := ""
	if !p.Published.IsZero() {
		year = strconv.Itoa(p.Published.Year())
	}
	word := ""
	for _, f := range strings.Fields(p.Title) {
		if w := keyWord(f); len(w) > 3 {
			word = w
			break
		}
	}
	return surname + year + word
}

// keyWord keeps the letters and digits of s and capitalizes the first one.
func keyWord(s string) string {
	r := []rune(strings.Map(func(c rune) rune {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return c
		}
		return -1
	}, s))
	if len(r) == 0 {
		return ""
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
