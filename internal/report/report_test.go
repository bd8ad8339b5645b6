// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

var fixedNow = time.Date(2026, 3, 15, 9, 4, 5, 0, time.UTC)

func samplePaper() types.Paper {
	return types.Paper{
		ID:         "2603.01234v2",
		Title:      "Sparse Attention: Scaling to Long Documents!",
		Authors:    []string{"Ada Lovelace", "Alan Turing", "Grace Hopper", "Edsger Dijkstra"},
		Published:  time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
		Abstract:   "We propose sparse attention.",
		Categories: []string{"cs.AI", "cs.CL"},
		PDFURL:     "http://arxiv.org/pdf/2603.01234v2",
	}
}

func newWriter(t *testing.T) *Writer {
	t.Helper()
	w := New(filepath.Join(t.TempDir(), "reports"))
	w.Now = func() time.Time { return fixedNow }
	return w
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Attention Is All You Need", "attention_is_all_you_need"},
		{"BERT: Pre-training of Deep Bidirectional Transformers", "bert_pre-training_of_deep_bidirectional_transforme"},
		{"What?!  Double  Spaces", "what_double_spaces"},
		{"Ends with space ", "ends_with_space"},
		{"Ünïcode Títle", "ünïcode_títle"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		got := SanitizeFilename(tt.input)
		if got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if n := len([]rune(got)); n > maxSlugLen {
			t.Errorf("SanitizeFilename(%q) has %d characters", tt.input, n)
		}
	}
}

func TestFileName(t *testing.T) {
	p := types.Paper{ID: "hep-th/9901001v1", Title: "Old Paper"}
	if got := FileName(p); got != "hep-th_9901001v1_old_paper.md" {
		t.Errorf("FileName = %q", got)
	}
}

func TestWriteReport(t *testing.T) {
	w := newWriter(t)
	p := samplePaper()
	p.JournalRef = "J. Long Docs 1 (2026)"

	path, err := w.WriteReport(p, "## 1. Overview\n\nGood paper.")
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if filepath.Base(path) != "2603.01234v2_sparse_attention_scaling_to_long_documents.md" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)

	// Sections appear in a fixed order.
	order := []string{
		"# Sparse Attention: Scaling to Long Documents!\n",
		"- **arXiv ID**: 2603.01234v2",
		"- **Authors**: Ada Lovelace, Alan Turing, Grace Hopper, Edsger Dijkstra",
		"- **Published**: 2026-03-13",
		"- **Categories**: cs.AI, cs.CL",
		"- **PDF**: http://arxiv.org/pdf/2603.01234v2",
		"- **Journal Ref**: J. Long Docs 1 (2026)",
		"## Abstract\n\nWe propose sparse attention.",
		"---",
		"## Detailed Analysis\n\n## 1. Overview\n\nGood paper.",
		"---",
		"*Report generated: 2026-03-15 09:04:05*",
	}
	pos := 0
	for _, want := range order {
		i := strings.Index(got[pos:], want)
		if i < 0 {
			t.Fatalf("report missing %q after offset %d:\n%s", want, pos, got)
		}
		pos += i + len(want)
	}
	if strings.Contains(got, "**Comment**") {
		t.Error("empty comment should be omitted")
	}
}

func TestWriteReportOverwrites(t *testing.T) {
	w := newWriter(t)
	p := samplePaper()

	first, err := w.WriteReport(p, "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.WriteReport(p, "second")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("paths differ: %s vs %s", first, second)
	}
	data, _ := os.ReadFile(second)
	if strings.Contains(string(data), "first") || !strings.Contains(string(data), "second") {
		t.Errorf("report not overwritten:\n%s", data)
	}
	entries, _ := os.ReadDir(w.Dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d files, want 1", len(entries))
	}
}

func outcomesFor(t *testing.T, w *Writer, papers ...types.Paper) []types.AnalysisOutcome {
	t.Helper()
	var out []types.AnalysisOutcome
	for _, p := range papers {
		path, err := w.WriteReport(p, "analysis")
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, types.AnalysisOutcome{Paper: p, ReportPath: path, TokensUsed: 1200, ProcessingTime: 1500 * time.Millisecond})
	}
	return out
}

func TestWriteIndex(t *testing.T) {
	w := newWriter(t)
	second := types.Paper{ID: "2603.09999v1", Title: "Second Paper", Authors: []string{"Solo Author"}, Published: fixedNow}
	outcomes := outcomesFor(t, w, samplePaper(), second)

	path, err := w.WriteIndex(outcomes, &SearchParams{Category: "cs.AI", Days: 7, MaxResults: 5})
	if err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	if filepath.Base(path) != IndexFile {
		t.Errorf("path = %s", path)
	}
	data, _ := os.ReadFile(path)
	got := string(data)

	for _, want := range []string{
		"**Generated**: 2026-03-15 09:04:05",
		"- **Category**: cs.AI",
		"- **Time Range**: last 7 days",
		"- **Max Results**: 5",
		"Processed 2 papers:",
		"1. [Sparse Attention: Scaling to Long Documents!](./2603.01234v2_sparse_attention_scaling_to_long_documents.md) - Ada Lovelace, Alan Turing, Grace Hopper et al. (2026-03-13)",
		"2. [Second Paper](./2603.09999v1_second_paper.md) - Solo Author (2026-03-15)",
		"*Index generated at 2026-03-15 09:04:05*",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("index missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Classic papers") {
		t.Error("recent run should not list classic parameters")
	}
}

func TestRenderIndexClassic(t *testing.T) {
	got := RenderIndex(nil, &SearchParams{
		Category: "cs.LG", MaxResults: 3, Classic: true, YearsBack: 3,
		CitationFilter: true, MinCitations: 10, MinInfluential: 5,
	}, fixedNow)
	if !strings.Contains(got, "- **Classic papers**: last 3 years, at least 10 citations and 5 influential citations") {
		t.Errorf("classic line missing:\n%s", got)
	}
	if strings.Contains(got, "Time Range") {
		t.Error("classic run should not list a day range")
	}
	if !strings.Contains(got, "Processed 0 papers:") {
		t.Errorf("count missing:\n%s", got)
	}
}

func TestRenderIndexWithoutParams(t *testing.T) {
	got := RenderIndex(nil, nil, fixedNow)
	if strings.Contains(got, "Search Parameters") {
		t.Errorf("unexpected parameters section:\n%s", got)
	}
}

func TestGenerateBibTeX(t *testing.T) {
	p := samplePaper()
	twin := p
	twin.ID = "2603.05555v1"
	outcomes := []types.AnalysisOutcome{{Paper: p}, {Paper: twin}, {Paper: types.Paper{ID: "x1", Title: "On It"}}}

	keys := CitationKeys(outcomes)
	want := []string{"Lovelace2026Sparsea", "Lovelace2026Sparseb", "Anon"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, keys[i], want[i])
		}
	}

	bib := GenerateBibTeX(outcomes)
	for _, s := range []string{
		"@misc{Lovelace2026Sparsea,",
		"  author = {Ada Lovelace and Alan Turing and Grace Hopper and Edsger Dijkstra},",
		"  year = {2026},",
		"  eprint = {2603.01234v2},",
		"  archivePrefix = {arXiv},",
		"  primaryClass = {cs.AI},",
		"  url = {https://arxiv.org/abs/2603.05555v1},",
		"@misc{Anon,",
	} {
		if !strings.Contains(bib, s) {
			t.Errorf("bibtex missing %q:\n%s", s, bib)
		}
	}
}

func TestWriteManifestAndReferences(t *testing.T) {
	w := newWriter(t)
	outcomes := outcomesFor(t, w, samplePaper())

	path, err := w.WriteManifest(outcomes, &SearchParams{Category: "cs.AI", Days: 7, MaxResults: 5})
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not valid YAML: %v", err)
	}
	if m.Search == nil || m.Search.Category != "cs.AI" {
		t.Errorf("search = %+v", m.Search)
	}
	if len(m.Papers) != 1 {
		t.Fatalf("papers = %d", len(m.Papers))
	}
	e := m.Papers[0]
	if e.ID != "2603.01234v2" || e.Published != "2026-03-13" || e.CitationKey != "Lovelace2026Sparse" {
		t.Errorf("entry = %+v", e)
	}
	if e.TokensUsed != 1200 || e.ProcessingSeconds != 1.5 {
		t.Errorf("entry stats = %+v", e)
	}

	refs, err := w.WriteReferences(outcomes)
	if err != nil {
		t.Fatalf("WriteReferences: %v", err)
	}
	if filepath.Base(refs) != ReferencesFile {
		t.Errorf("references path = %s", refs)
	}
}
