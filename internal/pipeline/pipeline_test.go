// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-tracker/internal/analysis"
	"github.com/pdiddy/paper-tracker/internal/extract"
	"github.com/pdiddy/paper-tracker/internal/httputil"
	"github.com/pdiddy/paper-tracker/internal/report"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// fakeStages implements Downloader, Extractor and Analyzer. Failures are
// keyed by paper ID.
type fakeStages struct {
	downloadErr map[string]error
	extractErr  map[string]error
	analyzeErr  map[string]error
	panicOn     map[string]bool

	// onAnalyze runs inside Analyze before it returns.
	onAnalyze func(ctx context.Context, p types.Paper)

	analyzed []string
}

func (f *fakeStages) Download(_ context.Context, p types.Paper) (string, error) {
	if err := f.downloadErr[p.ID]; err != nil {
		return "", err
	}
	return "/pdfs/" + p.ID + ".pdf", nil
}

func (f *fakeStages) Extract(_ context.Context, path string) (string, error) {
	id := strings.TrimSuffix(filepath.Base(path), ".pdf")
	if err := f.extractErr[id]; err != nil {
		return "", err
	}
	return "text of " + id, nil
}

func (f *fakeStages) Analyze(ctx context.Context, p types.Paper, text string) (analysis.Result, error) {
	if f.panicOn[p.ID] {
		panic("analyzer exploded")
	}
	if f.onAnalyze != nil {
		f.onAnalyze(ctx, p)
	}
	if err := f.analyzeErr[p.ID]; err != nil {
		return analysis.Result{}, err
	}
	f.analyzed = append(f.analyzed, p.ID)
	return analysis.Result{Text: "analysis of " + text, TokensUsed: 100}, nil
}

// failingIndex wraps a report.Writer and fails WriteIndex.
type failingIndex struct {
	*report.Writer
}

func (failingIndex) WriteIndex([]types.AnalysisOutcome, *report.SearchParams) (string, error) {
	return "", errors.New("disk full")
}

func papers(n int) []types.Paper {
	out := make([]types.Paper, n)
	for i := range out {
		out[i] = types.Paper{
			ID:        fmt.Sprintf("2603.%05dv1", i+1),
			Title:     fmt.Sprintf("Paper Number %d", i+1),
			Authors:   []string{"A. Author"},
			Published: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			PDFURL:    "http://example.test/pdf",
		}
	}
	return out
}

func newDriver(t *testing.T, stages *fakeStages) (*Driver, *bytes.Buffer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "reports")
	var out bytes.Buffer
	return &Driver{
		Downloader: stages,
		Extractor:  stages,
		Analyzer:   stages,
		Writer:     report.New(dir),
		Params:     &report.SearchParams{Category: "cs.AI", Days: 7, MaxResults: 5},
		Out:        &out,
		Logger:     zerolog.Nop(),
		Metrics:    NewMetrics(),
	}, &out, dir
}

func reportFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") && e.Name() != report.IndexFile {
			names = append(names, e.Name())
		}
	}
	return names
}

// Scenario A: one of three papers fails to download.
func TestRunPartialFailure(t *testing.T) {
	ps := papers(3)
	stages := &fakeStages{downloadErr: map[string]error{ps[1].ID: errors.New("HTTP 404")}}
	d, out, dir := newDriver(t, stages)

	res, err := d.Run(context.Background(), ps)
	require.NoError(t, err)

	assert.Equal(t, ExitPartial, res.ExitCode())
	require.Len(t, res.Succeeded, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, ps[0].ID, res.Succeeded[0].Paper.ID)
	assert.Equal(t, ps[2].ID, res.Succeeded[1].Paper.ID)
	assert.Equal(t, StageDownload, res.Failed[0].Stage)
	assert.Equal(t, ps[1].ID, res.Failed[0].PaperID)
	assert.Len(t, reportFiles(t, dir), 2)

	index, err := os.ReadFile(filepath.Join(dir, report.IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Processed 2 papers:")
	first := strings.Index(string(index), "Paper Number 1")
	third := strings.Index(string(index), "Paper Number 3")
	assert.True(t, first >= 0 && third > first, "index keeps input order")
	assert.NotContains(t, string(index), "Paper Number 2")
	assert.Equal(t, filepath.Join(dir, report.IndexFile), res.IndexPath)

	assert.FileExists(t, filepath.Join(dir, report.ReferencesFile))
	assert.FileExists(t, filepath.Join(dir, report.ManifestFile))

	progress := out.String()
	assert.Contains(t, progress, "[1/3] (33%) Processing: Paper Number 1...")
	assert.Contains(t, progress, "[2/3] (67%) Processing: Paper Number 2...")
	assert.Contains(t, progress, "[3/3] (100%) Processing: Paper Number 3...")
	assert.Contains(t, progress, "  Failed to process paper")
	assert.Contains(t, progress, "  Report generated: 2603.00001v1_paper_number_1.md")
}

// Scenario B: nothing found.
func TestRunNoPapers(t *testing.T) {
	d, _, dir := newDriver(t, &fakeStages{})

	res, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, res.ExitCode())
	assert.Empty(t, res.IndexPath)
	assert.NoFileExists(t, filepath.Join(dir, report.IndexFile))
}

// Scenario C: every paper fails.
func TestRunAllFail(t *testing.T) {
	ps := papers(2)
	stages := &fakeStages{analyzeErr: map[string]error{
		ps[0].ID: errors.New("HTTP 401"),
		ps[1].ID: errors.New("HTTP 401"),
	}}
	d, _, dir := newDriver(t, stages)

	res, err := d.Run(context.Background(), ps)
	require.NoError(t, err)
	assert.Equal(t, ExitFailed, res.ExitCode())
	assert.Empty(t, res.Succeeded)
	assert.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.Equal(t, StageAnalyze, f.Stage)
	}
	assert.NoFileExists(t, filepath.Join(dir, report.IndexFile))
	assert.Empty(t, reportFiles(t, dir))
}

func TestRunLogsFailedPaper(t *testing.T) {
	ps := papers(1)
	stages := &fakeStages{downloadErr: map[string]error{ps[0].ID: errors.New("HTTP 404")}}
	d, _, _ := newDriver(t, stages)
	var logs bytes.Buffer
	d.Logger = zerolog.New(&logs)

	_, err := d.Run(context.Background(), ps)
	require.NoError(t, err)

	line := logs.String()
	assert.Contains(t, line, `"level":"error"`)
	assert.Contains(t, line, `"paper_id":"`+ps[0].ID+`"`)
	assert.Contains(t, line, `"stage":"download"`)
	assert.Contains(t, line, `"error":"HTTP 404"`)
	assert.Contains(t, line, `"message":"paper failed"`)
}

func TestRunFailureAtEachStage(t *testing.T) {
	ps := papers(3)
	stages := &fakeStages{
		extractErr: map[string]error{ps[0].ID: extract.ErrEmptyText},
		analyzeErr: map[string]error{ps[1].ID: &httputil.Error{Kind: httputil.KindMalformed, Op: "llm completion"}},
	}
	d, _, _ := newDriver(t, stages)

	res, err := d.Run(context.Background(), ps)
	require.NoError(t, err)
	require.Len(t, res.Failed, 2)

	assert.Equal(t, StageExtract, res.Failed[0].Stage)
	assert.ErrorIs(t, res.Failed[0], extract.ErrEmptyText)
	assert.Equal(t, StageAnalyze, res.Failed[1].Stage)
	assert.Equal(t, httputil.KindMalformed, httputil.KindOf(res.Failed[1]))

	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.StageFailures.WithLabelValues(StageExtract)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.StageFailures.WithLabelValues(StageAnalyze)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.Papers.WithLabelValues("succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(d.Metrics.Papers.WithLabelValues("failed")))
	assert.Equal(t, 100.0, testutil.ToFloat64(d.Metrics.TokensUsed))
}

func TestRunRecoversPanic(t *testing.T) {
	ps := papers(2)
	stages := &fakeStages{panicOn: map[string]bool{ps[0].ID: true}}
	d, _, _ := newDriver(t, stages)

	res, err := d.Run(context.Background(), ps)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageAnalyze, res.Failed[0].Stage)
	assert.Contains(t, res.Failed[0].Error(), "analyzer exploded")
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, ps[1].ID, res.Succeeded[0].Paper.ID)
	assert.Equal(t, ExitPartial, res.ExitCode())
}

func TestRunInterruptFinishesCurrentPaper(t *testing.T) {
	ps := papers(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stageCtxErr error
	stages := &fakeStages{onAnalyze: func(stageCtx context.Context, p types.Paper) {
		if p.ID == ps[0].ID {
			cancel()
			stageCtxErr = stageCtx.Err()
		}
	}}
	d, out, dir := newDriver(t, stages)

	res, err := d.Run(ctx, ps)
	require.NoError(t, err)

	assert.NoError(t, stageCtxErr, "in-flight stage must not see the interrupt")
	assert.True(t, res.Interrupted)
	assert.Equal(t, ExitInterrupted, res.ExitCode())
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, []string{ps[0].ID}, stages.analyzed)
	assert.NotContains(t, out.String(), "[2/3]")
	assert.FileExists(t, filepath.Join(dir, report.IndexFile))
}

func TestRunIndexFailure(t *testing.T) {
	ps := papers(1)
	d, _, dir := newDriver(t, &fakeStages{})
	d.Writer = failingIndex{report.New(dir)}

	res, err := d.Run(context.Background(), ps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, res.Succeeded, 1)
	assert.Empty(t, res.IndexPath)
}

// For every failure pattern over four papers, exactly the successful papers
// get a report and an index entry.
func TestRunReportsMatchSuccesses(t *testing.T) {
	ps := papers(4)
	for mask := 0; mask < 1<<len(ps); mask++ {
		t.Run(fmt.Sprintf("mask=%04b", mask), func(t *testing.T) {
			stages := &fakeStages{downloadErr: map[string]error{}}
			want := 0
			for i, p := range ps {
				if mask&(1<<i) != 0 {
					stages.downloadErr[p.ID] = errors.New("boom")
				} else {
					want++
				}
			}
			d, _, dir := newDriver(t, stages)

			res, err := d.Run(context.Background(), ps)
			require.NoError(t, err)
			assert.Len(t, res.Succeeded, want)
			assert.Len(t, reportFiles(t, dir), want)
			assert.Equal(t, len(ps), res.Processed())

			index, err := os.ReadFile(filepath.Join(dir, report.IndexFile))
			if want == 0 {
				assert.True(t, errors.Is(err, os.ErrNotExist))
				assert.Equal(t, ExitFailed, res.ExitCode())
				return
			}
			require.NoError(t, err)
			assert.Contains(t, string(index), fmt.Sprintf("Processed %d papers:", want))
			assert.Equal(t, want, strings.Count(string(index), "](./"))
		})
	}
}

func TestExitCode(t *testing.T) {
	ok := types.AnalysisOutcome{}
	fail := &StageError{Stage: StageDownload}
	tests := []struct {
		name string
		res  BatchResult
		want int
	}{
		{"empty", BatchResult{}, ExitOK},
		{"all ok", BatchResult{Succeeded: []types.AnalysisOutcome{ok}}, ExitOK},
		{"all failed", BatchResult{Failed: []*StageError{fail}}, ExitFailed},
		{"partial", BatchResult{Succeeded: []types.AnalysisOutcome{ok}, Failed: []*StageError{fail}}, ExitPartial},
		{"interrupted", BatchResult{Succeeded: []types.AnalysisOutcome{ok}, Interrupted: true}, ExitInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.ExitCode())
		})
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, BatchResult{
		Total:     3,
		Succeeded: make([]types.AnalysisOutcome, 2),
		Failed:    []*StageError{{}},
		IndexPath: "reports/index.md",
		Elapsed:   90 * time.Second,
	}, "reports")

	got := buf.String()
	assert.Contains(t, got, "Successfully processed: 2 papers")
	assert.Contains(t, got, "Failed: 1 papers")
	assert.Contains(t, got, "Total time: 90.00s (1.5 minutes)")
	assert.Contains(t, got, "Output directory: reports")
	assert.Contains(t, got, "Index file: reports/index.md")
	assert.NotContains(t, got, "Interrupted")
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveRetry("llm completion", httputil.KindRateLimited)
	m.ObserveRetry("llm completion", httputil.KindRateLimited)
	m.recordSuccess(2*time.Second, 50)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues("llm completion", "rate_limited")))

	path := filepath.Join(t.TempDir(), "paper_tracker.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `paper_tracker_retries_total{kind="rate_limited",op="llm completion"} 2`)
	assert.Contains(t, string(data), `paper_tracker_papers_total{status="succeeded"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveRetry("x", httputil.KindServer)
	assert.NoError(t, nilMetrics.WriteTextfile(path))
}
