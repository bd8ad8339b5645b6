// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs papers through download, extraction, analysis and
// report writing, one paper at a time. A failure in any stage drops only
// the paper it happened on; the batch continues with the next paper.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-tracker/internal/analysis"
	"github.com/pdiddy/paper-tracker/internal/logging"
	"github.com/pdiddy/paper-tracker/internal/report"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// Stage names used in StageError and metrics labels.
const (
	StageDownload = "download"
	StageExtract  = "extract"
	StageAnalyze  = "analyze"
	StageReport   = "report"
)

// Exit codes for a finished batch.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitPartial     = 2
	ExitInterrupted = 130
)

const progressTitleLen = 60

// Downloader fetches a paper's PDF and returns its local path.
type Downloader interface {
	Download(ctx context.Context, p types.Paper) (string, error)
}

// Extractor turns a local PDF into cleaned text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Analyzer produces the analysis text for a paper's content.
type Analyzer interface {
	Analyze(ctx context.Context, p types.Paper, text string) (analysis.Result, error)
}

// ReportWriter persists per-paper reports and the run index.
type ReportWriter interface {
	WriteReport(p types.Paper, analysis string) (string, error)
	WriteIndex(outcomes []types.AnalysisOutcome, params *report.SearchParams) (string, error)
	WriteReferences(outcomes []types.AnalysisOutcome) (string, error)
	WriteManifest(outcomes []types.AnalysisOutcome, params *report.SearchParams) (string, error)
}

// StageError records which stage dropped which paper.
type StageError struct {
	Stage   string
	PaperID string
	Title   string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.PaperID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// BatchResult summarizes one batch. Succeeded keeps input order.
type BatchResult struct {
	Total       int
	Succeeded   []types.AnalysisOutcome
	Failed      []*StageError
	IndexPath   string
	Interrupted bool
	Elapsed     time.Duration
}

// Processed returns the number of papers that reached a verdict.
func (r BatchResult) Processed() int { return len(r.Succeeded) + len(r.Failed) }

// ExitCode maps the batch to the process exit status: 130 when interrupted,
// 0 when there was nothing to do or everything succeeded, 1 when every paper
// failed and 2 otherwise.
func (r BatchResult) ExitCode() int {
	switch {
	case r.Interrupted:
		return ExitInterrupted
	case len(r.Failed) == 0:
		return ExitOK
	case len(r.Succeeded) == 0:
		return ExitFailed
	default:
		return ExitPartial
	}
}

// Driver runs the batch. Out receives the user-facing progress lines.
type Driver struct {
	Downloader Downloader
	Extractor  Extractor
	Analyzer   Analyzer
	Writer     ReportWriter

	// Params describes the search for the index; nil omits that section.
	Params *report.SearchParams

	Out     io.Writer
	Logger  zerolog.Logger
	Metrics *Metrics

	// Now is the clock used for timings. Tests pin it.
	Now func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Driver) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

// Run processes papers in order. ctx is consulted only between papers: once
// it is done the batch stops and reports Interrupted, but a paper already in
// progress runs to completion. The index, references and manifest are
// written when at least one paper succeeded. The returned error is non-nil
// only when the index could not be written.
func (d *Driver) Run(ctx context.Context, papers []types.Paper) (BatchResult, error) {
	start := d.now()
	res := BatchResult{Total: len(papers)}
	w := d.out()

	if len(papers) > 0 {
		fmt.Fprintf(w, "\nProcessing %d papers...\n\n", len(papers))
	}

	// Stage calls must not observe the interrupt.
	stageCtx := context.WithoutCancel(ctx)

	for i, p := range papers {
		if ctx.Err() != nil {
			res.Interrupted = true
			d.Logger.Warn().Int("processed", i).Int("total", len(papers)).Msg("batch interrupted")
			break
		}

		pct := float64(i+1) / float64(len(papers)) * 100
		fmt.Fprintf(w, "[%d/%d] (%.0f%%) Processing: %s...\n", i+1, len(papers), pct, headRunes(p.Title, progressTitleLen))

		paperStart := d.now()
		outcome, serr := d.process(stageCtx, p)
		elapsed := d.now().Sub(paperStart)

		if serr != nil {
			res.Failed = append(res.Failed, serr)
			d.Metrics.recordFailure(serr.Stage, elapsed)
			flog := logging.WithPaper(d.Logger, p)
			flog.Error().Err(serr.Err).Str("stage", serr.Stage).Msg("paper failed")
			fmt.Fprintf(w, "  Failed to process paper\n\n")
			continue
		}

		outcome.ProcessingTime = elapsed
		res.Succeeded = append(res.Succeeded, outcome)
		d.Metrics.recordSuccess(elapsed, outcome.TokensUsed)
		fmt.Fprintf(w, "  Report generated: %s\n\n", filepath.Base(outcome.ReportPath))
	}

	var err error
	if len(res.Succeeded) > 0 {
		err = d.writeIndex(&res)
	}
	res.Elapsed = d.now().Sub(start)

	d.Logger.Info().
		Int("succeeded", len(res.Succeeded)).
		Int("failed", len(res.Failed)).
		Int("total", res.Total).
		Bool("interrupted", res.Interrupted).
		Dur("elapsed", res.Elapsed).
		Msg("batch completed")
	return res, err
}

func (d *Driver) writeIndex(res *BatchResult) error {
	path, err := d.Writer.WriteIndex(res.Succeeded, d.Params)
	if err != nil {
		return err
	}
	res.IndexPath = path
	d.Logger.Info().Str("path", path).Int("papers", len(res.Succeeded)).Msg("index written")

	if p, err := d.Writer.WriteReferences(res.Succeeded); err != nil {
		d.Logger.Warn().Err(err).Msg("references not written")
	} else {
		d.Logger.Debug().Str("path", p).Msg("references written")
	}
	if p, err := d.Writer.WriteManifest(res.Succeeded, d.Params); err != nil {
		d.Logger.Warn().Err(err).Msg("manifest not written")
	} else {
		d.Logger.Debug().Str("path", p).Msg("manifest written")
	}
	return nil
}

// process runs every stage for p. A panic in any stage is recovered and
// reported as a failure of that stage.
func (d *Driver) process(ctx context.Context, p types.Paper) (outcome types.AnalysisOutcome, serr *StageError) {
	stage := StageDownload
	fail := func(err error) *StageError {
		return &StageError{Stage: stage, PaperID: p.ID, Title: p.Title, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error().Str("paper_id", p.ID).Str("stage", stage).Bytes("stack", debug.Stack()).Msg("panic recovered")
			outcome = types.AnalysisOutcome{}
			serr = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	plog := logging.WithPaper(d.Logger, p)

	pdfPath, err := d.Downloader.Download(ctx, p)
	if err != nil {
		return outcome, fail(err)
	}

	stage = StageExtract
	text, err := d.Extractor.Extract(ctx, pdfPath)
	if err != nil {
		return outcome, fail(err)
	}
	plog.Debug().Int("chars", len([]rune(text))).Msg("text extracted")

	stage = StageAnalyze
	result, err := d.Analyzer.Analyze(ctx, p, text)
	if err != nil {
		return outcome, fail(err)
	}

	stage = StageReport
	path, err := d.Writer.WriteReport(p, result.Text)
	if err != nil {
		return outcome, fail(err)
	}
	plog.Info().Str("report", path).Int("tokens", result.TokensUsed).Msg("report written")

	return types.AnalysisOutcome{
		Paper:        p,
		AnalysisText: result.Text,
		ReportPath:   path,
		GeneratedAt:  d.now(),
		TokensUsed:   result.TokensUsed,
	}, nil
}

// WriteSummary prints the end-of-run block.
func WriteSummary(w io.Writer, res BatchResult, outputDir string) {
	rule := "============================================================"
	fmt.Fprintf(w, "\n%s\nExecution Summary\n%s\n", rule, rule)
	if res.Interrupted {
		fmt.Fprintf(w, "Interrupted after %d of %d papers\n", res.Processed(), res.Total)
	}
	fmt.Fprintf(w, "Successfully processed: %d papers\n", len(res.Succeeded))
	fmt.Fprintf(w, "Failed: %d papers\n", len(res.Failed))
	secs := res.Elapsed.Seconds()
	fmt.Fprintf(w, "Total time: %.2fs (%.1f minutes)\n", secs, secs/60)
	fmt.Fprintf(w, "Output directory: %s\n", outputDir)
	if res.IndexPath != "" {
		fmt.Fprintf(w, "Index file: %s\n", res.IndexPath)
	}
	fmt.Fprintf(w, "%s\n", rule)
}

func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
