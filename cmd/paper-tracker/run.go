package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-tracker/internal/acquire"
	"github.com/pdiddy/paper-tracker/internal/analysis"
	"github.com/pdiddy/paper-tracker/internal/citation"
	"github.com/pdiddy/paper-tracker/internal/extract"
	"github.com/pdiddy/paper-tracker/internal/httputil"
	"github.com/pdiddy/paper-tracker/internal/pipeline"
	"github.com/pdiddy/paper-tracker/internal/report"
	"github.com/pdiddy/paper-tracker/internal/search"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// configFlags maps command-line flags to config keys. A flag is bound only
// on the command being executed, so run and search can share names.
var configFlags = map[string]string{
	"category":        "search.category",
	"days":            "search.days",
	"max-results":     "search.max_results",
	"output-dir":      "output.dir",
	"years-back":      "classic.years_back",
	"keywords":        "classic.keywords",
	"scholar":         "classic.use_scholar_api",
	"min-citations":   "classic.min_citations",
	"min-influential": "classic.min_influential",
	"metrics-file":    "output.metrics_file",
}

func bindConfigFlags(cmd *cobra.Command) error {
	for name, key := range configFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// addSearchFlags registers the flags shared by run and search. A flag left
// unset does not override the config file or environment.
func addSearchFlags(cmd *cobra.Command) {
	d := types.DefaultConfig()
	cmd.Flags().String("category", d.Search.Category, "arXiv category (e.g. cs.AI, cs.LG, cs.CV)")
	cmd.Flags().Int("days", d.Search.Days, "recent mode: look back this many days")
	cmd.Flags().Int("max-results", d.Search.MaxResults, "maximum number of papers to process")
	cmd.Flags().Bool("classic", false, "search for classic papers instead of recent ones")
	cmd.Flags().Int("years-back", d.Classic.YearsBack, "classic mode: look back this many years")
	cmd.Flags().StringSlice("keywords", nil, "classic mode: keywords, comma-separated")
	cmd.Flags().Bool("scholar", d.Classic.UseScholarAPI, "classic mode: filter by Semantic Scholar citation counts")
	cmd.Flags().Int("min-citations", d.Classic.MinCitations, "classic mode: minimum citation count")
	cmd.Flags().Int("min-influential", d.Classic.MinInfluential, "classic mode: minimum influential citation count")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search arXiv, analyse each paper and write reports",
	Long: `Run searches arXiv, then for each paper downloads the PDF, extracts its
text, requests an LLM analysis and writes a Markdown report. A paper that
fails at any stage is skipped; the rest of the batch continues. When at least
one report is written, index.md, references.bib and index.yaml are written
over the successful papers.

Exit status: 0 when every paper succeeded or none were found, 1 on a startup
error or when every paper failed, 2 when some papers failed, 130 when
interrupted.`,
	Annotations: map[string]string{fileLogAnnotation: "true"},
	RunE:        runRun,
}

func init() {
	addSearchFlags(runCmd)
	runCmd.Flags().String("output-dir", types.DefaultConfig().Output.Dir, "directory for reports; PDFs go to <dir>/pdfs")
	runCmd.Flags().String("metrics-file", "", "write Prometheus metrics for the run to this file")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	classic, _ := cmd.Flags().GetBool("classic")
	out := cmd.OutOrStdout()

	if cfg.LLM.APIKey == "" {
		return &exitError{code: pipeline.ExitFailed, err: fmt.Errorf("%w: set llm.api_key in paper-tracker.yaml, "+
			"PAPER_TRACKER_LLM_API_KEY or OPENAI_API_KEY, or write the key to %s/%s",
			analysis.ErrMissingAPIKey, ".secrets", "llm-api-key")}
	}

	printBanner(out, classic)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// After the first signal, a second one gets the default behaviour.
		<-ctx.Done()
		stop()
	}()

	metrics := pipeline.NewMetrics()
	retry := retryPolicy(metrics)

	analyzer, err := analysis.New(cfg.LLM, retry, logger)
	if err != nil {
		return &exitError{code: pipeline.ExitFailed, err: err}
	}
	if err := os.MkdirAll(cfg.Output.PDFDir(), 0o755); err != nil {
		return &exitError{code: pipeline.ExitFailed, err: fmt.Errorf("creating output directory: %w", err)}
	}

	found, err := findPapers(ctx, classic, retry)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "\nInterrupted.")
			return &exitError{code: pipeline.ExitInterrupted}
		}
		return &exitError{code: pipeline.ExitFailed, err: err}
	}
	if found.Found() == 0 {
		fmt.Fprintln(out, "No papers found matching the search criteria.")
		return nil
	}
	logger.Info().Int("papers", found.Found()).Msg("papers to process")

	driver := &pipeline.Driver{
		Downloader: acquire.New(cfg.Download, cfg.Output.PDFDir(), retry, logger),
		Extractor:  extract.New(cfg.Extract, logger),
		Analyzer:   analyzer,
		Writer:     report.New(cfg.Output.Dir),
		Params:     searchParams(classic),
		Out:        out,
		Logger:     logger,
		Metrics:    metrics,
	}

	res, runErr := driver.Run(ctx, found.Papers)
	if res.Interrupted {
		fmt.Fprintln(out, "\nInterrupted by user.")
	}
	pipeline.WriteSummary(out, res, cfg.Output.Dir)

	if cfg.Output.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Warn().Err(err).Msg("metrics not written")
		}
	}

	if runErr != nil {
		return &exitError{code: pipeline.ExitFailed, err: runErr}
	}
	if code := res.ExitCode(); code != pipeline.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

func retryPolicy(metrics *pipeline.Metrics) httputil.Policy {
	maxRetries := cfg.Retry.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	return httputil.Policy{
		MaxRetries: maxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		Logger:     logger,
		OnRetry:    metrics.ObserveRetry,
	}
}

// findPapers runs the recent or classic search from cfg.
func findPapers(ctx context.Context, classic bool, retry httputil.Policy) (search.Output, error) {
	s := search.New(search.NewArxivClient(cfg.Search, retry, logger), logger)

	if !classic {
		return s.Recent(ctx, search.RecentQuery{
			Category:   cfg.Search.Category,
			Days:       cfg.Search.Days,
			MaxResults: cfg.Search.MaxResults,
		})
	}

	q := search.ClassicQuery{
		Category:   cfg.Search.Category,
		YearsBack:  cfg.Classic.YearsBack,
		MaxResults: cfg.Search.MaxResults,
		Keywords:   cfg.Classic.Keywords,
	}
	if cfg.Classic.UseScholarAPI {
		cit := citation.New(cfg.Scholar, cfg.Classic.RequestDelay, retry, logger)
		th := citation.Thresholds{MinCitations: cfg.Classic.MinCitations, MinInfluential: cfg.Classic.MinInfluential}
		q.Filter = func(ctx context.Context, title string) bool {
			return cit.IsClassic(ctx, title, th)
		}
	}

	found, err := s.Classic(ctx, q)
	if err != nil {
		return found, err
	}
	if found.Shortfall() {
		logger.Warn().
			Int("requested", found.Requested).
			Int("found", found.Found()).
			Int("rejected", found.Rejected).
			Msg("fewer classic papers than requested")
	}
	if ctx.Err() != nil {
		return found, errors.Join(errors.New("search interrupted"), ctx.Err())
	}
	return found, nil
}

func searchParams(classic bool) *report.SearchParams {
	p := &report.SearchParams{
		Category:   cfg.Search.Category,
		MaxResults: cfg.Search.MaxResults,
	}
	if !classic {
		p.Days = cfg.Search.Days
		return p
	}
	p.Classic = true
	p.YearsBack = cfg.Classic.YearsBack
	if cfg.Classic.UseScholarAPI {
		p.CitationFilter = true
		p.MinCitations = cfg.Classic.MinCitations
		p.MinInfluential = cfg.Classic.MinInfluential
	}
	return p
}

func printBanner(w io.Writer, classic bool) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nPaper Tracker %s\n%s\n\n", rule, version, rule)
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Category: %s\n", cfg.Search.Category)
	if classic {
		fmt.Fprintln(w, "  Mode: Classic Paper Search")
		fmt.Fprintf(w, "  Time range: Last %d years\n", cfg.Classic.YearsBack)
		if len(cfg.Classic.Keywords) > 0 {
			fmt.Fprintf(w, "  Keywords: %s\n", strings.Join(cfg.Classic.Keywords, ", "))
		}
		if cfg.Classic.UseScholarAPI {
			fmt.Fprintf(w, "  Citation filter: >= %d citations, >= %d influential\n",
				cfg.Classic.MinCitations, cfg.Classic.MinInfluential)
		}
	} else {
		fmt.Fprintln(w, "  Mode: Recent Paper Search")
		fmt.Fprintf(w, "  Time range: Last %d days\n", cfg.Search.Days)
	}
	fmt.Fprintf(w, "  Max results: %d\n", cfg.Search.MaxResults)
	fmt.Fprintf(w, "  Output directory: %s\n", cfg.Output.Dir)
	fmt.Fprintln(w, rule)
}
