// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-tracker CLI. The run
// command searches arXiv, downloads and analyses each paper with an LLM,
// and writes one Markdown report per paper plus an index.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-tracker/internal/logging"
	"github.com/pdiddy/paper-tracker/internal/secrets"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// fileLogAnnotation marks commands that also log to the configured file.
const fileLogAnnotation = "file-log"

var (
	// cfg is the merged configuration, filled in by setup.
	cfg types.Config

	logger   = zerolog.Nop()
	closeLog = func() error { return nil }

	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string
)

// exitError carries a process exit status out of a command. A nil err
// means the command already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// rootCmd is the base command for the paper-tracker CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-tracker",
	Short: "Track new arXiv papers and write LLM analysis reports",
	Long: `paper-tracker finds papers on arXiv, either recent submissions in a
category or influential papers from the last few years, downloads each PDF,
extracts its text, asks an OpenAI-compatible model for a structured analysis,
and writes one Markdown report per paper plus an index.

Configuration is read from paper-tracker.yaml, PAPER_TRACKER_* environment
variables and command-line flags, in increasing order of precedence. API keys
can also be placed in .secrets/llm-api-key and .secrets/semantic-scholar-api-key.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-tracker.yaml or ~/.config/paper-tracker/paper-tracker.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "stderr log format: console or json")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-tracker")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-tracker"))
		}
	}

	viper.SetEnvPrefix("PAPER_TRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	registerDefaults(types.DefaultConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: could not read config file %s: %v\n", cfgFile, err)
	}
}

// registerDefaults declares every configuration key so environment
// variables are picked up by Unmarshal.
func registerDefaults(d types.Config) {
	viper.SetDefault("llm.api_endpoint", d.LLM.APIEndpoint)
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	viper.SetDefault("llm.temperature", d.LLM.Temperature)
	viper.SetDefault("llm.max_content_length", d.LLM.MaxContentLength)
	viper.SetDefault("llm.timeout", d.LLM.Timeout)
	viper.SetDefault("llm.user_agent", d.LLM.UserAgent)
	viper.SetDefault("llm.breaker_failures", d.LLM.BreakerFailures)
	viper.SetDefault("llm.breaker_timeout", d.LLM.BreakerTimeout)

	viper.SetDefault("search.category", d.Search.Category)
	viper.SetDefault("search.days", d.Search.Days)
	viper.SetDefault("search.max_results", d.Search.MaxResults)
	viper.SetDefault("search.page_delay", d.Search.PageDelay)
	viper.SetDefault("search.timeout", d.Search.Timeout)
	viper.SetDefault("search.user_agent", d.Search.UserAgent)
	viper.SetDefault("search.api_url", "")

	viper.SetDefault("classic.years_back", d.Classic.YearsBack)
	viper.SetDefault("classic.use_scholar_api", d.Classic.UseScholarAPI)
	viper.SetDefault("classic.request_delay", d.Classic.RequestDelay)
	viper.SetDefault("classic.min_citations", d.Classic.MinCitations)
	viper.SetDefault("classic.min_influential", d.Classic.MinInfluential)
	viper.SetDefault("classic.keywords", []string{})

	viper.SetDefault("scholar.api_key", "")
	viper.SetDefault("scholar.timeout", d.Scholar.Timeout)
	viper.SetDefault("scholar.user_agent", d.Scholar.UserAgent)

	viper.SetDefault("download.timeout", d.Download.Timeout)
	viper.SetDefault("download.user_agent", d.Download.UserAgent)

	viper.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	viper.SetDefault("retry.base_delay", d.Retry.BaseDelay)

	viper.SetDefault("extract.max_pages", d.Extract.MaxPages)
	viper.SetDefault("extract.head_pages", d.Extract.HeadPages)
	viper.SetDefault("extract.tail_pages", d.Extract.TailPages)

	viper.SetDefault("output.dir", d.Output.Dir)
	viper.SetDefault("output.metrics_file", "")

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("logging.file", d.Logging.File)
}

// setup binds the running command's flags, resolves the merged config,
// builds the logger and loads secrets.
func setup(cmd *cobra.Command, _ []string) error {
	if err := bindConfigFlags(cmd); err != nil {
		return err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	logCfg := cfg.Logging
	if cmd.Annotations[fileLogAnnotation] != "true" {
		logCfg.File = ""
	}
	l, closeFn, err := logging.New(logCfg, os.Stderr)
	if err != nil {
		return err
	}
	logger, closeLog = l, closeFn

	s, err := secrets.Load(secrets.DefaultDir, logger)
	if err != nil {
		return err
	}
	loadedSecrets = s
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Debug().Strs("keys", keys).Msg("loaded secrets")
	}

	cfg.LLM.APIKey = secrets.Resolve(cfg.LLM.APIKey, loadedSecrets, secrets.LLMAPIKey, "OPENAI_API_KEY")
	cfg.Scholar.APIKey = secrets.Resolve(cfg.Scholar.APIKey, loadedSecrets, secrets.SemanticScholarAPIKey, "SEMANTIC_SCHOLAR_API_KEY")
	return nil
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	err := rootCmd.Execute()
	_ = closeLog()

	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(exitCode(err))
}
