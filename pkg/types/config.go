// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-tracker/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// LLMConfig holds settings for the analysis stage.
type LLMConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIEndpoint is the OpenAI-compatible chat completions URL.
	APIEndpoint string `json:"api_endpoint" yaml:"api_endpoint" mapstructure:"api_endpoint"`

	// APIKey is the bearer credential. Required.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the model identifier (e.g. "gpt-4").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxContentLength caps the paper text sent to the model, in characters.
	// Zero or negative disables truncation.
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length" mapstructure:"max_content_length"`

	// BreakerFailures is the number of consecutive failed analysis calls that
	// opens the circuit breaker. Zero disables the breaker.
	BreakerFailures uint32 `json:"breaker_failures" yaml:"breaker_failures" mapstructure:"breaker_failures"`

	// BreakerTimeout is how long an open breaker rejects calls before probing again.
	BreakerTimeout time.Duration `json:"breaker_timeout" yaml:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// SearchConfig holds settings for the arXiv search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Category is the arXiv subject category (e.g. "cs.AI").
	Category string `json:"category" yaml:"category" mapstructure:"category"`

	// Days is the look-back window for recent mode.
	Days int `json:"days" yaml:"days" mapstructure:"days"`

	// MaxResults is the number of papers to process (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// PageDelay is the pause between arXiv result pages.
	PageDelay time.Duration `json:"page_delay" yaml:"page_delay" mapstructure:"page_delay"`

	// APIURL overrides the arXiv query endpoint. Empty uses the public API.
	APIURL string `json:"api_url,omitempty" yaml:"api_url,omitempty" mapstructure:"api_url"`
}

// ClassicConfig holds settings for classic-paper mode.
type ClassicConfig struct {
	// YearsBack bounds the publication window (default 3).
	YearsBack int `json:"years_back" yaml:"years_back" mapstructure:"years_back"`

	// UseScholarAPI enables the Semantic Scholar citation filter.
	UseScholarAPI bool `json:"use_scholar_api" yaml:"use_scholar_api" mapstructure:"use_scholar_api"`

	// RequestDelay is the minimum spacing between citation lookups.
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay" mapstructure:"request_delay"`

	MinCitations   int `json:"min_citations" yaml:"min_citations" mapstructure:"min_citations"`
	MinInfluential int `json:"min_influential" yaml:"min_influential" mapstructure:"min_influential"`

	// Keywords are OR-joined into the arXiv query.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty" mapstructure:"keywords"`
}

// ScholarConfig holds Semantic Scholar client settings.
type ScholarConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey is an optional key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// DownloadConfig holds settings for PDF retrieval.
type DownloadConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`
}

// RetryConfig holds the shared retry policy parameters.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
}

// ExtractConfig holds the text extraction page budget.
type ExtractConfig struct {
	// MaxPages is the page count above which only head and tail pages are read.
	MaxPages  int `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"`
	HeadPages int `json:"head_pages" yaml:"head_pages" mapstructure:"head_pages"`
	TailPages int `json:"tail_pages" yaml:"tail_pages" mapstructure:"tail_pages"`
}

// OutputConfig holds output locations.
type OutputConfig struct {
	// Dir receives reports and the index; PDFs go to Dir/pdfs.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MetricsFile, when set, receives batch metrics in Prometheus text format.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

// PDFDir returns the directory downloaded PDFs are written to.
func (o OutputConfig) PDFDir() string {
	return filepath.Join(o.Dir, "pdfs")
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "console" or "json" for stderr output.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// File is an optional JSON log file. Empty disables file logging.
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// Config groups all settings for a paper-tracker run.
type Config struct {
	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	Classic  ClassicConfig  `json:"classic" yaml:"classic" mapstructure:"classic"`
	Scholar  ScholarConfig  `json:"scholar" yaml:"scholar" mapstructure:"scholar"`
	Download DownloadConfig `json:"download" yaml:"download" mapstructure:"download"`
	Retry    RetryConfig    `json:"retry" yaml:"retry" mapstructure:"retry"`
	Extract  ExtractConfig  `json:"extract" yaml:"extract" mapstructure:"extract"`
	Output   OutputConfig   `json:"output" yaml:"output" mapstructure:"output"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// DefaultUserAgent is sent on every outbound request unless overridden.
const DefaultUserAgent = "paper-tracker/0.1"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			HTTPConfig:       HTTPConfig{Timeout: 120 * time.Second, UserAgent: DefaultUserAgent},
			APIEndpoint:      "https://api.openai.com/v1/chat/completions",
			Model:            "gpt-4",
			MaxTokens:        4000,
			Temperature:      0.3,
			MaxContentLength: -1,
			BreakerTimeout:   60 * time.Second,
		},
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{Timeout: 60 * time.Second, UserAgent: DefaultUserAgent},
			Category:   "cs.AI",
			Days:       7,
			MaxResults: 5,
			PageDelay:  3 * time.Second,
		},
		Classic: ClassicConfig{
			YearsBack:      3,
			RequestDelay:   2 * time.Second,
			MinCitations:   10,
			MinInfluential: 5,
		},
		Scholar: ScholarConfig{
			HTTPConfig: HTTPConfig{Timeout: 30 * time.Second, UserAgent: DefaultUserAgent},
		},
		Download: DownloadConfig{
			HTTPConfig: HTTPConfig{Timeout: 120 * time.Second, UserAgent: DefaultUserAgent},
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
		},
		Extract: ExtractConfig{
			MaxPages:  50,
			HeadPages: 10,
			TailPages: 5,
		},
		Output: OutputConfig{
			Dir: "./reports",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "./logs/paper-tracker.log",
		},
	}
}
