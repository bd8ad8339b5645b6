// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AnalysisOutcome is the result of one paper completing every pipeline stage.
type AnalysisOutcome struct {
	Paper Paper `json:"paper" yaml:"paper"`

	// AnalysisText is the generated analysis in Markdown.
	AnalysisText string `json:"analysis_text" yaml:"analysis_text"`

	// ReportPath is the file the report was written to.
	ReportPath string `json:"report_path" yaml:"report_path"`

	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// TokensUsed is the provider-reported token total, or 0 when not reported.
	TokensUsed int `json:"tokens_used,omitempty" yaml:"tokens_used,omitempty"`

	// ProcessingTime is the wall-clock time spent on this paper, retries included.
	ProcessingTime time.Duration `json:"processing_time" yaml:"processing_time"`
}
