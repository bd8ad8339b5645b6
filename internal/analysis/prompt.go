// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analysis

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-tracker/pkg/types"
)

// analysisPromptTmpl is the fixed prompt sent to the model for every paper.
// The section list is the structure every generated report follows.
var analysisPromptTmpl = template.Must(template.New("analysis").Parse(`You are a senior academic research expert. Read the following paper carefully and write a professional, detailed technical analysis report.

Paper information:
- Title: {{.Title}}
- Authors: {{.Authors}}
- Published: {{.Date}}
- arXiv ID: {{.ID}}
- Categories: {{.Categories}}

Paper content:
{{.Content}}

Write the report with the structure below, in precise academic language, paying particular attention to technical detail:

## 1. Overview
A thorough summary (5-8 sentences) covering:
- the core research problem and goal
- the name and basic idea of the proposed method or model
- the key technical innovations
- the main quantitative results
- the main contributions

## 2. Background & Motivation
- What concrete problem does the paper address?
- Why does it matter, and what are its practical applications?
- What are the limitations and technical bottlenecks of existing approaches?
- What motivates this work and where does it start from?

## 3. Method
Describe the proposed method, model or algorithm in detail, including:

### 3.1 Overall Architecture
- the overall design of the model or system
- the role of each module and how the modules interact
- the data flow and processing pipeline

### 3.2 Technical Details
- the concrete steps of the core algorithm
- **Key equations**: the important formulas from the paper, in LaTeX
- **Loss function**: each term of the loss, its meaning and weight
- input and output formats
- notable tricks or optimization strategies

### 3.3 Innovations
- how the approach differs from existing methods
- where the technical breakthrough lies
- why these innovations solve the earlier problems

## 4. Experiments
### 4.1 Setup
- datasets and their characteristics
- evaluation metrics
- baselines compared against
- hardware and software environment

### 4.2 Results
- key metrics with their concrete values
- a detailed comparison with baselines, as a table
- ablation results and their analysis
- key findings from visualizations

### 4.3 Analysis
- Why does the method achieve these results?
- Which factors affect performance the most?
- Which hypotheses do the experiments confirm?

## 5. Contributions
List the main contributions (3-5 points), each with:
- the concrete technical innovation
- the improvement over prior work
- the impact on the field

## 6. Limitations
An objective account of the paper's weaknesses:
- theoretical or technical limits of the method
- shortcomings of the experimental design
- restrictions on where the method applies
- open problems

Keep the report accurate, objective and professional, and make the technical details complete. Describe equations, algorithm steps and loss composition in full. Do not over-interpret or add content the paper does not contain.
`))

// promptData is the template input for one paper.
type promptData struct {
	Title      string
	Authors    string
	Date       string
	ID         string
	Categories string
	Content    string
}

// BuildPrompt fills the analysis template with p's metadata and content.
func BuildPrompt(p types.Paper, content string) (string, error) {
	data := promptData{
		Title:      p.Title,
		Authors:    strings.Join(p.Authors, ", "),
		Date:       p.Published.Format("2006-01-02"),
		ID:         p.ID,
		Categories: strings.Join(p.Categories, ", "),
		Content:    content,
	}

	var buf bytes.Buffer
	if err := analysisPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
