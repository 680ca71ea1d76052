// Package insights produces AI summaries and Plotly graphs for uploaded
// tables, and post-processes the graphs for display.
package insights

import (
	"context"
	"errors"
)

// Status values of a GraphResult.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NoInsights is the summary used when the analyzer returns none.
const NoInsights = "No insights available."

// PreviewRows is the number of rows sent with an upload summary request.
const PreviewRows = 5

// ErrMalformed is returned when the model response is not the expected JSON.
var ErrMalformed = errors.New("insights: malformed analyzer response")

// DefaultSuggestions are offered when a prompt cannot be turned into a graph.
var DefaultSuggestions = []string{
	"Try being more specific about the data to visualize.",
	"Specify the type of chart or analysis you need.",
	"Include details about the x-axis and y-axis data.",
}

// Summary is the analysis of one uploaded file.
type Summary struct {
	Insights    string   `json:"insights"`
	Suggestions []string `json:"prompt_suggestions"`
	Credits     int      `json:"-"`
}

// RawGraph is one graph as returned by the model. GraphJSON is either an
// object or a string holding one.
type RawGraph struct {
	GraphJSON   any    `json:"graph_json"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GraphResult is the model output for a graph prompt.
type GraphResult struct {
	Status      string     `json:"status"`
	Graphs      []RawGraph `json:"graphs"`
	Suggestions []string   `json:"suggestions"`
	Credits     int        `json:"-"`
}

// Analyzer turns table rows into insights and graphs.
type Analyzer interface {
	Summarize(ctx context.Context, filename string, rows []map[string]any) (*Summary, error)
	GenerateGraphs(ctx context.Context, prompt string, rows []map[string]any) (*GraphResult, error)
}

// Credits converts a prompt token count into prompt credits, one credit per
// started hundred tokens.
func Credits(promptTokens int) int {
	if promptTokens <= 0 {
		return 0
	}
	return (promptTokens + 99) / 100
}
