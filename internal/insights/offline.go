package insights

import (
	"context"
	"fmt"
	"sort"
)

// Offline is the Analyzer used when no model API key is configured. It
// charges nothing, suggests prompts from the column names and rejects graph
// prompts with the default suggestions.
type Offline struct{}

func (Offline) Summarize(_ context.Context, _ string, rows []map[string]any) (*Summary, error) {
	if len(rows) == 0 {
		return &Summary{Insights: NoInsights, Suggestions: []string{}}, nil
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	suggestions := make([]string, 0, 5)
	for _, c := range cols {
		if len(suggestions) == 5 {
			break
		}
		suggestions = append(suggestions, fmt.Sprintf("Show the distribution of %s as a histogram", c))
	}
	return &Summary{Insights: NoInsights, Suggestions: suggestions}, nil
}

func (Offline) GenerateGraphs(context.Context, string, []map[string]any) (*GraphResult, error) {
	return &GraphResult{Status: StatusError, Suggestions: append([]string(nil), DefaultSuggestions...)}, nil
}
