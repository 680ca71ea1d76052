package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/datviz/datviz-app/internal/metrics"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

const (
	summarySystem = "You are an expert in data analysis and provide structured JSON outputs."
	graphSystem   = "You are an expert in data visualization using Plotly and JSON generation."
)

// Gemini is an Analyzer backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini analyzer. model defaults to DefaultModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("insights: gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("insights: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Summarize asks for a one-sentence insight and five prompt suggestions from
// a preview of the first rows. Callers normally pass Table.Head(PreviewRows);
// longer inputs are cut to the preview here.
func (g *Gemini) Summarize(ctx context.Context, filename string, rows []map[string]any) (*Summary, error) {
	preview := rows
	if len(preview) > PreviewRows {
		preview = preview[:PreviewRows]
	}
	data, err := json.Marshal(preview)
	if err != nil {
		return nil, fmt.Errorf("insights: encode preview: %w", err)
	}

	prompt := fmt.Sprintf("Analyze the tabular data from the file '%s' and reply with a JSON object with:\n"+
		"1. \"insights\": insights about the table, one sentence long.\n"+
		"2. \"prompt_suggestions\": an array of exactly five prompt suggestions for data analysis visualization.\n\n"+
		"Data Preview:\n%s", filename, data)

	text, tokens, err := g.generate(ctx, "summarize", summarySystem, prompt)
	if err != nil {
		return nil, err
	}

	var s Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(s.Insights) == "" {
		s.Insights = NoInsights
	}
	if s.Suggestions == nil {
		s.Suggestions = []string{}
	}
	s.Credits = Credits(tokens)
	log.Info().Str("file", filename).Int("credits", s.Credits).Msg("insights: summary generated")
	return &s, nil
}

// GenerateGraphs validates prompt against the rows and asks for Plotly
// figures, or for alternative prompts when it is vague.
func (g *Gemini) GenerateGraphs(ctx context.Context, prompt string, rows []map[string]any) (*GraphResult, error) {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("insights: encode rows: %w", err)
	}

	text, tokens, err := g.generate(ctx, "graph", graphSystem, graphPrompt(prompt, string(data), columnNames(rows)))
	if err != nil {
		return nil, err
	}

	var res GraphResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if res.Status != StatusSuccess && res.Status != StatusError {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, res.Status)
	}
	res.Credits = Credits(tokens)
	log.Info().Str("status", res.Status).Int("graphs", len(res.Graphs)).Int("credits", res.Credits).
		Msg("insights: graph generation completed")
	return &res, nil
}

func (g *Gemini) generate(ctx context.Context, op, system, prompt string) (string, int, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	metrics.AnalyzerLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("op", op).Msg("insights: gemini request failed")
		return "", 0, fmt.Errorf("insights: %s: %w", op, err)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.PromptTokenCount)
	}
	return resp.Text(), tokens, nil
}

func columnNames(rows []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for c := range row {
			seen[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func graphPrompt(userPrompt, data string, cols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validate the user's prompt: '%s' for creating graphs or tables using Plotly. ", userPrompt)
	fmt.Fprintf(&b, "Use the following JSON data:\n\n%s\n\n", data)
	b.WriteString("Steps:\n")
	b.WriteString("1. Check that the prompt asks for a graph or table type Plotly supports.\n")
	fmt.Fprintf(&b, "2. Check that the prompt references valid columns: %s.\n\n", strings.Join(cols, ", "))
	b.WriteString("For a regression request draw the data points as a scatter plot with a fitted regression line, " +
		"and show R-squared, p-value and the regression equation in an annotation box with a semi-transparent background.\n")
	b.WriteString("For a hypothesis test return a Plotly table with the key statistics and a clearly labeled conclusion row, " +
		"with bold headers and alternating row colors.\n\n")
	b.WriteString("Reply with a JSON object. For a valid prompt: {\"status\": \"success\", \"graphs\": [{\"graph_json\": <Plotly figure>, " +
		"\"title\": <title of at least five words, not starting with 'The' or 'A'>, \"description\": <one sentence>}]}. " +
		"Include every graph or table the prompt asks for.\n")
	b.WriteString("For an invalid prompt: {\"status\": \"error\", \"suggestions\": [three alternative prompts]}.\n")
	b.WriteString("Validate the JSON before replying and prettify titles, labels, colors, annotations and fonts.\n")
	return b.String()
}
