package insights

import (
	"errors"
	"testing"
)

func TestDecorateFigure(t *testing.T) {
	fig := map[string]any{
		"data": []any{map[string]any{"type": "bar"}},
		"layout": map[string]any{
			"title":       "Revenue",
			"annotations": []any{map[string]any{"text": "peak"}},
		},
	}
	Decorate(fig, nil)

	layout := fig["layout"].(map[string]any)
	anns := layout["annotations"].([]any)
	if len(anns) != 2 {
		t.Fatalf("annotations = %d, want 2", len(anns))
	}
	src := anns[1].(map[string]any)
	if src["text"] != SourceLabel || src["xanchor"] != "right" || src["showarrow"] != false {
		t.Errorf("source annotation = %v", src)
	}
	legend, ok := layout["legend"].(map[string]any)
	if !ok || legend["orientation"] != "h" {
		t.Errorf("legend = %v", layout["legend"])
	}
	if layout["autosize"] != true || layout["responsive"] != true || layout["showlegend"] != true {
		t.Errorf("layout flags = %v", layout)
	}
	if _, ok := layout["modebar"].(map[string]any); !ok {
		t.Errorf("modebar = %v, want object", layout["modebar"])
	}
	cw := layout["colorway"].([]string)
	if len(cw) != len(DefaultColorway) || cw[0] != "#636EFA" {
		t.Errorf("colorway = %v", cw)
	}
}

func TestDecorateCustomColorsAndMissingLayout(t *testing.T) {
	fig := map[string]any{"data": []any{}}
	Decorate(fig, []string{"#000000"})

	layout := fig["layout"].(map[string]any)
	if cw := layout["colorway"].([]string); len(cw) != 1 || cw[0] != "#000000" {
		t.Errorf("colorway = %v", cw)
	}
	if anns := layout["annotations"].([]any); len(anns) != 1 {
		t.Errorf("annotations = %d, want 1", len(anns))
	}
}

func TestDecorateTable(t *testing.T) {
	tests := []struct {
		name  string
		fig   map[string]any
		cells func(map[string]any) map[string]any
	}{
		{
			name: "bare trace",
			fig: map[string]any{
				"type":  "table",
				"cells": map[string]any{"values": []any{[]any{"a", "b"}}, "fill": map[string]any{"color": "white"}},
			},
			cells: func(f map[string]any) map[string]any { return f["cells"].(map[string]any) },
		},
		{
			name: "figure",
			fig: map[string]any{
				"data": []any{map[string]any{
					"type":  "table",
					"cells": map[string]any{"values": []any{[]any{"a", "b"}}},
				}},
			},
			cells: func(f map[string]any) map[string]any {
				return f["data"].([]any)[0].(map[string]any)["cells"].(map[string]any)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Decorate(tt.fig, nil)
			cells := tt.cells(tt.fig)
			values := cells["values"].([]any)
			if len(values) != 2 {
				t.Fatalf("values = %d columns, want 2", len(values))
			}
			if footer := values[1].([]any); footer[0] != SourceLabel {
				t.Errorf("footer = %v", footer)
			}
			if cells["align"] != "center" || cells["fill"].(map[string]any)["color"] != "#f0f0f0" {
				t.Errorf("cells = %v", cells)
			}
			if _, ok := tt.fig["layout"]; ok {
				t.Error("table figure got a layout")
			}
		})
	}
}

func TestParseGraphs(t *testing.T) {
	raw := []RawGraph{
		{GraphJSON: `{"data":[{"type":"scatter"}],"layout":{}}`, Title: "Sales over time by region"},
		{GraphJSON: map[string]any{"data": []any{}, "layout": map[string]any{}}, Description: "Counts."},
	}
	graphs, err := ParseGraphs(raw, nil)
	if err != nil {
		t.Fatalf("ParseGraphs: %v", err)
	}
	if len(graphs) != 2 {
		t.Fatalf("graphs = %d", len(graphs))
	}
	if graphs[0].Title != "Sales over time by region" || graphs[0].Description != "No description available." {
		t.Errorf("graph 0 = %+v", graphs[0])
	}
	if graphs[1].Title != "Graph" || graphs[1].Description != "Counts." {
		t.Errorf("graph 1 = %+v", graphs[1])
	}
	if _, ok := graphs[0].Graph["layout"].(map[string]any)["legend"]; !ok {
		t.Error("string graph was not decorated")
	}
}

func TestParseGraphsRejectsNonObjects(t *testing.T) {
	for _, v := range []any{`[1,2]`, `not json`, 42.0, nil} {
		if _, err := ParseGraphs([]RawGraph{{GraphJSON: v}}, nil); !errors.Is(err, ErrGraphShape) {
			t.Errorf("ParseGraphs(%v) err = %v, want ErrGraphShape", v, err)
		}
	}
}
