package insights

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SourceLabel is stamped on every generated graph.
const SourceLabel = "Source: DatViz AI"

// DefaultColorway is the layout colorway when the caller supplies none.
var DefaultColorway = []string{"#636EFA", "#EF553B", "#00CC96", "#AB63FA", "#FFA15A"}

// ErrGraphShape is returned when a graph is not a JSON object.
var ErrGraphShape = errors.New("insights: graph is not a JSON object")

// Graph is a decorated graph ready for the client.
type Graph struct {
	Graph       map[string]any `json:"graph"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
}

// ParseGraphs decodes and decorates every raw graph. Any graph that is not
// an object, or a string holding one, fails the whole batch.
func ParseGraphs(raw []RawGraph, colors []string) ([]Graph, error) {
	out := make([]Graph, 0, len(raw))
	for i, rg := range raw {
		fig, err := asObject(rg.GraphJSON)
		if err != nil {
			return nil, fmt.Errorf("insights: graph %d: %w", i, err)
		}
		Decorate(fig, colors)

		g := Graph{Graph: fig, Title: rg.Title, Description: rg.Description}
		if g.Title == "" {
			g.Title = "Graph"
		}
		if g.Description == "" {
			g.Description = "No description available."
		}
		out = append(out, g)
	}
	return out, nil
}

func asObject(v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil || m == nil {
			return nil, ErrGraphShape
		}
		return m, nil
	}
	return nil, ErrGraphShape
}

// Decorate applies display post-processing in place. Tables get a source
// footer row; other figures get a source annotation, a horizontal legend,
// responsive sizing and a colorway (colors, or DefaultColorway when empty).
func Decorate(fig map[string]any, colors []string) {
	if cells, ok := tableCells(fig); ok {
		values, _ := cells["values"].([]any)
		cells["values"] = append(values, []any{SourceLabel})
		cells["align"] = "center"
		fill := object(cells, "fill")
		fill["color"] = "#f0f0f0"
		return
	}

	layout := object(fig, "layout")
	annotations, _ := layout["annotations"].([]any)
	layout["annotations"] = append(annotations, map[string]any{
		"text":      SourceLabel,
		"xref":      "paper",
		"yref":      "paper",
		"x":         1,
		"y":         1,
		"xanchor":   "right",
		"yanchor":   "top",
		"showarrow": false,
		"font":      map[string]any{"size": 12, "color": "blue"},
	})
	layout["autosize"] = true
	layout["responsive"] = true
	object(layout, "modebar")
	layout["legend"] = map[string]any{
		"title":       map[string]any{"text": "Legend"},
		"orientation": "h",
		"x":           0,
		"y":           -0.2,
		"bgcolor":     "rgba(255,255,255,0.5)",
	}
	if len(colors) > 0 {
		layout["colorway"] = colors
	} else {
		layout["colorway"] = DefaultColorway
	}
	layout["showlegend"] = true
}

// tableCells finds the cells of a table figure, given either as a bare
// table trace or as a figure whose first trace is a table.
func tableCells(fig map[string]any) (map[string]any, bool) {
	trace := fig
	if fig["type"] != "table" {
		data, _ := fig["data"].([]any)
		if len(data) == 0 {
			return nil, false
		}
		first, ok := data[0].(map[string]any)
		if !ok || first["type"] != "table" {
			return nil, false
		}
		trace = first
	}
	return object(trace, "cells"), true
}

// object returns m[key] as an object, creating it when absent or not one.
func object(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	v := map[string]any{}
	m[key] = v
	return v
}
