package depgraph

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures DOT output for a closure graph.
type DOTOptions struct {
	// Annotate, if set, returns an extra label line per package
	// (e.g. "1.2.3 -> 1.2.4" for planned bumps).
	Annotate func(id string) string

	// Highlight, if set, reports whether the package should be drawn
	// filled (e.g. steps that are new releases).
	Highlight func(id string) bool
}

// ToDOT converts a closure graph to Graphviz DOT format. Edges point
// from dependents to their dependencies, top to bottom, so the render
// reads in publish order from the bottom up.
func ToDOT(g *Graph, opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph publish {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded\", fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, id := range g.IDs() {
		label := id
		if opts.Annotate != nil {
			if extra := opts.Annotate(id); extra != "" {
				label = id + "\n" + extra
			}
		}
		attrs := []string{fmt.Sprintf("label=%q", label)}
		if opts.Highlight != nil && opts.Highlight(id) {
			attrs = append(attrs, "style=\"rounded,filled\"", "fillcolor=lightgoldenrod1")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, id := range g.IDs() {
		for _, dep := range g.Dependencies(id) {
			fmt.Fprintf(&buf, "  %q -> %q;\n", id, dep)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
