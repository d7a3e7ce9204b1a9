package report

import (
	"pydeps/internal/engine/graph"
	"pydeps/internal/ui/report/formats"
)

type Group = formats.Group
type MermaidGenerator = formats.MermaidGenerator
type MarkdownGenerator = formats.MarkdownGenerator
type TSVGenerator = formats.TSVGenerator

func NewMermaidGenerator(g *graph.Graph) *MermaidGenerator {
	return formats.NewMermaidGenerator(g)
}

func NewMarkdownGenerator() *MarkdownGenerator {
	return formats.NewMarkdownGenerator()
}

func NewTSVGenerator() *TSVGenerator {
	return formats.NewTSVGenerator()
}
