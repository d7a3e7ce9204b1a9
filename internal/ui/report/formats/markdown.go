package formats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pydeps/internal/engine/requirements"
)

type MarkdownReportOptions struct {
	ProjectName     string
	Version         string
	GeneratedAt     time.Time
	TableOfContents bool
	IncludeMermaid  bool
	MermaidDiagram  string
}

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (m *MarkdownGenerator) Generate(groups []Group, opts MarkdownReportOptions) (string, error) {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now().UTC()
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: Python Dependency Report\n")
	b.WriteString("project: " + nonEmpty(opts.ProjectName, "unknown") + "\n")
	b.WriteString("generated_at: " + opts.GeneratedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("version: " + nonEmpty(opts.Version, "unknown") + "\n")
	b.WriteString("---\n\n")

	b.WriteString("# Dependency Report\n\n")
	if opts.TableOfContents {
		b.WriteString("## Table of Contents\n")
		b.WriteString("- [Summary](#summary)\n")
		for _, g := range groups {
			b.WriteString(fmt.Sprintf("- [%s](#%s)\n", g.Name, anchor(g.Name)))
		}
		if opts.IncludeMermaid && strings.TrimSpace(opts.MermaidDiagram) != "" {
			b.WriteString("- [Module Graph](#module-graph)\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Summary\n")
	b.WriteString("| Group | Roots | Modules Visited | Packages | Unresolved |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, g := range groups {
		b.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n", g.Name, len(g.Roots), g.Visited, len(g.Packages), len(g.Unresolved)))
	}
	b.WriteString("\n")

	for _, g := range groups {
		m.writeGroup(&b, g)
	}

	if opts.IncludeMermaid && strings.TrimSpace(opts.MermaidDiagram) != "" {
		b.WriteString("## Module Graph\n")
		b.WriteString("```mermaid\n")
		b.WriteString(strings.TrimSpace(opts.MermaidDiagram))
		b.WriteString("\n```\n")
	}
	return b.String(), nil
}

func (m *MarkdownGenerator) writeGroup(b *strings.Builder, g Group) {
	b.WriteString("## " + g.Name + "\n")
	roots := append([]string(nil), g.Roots...)
	sort.Strings(roots)
	b.WriteString("Roots: `" + strings.Join(roots, "`, `") + "`\n\n")

	if len(g.Requirements) == 0 {
		if len(g.Packages) == 0 {
			b.WriteString("No external imports.\n\n")
		} else {
			b.WriteString("| Package |\n| --- |\n")
			for _, pkg := range g.Packages {
				b.WriteString("| `" + pkg + "` |\n")
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("| Requirement | Packages | Mode | Sources |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, req := range g.Requirements {
			pkgs := make([]string, 0, len(req.Packages))
			for _, p := range req.Packages {
				pkgs = append(pkgs, string(p))
			}
			b.WriteString(fmt.Sprintf("| `%s` | %s | %s | %s |\n",
				req.Name, strings.Join(pkgs, ", "), modeLabel(req), strings.Join(sourceNames(req, false), ", ")))
		}
		b.WriteString("\n")
	}

	if len(g.Unresolved) > 0 {
		b.WriteString("<details><summary>Unresolved imports</summary>\n\n")
		for _, u := range g.Unresolved {
			b.WriteString("- `" + u + "`\n")
		}
		b.WriteString("\n</details>\n\n")
	}
}

func modeLabel(req requirements.Requirement) string {
	label := req.Mode.String()
	if t := tags(req); t != "" {
		label += " " + t
	}
	return label
}

func anchor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
