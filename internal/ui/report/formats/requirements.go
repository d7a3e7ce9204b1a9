package formats

import (
	"fmt"
	"strings"

	"pydeps/internal/engine/requirements"
)

const (
	autogenNotice      = "[AUTOGEN] by pydeps **DO NOT EDIT** [AUTOGEN]"
	autogenNoticeNamed = "[AUTOGEN] by pydeps resolver %s **DO NOT EDIT** [AUTOGEN]"
	sourceArrow        = "←"
)

type RequirementsOptions struct {
	Resolver    string
	Notice      bool
	Sources     bool
	Compact     bool // sources on the requirement line instead of one per line
	SourceRoots bool // print the top-level package of each source
	IndentSize  int
}

func DefaultRequirementsOptions() RequirementsOptions {
	return RequirementsOptions{Notice: true, Sources: true, IndentSize: 4}
}

// AutogenNotice marks files and arrays owned by the writer.
func AutogenNotice(resolver string) string {
	if resolver == "" {
		return autogenNotice
	}
	return fmt.Sprintf(autogenNoticeNamed, "'"+resolver+"'")
}

func (o RequirementsOptions) indent(level int) string {
	size := o.IndentSize
	if size <= 0 {
		size = 4
	}
	return strings.Repeat(" ", size*level)
}

// sourceNames lists the non-excluded sources, collapsed to roots when asked.
func sourceNames(req requirements.Requirement, roots bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, src := range req.Sources {
		if src.Mode == requirements.Exclude {
			continue
		}
		name := string(src.Module)
		if roots {
			name = src.Module.Top()
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// tags marks lazy-only (L), builtin (B) and try-guarded (G) requirements.
func tags(req requirements.Requirement) string {
	var t string
	if req.AllLazy {
		t += "L"
	}
	if req.Builtin {
		t += "B"
	}
	if req.AllGuarded {
		t += "G"
	}
	if t == "" {
		return ""
	}
	return "[" + t + "]"
}

// RenderRequirementsTxt renders a requirements.txt body. Excluded
// requirements are dropped and commented ones are written as comments.
func RenderRequirementsTxt(reqs []requirements.Requirement, opts RequirementsOptions) string {
	var lines []string
	if opts.Notice {
		lines = append(lines, "# "+AutogenNotice(opts.Resolver))
	}
	written := 0
	for _, req := range reqs {
		if req.Mode == requirements.Exclude {
			continue
		}
		written++
		line := req.Name
		if req.Mode == requirements.Comment {
			line = "# " + line
			if t := tags(req); t != "" {
				line += " " + t
			}
		}
		if !opts.Sources {
			lines = append(lines, line)
			continue
		}
		names := sourceNames(req, opts.SourceRoots)
		if opts.Compact {
			if len(names) > 0 {
				line += " # " + strings.Join(names, ", ")
			}
			lines = append(lines, line)
			continue
		}
		lines = append(lines, line)
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s# %s %s", opts.indent(1), sourceArrow, name))
		}
	}
	if written > 0 || opts.Notice {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
