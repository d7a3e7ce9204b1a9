package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pydeps/internal/core/ports"
	"pydeps/internal/data/history"
	"pydeps/internal/engine/namespace"
	"pydeps/internal/ui/report"
	"pydeps/internal/ui/report/formats"
)

func startRuntime(cmd *cobra.Command, opts *rootOptions, uiMode bool) (*runtime, error) {
	return newRuntime(cmd.Context(), opts, uiMode, cmd.ErrOrStderr())
}

func reportGroups(results []ports.GroupResult) []report.Group {
	out := make([]report.Group, 0, len(results))
	for _, r := range results {
		out = append(out, report.NewGroup(r.Name, r.Roots, r.All, r.Requirements))
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newResolveCommand(opts *rootOptions) *cobra.Command {
	var inject, marker string
	cmd := &cobra.Command{
		Use:   "resolve [group...]",
		Short: "Print the requirements of resolver groups",
		Long:  "Scan the configured namespaces and print the requirements of the named resolver groups, or of every group when none is named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateFormat(formatText, formatJSON, formatTSV, formatMarkdown); err != nil {
				return err
			}
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			var results []ports.GroupResult
			if len(args) == 0 {
				if results, err = rt.svc.ResolveAll(ctx); err != nil {
					return err
				}
			} else {
				for _, name := range args {
					res, err := rt.svc.ResolveGroup(ctx, name)
					if err != nil {
						return err
					}
					results = append(results, res)
				}
			}
			if inject == "" {
				return renderResolved(cmd.OutOrStdout(), opts.format, rt.app.Config.Root, results)
			}
			format := opts.format
			if format == formatText {
				format = formatMarkdown
			}
			var buf bytes.Buffer
			if err := renderResolved(&buf, format, rt.app.Config.Root, results); err != nil {
				return err
			}
			if err := report.InjectBlock(inject, marker, buf.String()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%s)\n", inject, marker)
			return nil
		},
	}
	cmd.Flags().StringVar(&inject, "inject", "", "rewrite the marked block of this file instead of printing")
	cmd.Flags().StringVar(&marker, "marker", "requirements", "marker name of the block rewritten by --inject")
	return cmd
}

func renderResolved(w io.Writer, format, root string, results []ports.GroupResult) error {
	groups := reportGroups(results)
	switch format {
	case formatJSON:
		data, err := formats.RenderJSON(groups)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatTSV:
		out, err := report.NewTSVGenerator().Generate(groups)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	case formatMarkdown:
		out, err := report.NewMarkdownGenerator().Generate(groups, formats.MarkdownReportOptions{
			ProjectName:     filepath.Base(root),
			Version:         Version,
			TableOfContents: len(groups) > 1,
		})
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	}

	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d modules from %s)", g.Name, g.Visited, strings.Join(g.Roots, ", "))))
		body := formats.RenderRequirementsTxt(g.Requirements, formats.RequirementsOptions{
			Resolver: g.Name,
			Sources:  true,
			Compact:  true,
		})
		if body == "" {
			fmt.Fprintln(w, mutedStyle.Render("no requirements"))
		} else {
			io.WriteString(w, body)
		}
		for _, u := range g.Unresolved {
			fmt.Fprintln(w, warnStyle.Render("unresolved "+u))
		}
	}
	return nil
}

func newWriteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write",
		Short: "Write requirements files and pyproject arrays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validateFormat(formatText, formatJSON); err != nil {
				return err
			}
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			written, err := rt.svc.WriteOutputs(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.format == formatJSON {
				return writeJSON(w, written)
			}
			printWritten(w, written)
			return nil
		},
	}
}

func printWritten(w io.Writer, written []ports.OutputResult) {
	for _, o := range written {
		if o.Written {
			fmt.Fprintf(w, "%s %s (%s)\n", okStyle.Render("wrote"), o.Path, o.Group)
		} else {
			fmt.Fprintf(w, "%s %s (%s)\n", mutedStyle.Render("unchanged"), o.Path, o.Group)
		}
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare written outputs with freshly resolved requirements",
		Long:  "Exit non-zero when any group's output file is missing a requirement or declares one it no longer needs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validateFormat(formatText, formatJSON); err != nil {
				return err
			}
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			checks, err := rt.svc.Check(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			clean := true
			for _, c := range checks {
				clean = clean && c.Diff.Clean()
			}
			if opts.format == formatJSON {
				if err := writeJSON(w, checks); err != nil {
					return err
				}
			} else {
				printChecks(w, checks)
			}
			if !clean {
				return errReported
			}
			return nil
		},
	}
}

func printChecks(w io.Writer, checks []ports.CheckResult) {
	for _, c := range checks {
		if c.Diff.Clean() {
			fmt.Fprintf(w, "%s %s (%s)\n", okStyle.Render("ok"), c.Path, c.Group)
			continue
		}
		fmt.Fprintf(w, "%s %s (%s)\n", errStyle.Render("stale"), c.Path, c.Group)
		for _, name := range c.Diff.Missing {
			fmt.Fprintf(w, "  + %s\n", name)
		}
		for _, name := range c.Diff.Unused {
			fmt.Fprintf(w, "  - %s\n", name)
		}
		for _, ch := range c.Diff.Changed {
			fmt.Fprintf(w, "  ~ %s -> %s\n", ch.Declared, ch.Generated)
		}
	}
}

type whyOutput struct {
	Group   string   `json:"group"`
	Package string   `json:"package"`
	Found   bool     `json:"found"`
	Chain   []string `json:"chain,omitempty"`
	Import  string   `json:"import,omitempty"`
	Line    int      `json:"line,omitempty"`
	Lazy    bool     `json:"lazy,omitempty"`
}

func newWhyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "why <group> <package>",
		Short: "Show the import chain that pulls a package into a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateFormat(formatText, formatJSON); err != nil {
				return err
			}
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.svc.Why(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			out := whyOutput{Group: res.Group, Package: res.Package, Found: res.Found}
			if res.Found {
				out.Chain = moduleNames(res.Chain.Modules)
				out.Import = res.Chain.Edge.Raw
				out.Line = res.Chain.Edge.Line
				out.Lazy = res.Chain.Edge.Lazy
			}
			if opts.format == formatJSON {
				if err := writeJSON(w, out); err != nil {
					return err
				}
			} else {
				printWhy(w, out)
			}
			if !res.Found {
				return errReported
			}
			return nil
		},
	}
}

func printWhy(w io.Writer, out whyOutput) {
	if !out.Found {
		fmt.Fprintf(w, "%s is not required by %s\n", out.Package, out.Group)
		return
	}
	fmt.Fprintln(w, strings.Join(out.Chain, " -> "))
	holder := out.Chain[len(out.Chain)-1]
	line := fmt.Sprintf("  %s:%d imports %s", holder, out.Line, out.Import)
	if out.Lazy {
		line += " " + mutedStyle.Render("(lazy)")
	}
	fmt.Fprintln(w, line)
}

func moduleNames(ids []namespace.ModuleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func newGraphCommand(opts *rootOptions) *cobra.Command {
	var externals bool
	cmd := &cobra.Command{
		Use:   "graph [group]",
		Short: "Print the module graph as a Mermaid diagram",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateFormat(formatText, formatMarkdown); err != nil {
				return err
			}
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			if _, err := rt.svc.Scan(ctx); err != nil {
				return err
			}
			g, err := rt.app.Graph()
			if err != nil {
				return err
			}
			gen := report.NewMermaidGenerator(g)
			gen.SetShowExternal(externals)
			if len(args) == 1 {
				res, err := rt.svc.ResolveGroup(ctx, args[0])
				if err != nil {
					return err
				}
				gen.SetScope(res.All)
			}
			diagram, err := gen.Generate()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.format == formatMarkdown {
				fmt.Fprintf(w, "```mermaid\n%s```\n", diagram)
				return nil
			}
			_, err = io.WriteString(w, diagram)
			return err
		},
	}
	cmd.Flags().BoolVar(&externals, "externals", false, "Include external packages as nodes")
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		since  string
		record bool
	)
	cmd := &cobra.Command{
		Use:   "history [group]",
		Short: "Record snapshots or show how requirements drifted over time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateFormat(formatText, formatJSON, formatTSV); err != nil {
				return err
			}
			from, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			var drift []history.Drift
			if record {
				res, err := rt.svc.RecordHistory(ctx)
				if err != nil {
					return err
				}
				if opts.format == formatText {
					fmt.Fprintf(w, "recorded %d snapshots\n", len(res.Snapshots))
				}
				drift = res.Drift
			} else {
				group := ""
				if len(args) == 1 {
					group = args[0]
				}
				if drift, err = rt.svc.History(ctx, group, from); err != nil {
					return err
				}
			}
			return renderDrift(w, opts.format, drift)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only show snapshots after this time (RFC 3339, YYYY-MM-DD or a duration like 168h)")
	cmd.Flags().BoolVar(&record, "record", false, "Record a snapshot of every group before reporting drift")
	return cmd
}

func renderDrift(w io.Writer, format string, drift []history.Drift) error {
	switch format {
	case formatJSON:
		data, err := report.RenderDriftJSON(drift)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatTSV:
		data, err := report.RenderDriftTSV(drift)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	for _, d := range drift {
		stamp := d.To.Local().Format(time.DateTime)
		if !d.Changed() {
			fmt.Fprintf(w, "%s %s %s\n", stamp, d.Group, mutedStyle.Render("no change"))
			continue
		}
		fmt.Fprintf(w, "%s %s visited %+d\n", stamp, d.Group, d.DeltaVisited)
		for _, name := range d.AddedRequirements {
			fmt.Fprintf(w, "  + %s\n", name)
		}
		for _, name := range d.RemovedRequirements {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	}
	return nil
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-resolve requirements whenever sources or config change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startRuntime(cmd, opts, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			return rt.svc.Watch(ctx, func(u ports.WatchUpdate) {
				printUpdate(w, u)
				if !write || u.Err != nil {
					return
				}
				written, err := rt.svc.WriteOutputs(ctx)
				if err != nil {
					fmt.Fprintln(w, errStyle.Render("write failed: "+err.Error()))
					return
				}
				printWritten(w, written)
			})
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "Write outputs after every rescan")
	return cmd
}

func printUpdate(w io.Writer, u ports.WatchUpdate) {
	stamp := time.Now().Format(time.TimeOnly)
	if u.Err != nil {
		fmt.Fprintf(w, "[%s] %s\n", stamp, errStyle.Render("rescan failed: "+u.Err.Error()))
		return
	}
	fmt.Fprintf(w, "[%s] %d modules, %d changed files\n", stamp, u.Scan.Modules, len(u.Changed))
	for _, g := range u.Groups {
		fmt.Fprintf(w, "  %s: %d requirements\n", g.Name, len(report.IncludedNames(g.Requirements)))
	}
}

func newUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive dependency monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startRuntime(cmd, opts, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runUI(cmd.Context(), rt)
		},
	}
}
