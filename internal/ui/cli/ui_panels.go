package cli

import (
	"fmt"
	"strings"
)

func renderHelp(m model) string {
	keys := "Keys: tab panel | / filter | enter details | esc back | j/k requirement cursor | o open source | q quit"
	if m.mode == panelIssues {
		keys = "Keys: tab panel | / filter | q quit"
	}
	return mutedStyle.Render(keys)
}

func renderGroupPanel(m model) string {
	details := renderGroupSummary(m)
	if m.hasDetails {
		details = renderGroupDetails(m)
	}
	return m.groupList.View() + "\n\n" + details
}

func renderGroupSummary(m model) string {
	if len(m.groups) == 0 {
		return mutedStyle.Render("No resolver groups configured.")
	}
	g := m.selectedGroup()
	counts := map[string]int{}
	for _, r := range g.requirements {
		counts[r.mode.String()]++
	}
	return strings.Join([]string{
		"Selected Group",
		fmt.Sprintf("  Name: %s", g.name),
		fmt.Sprintf("  Roots: %s", strings.Join(g.roots, ", ")),
		fmt.Sprintf("  Visited modules: %d", g.visited),
		fmt.Sprintf("  Requirements: %d written, %d commented, %d excluded",
			counts["include"], counts["comment"], counts["exclude"]),
		"  Press enter for requirement drill-down.",
	}, "\n")
}

func renderGroupDetails(m model) string {
	g := m.selectedGroup()
	lines := []string{
		fmt.Sprintf("Group Detail: %s", g.name),
		fmt.Sprintf("  Requirements (%d):", len(g.requirements)),
	}
	for i, r := range g.requirements {
		prefix := "   "
		if i == m.selectedReqIndex {
			prefix = " ->"
		}
		line := fmt.Sprintf("%s %s [%s]", prefix, r.name, r.mode)
		if r.lazy {
			line += " lazy"
		}
		if len(r.sources) > 0 {
			src := r.sources[0]
			line += fmt.Sprintf(" (from %s:%d", src.module, src.line)
			if extra := len(r.sources) - 1; extra > 0 {
				line += fmt.Sprintf(" +%d more", extra)
			}
			line += ")"
		}
		lines = append(lines, line)
	}
	if len(g.requirements) == 0 {
		lines = append(lines, "   none")
	}
	lines = append(lines, "  Press esc to exit details, o to jump to the highlighted import.")
	return strings.Join(lines, "\n")
}
