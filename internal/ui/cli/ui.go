package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pydeps/internal/core/ports"
	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/requirements"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type panelMode int

const (
	panelIssues panelMode = iota
	panelGroups
)

type sourceView struct {
	module string
	file   string
	line   int
}

type requirementView struct {
	name    string
	mode    requirements.WriteMode
	lazy    bool
	sources []sourceView
}

type groupView struct {
	name         string
	roots        []string
	visited      int
	requirements []requirementView
}

type issueView struct {
	kind   string
	detail string
}

type updateMsg struct {
	issues      []issueView
	groups      []groupView
	cycles      int
	diagnostics int
	moduleCount int
	fileCount   int
	err         string
}

type sourceJumpResultMsg struct {
	target string
	err    error
}

type model struct {
	issueList list.Model
	groupList list.Model
	mode      panelMode

	issues      []issueView
	groups      []groupView
	cycles      int
	diagnostics int
	moduleCount int
	fileCount   int
	lastUpdate  time.Time
	lastErr     string

	hasDetails       bool
	selectedReqIndex int
	sourceJumpStatus string
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		height := max(msg.Height-v-10, 5)
		m.issueList.SetSize(width, height)
		m.groupList.SetSize(width, height)
	case updateMsg:
		m.lastUpdate = time.Now()
		m.lastErr = msg.err
		if msg.err != "" {
			// keep the last good state on screen
			break
		}
		m.issues = msg.issues
		m.groups = msg.groups
		m.cycles = msg.cycles
		m.diagnostics = msg.diagnostics
		m.moduleCount = msg.moduleCount
		m.fileCount = msg.fileCount

		issueItems := make([]list.Item, 0, len(m.issues))
		for _, is := range m.issues {
			issueItems = append(issueItems, item{title: is.kind, desc: is.detail})
		}
		m.issueList.SetItems(issueItems)

		groupItems := make([]list.Item, 0, len(m.groups))
		for _, g := range m.groups {
			groupItems = append(groupItems, item{
				title: g.name,
				desc: fmt.Sprintf("roots=%s visited=%d requirements=%d",
					strings.Join(g.roots, ","), g.visited, len(g.requirements)),
			})
		}
		m.groupList.SetItems(groupItems)
		if m.hasDetails {
			m.selectedReqIndex = clampIndex(m.selectedReqIndex, len(m.selectedGroup().requirements))
		}
	case sourceJumpResultMsg:
		if msg.err != nil {
			m.sourceJumpStatus = mutedStyle.Render(fmt.Sprintf("Source jump failed: %v", msg.err))
		} else {
			m.sourceJumpStatus = mutedStyle.Render("Opened source: " + msg.target)
		}
	}

	var cmd tea.Cmd
	if m.mode == panelIssues {
		m.issueList, cmd = m.issueList.Update(msg)
	} else {
		m.groupList, cmd = m.groupList.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	status := mutedStyle.Render(fmt.Sprintf("Last update: %v | %d files | %d modules",
		m.lastUpdate.Format("15:04:05"), m.fileCount, m.moduleCount))

	var summary string
	if m.cycles == 0 && m.diagnostics == 0 {
		summary = okStyle.Render("No issues")
	} else {
		summary = fmt.Sprintf("%s | %s",
			errStyle.Render(fmt.Sprintf("%d cycles", m.cycles)),
			warnStyle.Render(fmt.Sprintf("%d diagnostics", m.diagnostics)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Python Dependency Monitor"), status, summary)
	if m.lastErr != "" {
		header += errStyle.Render("Rescan failed: "+m.lastErr) + "\n"
	}

	body := m.issueList.View()
	if m.mode == panelGroups {
		body = renderGroupPanel(m)
	}
	if m.sourceJumpStatus != "" {
		body += "\n\n" + m.sourceJumpStatus
	}
	return docStyle.Render(header + "\n" + renderHelp(m) + "\n\n" + body)
}

func (m model) selectedGroup() groupView {
	if len(m.groups) == 0 {
		return groupView{}
	}
	return m.groups[clampIndex(m.groupList.Index(), len(m.groups))]
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	return min(i, n-1)
}

func initialModel() model {
	issueList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	issueList.Title = "Issues"
	issueList.SetShowStatusBar(false)
	issueList.SetFilteringEnabled(true)

	groupList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	groupList.Title = "Resolver Groups"
	groupList.SetShowStatusBar(false)
	groupList.SetFilteringEnabled(true)

	return model{
		issueList:  issueList,
		groupList:  groupList,
		mode:       panelIssues,
		lastUpdate: time.Now(),
	}
}

// buildUpdate flattens a watch update and the graph it was resolved
// against into what the panels display.
func buildUpdate(g *graph.Graph, u ports.WatchUpdate) updateMsg {
	if u.Err != nil {
		return updateMsg{err: u.Err.Error()}
	}
	msg := updateMsg{
		moduleCount: u.Scan.Modules,
		fileCount:   u.Scan.Files,
	}
	if g == nil {
		return msg
	}

	for _, cycle := range g.Cycles() {
		if len(cycle) == 0 {
			continue
		}
		names := moduleNames(cycle)
		msg.issues = append(msg.issues, issueView{
			kind:   "Import Cycle",
			detail: strings.Join(append(names, names[0]), " -> "),
		})
	}
	msg.cycles = len(msg.issues)
	for _, d := range g.Diagnostics() {
		msg.issues = append(msg.issues, issueView{kind: string(d.Code), detail: d.String()})
	}
	msg.diagnostics = len(g.Diagnostics())

	for _, res := range u.Groups {
		gv := groupView{name: res.Name, roots: res.Roots}
		if res.All != nil {
			gv.visited = len(res.All.Visited())
		}
		for _, req := range res.Requirements {
			gv.requirements = append(gv.requirements, requirementView{
				name:    req.Name,
				mode:    req.Mode,
				lazy:    req.AllLazy,
				sources: requirementSources(g, req),
			})
		}
		msg.groups = append(msg.groups, gv)
	}
	return msg
}

func requirementSources(g *graph.Graph, req requirements.Requirement) []sourceView {
	pkgs := make(map[imports.PackageKey]bool, len(req.Packages))
	for _, p := range req.Packages {
		pkgs[p] = true
	}
	out := make([]sourceView, 0, len(req.Sources))
	for _, src := range req.Sources {
		sv := sourceView{module: string(src.Module)}
		if node, err := g.Node(src.Module); err == nil {
			sv.file = node.Module.Path
			for _, e := range node.Edges {
				if e.Kind == imports.EdgeExternal && pkgs[e.Package] {
					sv.line = e.Line
					break
				}
			}
		}
		out = append(out, sv)
	}
	return out
}
