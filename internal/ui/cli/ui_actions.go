package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	if m.filtering() {
		return m.updateActiveList(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelIssues {
			m.mode = panelGroups
		} else {
			m.mode = panelIssues
		}
		m.hasDetails = false
		m.sourceJumpStatus = ""
		return m, nil
	}

	if m.mode != panelGroups {
		return m.updateActiveList(msg)
	}

	switch msg.String() {
	case "enter":
		if len(m.groups) > 0 {
			m.hasDetails = true
			m.selectedReqIndex = 0
		}
		return m, nil
	case "esc":
		if m.hasDetails {
			m.hasDetails = false
			return m, nil
		}
	}

	if !m.hasDetails {
		return m.updateActiveList(msg)
	}

	reqs := m.selectedGroup().requirements
	switch msg.String() {
	case "j", "down":
		m.selectedReqIndex = clampIndex(m.selectedReqIndex+1, len(reqs))
		return m, nil
	case "k", "up":
		m.selectedReqIndex = clampIndex(m.selectedReqIndex-1, len(reqs))
		return m, nil
	case "o":
		if len(reqs) == 0 || len(reqs[m.selectedReqIndex].sources) == 0 {
			m.sourceJumpStatus = mutedStyle.Render("No source for the highlighted requirement.")
			return m, nil
		}
		src := reqs[m.selectedReqIndex].sources[0]
		return m, jumpToSourceCmd(src.file, src.line)
	}
	return m, nil
}

func (m model) filtering() bool {
	if m.mode == panelIssues {
		return m.issueList.FilterState() == list.Filtering
	}
	return m.groupList.FilterState() == list.Filtering
}

func (m model) updateActiveList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.mode == panelIssues {
		m.issueList, cmd = m.issueList.Update(msg)
	} else {
		m.groupList, cmd = m.groupList.Update(msg)
	}
	return m, cmd
}

// editorArgs builds the argument list that opens file at line for the
// common editors, falling back to the bare file.
func editorArgs(editor, file string, line int) []string {
	if line <= 0 {
		return []string{file}
	}
	switch filepath.Base(editor) {
	case "vi", "vim", "nvim", "nano", "emacs", "micro", "hx", "kak":
		return []string{fmt.Sprintf("+%d", line), file}
	case "code", "codium":
		return []string{"-g", fmt.Sprintf("%s:%d", file, line)}
	case "subl", "zed":
		return []string{fmt.Sprintf("%s:%d", file, line)}
	}
	return []string{file}
}

func jumpToSourceCmd(file string, line int) tea.Cmd {
	target := fmt.Sprintf("%s:%d", file, line)
	if file == "" {
		return func() tea.Msg {
			return sourceJumpResultMsg{target: target, err: stderrors.New("module has no file on disk")}
		}
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return func() tea.Msg {
			return sourceJumpResultMsg{target: target, err: stderrors.New("$EDITOR is not set")}
		}
	}
	c := exec.Command(editor, editorArgs(editor, file, line)...)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return sourceJumpResultMsg{target: target, err: err}
	})
}
