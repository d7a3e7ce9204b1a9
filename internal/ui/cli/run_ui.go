package cli

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"

	"pydeps/internal/core/ports"
)

// runUI drives the monitor from watch-mode updates until the user quits or
// ctx is cancelled.
func runUI(ctx context.Context, rt *runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialModel(), tea.WithAltScreen(), tea.WithContext(ctx))

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- rt.svc.Watch(ctx, func(u ports.WatchUpdate) {
			g, _ := rt.app.Graph()
			p.Send(buildUpdate(g, u))
		})
		p.Quit()
	}()

	_, err := p.Run()
	cancel()
	if werr := <-watchErr; werr != nil && !stderrors.Is(werr, context.Canceled) {
		return werr
	}
	if stderrors.Is(err, tea.ErrProgramKilled) {
		// only the context kills the program
		return nil
	}
	return err
}
