package app

import (
	"context"
	"time"

	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/data/history"
	"pydeps/internal/ui/report"
)

func (a *App) snapshotOf(res ports.GroupResult, modules, diagnostics int) history.Snapshot {
	return history.Snapshot{
		Group:           res.Name,
		ModuleCount:     modules,
		VisitedCount:    len(res.All.Visited()),
		UnresolvedCount: len(res.All.Unresolved()),
		DiagnosticCount: diagnostics,
		Packages:        report.SortedList(res.All),
		Requirements:    report.IncludedNames(res.Requirements),
	}
}

// RecordHistory saves a snapshot of every group and reports drift
// against each group's previous snapshot.
func (a *App) RecordHistory(ctx context.Context) (ports.HistoryResult, error) {
	store, err := a.historyStore()
	if err != nil {
		return ports.HistoryResult{}, err
	}
	g, err := a.Graph()
	if err != nil {
		return ports.HistoryResult{}, err
	}
	groups, err := a.ResolveAll(ctx)
	if err != nil {
		return ports.HistoryResult{}, err
	}

	var out ports.HistoryResult
	for _, res := range groups {
		prev, ok, err := store.Latest(res.Name)
		if err != nil {
			return out, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "load latest snapshot"), errors.CtxResolver, res.Name)
		}
		saved, err := store.SaveSnapshot(a.snapshotOf(res, g.NodeCount(), len(g.Diagnostics())))
		if err != nil {
			return out, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "save snapshot"), errors.CtxResolver, res.Name)
		}
		out.Snapshots = append(out.Snapshots, saved)
		if ok {
			d := history.Compare(prev, saved)
			if d.Changed() {
				a.logger.Info("requirements drifted", "group", res.Name,
					"added", d.AddedRequirements, "removed", d.RemovedRequirements)
			}
			out.Drift = append(out.Drift, d)
		}
	}
	return out, nil
}

// History returns the drift between consecutive snapshots since the given
// time. An empty group covers every recorded group.
func (a *App) History(ctx context.Context, group string, since time.Time) ([]history.Drift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	groups := []string{group}
	if group == "" {
		if groups, err = store.Groups(); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "list history groups")
		}
	}

	var out []history.Drift
	for _, name := range groups {
		snaps, err := store.LoadSnapshots(name, since)
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "load snapshots"), errors.CtxResolver, name)
		}
		out = append(out, history.BuildDrift(snaps)...)
	}
	return out, nil
}
