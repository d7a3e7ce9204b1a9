package app

import (
	"context"
	"time"

	"pydeps/internal/core/errors"
	"pydeps/internal/core/ports"
	"pydeps/internal/data/history"
	"pydeps/internal/shared/observability"
)

type analysisService struct {
	app *App
}

var _ ports.AnalysisService = (*analysisService)(nil)

func NewAnalysisService(app *App) ports.AnalysisService {
	return &analysisService{app: app}
}

func (a *App) AnalysisService() ports.AnalysisService {
	return NewAnalysisService(a)
}

func (s *analysisService) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.app == nil || s.app.Config == nil {
		return errors.New(errors.CodeInternal, "analysis service has no app")
	}
	return nil
}

// ensureGraph scans when no graph exists yet.
func (s *analysisService) ensureGraph(ctx context.Context) error {
	if _, err := s.app.Graph(); err == nil {
		return nil
	}
	_, err := s.app.Scan(ctx)
	return err
}

func (s *analysisService) Scan(ctx context.Context) (ports.ScanResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Scan")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return ports.ScanResult{}, err
	}
	res, err := s.app.Scan(ctx)
	if err != nil {
		return res, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	return res, nil
}

func (s *analysisService) ResolveGroup(ctx context.Context, name string) (ports.GroupResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.ResolveGroup")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return ports.GroupResult{}, err
	}
	if err := s.ensureGraph(ctx); err != nil {
		return ports.GroupResult{}, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	res, err := s.app.ResolveGroup(ctx, name)
	if err != nil {
		return res, errors.AddContext(err, errors.CtxOperation, "resolve_group")
	}
	return res, nil
}

func (s *analysisService) ResolveAll(ctx context.Context) ([]ports.GroupResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.ResolveAll")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureGraph(ctx); err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	res, err := s.app.ResolveAll(ctx)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "resolve_all")
	}
	return res, nil
}

func (s *analysisService) WriteOutputs(ctx context.Context) ([]ports.OutputResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.WriteOutputs")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureGraph(ctx); err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	res, err := s.app.WriteOutputs(ctx)
	if err != nil {
		return res, errors.AddContext(err, errors.CtxOperation, "write_outputs")
	}
	return res, nil
}

func (s *analysisService) Check(ctx context.Context) ([]ports.CheckResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Check")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureGraph(ctx); err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	res, err := s.app.Check(ctx)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "check")
	}
	return res, nil
}

func (s *analysisService) Why(ctx context.Context, group, pkg string) (ports.WhyResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.Why")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return ports.WhyResult{}, err
	}
	if err := s.ensureGraph(ctx); err != nil {
		return ports.WhyResult{}, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	res, err := s.app.Why(ctx, group, pkg)
	if err != nil {
		err = errors.AddContext(err, errors.CtxOperation, "why")
		return res, errors.AddContext(err, errors.CtxImport, pkg)
	}
	return res, nil
}

func (s *analysisService) RecordHistory(ctx context.Context) (ports.HistoryResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "analysisService.RecordHistory")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return ports.HistoryResult{}, err
	}
	if err := s.ensureGraph(ctx); err != nil {
		return ports.HistoryResult{}, errors.AddContext(err, errors.CtxOperation, "scan")
	}
	res, err := s.app.RecordHistory(ctx)
	if err != nil {
		return res, errors.AddContext(err, errors.CtxOperation, "record_history")
	}
	return res, nil
}

func (s *analysisService) History(ctx context.Context, group string, since time.Time) ([]history.Drift, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	res, err := s.app.History(ctx, group, since)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxOperation, "history")
	}
	return res, nil
}

func (s *analysisService) Watch(ctx context.Context, onUpdate func(ports.WatchUpdate)) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := s.app.Watch(ctx, onUpdate); err != nil {
		return errors.AddContext(err, errors.CtxOperation, "watch")
	}
	return nil
}
