package ports

import (
	"context"
	"time"

	"pydeps/internal/data/history"
	"pydeps/internal/engine/graph"
	"pydeps/internal/engine/parser"
	"pydeps/internal/engine/requirements"
	"pydeps/internal/ui/report"
)

// CodeParser abstracts Python source parsing.
type CodeParser interface {
	ParseFile(path string, content []byte) (*parser.File, error)
	IsSupportedPath(filePath string) bool
	// Hash is the cache key of content under the parser's options.
	Hash(content []byte) string
}

// ParseCache stores parsed files keyed by path and content hash.
type ParseCache interface {
	Lookup(path, hash string) (*parser.File, bool, error)
	Submit(file *parser.File)
	PruneToPaths(paths []string) error
	Flush() error
}

// HistoryStore abstracts snapshot persistence for drift reports.
type HistoryStore interface {
	SaveSnapshot(snapshot history.Snapshot) (history.Snapshot, error)
	LoadSnapshots(group string, since time.Time) ([]history.Snapshot, error)
	Latest(group string) (history.Snapshot, bool, error)
	Groups() ([]string, error)
	Close() error
}

// ScanResult summarizes one full scan of the configured namespaces.
type ScanResult struct {
	Files       int
	CacheHits   int
	Modules     int
	Edges       int
	Diagnostics int
	Duration    time.Duration
}

// GroupResult is the resolution of one configured resolver.
type GroupResult struct {
	Name         string
	Roots        []string
	All          *graph.Result
	Explicit     *graph.Result
	Requirements []requirements.Requirement
}

// OutputResult describes one written (or skipped) output file.
type OutputResult struct {
	Group   string
	Path    string
	Mode    string
	Written bool
}

// CheckResult compares a resolver's declared requirements with the
// generated ones.
type CheckResult struct {
	Group string
	Path  string
	Diff  report.DiffResult
}

// HistoryResult holds the snapshots saved by one run and the drift against
// each group's previous snapshot.
type HistoryResult struct {
	Snapshots []history.Snapshot
	Drift     []history.Drift
}

// WhyResult explains why a group needs an external package.
type WhyResult struct {
	Group   string
	Package string
	Chain   graph.Chain
	Found   bool
}

// WatchUpdate is emitted after every rescan in watch mode.
type WatchUpdate struct {
	Scan    ScanResult
	Groups  []GroupResult
	Changed []string
	Err     error
}

// AnalysisService is the surface driving adapters (CLI, UI) use.
type AnalysisService interface {
	Scan(ctx context.Context) (ScanResult, error)
	ResolveGroup(ctx context.Context, name string) (GroupResult, error)
	ResolveAll(ctx context.Context) ([]GroupResult, error)
	WriteOutputs(ctx context.Context) ([]OutputResult, error)
	Check(ctx context.Context) ([]CheckResult, error)
	Why(ctx context.Context, group, pkg string) (WhyResult, error)
	RecordHistory(ctx context.Context) (HistoryResult, error)
	History(ctx context.Context, group string, since time.Time) ([]history.Drift, error)
	Watch(ctx context.Context, onUpdate func(WatchUpdate)) error
}
