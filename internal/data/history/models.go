package history

import "time"

const SchemaVersion = 1

// Snapshot records one resolution of a group.
type Snapshot struct {
	RunID           string    `json:"run_id"`
	Group           string    `json:"group"`
	SchemaVersion   int       `json:"schema_version"`
	Timestamp       time.Time `json:"timestamp"`
	ModuleCount     int       `json:"module_count"`
	VisitedCount    int       `json:"visited_count"`
	UnresolvedCount int       `json:"unresolved_count"`
	DiagnosticCount int       `json:"diagnostic_count"`
	Packages        []string  `json:"packages"`
	Requirements    []string  `json:"requirements"`
}

// Drift is the difference between two consecutive snapshots of a group.
type Drift struct {
	Group               string    `json:"group"`
	FromRun             string    `json:"from_run"`
	ToRun               string    `json:"to_run"`
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	AddedPackages       []string  `json:"added_packages"`
	RemovedPackages     []string  `json:"removed_packages"`
	AddedRequirements   []string  `json:"added_requirements"`
	RemovedRequirements []string  `json:"removed_requirements"`
	DeltaVisited        int       `json:"delta_visited"`
}

func (d Drift) Changed() bool {
	return len(d.AddedPackages) > 0 || len(d.RemovedPackages) > 0 ||
		len(d.AddedRequirements) > 0 || len(d.RemovedRequirements) > 0
}
