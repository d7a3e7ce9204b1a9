package history

// Compare reports what changed from prev to next.
func Compare(prev, next Snapshot) Drift {
	addedPkgs, removedPkgs := setDiff(prev.Packages, next.Packages)
	addedReqs, removedReqs := setDiff(prev.Requirements, next.Requirements)
	return Drift{
		Group:               next.Group,
		FromRun:             prev.RunID,
		ToRun:               next.RunID,
		From:                prev.Timestamp,
		To:                  next.Timestamp,
		AddedPackages:       addedPkgs,
		RemovedPackages:     removedPkgs,
		AddedRequirements:   addedReqs,
		RemovedRequirements: removedReqs,
		DeltaVisited:        next.VisitedCount - prev.VisitedCount,
	}
}

// BuildDrift compares every consecutive pair of snapshots, which must be
// ordered oldest first.
func BuildDrift(snapshots []Snapshot) []Drift {
	if len(snapshots) < 2 {
		return []Drift{}
	}
	out := make([]Drift, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		out = append(out, Compare(snapshots[i-1], snapshots[i]))
	}
	return out
}

func setDiff(before, after []string) (added, removed []string) {
	inBefore := make(map[string]bool, len(before))
	for _, v := range before {
		inBefore[v] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, v := range after {
		inAfter[v] = true
		if !inBefore[v] {
			added = append(added, v)
		}
	}
	for _, v := range before {
		if !inAfter[v] {
			removed = append(removed, v)
		}
	}
	return sortedUnique(added), sortedUnique(removed)
}
