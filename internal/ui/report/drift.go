package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pydeps/internal/data/history"
)

func RenderDriftTSV(drift []history.Drift) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("Group\tFrom\tTo\tFromRun\tToRun\tAddedPackages\tRemovedPackages\tAddedRequirements\tRemovedRequirements\tDeltaVisited\n")
	for _, d := range drift {
		buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			d.Group,
			d.From.UTC().Format(time.RFC3339),
			d.To.UTC().Format(time.RFC3339),
			d.FromRun,
			d.ToRun,
			strings.Join(d.AddedPackages, ","),
			strings.Join(d.RemovedPackages, ","),
			strings.Join(d.AddedRequirements, ","),
			strings.Join(d.RemovedRequirements, ","),
			d.DeltaVisited,
		))
	}
	return []byte(buf.String()), nil
}

func RenderDriftJSON(drift []history.Drift) ([]byte, error) {
	return json.MarshalIndent(drift, "", "  ")
}
