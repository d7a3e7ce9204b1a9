package formats

import (
	"fmt"
	"strings"
)

type TSVGenerator struct{}

func NewTSVGenerator() *TSVGenerator {
	return &TSVGenerator{}
}

// Generate writes one row per requirement source, or per package when a
// group carries no requirements.
func (t *TSVGenerator) Generate(groups []Group) (string, error) {
	var buf strings.Builder

	buf.WriteString("Group\tRequirement\tPackage\tSource\tImports\tMode\tLazy\tBuiltin\n")
	for _, g := range groups {
		if len(g.Requirements) == 0 {
			for _, pkg := range g.Packages {
				buf.WriteString(fmt.Sprintf("%s\t\t%s\t\t\t\t\t\n", g.Name, pkg))
			}
			continue
		}
		for _, req := range g.Requirements {
			pkgs := make([]string, 0, len(req.Packages))
			for _, p := range req.Packages {
				pkgs = append(pkgs, string(p))
			}
			for _, src := range req.Sources {
				buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
					g.Name,
					req.Name,
					strings.Join(pkgs, ","),
					src.Module,
					strings.Join(src.Imports, ","),
					src.Mode,
					src.AllLazy,
					req.Builtin,
				))
			}
		}
	}

	return buf.String(), nil
}
