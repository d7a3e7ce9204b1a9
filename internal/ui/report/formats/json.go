package formats

import (
	"encoding/json"

	"pydeps/internal/engine/requirements"
)

type jsonSource struct {
	Module  string   `json:"module"`
	Imports []string `json:"imports"`
	Lazy    bool     `json:"lazy"`
	Mode    string   `json:"mode"`
}

type jsonRequirement struct {
	Name     string       `json:"name"`
	Packages []string     `json:"packages"`
	Builtin  bool         `json:"builtin"`
	Lazy     bool         `json:"lazy"`
	Guarded  bool         `json:"guarded"`
	Mode     string       `json:"mode"`
	Sources  []jsonSource `json:"sources"`
}

type jsonGroup struct {
	Group
	Requirements []jsonRequirement `json:"requirements,omitempty"`
}

func RenderJSON(groups []Group) ([]byte, error) {
	out := make([]jsonGroup, 0, len(groups))
	for _, g := range groups {
		jg := jsonGroup{Group: g}
		if jg.Packages == nil {
			jg.Packages = []string{}
		}
		for _, req := range g.Requirements {
			jg.Requirements = append(jg.Requirements, toJSONRequirement(req))
		}
		out = append(out, jg)
	}
	return json.MarshalIndent(out, "", "  ")
}

func toJSONRequirement(req requirements.Requirement) jsonRequirement {
	jr := jsonRequirement{
		Name:    req.Name,
		Builtin: req.Builtin,
		Lazy:    req.AllLazy,
		Guarded: req.AllGuarded,
		Mode:    req.Mode.String(),
	}
	for _, p := range req.Packages {
		jr.Packages = append(jr.Packages, string(p))
	}
	for _, s := range req.Sources {
		jr.Sources = append(jr.Sources, jsonSource{
			Module:  string(s.Module),
			Imports: s.Imports,
			Lazy:    s.AllLazy,
			Mode:    s.Mode.String(),
		})
	}
	return jr
}
