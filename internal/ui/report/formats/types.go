package formats

import "pydeps/internal/engine/requirements"

// Group is the rendered view of one resolver group.
type Group struct {
	Name         string                     `json:"name"`
	Roots        []string                   `json:"roots"`
	Visited      int                        `json:"visited"`
	Packages     []string                   `json:"packages"`
	Requirements []requirements.Requirement `json:"-"`
	Unresolved   []string                   `json:"unresolved,omitempty"`
}
