package planner

import (
	"encoding/json"

	"github.com/convoy-dev/convoy/pkg/errors"
)

// Step is one entry of a publish plan. Steps that are not new releases
// are carried for visibility only; the executor never acts on them.
type Step struct {
	ID             string `json:"id"`
	TargetVersion  string `json:"target_version"`
	NewRelease     bool   `json:"new_release"`
	Classification string `json:"classification"`

	// PublishedVersion is the latest version on the registry at
	// planning time, empty for never-published packages.
	PublishedVersion string `json:"published_version,omitempty"`

	// Bump names the version component incremented, empty when the
	// target is the declared local version.
	Bump string `json:"bump,omitempty"`
}

// Plan is an ordered, validated publish plan. For every dependency edge
// between two steps, the dependency's step comes first. A plan is
// immutable once built and carries no timestamps or run identity, so
// planning twice against identical state yields byte-identical output.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Releases returns only the steps the executor will act on, in order.
func (p *Plan) Releases() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.NewRelease {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the plan entry for a package, or false.
func (p *Plan) Step(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Encode renders the plan as deterministic, indented JSON.
func (p *Plan) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encoding plan")
	}
	return append(data, '\n'), nil
}

// DecodePlan parses a plan previously produced by [Plan.Encode].
func DecodePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPlan, err, "decoding plan")
	}
	for _, s := range plan.Steps {
		if s.ID == "" || s.TargetVersion == "" {
			return nil, errors.New(errors.ErrCodeInvalidPlan, "plan step missing id or target version")
		}
	}
	return &plan, nil
}
