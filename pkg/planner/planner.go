// Package planner turns a workspace snapshot and a registry snapshot
// into an ordered publish plan.
//
// Planning runs in four stages: select the requested packages, build
// the dependency closure over them, classify every package against the
// registry, and compute version bumps with constraint propagation. Any
// failure aborts the whole pass; a partial plan is never produced.
package planner

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/convoy-dev/convoy/pkg/depgraph"
	"github.com/convoy-dev/convoy/pkg/errors"
	"github.com/convoy-dev/convoy/pkg/observability"
	"github.com/convoy-dev/convoy/pkg/registry"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// DefaultConcurrency bounds parallel registry fetches during
// classification.
const DefaultConcurrency = 8

// Options configures one planning pass.
type Options struct {
	// Only restricts planning to these packages plus their transitive
	// local dependencies. Empty means the whole workspace.
	Only []string

	// Exclude removes these packages and all their transitive
	// dependents from publishing. They may still appear in the plan as
	// non-release steps when something in the selection depends on them.
	Exclude []string

	// IncludeDependents widens the selection with every package that
	// transitively depends on a requested one.
	IncludeDependents bool

	// StartFrom suppresses releases ordered before the named package,
	// for resuming a previously interrupted run by hand.
	StartFrom string

	// Refresh bypasses the registry response cache.
	Refresh bool

	// Concurrency bounds parallel registry fetches. Zero means
	// [DefaultConcurrency].
	Concurrency int

	// Bump overrides the default bump-kind policy.
	Bump BumpPolicy
}

// Planner builds publish plans. It is stateless apart from the registry
// client and logger; one Planner can serve multiple plans concurrently.
type Planner struct {
	registry registry.Client
	logger   *log.Logger
}

// New creates a Planner. A nil logger falls back to the default logger.
func New(client registry.Client, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{registry: client, logger: logger}
}

// Plan builds a publish plan for the workspace under the given options.
func (p *Planner) Plan(ctx context.Context, ws *workspace.Workspace, opts Options) (*Plan, error) {
	planStart := time.Now()

	requested, suppressed, err := selectPackages(ws, opts)
	if err != nil {
		return nil, err
	}

	g, err := depgraph.Closure(ws, requested)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	p.logger.Debug("built dependency closure", "packages", g.Len(), "edges", g.EdgeCount())

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	classifyStart := time.Now()
	observability.Planner().OnClassifyStart(ctx, g.Len())
	statuses, err := classifyAll(ctx, p.registry, g, concurrency, opts.Refresh)
	observability.Planner().OnClassifyComplete(ctx, g.Len(), time.Since(classifyStart), err)
	if err != nil {
		return nil, err
	}
	p.logger.Info("classified packages",
		"packages", g.Len(),
		"duration", time.Since(classifyStart))

	bumps, err := computeBumps(g, statuses, opts.Bump, suppressed)
	if err != nil {
		observability.Planner().OnPlanComplete(ctx, 0, 0, time.Since(planStart), err)
		return nil, err
	}
	for id, d := range bumps.decisions {
		observability.Planner().OnBumpDecision(ctx, id, d.From.String(), d.To.String())
	}

	plan := buildPlan(order, statuses, bumps)

	if opts.StartFrom != "" {
		if err := applyStartFrom(plan, opts.StartFrom); err != nil {
			return nil, err
		}
	}

	releases := len(plan.Releases())
	observability.Planner().OnPlanComplete(ctx, len(plan.Steps), releases, time.Since(planStart), nil)
	p.logger.Info("plan ready",
		"steps", len(plan.Steps),
		"releases", releases,
		"duration", time.Since(planStart))
	return plan, nil
}

// selectPackages resolves Only/IncludeDependents/Exclude into the
// requested set and the set of packages whose releases are suppressed.
func selectPackages(ws *workspace.Workspace, opts Options) (requested []string, suppressed map[string]bool, err error) {
	for _, id := range append(append([]string{}, opts.Only...), opts.Exclude...) {
		if !ws.Contains(id) {
			return nil, nil, errors.New(errors.ErrCodeUnknownPackage, "package %s is not in the workspace", id)
		}
	}

	requested = opts.Only
	if opts.IncludeDependents && len(requested) > 0 {
		requested = withDependents(ws, requested)
	}

	// Excluding a package also excludes everything that depends on it:
	// a dependent cannot be released against a version that will never
	// exist.
	suppressed = make(map[string]bool)
	for _, id := range withDependents(ws, opts.Exclude) {
		suppressed[id] = true
	}
	return requested, suppressed, nil
}

// withDependents expands ids with all transitive dependents, returning
// a sorted, de-duplicated set.
func withDependents(ws *workspace.Workspace, ids []string) []string {
	seen := make(map[string]bool, len(ids))
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range ws.Dependents(id) {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func buildPlan(order []string, statuses map[string]*packageStatus, bumps *bumpResult) *Plan {
	plan := &Plan{Steps: make([]Step, 0, len(order))}
	for _, id := range order {
		st := statuses[id]
		step := Step{
			ID:             id,
			TargetVersion:  bumps.targets[id].String(),
			NewRelease:     bumps.releases[id],
			Classification: st.Class.String(),
		}
		if latest, ok := st.State.Latest(); ok {
			step.PublishedVersion = latest.String()
		}
		if d, ok := bumps.decisions[id]; ok {
			step.Bump = string(d.Kind)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

// applyStartFrom downgrades releases ordered before the named package
// to visibility-only steps.
func applyStartFrom(plan *Plan, startFrom string) error {
	at := -1
	for i, s := range plan.Steps {
		if s.ID == startFrom {
			at = i
			break
		}
	}
	if at < 0 {
		return errors.New(errors.ErrCodeUnknownPackage, "start-from package %s is not in the plan", startFrom)
	}
	for i := range plan.Steps[:at] {
		plan.Steps[i].NewRelease = false
	}
	return nil
}
