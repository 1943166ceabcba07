package planner

import (
	"github.com/Masterminds/semver/v3"

	"github.com/convoy-dev/convoy/pkg/depgraph"
	"github.com/convoy-dev/convoy/pkg/errors"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// Kind is the semantic-version component a bump increments.
type Kind string

const (
	KindPatch Kind = "patch"
	KindMinor Kind = "minor"
	KindMajor Kind = "major"
)

var kindRank = map[Kind]int{KindPatch: 1, KindMinor: 2, KindMajor: 3}

// escalate returns the larger of two bump kinds.
func escalate(a, b Kind) Kind {
	if kindRank[b] > kindRank[a] {
		return b
	}
	return a
}

// BumpPolicy controls which version component a release increments.
// The defaults are conservative: content changes take a patch bump,
// escalated to minor when the package's own dependency edges now point
// at versions outside their declared requirements.
type BumpPolicy struct {
	// OnChange is the bump for ContentChanged and ForcedByPolicy
	// packages. Defaults to patch.
	OnChange Kind

	// OnDependencyBreak is the escalation applied when a dependency of
	// a changed package was bumped outside the package's declared
	// requirement on it. Defaults to minor.
	OnDependencyBreak Kind
}

func (p BumpPolicy) withDefaults() BumpPolicy {
	if p.OnChange == "" {
		p.OnChange = KindPatch
	}
	if p.OnDependencyBreak == "" {
		p.OnDependencyBreak = KindMinor
	}
	return p
}

// Decision is the version bump computed for one package that needs a
// release on top of an existing published version.
type Decision struct {
	From *semver.Version
	To   *semver.Version
	Kind Kind
}

// bumpResult is the full outcome of the bump pass: the target version
// for every package in the closure, which packages get a new release,
// and the bump decisions for packages published before.
type bumpResult struct {
	targets   map[string]*semver.Version
	releases  map[string]bool
	decisions map[string]*Decision
}

// computeBumps assigns a target version to every package in the
// closure, in topological order so a package's dependencies are decided
// before the package itself. suppressed packages are treated as not
// releasing regardless of classification (selection exclusions).
//
// After all targets are fixed, a propagation pass verifies that every
// dependent left unreleased still satisfies its requirement on each
// released dependency; a violation is a CONSTRAINT_BREAK and fails the
// whole plan.
func computeBumps(g *depgraph.Graph, statuses map[string]*packageStatus, policy BumpPolicy, suppressed map[string]bool) (*bumpResult, error) {
	policy = policy.withDefaults()

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	res := &bumpResult{
		targets:   make(map[string]*semver.Version, len(order)),
		releases:  make(map[string]bool, len(order)),
		decisions: make(map[string]*Decision),
	}

	for _, id := range order {
		st := statuses[id]
		pkg := st.Package

		if suppressed[id] {
			res.targets[id] = pkg.Version
			continue
		}

		switch st.Class {
		case Unchanged:
			res.targets[id] = pkg.Version
			// A local version the registry has never seen is still a
			// release even when content matches, so the declared
			// version becomes resolvable. A declared version the
			// registry already has, or one behind the published latest,
			// has nothing new to publish. Skip-policy packages are
			// never planned.
			if pkg.Policy != workspace.PolicySkip && !st.State.Has(pkg.Version.String()) {
				if latest, ok := st.State.Latest(); ok && pkg.Version.GreaterThan(latest) {
					res.releases[id] = true
				}
			}

		case NeverPublished:
			// First release: the local version is the target as-is.
			if err := validateFirstRelease(pkg); err != nil {
				return nil, err
			}
			res.targets[id] = pkg.Version
			res.releases[id] = true

		case ContentChanged, ForcedByPolicy:
			from, ok := st.State.Latest()
			if !ok {
				// Forced but never published behaves like a first release.
				if err := validateFirstRelease(pkg); err != nil {
					return nil, err
				}
				res.targets[id] = pkg.Version
				res.releases[id] = true
				continue
			}

			kind := policy.OnChange
			for _, dep := range pkg.Dependencies {
				if !g.Contains(dep.ID) || !res.releases[dep.ID] {
					continue
				}
				if !dep.Requirement.Check(res.targets[dep.ID]) {
					kind = escalate(kind, policy.OnDependencyBreak)
				}
			}

			to := bump(from, kind)
			if pkg.Version.GreaterThan(to) && !st.State.Has(pkg.Version.String()) {
				// The maintainer already bumped the manifest past what
				// the policy would pick; honor the declared version.
				to = pkg.Version
				kind = diffKind(from, to)
			}

			res.decisions[id] = &Decision{From: from, To: to, Kind: kind}
			res.targets[id] = to
			res.releases[id] = true
		}
	}

	// Propagation: a released dependency must still satisfy every
	// unreleased dependent's requirement, or the plan is inconsistent.
	for _, id := range order {
		if !res.releases[id] {
			continue
		}
		for _, dependent := range g.Dependents(id) {
			if res.releases[dependent] {
				continue
			}
			dep, ok := statuses[dependent].Package.Dependency(id)
			if !ok {
				continue
			}
			if !dep.Requirement.Check(res.targets[id]) {
				return nil, errors.New(errors.ErrCodeConstraintBreak,
					"%s requires %s %s, but %s would be published as %s and %s is not scheduled for a release",
					dependent, id, dep.RawRequirement, id, res.targets[id], dependent)
			}
		}
	}

	return res, nil
}

// validateFirstRelease rejects local versions that cannot serve as a
// package's first published release.
func validateFirstRelease(pkg *workspace.Package) error {
	v := pkg.Version
	if v.Major() == 0 && v.Minor() == 0 && v.Patch() == 0 {
		return errors.New(errors.ErrCodeInvalidVersion,
			"%s declares %s, which is not publishable as a first release", pkg.ID, v)
	}
	return nil
}

func bump(from *semver.Version, kind Kind) *semver.Version {
	var next semver.Version
	switch kind {
	case KindMajor:
		next = from.IncMajor()
	case KindMinor:
		next = from.IncMinor()
	default:
		next = from.IncPatch()
	}
	return &next
}

// diffKind reports which component differs between two versions.
func diffKind(from, to *semver.Version) Kind {
	switch {
	case to.Major() != from.Major():
		return KindMajor
	case to.Minor() != from.Minor():
		return KindMinor
	default:
		return KindPatch
	}
}
