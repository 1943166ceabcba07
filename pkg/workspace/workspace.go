// Package workspace models the local multi-package workspace.
//
// A workspace is a directory tree containing many packages, each
// described by a convoy.toml manifest. Only a subset of those packages
// is typically requested for publishing; the planner computes the rest.
//
// The types here are an immutable snapshot: a Workspace is built once
// per planning run and never mutated afterwards. Derived views (the
// dependency closure, the publish order) are computed by pkg/depgraph,
// not stored back onto the workspace.
package workspace

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/convoy-dev/convoy/pkg/errors"
)

// Policy is the per-package override of default change detection.
// It is a closed set: classification stays a total function over a
// small enumerated domain rather than open-ended flags.
type Policy int

const (
	// PolicyAuto publishes the package only when its content changed.
	PolicyAuto Policy = iota
	// PolicySkip never publishes the package.
	PolicySkip
	// PolicyForce always publishes the package, changed or not.
	PolicyForce
)

// String returns the manifest spelling of the policy.
func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyForce:
		return "force"
	default:
		return "auto"
	}
}

// ParsePolicy converts a manifest policy value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PolicyAuto, nil
	case "skip":
		return PolicySkip, nil
	case "force":
		return PolicyForce, nil
	default:
		return PolicyAuto, errors.New(errors.ErrCodeInvalidManifest, "unknown publish policy %q", s)
	}
}

// Dependency is one intra-workspace dependency edge: the dependency's
// package ID and the version requirement this package declares on it.
type Dependency struct {
	ID          string
	Requirement *semver.Constraints
	// RawRequirement preserves the manifest spelling for display and
	// for byte-identical plan output across runs.
	RawRequirement string
}

// Package is the immutable description of one local package.
type Package struct {
	ID           string
	Version      *semver.Version
	Fingerprint  string // deterministic digest of publishable content
	Dependencies []Dependency
	Policy       Policy
	Dir          string // directory containing the manifest
}

// Dependency returns the declared edge to the given package, if any.
func (p *Package) Dependency(id string) (Dependency, bool) {
	for _, d := range p.Dependencies {
		if d.ID == id {
			return d, true
		}
	}
	return Dependency{}, false
}

// Workspace is the full set of local packages under management.
type Workspace struct {
	packages map[string]*Package
}

// New builds a Workspace from the given packages and validates it:
// package IDs must be unique, and every declared dependency must
// reference a package present in the workspace.
func New(packages []*Package) (*Workspace, error) {
	byID := make(map[string]*Package, len(packages))
	for _, pkg := range packages {
		if pkg.ID == "" {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "package with empty name in %s", pkg.Dir)
		}
		if other, exists := byID[pkg.ID]; exists {
			return nil, errors.New(errors.ErrCodeInvalidManifest,
				"duplicate package %s (in %s and %s)", pkg.ID, other.Dir, pkg.Dir)
		}
		byID[pkg.ID] = pkg
	}

	for _, pkg := range byID {
		for _, dep := range pkg.Dependencies {
			if _, ok := byID[dep.ID]; !ok {
				return nil, errors.New(errors.ErrCodeInvalidDependency,
					"%s depends on workspace package %s which cannot be found", pkg.ID, dep.ID)
			}
		}
	}

	return &Workspace{packages: byID}, nil
}

// Package returns the package with the given ID, or false if absent.
func (w *Workspace) Package(id string) (*Package, bool) {
	pkg, ok := w.packages[id]
	return pkg, ok
}

// Contains reports whether the workspace has a package with the given ID.
func (w *Workspace) Contains(id string) bool {
	_, ok := w.packages[id]
	return ok
}

// Len returns the number of packages in the workspace.
func (w *Workspace) Len() int { return len(w.packages) }

// IDs returns all package IDs in lexicographic order.
func (w *Workspace) IDs() []string {
	ids := make([]string, 0, len(w.packages))
	for id := range w.packages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Packages returns all packages ordered by ID.
func (w *Workspace) Packages() []*Package {
	pkgs := make([]*Package, 0, len(w.packages))
	for _, id := range w.IDs() {
		pkgs = append(pkgs, w.packages[id])
	}
	return pkgs
}

// Dependents returns the IDs of packages that declare a dependency on
// id, in lexicographic order.
func (w *Workspace) Dependents(id string) []string {
	var out []string
	for _, pkg := range w.packages {
		if _, ok := pkg.Dependency(id); ok {
			out = append(out, pkg.ID)
		}
	}
	slices.Sort(out)
	return out
}

// Source lists the packages of a workspace. The TOML loader in this
// package is the production implementation; tests supply their own.
type Source interface {
	ListPackages() ([]*Package, error)
}

// FromSource builds a validated Workspace from a Source.
func FromSource(src Source) (*Workspace, error) {
	pkgs, err := src.ListPackages()
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	return New(pkgs)
}
