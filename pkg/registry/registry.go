// Package registry talks to the package registry: fetching the
// published state of a package and pushing new releases.
//
// The planner only ever reads; the executor reads and writes. Both go
// through the [Client] interface so tests can substitute an in-memory
// registry and the CLI can point at staging instances.
package registry

import (
	"context"

	"github.com/Masterminds/semver/v3"
)

// Release is one published version of a package as the registry
// reports it.
type Release struct {
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Yanked      bool   `json:"yanked,omitempty"`
}

// State is the registry's view of a single package. A package that has
// never been published has Exists false and no releases.
//
// The struct is JSON-serializable so it can live in the response cache.
type State struct {
	Name     string             `json:"name"`
	Exists   bool               `json:"exists"`
	Releases map[string]Release `json:"releases,omitempty"`
}

// Latest returns the highest non-yanked published version, or false if
// the package has no usable releases.
func (s *State) Latest() (*semver.Version, bool) {
	var latest *semver.Version
	for _, rel := range s.Releases {
		if rel.Yanked {
			continue
		}
		v, err := semver.NewVersion(rel.Version)
		if err != nil {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
		}
	}
	return latest, latest != nil
}

// Has reports whether the given version is visible on the registry,
// yanked or not.
func (s *State) Has(version string) bool {
	_, ok := s.Releases[version]
	return ok
}

// FingerprintOf returns the content fingerprint the registry recorded
// for a published version, or false if the version is unknown or the
// registry stored no fingerprint for it.
func (s *State) FingerprintOf(version string) (string, bool) {
	rel, ok := s.Releases[version]
	if !ok || rel.Fingerprint == "" {
		return "", false
	}
	return rel.Fingerprint, true
}

// Client is the registry access interface.
//
// All methods are safe for concurrent use: classification fetches the
// state of every package in the closure in parallel.
type Client interface {
	// FetchState retrieves the published state of a package. A package
	// unknown to the registry yields a State with Exists false, not an
	// error. If refresh is true the response cache is bypassed; the
	// executor uses this for its pre-publish race check.
	FetchState(ctx context.Context, pkg string, refresh bool) (*State, error)

	// Publish pushes a new release. The registry records the content
	// fingerprint alongside the version. Transient failures are
	// returned retryable so callers can wrap the call in a retry
	// policy; a version that already exists yields RACE_DETECTED.
	Publish(ctx context.Context, pkg string, version *semver.Version, fingerprint string) error
}
