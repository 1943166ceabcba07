package planner

import (
	"context"
	"slices"
	"sync"

	"github.com/convoy-dev/convoy/pkg/depgraph"
	"github.com/convoy-dev/convoy/pkg/registry"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// Classification describes why a package does or does not need a new
// release.
type Classification int

const (
	// Unchanged means the published content matches the local content.
	Unchanged Classification = iota

	// ContentChanged means the local fingerprint differs from the
	// fingerprint of the latest published version.
	ContentChanged

	// NeverPublished means the registry has no release of this package.
	NeverPublished

	// ForcedByPolicy means the package's policy demands a release
	// regardless of content.
	ForcedByPolicy
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case ContentChanged:
		return "changed"
	case NeverPublished:
		return "never-published"
	case ForcedByPolicy:
		return "forced"
	default:
		return "unknown"
	}
}

// Classify decides whether a package needs a release. It is a pure
// function of the package and the registry snapshot:
//
//   - policy Skip always classifies Unchanged; the package is never planned
//   - policy Force always classifies ForcedByPolicy
//   - no published version classifies NeverPublished
//   - a fingerprint mismatch against the latest published version
//     classifies ContentChanged; a registry that recorded no fingerprint
//     is treated as changed, the conservative answer
func Classify(pkg *workspace.Package, state *registry.State) Classification {
	switch pkg.Policy {
	case workspace.PolicySkip:
		return Unchanged
	case workspace.PolicyForce:
		return ForcedByPolicy
	}

	if state == nil || !state.Exists {
		return NeverPublished
	}
	latest, ok := state.Latest()
	if !ok {
		return NeverPublished
	}

	published, ok := state.FingerprintOf(latest.String())
	if !ok || published != pkg.Fingerprint {
		return ContentChanged
	}
	return Unchanged
}

// packageStatus pairs a package with its registry snapshot and
// classification for one planning pass.
type packageStatus struct {
	Package *workspace.Package
	State   *registry.State
	Class   Classification
}

type fetchResult struct {
	id    string
	state *registry.State
	err   error
}

// classifyAll fetches registry state for every package in the closure
// with a bounded worker pool and classifies each one. All fetches must
// succeed; a single hard registry error fails the whole pass, since a
// partial classification is unsafe to act on.
func classifyAll(ctx context.Context, client registry.Client, g *depgraph.Graph, concurrency int, refresh bool) (map[string]*packageStatus, error) {
	ids := g.IDs()
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan string)
	results := make(chan fetchResult, len(ids))

	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					results <- fetchResult{id: id, err: ctx.Err()}
					continue
				}
				state, err := client.FetchState(ctx, id, refresh)
				results <- fetchResult{id: id, state: state, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	states := make(map[string]*registry.State, len(ids))
	var failed []fetchResult
	for range ids {
		select {
		case r := <-results:
			if r.err != nil {
				failed = append(failed, r)
				continue
			}
			states[r.id] = r.state
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	wg.Wait()

	if len(failed) > 0 {
		// Report the lexicographically first failure so reruns against
		// the same broken registry produce the same error.
		slices.SortFunc(failed, func(a, b fetchResult) int {
			if a.id < b.id {
				return -1
			}
			return 1
		})
		return nil, failed[0].err
	}

	statuses := make(map[string]*packageStatus, len(ids))
	for _, id := range ids {
		pkg, _ := g.Package(id)
		statuses[id] = &packageStatus{
			Package: pkg,
			State:   states[id],
			Class:   Classify(pkg, states[id]),
		}
	}
	return statuses, nil
}
