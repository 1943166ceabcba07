// Package depgraph builds the dependency closure over a requested
// package set and derives the publish order from it.
//
// The graph is an index-based adjacency structure keyed by package ID:
// nodes reference each other by name, never by pointer, which keeps the
// structure trivially serializable and free of ownership cycles. It is
// built once per planning run from an immutable workspace snapshot and
// never mutated afterwards; closure and ordering are computed views.
//
// An edge A → B means "A depends on B". A valid publish order therefore
// places B before A: a package can only be published after every local
// dependency it references is already on the registry.
package depgraph

import (
	"slices"
	"strings"

	"github.com/convoy-dev/convoy/pkg/errors"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// Graph is the closure subgraph needed to safely publish a request:
// the requested packages plus every local dependency reachable from
// them. Not safe for concurrent mutation; read access is.
type Graph struct {
	nodes    map[string]*workspace.Package
	outgoing map[string][]string // id -> dependency ids (sorted)
	incoming map[string][]string // id -> dependent ids (sorted)
	order    []string            // node ids, sorted; fixed iteration order
}

// Closure builds the transitive-closure subgraph for the requested IDs:
// starting from requested, local dependencies are added until a fixed
// point. An empty request means the whole workspace. Returns
// UNKNOWN_PACKAGE if a requested ID is absent from the workspace.
func Closure(ws *workspace.Workspace, requested []string) (*Graph, error) {
	if len(requested) == 0 {
		requested = ws.IDs()
	}

	g := &Graph{
		nodes:    make(map[string]*workspace.Package),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}

	queue := make([]string, 0, len(requested))
	for _, id := range requested {
		pkg, ok := ws.Package(id)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownPackage, "requested package %s is not in the workspace", id)
		}
		if _, seen := g.nodes[id]; seen {
			continue
		}
		g.nodes[id] = pkg
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		pkg := g.nodes[id]
		for _, dep := range pkg.Dependencies {
			if _, seen := g.nodes[dep.ID]; !seen {
				// Workspace validation guarantees the dependency exists.
				depPkg, _ := ws.Package(dep.ID)
				g.nodes[dep.ID] = depPkg
				queue = append(queue, dep.ID)
			}
			g.outgoing[id] = append(g.outgoing[id], dep.ID)
			g.incoming[dep.ID] = append(g.incoming[dep.ID], id)
		}
	}

	for id := range g.nodes {
		g.order = append(g.order, id)
		slices.Sort(g.outgoing[id])
		slices.Sort(g.incoming[id])
	}
	slices.Sort(g.order)

	return g, nil
}

// Len returns the number of packages in the closure.
func (g *Graph) Len() int { return len(g.nodes) }

// Contains reports whether the closure includes the given package.
func (g *Graph) Contains(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Package returns the package for id, or false if not in the closure.
func (g *Graph) Package(id string) (*workspace.Package, bool) {
	pkg, ok := g.nodes[id]
	return pkg, ok
}

// IDs returns all package IDs in the closure, lexicographically sorted.
func (g *Graph) IDs() []string { return slices.Clone(g.order) }

// Dependencies returns the IDs this package depends on, sorted.
// The returned slice is a read-only view.
func (g *Graph) Dependencies(id string) []string { return g.outgoing[id] }

// Dependents returns the IDs that depend on this package, sorted.
// The returned slice is a read-only view.
func (g *Graph) Dependents(id string) []string { return g.incoming[id] }

// EdgeCount returns the number of dependency edges in the closure.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, deps := range g.outgoing {
		n += len(deps)
	}
	return n
}

// DetectCycle returns a dependency cycle as a path (first and last
// element equal), or nil if the graph is acyclic. Detection uses
// depth-first search with white/gray/black coloring; the gray stack
// reconstructs the path when a back edge is found.
func (g *Graph) DetectCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.outgoing[id] {
			switch color[dep] {
			case white:
				if dfs(dep) {
					return true
				}
			case gray:
				// Back edge: slice the gray stack from the first
				// occurrence of dep and close the loop.
				start := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[start:]), dep)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalOrder returns a publish order: a linear extension of the
// dependency partial order in which every dependency precedes its
// dependents. Among packages whose dependencies are all resolved, the
// lexicographically smallest ID goes first, so the output is
// deterministic and reproducible across runs.
//
// Fails with CYCLIC_DEPENDENCY (including the full cycle path) if the
// closure is not a DAG; a partial or arbitrary order is never produced.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if cycle := g.DetectCycle(); cycle != nil {
		return nil, errors.New(errors.ErrCodeCyclicDependency,
			"dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	// Kahn's algorithm over unresolved-dependency counts. ready is kept
	// sorted; the closure is small enough that a linear insert beats
	// the bookkeeping of a heap.
	remaining := make(map[string]int, len(g.nodes))
	var ready []string
	for _, id := range g.order {
		remaining[id] = len(g.outgoing[id])
		if remaining[id] == 0 {
			ready = append(ready, id) // g.order is sorted already
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dependent := range g.incoming[id] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				at, _ := slices.BinarySearch(ready, dependent)
				ready = slices.Insert(ready, at, dependent)
			}
		}
	}

	return order, nil
}
