package planner

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/convoy-dev/convoy/pkg/errors"
	"github.com/convoy-dev/convoy/pkg/registry"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// fakeRegistry serves canned states from memory and records publishes.
type fakeRegistry struct {
	mu     sync.Mutex
	states map[string]*registry.State
	errs   map[string]error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		states: make(map[string]*registry.State),
		errs:   make(map[string]error),
	}
}

func (f *fakeRegistry) FetchState(ctx context.Context, pkg string, refresh bool) (*registry.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[pkg]; err != nil {
		return nil, err
	}
	if state, ok := f.states[pkg]; ok {
		return state, nil
	}
	return &registry.State{Name: pkg, Exists: false}, nil
}

func (f *fakeRegistry) Publish(ctx context.Context, pkg string, version *semver.Version, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[pkg]
	if !ok {
		state = &registry.State{Name: pkg, Exists: true, Releases: make(map[string]registry.Release)}
		f.states[pkg] = state
	}
	state.Exists = true
	state.Releases[version.String()] = registry.Release{Version: version.String(), Fingerprint: fingerprint}
	return nil
}

func (f *fakeRegistry) setPublished(pkg, version, fingerprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[pkg]
	if !ok {
		state = &registry.State{Name: pkg, Exists: true, Releases: make(map[string]registry.Release)}
		f.states[pkg] = state
	}
	state.Releases[version] = registry.Release{Version: version, Fingerprint: fingerprint}
}

type pkgSpec struct {
	id      string
	version string
	fp      string
	policy  workspace.Policy
	deps    map[string]string // dependency id -> requirement
}

func mkWorkspace(t *testing.T, specs ...pkgSpec) *workspace.Workspace {
	t.Helper()
	var pkgs []*workspace.Package
	for _, s := range specs {
		p := &workspace.Package{
			ID:          s.id,
			Version:     semver.MustParse(s.version),
			Fingerprint: s.fp,
			Policy:      s.policy,
		}
		for dep, raw := range s.deps {
			req, err := semver.NewConstraint(raw)
			if err != nil {
				t.Fatalf("constraint %q: %v", raw, err)
			}
			p.Dependencies = append(p.Dependencies, workspace.Dependency{
				ID: dep, Requirement: req, RawRequirement: raw,
			})
		}
		pkgs = append(pkgs, p)
	}
	ws, err := workspace.New(pkgs)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

// chainWorkspace is the canonical A depends on B depends on C setup.
func chainWorkspace(t *testing.T, reqOnC string) *workspace.Workspace {
	return mkWorkspace(t,
		pkgSpec{id: "a", version: "1.0.0", fp: "fp-a", deps: map[string]string{"b": "^1.0"}},
		pkgSpec{id: "b", version: "1.0.0", fp: "fp-b", deps: map[string]string{"c": reqOnC}},
		pkgSpec{id: "c", version: "1.0.0", fp: "fp-c-new"},
	)
}

func chainRegistry() *fakeRegistry {
	reg := newFakeRegistry()
	reg.setPublished("a", "1.0.0", "fp-a")
	reg.setPublished("b", "1.0.0", "fp-b")
	reg.setPublished("c", "1.0.0", "fp-c-old")
	return reg
}

func mustPlan(t *testing.T, ws *workspace.Workspace, reg registry.Client, opts Options) *Plan {
	t.Helper()
	plan, err := New(reg, nil).Plan(context.Background(), ws, opts)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return plan
}

func stepIDs(plan *Plan) []string {
	ids := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		ids[i] = s.ID
	}
	return ids
}

func TestPlanOnlyLeafChanged(t *testing.T) {
	ws := chainWorkspace(t, "^1.0")
	plan := mustPlan(t, ws, chainRegistry(), Options{})

	want := []string{"c", "b", "a"}
	got := stepIDs(plan)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plan order = %v, want %v", got, want)
		}
	}

	c, _ := plan.Step("c")
	if !c.NewRelease || c.TargetVersion != "1.0.1" || c.Bump != "patch" {
		t.Errorf("c step = %+v, want new patch release 1.0.1", c)
	}
	for _, id := range []string{"a", "b"} {
		s, _ := plan.Step(id)
		if s.NewRelease {
			t.Errorf("%s should not be a new release: %+v", id, s)
		}
		if s.Classification != "unchanged" {
			t.Errorf("%s classification = %s", id, s.Classification)
		}
	}

	if releases := plan.Releases(); len(releases) != 1 || releases[0].ID != "c" {
		t.Errorf("Releases = %v", releases)
	}
}

func TestPlanUnchangedOldDeclaredVersionIsNotReleased(t *testing.T) {
	// The registry already has the declared 1.0.0 and a newer 2.0.0
	// whose fingerprint matches the local content. Nothing to publish:
	// a release of 1.0.0 would only be rejected as a race.
	ws := mkWorkspace(t, pkgSpec{id: "a", version: "1.0.0", fp: "fp-a"})
	reg := newFakeRegistry()
	reg.setPublished("a", "1.0.0", "fp-old")
	reg.setPublished("a", "2.0.0", "fp-a")

	plan := mustPlan(t, ws, reg, Options{})
	s, _ := plan.Step("a")
	if s.Classification != "unchanged" {
		t.Errorf("classification = %s, want unchanged", s.Classification)
	}
	if s.NewRelease {
		t.Errorf("step = %+v, want no release of an already-published version", s)
	}
}

func TestPlanUnchangedDeclaredVersionAheadIsReleased(t *testing.T) {
	// Content matches the published latest, but the manifest already
	// declares a version past it: release it so dependents can resolve.
	ws := mkWorkspace(t, pkgSpec{id: "a", version: "2.0.0", fp: "fp-a"})
	reg := newFakeRegistry()
	reg.setPublished("a", "1.2.0", "fp-a")

	plan := mustPlan(t, ws, reg, Options{})
	s, _ := plan.Step("a")
	if s.Classification != "unchanged" {
		t.Errorf("classification = %s, want unchanged", s.Classification)
	}
	if !s.NewRelease || s.TargetVersion != "2.0.0" {
		t.Errorf("step = %+v, want release of the declared 2.0.0", s)
	}
}

func TestPlanExactPinBreaksConstraint(t *testing.T) {
	ws := chainWorkspace(t, "=1.0.0")

	_, err := New(chainRegistry(), nil).Plan(context.Background(), ws, Options{})
	if !errors.Is(err, errors.ErrCodeConstraintBreak) {
		t.Fatalf("err = %v, want CONSTRAINT_BREAK", err)
	}
}

func TestPlanNeverPublished(t *testing.T) {
	ws := mkWorkspace(t, pkgSpec{id: "fresh", version: "0.3.0", fp: "fp"})
	plan := mustPlan(t, ws, newFakeRegistry(), Options{})

	s, ok := plan.Step("fresh")
	if !ok {
		t.Fatal("missing step")
	}
	if !s.NewRelease || s.TargetVersion != "0.3.0" || s.Classification != "never-published" {
		t.Errorf("step = %+v, want first release at the local version", s)
	}
	if s.PublishedVersion != "" {
		t.Errorf("PublishedVersion = %q, want empty", s.PublishedVersion)
	}
}

func TestPlanRejectsZeroFirstRelease(t *testing.T) {
	ws := mkWorkspace(t, pkgSpec{id: "fresh", version: "0.0.0", fp: "fp"})

	_, err := New(newFakeRegistry(), nil).Plan(context.Background(), ws, Options{})
	if !errors.Is(err, errors.ErrCodeInvalidVersion) {
		t.Fatalf("err = %v, want INVALID_VERSION", err)
	}
}

func TestPlanIdempotent(t *testing.T) {
	ws := chainWorkspace(t, "^1.0")

	first := mustPlan(t, ws, chainRegistry(), Options{})
	second := mustPlan(t, ws, chainRegistry(), Options{})

	a, err := first.Encode()
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("plans differ:\n%s\n%s", a, b)
	}
}

func TestPlanCyclicWorkspace(t *testing.T) {
	ws := mkWorkspace(t,
		pkgSpec{id: "a", version: "1.0.0", fp: "x", deps: map[string]string{"b": "^1.0"}},
		pkgSpec{id: "b", version: "1.0.0", fp: "y", deps: map[string]string{"a": "^1.0"}},
	)

	_, err := New(newFakeRegistry(), nil).Plan(context.Background(), ws, Options{})
	if !errors.Is(err, errors.ErrCodeCyclicDependency) {
		t.Fatalf("err = %v, want CYCLIC_DEPENDENCY", err)
	}
}

func TestPlanSkipPolicy(t *testing.T) {
	ws := mkWorkspace(t,
		pkgSpec{id: "quiet", version: "1.0.0", fp: "fp-new", policy: workspace.PolicySkip},
	)
	reg := newFakeRegistry()
	reg.setPublished("quiet", "1.0.0", "fp-old")

	plan := mustPlan(t, ws, reg, Options{})
	s, _ := plan.Step("quiet")
	if s.NewRelease {
		t.Error("skip-policy packages are never planned")
	}
}

func TestPlanForcePolicy(t *testing.T) {
	ws := mkWorkspace(t,
		pkgSpec{id: "always", version: "1.0.0", fp: "same", policy: workspace.PolicyForce},
	)
	reg := newFakeRegistry()
	reg.setPublished("always", "1.0.0", "same")

	plan := mustPlan(t, ws, reg, Options{})
	s, _ := plan.Step("always")
	if !s.NewRelease || s.Classification != "forced" {
		t.Errorf("step = %+v, want forced release", s)
	}
	if s.TargetVersion != "1.0.1" {
		t.Errorf("target = %s, want 1.0.1", s.TargetVersion)
	}
}

func TestPlanEscalatesOnDependencyBreak(t *testing.T) {
	// Both change; a pins b exactly, so b's patch bump breaks a's edge
	// and a escalates from patch to minor.
	ws := mkWorkspace(t,
		pkgSpec{id: "a", version: "2.0.0", fp: "fp-a-new", deps: map[string]string{"b": "=1.0.0"}},
		pkgSpec{id: "b", version: "1.0.0", fp: "fp-b-new"},
	)
	reg := newFakeRegistry()
	reg.setPublished("a", "2.0.0", "fp-a-old")
	reg.setPublished("b", "1.0.0", "fp-b-old")

	plan := mustPlan(t, ws, reg, Options{})

	b, _ := plan.Step("b")
	if b.TargetVersion != "1.0.1" || b.Bump != "patch" {
		t.Errorf("b step = %+v", b)
	}
	a, _ := plan.Step("a")
	if a.TargetVersion != "2.1.0" || a.Bump != "minor" {
		t.Errorf("a step = %+v, want minor escalation to 2.1.0", a)
	}
}

func TestPlanHonorsManuallyBumpedVersion(t *testing.T) {
	// Local manifest already jumped to 2.0.0 while 1.2.0 is published:
	// the declared version wins over the policy's patch bump.
	ws := mkWorkspace(t, pkgSpec{id: "lib", version: "2.0.0", fp: "fp-new"})
	reg := newFakeRegistry()
	reg.setPublished("lib", "1.2.0", "fp-old")

	plan := mustPlan(t, ws, reg, Options{})
	s, _ := plan.Step("lib")
	if s.TargetVersion != "2.0.0" || s.Bump != "major" {
		t.Errorf("step = %+v, want declared 2.0.0 as a major bump", s)
	}
}

func TestPlanOnlyRestrictsToClosure(t *testing.T) {
	ws := mkWorkspace(t,
		pkgSpec{id: "a", version: "1.0.0", fp: "fp-a", deps: map[string]string{"b": "^1.0"}},
		pkgSpec{id: "b", version: "1.0.0", fp: "fp-b"},
		pkgSpec{id: "other", version: "1.0.0", fp: "fp-o"},
	)

	plan := mustPlan(t, ws, newFakeRegistry(), Options{Only: []string{"a"}})
	if _, ok := plan.Step("other"); ok {
		t.Error("unrelated package leaked into the plan")
	}
	if _, ok := plan.Step("b"); !ok {
		t.Error("dependency missing from the closure")
	}
}

func TestPlanIncludeDependents(t *testing.T) {
	ws := chainWorkspace(t, "^1.0")

	plan := mustPlan(t, ws, chainRegistry(), Options{
		Only:              []string{"c"},
		IncludeDependents: true,
	})
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := plan.Step(id); !ok {
			t.Errorf("step %s missing with IncludeDependents", id)
		}
	}
}

func TestPlanExcludeSuppressesDependents(t *testing.T) {
	ws := chainWorkspace(t, "^1.0")

	plan := mustPlan(t, ws, chainRegistry(), Options{Exclude: []string{"c"}})
	if releases := plan.Releases(); len(releases) != 0 {
		t.Errorf("excluding c must suppress its whole dependent chain, got %v", releases)
	}
}

func TestPlanStartFrom(t *testing.T) {
	ws := mkWorkspace(t,
		pkgSpec{id: "a", version: "1.0.0", fp: "fp-a-new", deps: map[string]string{"b": "^1.0"}},
		pkgSpec{id: "b", version: "1.0.0", fp: "fp-b-new"},
	)
	reg := newFakeRegistry()
	reg.setPublished("a", "1.0.0", "fp-a-old")
	reg.setPublished("b", "1.0.0", "fp-b-old")

	plan := mustPlan(t, ws, reg, Options{StartFrom: "a"})
	b, _ := plan.Step("b")
	if b.NewRelease {
		t.Error("steps before start-from must not release")
	}
	a, _ := plan.Step("a")
	if !a.NewRelease {
		t.Error("start-from step must still release")
	}

	_, err := New(reg, nil).Plan(context.Background(), ws, Options{StartFrom: "ghost"})
	if !errors.Is(err, errors.ErrCodeUnknownPackage) {
		t.Errorf("err = %v, want UNKNOWN_PACKAGE", err)
	}
}

func TestPlanUnknownOnly(t *testing.T) {
	ws := mkWorkspace(t, pkgSpec{id: "a", version: "1.0.0", fp: "fp"})

	_, err := New(newFakeRegistry(), nil).Plan(context.Background(), ws, Options{Only: []string{"ghost"}})
	if !errors.Is(err, errors.ErrCodeUnknownPackage) {
		t.Fatalf("err = %v, want UNKNOWN_PACKAGE", err)
	}
}

func TestPlanFatalRegistryErrorAborts(t *testing.T) {
	ws := chainWorkspace(t, "^1.0")
	reg := chainRegistry()
	reg.errs["b"] = errors.New(errors.ErrCodeRegistryFatal, "bad token")

	_, err := New(reg, nil).Plan(context.Background(), ws, Options{})
	if !errors.Is(err, errors.ErrCodeRegistryFatal) {
		t.Fatalf("err = %v, want REGISTRY_FATAL", err)
	}
}

func TestPlanEncodeDecodeRoundTrip(t *testing.T) {
	ws := chainWorkspace(t, "^1.0")
	plan := mustPlan(t, ws, chainRegistry(), Options{})

	data, err := plan.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodePlan(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded.Steps) != len(plan.Steps) {
		t.Errorf("decoded %d steps, want %d", len(decoded.Steps), len(plan.Steps))
	}

	if _, err := DecodePlan([]byte(`{"steps":[{"id":""}]}`)); !errors.Is(err, errors.ErrCodeInvalidPlan) {
		t.Errorf("err = %v, want INVALID_PLAN", err)
	}
}
