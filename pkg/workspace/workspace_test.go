package workspace

import (
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/convoy-dev/convoy/pkg/errors"
)

func pkg(t *testing.T, id, version string, deps map[string]string) *Package {
	t.Helper()
	v, err := semver.NewVersion(version)
	if err != nil {
		t.Fatalf("version %s: %v", version, err)
	}
	p := &Package{ID: id, Version: v, Fingerprint: "fp-" + id, Dir: "/ws/" + id}
	for depID, raw := range deps {
		c, err := semver.NewConstraint(raw)
		if err != nil {
			t.Fatalf("constraint %s: %v", raw, err)
		}
		p.Dependencies = append(p.Dependencies, Dependency{ID: depID, Requirement: c, RawRequirement: raw})
	}
	return p
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New([]*Package{
		pkg(t, "a", "1.0.0", map[string]string{"missing": "^1.0"}),
	})
	if !errors.Is(err, errors.ErrCodeInvalidDependency) {
		t.Fatalf("err = %v, want INVALID_DEPENDENCY", err)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]*Package{
		pkg(t, "a", "1.0.0", nil),
		pkg(t, "a", "2.0.0", nil),
	})
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Fatalf("err = %v, want INVALID_MANIFEST", err)
	}
}

func TestDependents(t *testing.T) {
	ws, err := New([]*Package{
		pkg(t, "core", "1.0.0", nil),
		pkg(t, "rpc", "1.0.0", map[string]string{"core": "^1.0"}),
		pkg(t, "api", "1.0.0", map[string]string{"core": "^1.0", "rpc": "^1.0"}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := ws.Dependents("core")
	if len(got) != 2 || got[0] != "api" || got[1] != "rpc" {
		t.Errorf("Dependents(core) = %v, want [api rpc]", got)
	}
	if deps := ws.Dependents("api"); len(deps) != 0 {
		t.Errorf("Dependents(api) = %v, want none", deps)
	}
}

func TestIDsSorted(t *testing.T) {
	ws, err := New([]*Package{
		pkg(t, "zeta", "1.0.0", nil),
		pkg(t, "alpha", "1.0.0", nil),
		pkg(t, "mid", "1.0.0", nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ids := ws.IDs()
	if ids[0] != "alpha" || ids[1] != "mid" || ids[2] != "zeta" {
		t.Errorf("IDs = %v, want lexicographic order", ids)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in   string
		want Policy
		ok   bool
	}{
		{"", PolicyAuto, true},
		{"auto", PolicyAuto, true},
		{"skip", PolicySkip, true},
		{"Force", PolicyForce, true},
		{"yes", PolicyAuto, false},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParsePolicy(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParsePolicy(%q) should fail", tc.in)
		}
	}
}
