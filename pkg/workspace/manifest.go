package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/convoy-dev/convoy/pkg/errors"
)

// ManifestName is the per-package manifest file convoy looks for.
const ManifestName = "convoy.toml"

// Directories never descended into while discovering manifests.
var skippedDirs = map[string]bool{
	"target":       true,
	"vendor":       true,
	"node_modules": true,
}

// manifestFile mirrors the on-disk convoy.toml layout.
type manifestFile struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Policy  string `toml:"policy"`
	} `toml:"package"`
	Dependencies map[string]string `toml:"dependencies"`
}

// DirSource discovers packages by walking a workspace root for
// convoy.toml manifests, skipping hidden directories and build output.
type DirSource struct {
	Root string
}

// ListPackages loads every manifest under the root. Results are sorted
// by package directory so repeated runs see identical input order.
func (s DirSource) ListPackages() ([]*Package, error) {
	paths, err := findManifests(s.Root)
	if err != nil {
		return nil, err
	}

	pkgs := make([]*Package, 0, len(paths))
	for _, path := range paths {
		pkg, err := LoadManifest(path)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

// LoadManifest reads one convoy.toml and computes the package's content
// fingerprint from its directory.
func LoadManifest(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m manifestFile
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parsing %s", path)
	}
	if m.Package.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "missing package.name in %s", path)
	}

	version, err := semver.NewVersion(m.Package.Version)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidVersion, err,
			"parsing package.version for %s in %s", m.Package.Name, path)
	}

	policy, err := ParsePolicy(m.Package.Policy)
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, 0, len(m.Dependencies))
	for id, raw := range m.Dependencies {
		constraint, err := semver.NewConstraint(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidDependency, err,
				"parsing requirement %q on %s in %s", raw, id, path)
		}
		deps = append(deps, Dependency{ID: id, Requirement: constraint, RawRequirement: raw})
	}
	slices.SortFunc(deps, func(a, b Dependency) int { return strings.Compare(a.ID, b.ID) })

	dir := filepath.Dir(path)
	fingerprint, err := Fingerprint(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err,
			"fingerprinting %s", m.Package.Name)
	}

	return &Package{
		ID:           m.Package.Name,
		Version:      version,
		Fingerprint:  fingerprint,
		Dependencies: deps,
		Policy:       policy,
		Dir:          dir,
	}, nil
}

// findManifests walks root collecting convoy.toml paths. Hidden entries
// and build-output directories are skipped. A manifest directly at the
// root is ignored: like a cargo workspace root, it describes the
// workspace, not a publishable package.
func findManifests(root string) ([]string, error) {
	rootManifest := filepath.Join(root, ManifestName)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if name == ManifestName && path != rootManifest {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(paths)
	return paths, nil
}
