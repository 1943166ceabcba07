package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Fingerprint computes a deterministic digest over a package's
// publishable content: every non-hidden file under dir, identified by
// its workspace-relative path, hashed in sorted path order. The digest
// is stable across re-runs given identical content and changes whenever
// any publishable file (the manifest included) changes.
//
// Hidden files and build-output directories are excluded: they are not
// part of what gets uploaded to the registry, so they must not trigger
// a new release.
func Fingerprint(dir string) (string, error) {
	paths, err := publishableFiles(dir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, rel := range paths {
		// Path and size separate entries so that moving bytes between
		// files cannot produce a colliding digest.
		f, err := os.Open(filepath.Join(dir, rel))
		if err != nil {
			return "", err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", filepath.ToSlash(rel), info.Size())
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func publishableFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}
