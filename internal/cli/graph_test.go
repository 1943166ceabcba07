package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, root, name, version string, deps map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[package]\nname = %q\nversion = %q\n\n[dependencies]\n", name, version)
	for id, req := range deps {
		fmt.Fprintf(&b, "%s = %q\n", id, req)
	}
	if err := os.WriteFile(filepath.Join(dir, "convoy.toml"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

// The rendered graph must cover the same selection the planner
// resolved, not just the packages named on the command line.
func TestGraphCommandIncludesDependents(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "core", "1.0.0", nil)
	writeManifest(t, root, "api", "1.0.0", map[string]string{"core": "^1.0"})

	// Nothing published yet: every fetch is a 404.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "deps.dot")
	var logs bytes.Buffer
	c := New(&logs, LogInfo)
	cmd := c.RootCommand()
	cmd.SetArgs([]string{
		"graph", "core",
		"--root", root,
		"--registry", srv.URL,
		"--no-cache",
		"--include-dependents",
		"--format", "dot",
		"-o", out,
	})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("graph command: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	dot := string(data)
	if !strings.Contains(dot, `"api" -> "core";`) {
		t.Errorf("dot output missing the dependent edge:\n%s", dot)
	}
	if !strings.Contains(dot, `"api"`) {
		t.Errorf("dot output missing the dependent node:\n%s", dot)
	}
}
