package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/convoy-dev/convoy/pkg/buildinfo"
	"github.com/convoy-dev/convoy/pkg/cache"
	"github.com/convoy-dev/convoy/pkg/planner"
	"github.com/convoy-dev/convoy/pkg/registry"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "convoy"

	// defaultRegistryURL is used when neither --registry nor
	// CONVOY_REGISTRY is set.
	defaultRegistryURL = "https://registry.convoy.dev"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "convoy",
		Short:        "Convoy publishes workspace packages in dependency order",
		Long:         `Convoy plans and executes registry releases for multi-package workspaces: it detects which packages actually changed, computes version bumps, and publishes in dependency-correct order.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.planCommand())
	root.AddCommand(c.publishCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())

	return root
}

// =============================================================================
// Shared Planning Flags
// =============================================================================

// planFlags holds the flags shared by plan, publish, and graph: where
// the workspace lives, which registry to talk to, and how to select and
// bump packages.
type planFlags struct {
	root              string
	registryURL       string
	token             string
	only              []string
	exclude           []string
	includeDependents bool
	startFrom         string
	refresh           bool
	noCache           bool
	redisAddr         string
	concurrency       int
	bump              string
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.root, "root", "r", ".", "workspace root directory")
	cmd.Flags().StringVar(&f.registryURL, "registry", "", "registry base URL (default $CONVOY_REGISTRY)")
	cmd.Flags().StringVar(&f.token, "token", "", "registry auth token (default $CONVOY_TOKEN)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "exclude packages and their dependents")
	cmd.Flags().BoolVar(&f.includeDependents, "include-dependents", false, "also plan packages depending on the selection")
	cmd.Flags().StringVar(&f.startFrom, "start-from", "", "suppress releases ordered before this package")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "bypass the registry response cache")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the registry response cache")
	cmd.Flags().StringVar(&f.redisAddr, "redis", "", "use a Redis cache backend at this address (default $CONVOY_REDIS)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", planner.DefaultConcurrency, "parallel registry fetches during planning")
	cmd.Flags().StringVar(&f.bump, "bump", "", "bump kind for changed packages: patch, minor, or major")
}

func (f *planFlags) plannerOptions(only []string) (planner.Options, error) {
	opts := planner.Options{
		Only:              only,
		Exclude:           f.exclude,
		IncludeDependents: f.includeDependents,
		StartFrom:         f.startFrom,
		Refresh:           f.refresh,
		Concurrency:       f.concurrency,
	}
	switch f.bump {
	case "":
	case "patch", "minor", "major":
		opts.Bump.OnChange = planner.Kind(f.bump)
	default:
		return opts, fmt.Errorf("invalid --bump %q (want patch, minor, or major)", f.bump)
	}
	return opts, nil
}

// =============================================================================
// Factories
// =============================================================================

// loadWorkspace reads the workspace from the manifest tree under root.
func (c *CLI) loadWorkspace(f *planFlags) (*workspace.Workspace, error) {
	ws, err := workspace.FromSource(workspace.DirSource{Root: f.root})
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("loaded workspace", "root", f.root, "packages", ws.Len())
	return ws, nil
}

// newRegistryClient builds the registry client with the configured
// cache backend. The caller owns the returned cache and must close it.
func (c *CLI) newRegistryClient(ctx context.Context, f *planFlags) (registry.Client, cache.Cache, error) {
	backend, err := c.newCache(ctx, f)
	if err != nil {
		return nil, nil, err
	}

	url := f.registryURL
	if url == "" {
		url = os.Getenv("CONVOY_REGISTRY")
	}
	if url == "" {
		url = defaultRegistryURL
	}
	token := f.token
	if token == "" {
		token = os.Getenv("CONVOY_TOKEN")
	}

	return registry.NewHTTPClient(registry.Config{
		BaseURL: url,
		Token:   token,
		Cache:   backend,
	}), backend, nil
}

func (c *CLI) newCache(ctx context.Context, f *planFlags) (cache.Cache, error) {
	if f.noCache {
		return cache.NewNullCache(), nil
	}

	addr := f.redisAddr
	if addr == "" {
		addr = os.Getenv("CONVOY_REDIS")
	}
	if addr != "" {
		backend, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: addr})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return backend, nil
	}

	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/convoy/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
