package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convoy-dev/convoy/pkg/checkpoint"
	"github.com/convoy-dev/convoy/pkg/executor"
	"github.com/convoy-dev/convoy/pkg/httputil"
	"github.com/convoy-dev/convoy/pkg/planner"
)

// publishCommand creates the publish command: plan, then execute the
// releases in order against the registry.
func (c *CLI) publishCommand() *cobra.Command {
	flags := &planFlags{}
	var (
		resume            bool
		retries           int
		afterPublishDelay time.Duration
		visibilityTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish [packages...]",
		Short: "Publish changed packages in dependency order",
		Long: `Publish plans the release set, then pushes each release to the registry
strictly in dependency order, waiting for every version to become
visible before publishing its dependents.

A checkpoint of the run is stored per workspace; after a failure,
--resume picks up from the first unfinished package.

Examples:
  convoy publish                       # publish everything that changed
  convoy publish sp-core               # publish one package and its deps
  convoy publish --resume              # continue an interrupted run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			ws, err := c.loadWorkspace(flags)
			if err != nil {
				return err
			}
			client, backend, err := c.newRegistryClient(ctx, flags)
			if err != nil {
				return err
			}
			defer backend.Close()

			store, err := checkpoint.NewFileStore("")
			if err != nil {
				return fmt.Errorf("checkpoint store: %w", err)
			}

			if resume && flags.startFrom == "" {
				cp, err := store.Load(ctx, flags.root)
				if err != nil {
					return err
				}
				if cp == nil || cp.Complete() {
					printInfo("Nothing to resume")
				} else if id, ok := cp.ResumeFrom(); ok {
					flags.startFrom = id
					printInfo("Resuming run %s from %s", cp.RunID, id)
				}
			}

			opts, err := flags.plannerOptions(args)
			if err != nil {
				return err
			}

			prog := newProgress(logger)
			plan, err := planner.New(client, logger).Plan(ctx, ws, opts)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Planned %d packages, %d releases", len(plan.Steps), len(plan.Releases())))

			printPlan(plan)
			if len(plan.Releases()) == 0 {
				return nil
			}
			printNewline()

			report, runErr := executor.New(client, logger).Execute(ctx, ws, plan, executor.Options{
				Retry:             httputil.Policy{Attempts: retries, Delay: time.Second},
				VisibilityTimeout: visibilityTimeout,
				AfterPublishDelay: afterPublishDelay,
			})

			if err := store.Save(ctx, &checkpoint.Checkpoint{
				WorkspaceRoot: flags.root,
				RunID:         report.RunID,
				CreatedAt:     report.FinishedAt,
				Plan:          plan,
				Report:        report,
			}); err != nil {
				printWarning("Could not save checkpoint: %v", err)
			}

			printReport(report)
			if runErr != nil {
				return runErr
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the last failed run")
	cmd.Flags().IntVar(&retries, "retries", httputil.DefaultPolicy.Attempts, "publish attempts per package")
	cmd.Flags().DurationVar(&afterPublishDelay, "after-publish-delay", 0, "extra pause after each publish")
	cmd.Flags().DurationVar(&visibilityTimeout, "visibility-timeout", time.Minute, "how long to wait for a release to become visible")

	return cmd
}
