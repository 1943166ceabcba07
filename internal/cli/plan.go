package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convoy-dev/convoy/pkg/planner"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// planCommand creates the plan command: build the publish plan and
// show it without touching the registry beyond metadata reads.
func (c *CLI) planCommand() *cobra.Command {
	flags := &planFlags{}
	var output string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan [packages...]",
		Short: "Preview the publish plan without publishing",
		Long: `Plan builds the dependency closure over the named packages (or the whole
workspace), compares every package against the registry, and prints the
ordered publish plan. Nothing is published.

Examples:
  convoy plan                        # plan the whole workspace
  convoy plan sp-core sp-rpc         # plan a slice plus its dependencies
  convoy plan sp-core --include-dependents
  convoy plan --output plan.json     # save the plan for later inspection`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, _, err := c.buildPlan(cmd, flags, args)
			if err != nil {
				return err
			}

			if asJSON || output != "" {
				data, err := plan.Encode()
				if err != nil {
					return err
				}
				if output == "" {
					fmt.Print(string(data))
				} else if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write plan: %w", err)
				} else {
					printSuccess("Plan written")
					printFile(output)
				}
				return nil
			}

			printPlan(plan)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan as JSON to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as JSON")

	return cmd
}

// buildPlan loads the workspace, wires the registry client, and runs
// the planner. Shared by the plan and graph commands.
func (c *CLI) buildPlan(cmd *cobra.Command, flags *planFlags, args []string) (*planner.Plan, *workspace.Workspace, error) {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	ws, err := c.loadWorkspace(flags)
	if err != nil {
		return nil, nil, err
	}

	client, backend, err := c.newRegistryClient(ctx, flags)
	if err != nil {
		return nil, nil, err
	}
	defer backend.Close()

	opts, err := flags.plannerOptions(args)
	if err != nil {
		return nil, nil, err
	}

	prog := newProgress(logger)
	plan, err := planner.New(client, logger).Plan(ctx, ws, opts)
	if err != nil {
		return nil, nil, err
	}
	prog.done(fmt.Sprintf("Planned %d packages, %d releases", len(plan.Steps), len(plan.Releases())))
	return plan, ws, nil
}
