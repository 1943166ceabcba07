package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convoy-dev/convoy/pkg/depgraph"
)

// graphCommand creates the graph command: render the dependency
// closure, annotated with planned version transitions.
func (c *CLI) graphCommand() *cobra.Command {
	flags := &planFlags{}
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "graph [packages...]",
		Short: "Render the dependency closure as DOT or SVG",
		Long: `Graph builds the same plan as the plan command and renders the closure
with Graphviz. Packages getting a new release are highlighted and
annotated with their version transition.

Examples:
  convoy graph -o deps.svg
  convoy graph sp-core --format dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, ws, err := c.buildPlan(cmd, flags, args)
			if err != nil {
				return err
			}

			// The plan's steps are the resolved selection, with
			// --include-dependents and --exclude already applied.
			ids := make([]string, 0, len(plan.Steps))
			for _, step := range plan.Steps {
				ids = append(ids, step.ID)
			}
			g, err := depgraph.Closure(ws, ids)
			if err != nil {
				return err
			}

			dot := depgraph.ToDOT(g, depgraph.DOTOptions{
				Annotate: func(id string) string {
					step, ok := plan.Step(id)
					if !ok {
						return ""
					}
					if step.NewRelease && step.PublishedVersion != "" {
						return step.PublishedVersion + " " + iconArrow + " " + step.TargetVersion
					}
					return step.TargetVersion
				},
				Highlight: func(id string) bool {
					step, ok := plan.Step(id)
					return ok && step.NewRelease
				},
			})

			var data []byte
			switch format {
			case "dot":
				data = []byte(dot)
			case "svg":
				data, err = depgraph.RenderSVG(cmd.Context(), dot)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("invalid --format %q (want dot or svg)", format)
			}

			if output == "" {
				fmt.Print(string(data))
				return nil
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write graph: %w", err)
			}
			printSuccess("Graph written")
			printFile(output)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "svg", "output format: dot or svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}
