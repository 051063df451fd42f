package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maksimkurb/keen-netstate/src/internal/service"
)

func newPlanCmd(app *AppContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the changes needed to reach a desired state",
		Long: `Compute the plan that moves the system to the desired state without
changing anything. Without --file the desired state file of the
configuration is used.

  keen-netstate plan -f state.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.setup()
			if err != nil {
				return err
			}
			defer env.close()

			desired, err := env.loadDesired(file)
			if err != nil {
				return err
			}
			plan, err := env.service.Plan(cmd.Context(), desired)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), service.RenderPlan(plan, env.cfg.Output.PlanTemplate))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "desired state document (YAML or JSON)")
	return cmd
}
