package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maksimkurb/keen-netstate/src/internal/service"
)

func newApplyCmd(app *AppContext) *cobra.Command {
	var (
		file string
		opts service.ApplyOptions
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a desired state",
		Long: `Apply a desired state under a checkpoint. The checkpoint is rolled back
when applying, settling or verification fails.

  keen-netstate apply -f state.yml
  keen-netstate apply -f state.yml --dry-run
  keen-netstate apply -f state.yml --no-verify`,
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
			result, err := env.service.Apply(cmd.Context(), desired, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, service.RenderPlan(result.Plan, env.cfg.Output.PlanTemplate))
			fmt.Fprintln(out, describeResult(result, opts))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "desired state document (YAML or JSON)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute the plan without applying it")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "skip verification after applying")
	return cmd
}

func describeResult(result *service.ApplyResult, opts service.ApplyOptions) string {
	switch {
	case result.Plan.Empty():
		return "Nothing to do"
	case opts.DryRun:
		return "Dry run, nothing applied"
	}

	msg := fmt.Sprintf("Applied in %d attempt(s)", result.Attempts)
	if result.Checkpoint != "" {
		msg += fmt.Sprintf(", checkpoint %s committed", result.Checkpoint)
	}
	if result.Verified {
		msg += ", verified"
	}
	return msg
}
