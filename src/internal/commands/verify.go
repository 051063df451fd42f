package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(app *AppContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the current state against a desired state",
		Long: `Check that the current network state satisfies the desired state. A
mismatch is reported as a VerificationError.

  keen-netstate verify -f state.yml`,
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
			if err := env.service.Verify(cmd.Context(), desired); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "The system matches the desired state")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "desired state document (YAML or JSON)")
	return cmd
}
