package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

func newShowCmd(app *AppContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current network state",
		Long: `Print the current network state as a desired state document.

  keen-netstate show
  keen-netstate show --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.setup()
			if err != nil {
				return err
			}
			defer env.close()

			current, err := env.service.CurrentState(cmd.Context())
			if err != nil {
				return err
			}

			var out []byte
			switch format {
			case "yaml":
				out, err = current.ToYAML()
			case "json":
				out, err = json.MarshalIndent(current, "", "  ")
				out = append(out, '\n')
			default:
				return errors.NewInvalidArgument("unknown format %q, expected yaml or json", format)
			}
			if err != nil {
				return errors.Wrap(errors.KindBug, "failed to render state", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}
