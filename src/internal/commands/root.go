package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewRootCommand builds the keen-netstate command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	root := newRootCommand(&AppContext{})
	root.Version = fmt.Sprintf("%s (commit %s, built %s)", build.Version, build.Commit, build.Date)
	return root
}

func newRootCommand(app *AppContext) *cobra.Command {
	root := &cobra.Command{
		Use:               "keen-netstate",
		Short:             "Declarative network state reconciliation",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		Long: `keen-netstate moves the network configuration of a Linux host to a
desired state described in a YAML or JSON document.

  keen-netstate show
  keen-netstate plan -f state.yml
  keen-netstate apply -f state.yml`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.configExplicit = cmd.Flags().Changed("config")
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", DefaultConfigPath, "path to configuration file")
	root.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "debug output")
	root.PersistentFlags().BoolVar(&app.JSONLogs, "json-logs", false, "log as JSON lines")

	root.AddCommand(
		newShowCmd(app),
		newPlanCmd(app),
		newApplyCmd(app),
		newVerifyCmd(app),
		newServiceCmd(app),
	)
	return root
}
