// Package commands implements the keen-netstate command line.
//
// Every command is a cobra.Command built by a newXxxCmd constructor and
// registered on the root command:
//
//   - show: print the current network state
//   - plan: print the plan that moves the system to a desired state
//   - apply: apply a desired state under a checkpoint
//   - verify: check the current state against a desired state
//   - service: run the HTTP API and re-apply the desired state file on change
//
// Commands are thin: they load the configuration, build the dependency
// container and delegate to the service layer.
//
// # Example Usage
//
//	root := commands.NewRootCommand(commands.BuildInfo{Version: "dev"})
//	root.SetArgs([]string{"apply", "-f", "/etc/keen-netstate/state.yml", "--dry-run"})
//	if err := root.Execute(); err != nil {
//	    os.Exit(1)
//	}
package commands
