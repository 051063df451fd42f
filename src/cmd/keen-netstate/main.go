package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maksimkurb/keen-netstate/src/internal/commands"
	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	root := commands.NewRootCommand(commands.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes a system that does not match the desired state from
// other failures.
func exitCode(err error) int {
	if errors.IsKind(err, errors.KindVerification) {
		return 2
	}
	return 1
}
