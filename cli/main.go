package main

import (
	"os"

	"github.com/grafana/treeforge/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
