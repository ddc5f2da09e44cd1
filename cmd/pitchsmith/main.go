package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "pitchsmith",
		Short:   "Resilient multi-provider outreach content engine",
		Version: version,
	}

	root.AddCommand(
		newGenerateCmd(),
		newStatsCmd(),
		newCacheCmd(),
		newProvidersCmd(),
		newBudgetCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
