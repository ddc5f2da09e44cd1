package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitchsmith-ai/pitchsmith/pkg/budget"
	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/metrics"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show per-provider token budget status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if !cfg.Budget.Enabled || len(cfg.Budget.Policies) == 0 {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			rec, err := metrics.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = rec.Close() }()

			enforcer := budget.New(cfg.Budget.Policies, rec)
			statuses, err := enforcer.Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tPERIOD\tLIMIT\tUSED\tREMAINING")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					s.Policy.Provider, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pitchsmith.yaml", "path to config file")
	return cmd
}
