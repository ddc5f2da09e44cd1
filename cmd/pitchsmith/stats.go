package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/metrics"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

func newStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show generation usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			rec, err := metrics.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = rec.Close() }()

			snap, err := rec.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if snap.TotalRequests == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			fmt.Printf("Requests: %d\nSuccesses: %d\nFailures: %d\nSuccess rate: %.1f%%\nCumulative latency: %dms\nTokens: %d prompt / %d completion\n\n",
				snap.TotalRequests, snap.Successes, snap.Failures, snap.SuccessRatePercent(),
				snap.CumulativeLatencyMs, snap.TotalPromptTokens, snap.TotalCompletionTokens)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tREQUESTS\tSUCCESSES\tFAILURES\tTOKENS")
			providers := make([]string, 0, len(snap.PerProvider))
			for name := range snap.PerProvider {
				providers = append(providers, name)
			}
			sort.Strings(providers)
			for _, name := range providers {
				ps := snap.PerProvider[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", name, ps.Requests, ps.Successes, ps.Failures, ps.TotalTokens)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tREQUESTS\tSUCCESSES\tFAILURES")
			tasks := make([]string, 0, len(snap.PerTask))
			for task := range snap.PerTask {
				tasks = append(tasks, string(task))
			}
			sort.Strings(tasks)
			for _, task := range tasks {
				ts := snap.PerTask[models.TaskKind(task)]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", task, ts.Requests, ts.Successes, ts.Failures)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pitchsmith.yaml", "path to config file")
	return cmd
}
