package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cachepkg "github.com/pitchsmith-ai/pitchsmith/pkg/cache/sqlite"
	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the generation cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries:  %d\nHits:     %d\nMisses:   %d\nSaves:    %d\nHit rate: %.1f%%\n",
				stats.Entries, stats.Hits, stats.Misses, stats.Saves, stats.HitRatePercent)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pitchsmith.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
