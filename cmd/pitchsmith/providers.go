package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
)

func newProvidersCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if len(cfg.Providers) == 0 {
				fmt.Println("No providers configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tSTATUS\tMODEL\tTAGS\tDEFAULT")
			for _, p := range cfg.Providers {
				status := "enabled"
				if !p.Configured() {
					status = "disabled (no credential)"
				}
				for _, spec := range p.Specs() {
					def := ""
					if d, ok := p.DefaultSpec(); ok && d.Model == spec.Model {
						def = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						p.Name, p.Type, status, spec.Model, strings.Join(spec.Tags, ","), def)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pitchsmith.yaml", "path to config file")
	return cmd
}
