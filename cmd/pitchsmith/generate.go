package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pitchsmith-ai/pitchsmith/pkg/budget"
	cachepkg "github.com/pitchsmith-ai/pitchsmith/pkg/cache/sqlite"
	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/engine"
	"github.com/pitchsmith-ai/pitchsmith/pkg/metrics"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider/factory"
	"github.com/pitchsmith-ai/pitchsmith/pkg/selector"
)

func newGenerateCmd() *cobra.Command {
	var (
		configPath   string
		task         string
		prompt       string
		systemPrompt string
		providerName string
		modelID      string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one piece of outreach content",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			taskKind := models.TaskKind(task)
			if !taskKind.Valid() {
				return fmt.Errorf("unknown task kind %q", task)
			}

			if prompt == "" || prompt == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read prompt from stdin: %w", err)
				}
				prompt = string(data)
			}

			rec, err := metrics.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}
			defer func() { _ = rec.Close() }()

			var cache engine.Cache
			if cfg.Cache.Enabled {
				c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
				if err != nil {
					return fmt.Errorf("init cache: %w", err)
				}
				defer func() { _ = c.Close() }()
				cache = c
			}

			var enforcer *budget.Enforcer
			if cfg.Budget.Enabled {
				enforcer = budget.New(cfg.Budget.Policies, rec)
			}

			adapters, err := factory.BuildConfigured(cfg)
			if err != nil {
				return err
			}

			eng := engine.New(cfg, selector.New(cfg), adapters, cache, rec, enforcer)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			req := models.GenerationRequest{
				Prompt:       prompt,
				SystemPrompt: systemPrompt,
				Task:         taskKind,
				Hints: models.ContextHints{
					ContentLength:    len(prompt),
					ProviderOverride: providerName,
					ModelOverride:    modelID,
				},
			}

			tmpl := func(r models.GenerationRequest) (string, bool) {
				return cfg.Template(r.Task)
			}

			result, err := eng.Generate(ctx, req, tmpl)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "served by: %s", result.Provider)
			if result.Model != "" {
				fmt.Fprintf(os.Stderr, " (%s)", result.Model)
			}
			fmt.Fprintln(os.Stderr)
			fmt.Println(result.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pitchsmith.yaml", "path to config file")
	cmd.Flags().StringVarP(&task, "task", "t", string(models.TaskProfileContent), "task kind")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "prompt text (reads stdin when empty or -)")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "optional system prompt")
	cmd.Flags().StringVar(&providerName, "provider", "", "force a specific provider")
	cmd.Flags().StringVar(&modelID, "model", "", "force a specific model")
	return cmd
}
