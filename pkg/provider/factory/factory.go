// Package factory constructs provider adapters from configuration.
package factory

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider"
	anthropicProvider "github.com/pitchsmith-ai/pitchsmith/pkg/provider/anthropic"
	ollamaProvider "github.com/pitchsmith-ai/pitchsmith/pkg/provider/ollama"
	openaiProvider "github.com/pitchsmith-ai/pitchsmith/pkg/provider/openai"
)

// New constructs the adapter for a single provider config.
func New(cfg config.ProviderConfig) (provider.Adapter, error) {
	switch cfg.Type {
	case config.TypeAnthropic:
		return anthropicProvider.New(cfg)
	case config.TypeOpenAI:
		return openaiProvider.New(cfg)
	case config.TypeOllama:
		return ollamaProvider.New(cfg)
	default:
		return nil, fmt.Errorf("provider %q: unknown type %q", cfg.Name, cfg.Type)
	}
}

// BuildConfigured constructs adapters for every configured provider,
// keyed by provider name. Providers missing a credential are skipped
// with a log line; a missing credential disables the provider, it is
// not a startup failure.
func BuildConfigured(cfg *config.Config) (map[string]provider.Adapter, error) {
	adapters := make(map[string]provider.Adapter, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if !p.Configured() {
			log.Warn("provider disabled: no credential configured", "provider", p.Name, "type", p.Type)
			continue
		}
		a, err := New(p)
		if err != nil {
			return nil, fmt.Errorf("initialise provider %q: %w", p.Name, err)
		}
		adapters[p.Name] = a
	}
	return adapters, nil
}
