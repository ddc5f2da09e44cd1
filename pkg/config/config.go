package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

// Provider types understood by the adapter factory.
const (
	TypeAnthropic = "anthropic"
	TypeOpenAI    = "openai"
	TypeOllama    = "ollama"
)

// Config holds all Pitchsmith configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	DBPath     string                     `yaml:"db_path"`
	Providers  []ProviderConfig           `yaml:"providers"`
	Routing    RoutingConfig              `yaml:"routing"`
	Cache      CacheConfig                `yaml:"cache"`
	Generation GenerationConfig           `yaml:"generation"`
	Budget     BudgetConfig               `yaml:"budget"`
	Templates  map[models.TaskKind]string `yaml:"templates"`
}

// ProviderConfig defines one upstream generation service and its
// model catalog. A provider without a credential is disabled, not an
// error: the selector simply skips it.
type ProviderConfig struct {
	Name           string        `yaml:"name"`
	Type           string        `yaml:"type"`
	APIKey         string        `yaml:"api_key"`
	URL            string        `yaml:"url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	FallbackModel  string        `yaml:"fallback_model"`
	Models         []ModelConfig `yaml:"models"`
}

// ModelConfig describes one model in a provider's catalog.
type ModelConfig struct {
	ID          string   `yaml:"id"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float64  `yaml:"temperature"`
	Tags        []string `yaml:"tags"`
	Default     bool     `yaml:"default"`
}

// RoutingConfig orders provider names per routing class.
type RoutingConfig struct {
	Longform   []string `yaml:"longform"`
	Structured []string `yaml:"structured"`
}

// CacheConfig controls the generation cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// UnmarshalYAML decodes the TTL from a duration string like "24h".
// Absent fields keep whatever value is already set, so defaults
// survive partial configs.
func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled *bool  `yaml:"enabled"`
		TTL     string `yaml:"ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.TTL != "" {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("cache.ttl: %w", err)
		}
		c.TTL = ttl
	}
	return nil
}

// GenerationConfig holds engine tuning knobs.
type GenerationConfig struct {
	MinLength         int           `yaml:"min_length"`
	RateLimitBackoff  time.Duration `yaml:"rate_limit_backoff"`
	LongFormThreshold int           `yaml:"long_form_threshold"`
}

// UnmarshalYAML decodes the backoff from a duration string like "2s".
// Absent fields keep whatever value is already set.
func (g *GenerationConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MinLength         *int   `yaml:"min_length"`
		RateLimitBackoff  string `yaml:"rate_limit_backoff"`
		LongFormThreshold *int   `yaml:"long_form_threshold"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MinLength != nil {
		g.MinLength = *raw.MinLength
	}
	if raw.LongFormThreshold != nil {
		g.LongFormThreshold = *raw.LongFormThreshold
	}
	if raw.RateLimitBackoff != "" {
		backoff, err := time.ParseDuration(raw.RateLimitBackoff)
		if err != nil {
			return fmt.Errorf("generation.rate_limit_backoff: %w", err)
		}
		g.RateLimitBackoff = backoff
	}
	return nil
}

// BudgetConfig controls per-provider token budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// Configured reports whether the provider has the credential or
// endpoint it needs to serve requests.
func (p ProviderConfig) Configured() bool {
	switch p.Type {
	case TypeOllama:
		return p.URL != ""
	default:
		return p.APIKey != ""
	}
}

// Specs converts the model catalog into ModelSpec values in
// declaration order.
func (p ProviderConfig) Specs() []models.ModelSpec {
	specs := make([]models.ModelSpec, 0, len(p.Models))
	for _, m := range p.Models {
		specs = append(specs, models.ModelSpec{
			Provider:    p.Name,
			Model:       m.ID,
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			Tags:        m.Tags,
			Default:     m.Default,
		})
	}
	return specs
}

// DefaultSpec returns the provider's default model spec: the first
// entry flagged default, otherwise the first declared model.
func (p ProviderConfig) DefaultSpec() (models.ModelSpec, bool) {
	specs := p.Specs()
	if len(specs) == 0 {
		return models.ModelSpec{}, false
	}
	for _, s := range specs {
		if s.Default {
			return s, true
		}
	}
	return specs[0], true
}

// SpecFor returns the spec for a specific model ID, or a minimal spec
// carrying just the ID when the model is not in the catalog.
func (p ProviderConfig) SpecFor(modelID string) models.ModelSpec {
	for _, s := range p.Specs() {
		if s.Model == modelID {
			return s
		}
	}
	return models.ModelSpec{Provider: p.Name, Model: modelID}
}

// Provider looks up a provider by name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Template returns the static fallback template for a task kind.
func (c *Config) Template(task models.TaskKind) (string, bool) {
	tmpl, ok := c.Templates[task]
	return tmpl, ok
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "pitchsmith.db",
		Routing: RoutingConfig{
			Longform:   []string{"anthropic", "openai", "ollama"},
			Structured: []string{"openai", "anthropic", "ollama"},
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Generation: GenerationConfig{
			MinLength:         50,
			RateLimitBackoff:  2 * time.Second,
			LongFormThreshold: 2000,
		},
		Budget: BudgetConfig{
			Enabled: false,
		},
	}
}

// Load reads a YAML config file, expands environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants that must hold before any
// component consumes the config.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case TypeAnthropic, TypeOpenAI, TypeOllama:
		default:
			return fmt.Errorf("provider %q: unknown type %q", p.Name, p.Type)
		}

		if len(p.Models) == 0 {
			return fmt.Errorf("provider %q: no models declared", p.Name)
		}
		defaults := 0
		for _, m := range p.Models {
			if m.ID == "" {
				return fmt.Errorf("provider %q: model with empty id", p.Name)
			}
			if m.Default {
				defaults++
			}
		}
		if defaults > 1 {
			return fmt.Errorf("provider %q: multiple default models", p.Name)
		}
	}

	if c.Generation.MinLength < 0 {
		return fmt.Errorf("generation.min_length must not be negative")
	}
	return nil
}
