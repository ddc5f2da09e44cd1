// Package anthropic adapts the Anthropic Messages API to the shared
// provider contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"

	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider"
)

const (
	defaultTimeout       = 120 * time.Second
	defaultMaxTokens     = 1024
	defaultFallbackModel = "claude-haiku-4-5"
)

// Adapter calls the Anthropic Messages API. Safe for concurrent use.
type Adapter struct {
	name          string
	client        sdk.Client
	fallbackModel string
}

// New creates an Adapter from provider configuration.
func New(cfg config.ProviderConfig) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider %q: api key not configured", cfg.Name)
	}

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}

	fallback := cfg.FallbackModel
	if fallback == "" {
		fallback = defaultFallbackModel
	}

	return &Adapter{
		name:          cfg.Name,
		client:        sdk.NewClient(opts...),
		fallbackModel: fallback,
	}, nil
}

// Name returns the configured provider identifier.
func (a *Adapter) Name() string { return a.name }

// FallbackModel returns the cheapest model for in-provider retries.
func (a *Adapter) FallbackModel() string { return a.fallbackModel }

// Invoke runs one generation call and normalizes the result.
func (a *Adapter) Invoke(ctx context.Context, prompt string, spec models.ModelSpec, systemPrompt string) (models.Generation, error) {
	maxTokens := spec.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(spec.Model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if spec.Temperature > 0 {
		params.Temperature = sdk.Float(spec.Temperature)
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return models.Generation{}, a.classify(spec.Model, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	gen := models.Generation{
		Text:             sb.String(),
		Model:            spec.Model,
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	log.Debug("anthropic generation complete",
		"provider", a.name, "model", spec.Model,
		"prompt_tokens", gen.PromptTokens, "completion_tokens", gen.CompletionTokens)
	return gen, nil
}

// classify maps an SDK failure onto the shared error taxonomy. The
// SDK surfaces API failures as *sdk.Error with the HTTP status;
// anything else (network, cancellation) is transient.
func (a *Adapter) classify(model string, err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return provider.NewError(provider.ClassifyStatus(apierr.StatusCode), a.name, model, err)
	}
	return provider.NewError(provider.KindTransient, a.name, model, err)
}
