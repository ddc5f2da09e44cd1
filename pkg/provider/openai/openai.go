// Package openai adapts the OpenAI chat completions API to the shared
// provider contract.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	sdk "github.com/sashabaranov/go-openai"

	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider"
)

const (
	defaultTimeout       = 120 * time.Second
	defaultFallbackModel = "gpt-4o-mini"
)

// Adapter calls the OpenAI chat completions API. Also works with
// OpenAI-compatible services via a custom base URL. Safe for
// concurrent use.
type Adapter struct {
	name          string
	client        *sdk.Client
	fallbackModel string
}

// New creates an Adapter from provider configuration.
func New(cfg config.ProviderConfig) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider %q: api key not configured", cfg.Name)
	}

	clientCfg := sdk.DefaultConfig(cfg.APIKey)
	if cfg.URL != "" {
		clientCfg.BaseURL = cfg.URL
	}
	if cfg.TimeoutSeconds > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}

	fallback := cfg.FallbackModel
	if fallback == "" {
		fallback = defaultFallbackModel
	}

	return &Adapter{
		name:          cfg.Name,
		client:        sdk.NewClientWithConfig(clientCfg),
		fallbackModel: fallback,
	}, nil
}

// Name returns the configured provider identifier.
func (a *Adapter) Name() string { return a.name }

// FallbackModel returns the cheapest model for in-provider retries.
func (a *Adapter) FallbackModel() string { return a.fallbackModel }

// Invoke runs one generation call and normalizes the result.
func (a *Adapter) Invoke(ctx context.Context, prompt string, spec models.ModelSpec, systemPrompt string) (models.Generation, error) {
	msgs := make([]sdk.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, sdk.ChatCompletionMessage{
			Role:    sdk.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	msgs = append(msgs, sdk.ChatCompletionMessage{
		Role:    sdk.ChatMessageRoleUser,
		Content: prompt,
	})

	req := sdk.ChatCompletionRequest{
		Model:    spec.Model,
		Messages: msgs,
	}
	if spec.MaxTokens > 0 {
		req.MaxTokens = spec.MaxTokens
	}
	if spec.Temperature > 0 {
		req.Temperature = float32(spec.Temperature)
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.Generation{}, a.classify(spec.Model, err)
	}
	if len(resp.Choices) == 0 {
		return models.Generation{}, provider.NewError(provider.KindTransient, a.name, spec.Model,
			fmt.Errorf("response contained no choices"))
	}

	gen := models.Generation{
		Text:             resp.Choices[0].Message.Content,
		Model:            spec.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	log.Debug("openai generation complete",
		"provider", a.name, "model", spec.Model,
		"prompt_tokens", gen.PromptTokens, "completion_tokens", gen.CompletionTokens)
	return gen, nil
}

// classify maps an SDK failure onto the shared error taxonomy. The
// SDK surfaces API failures as *sdk.APIError and transport-level
// failures as *sdk.RequestError, both carrying the HTTP status.
func (a *Adapter) classify(model string, err error) error {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		return provider.NewError(provider.ClassifyStatus(apiErr.HTTPStatusCode), a.name, model, err)
	}
	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) {
		return provider.NewError(provider.ClassifyStatus(reqErr.HTTPStatusCode), a.name, model, err)
	}
	return provider.NewError(provider.KindTransient, a.name, model, err)
}
