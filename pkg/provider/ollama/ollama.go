// Package ollama adapts a local Ollama server to the shared provider
// contract. It is the offline link in the fallback chain: no
// credential, just a reachable URL.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider"
)

const defaultTimeout = 300 * time.Second

// Adapter calls an Ollama server's chat API. Safe for concurrent use.
type Adapter struct {
	name          string
	url           string
	client        *http.Client
	fallbackModel string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// New creates an Adapter from provider configuration.
func New(cfg config.ProviderConfig) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ollama provider %q: url not configured", cfg.Name)
	}

	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	fallback := cfg.FallbackModel
	if fallback == "" && len(cfg.Models) > 0 {
		// A local server has no cheaper tier; retry on the first
		// declared model.
		fallback = cfg.Models[0].ID
	}

	return &Adapter{
		name:          cfg.Name,
		url:           strings.TrimSuffix(cfg.URL, "/"),
		client:        &http.Client{Timeout: timeout},
		fallbackModel: fallback,
	}, nil
}

// Name returns the configured provider identifier.
func (a *Adapter) Name() string { return a.name }

// FallbackModel returns the model used for in-provider retries.
func (a *Adapter) FallbackModel() string { return a.fallbackModel }

// Invoke runs one generation call and normalizes the result.
func (a *Adapter) Invoke(ctx context.Context, prompt string, spec models.ModelSpec, systemPrompt string) (models.Generation, error) {
	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:    spec.Model,
		Messages: msgs,
		Stream:   false,
	}
	if spec.MaxTokens > 0 || spec.Temperature > 0 {
		reqBody.Options = &chatOptions{
			NumPredict:  spec.MaxTokens,
			Temperature: spec.Temperature,
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.Generation{}, provider.NewError(provider.KindTransient, a.name, spec.Model,
			fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return models.Generation{}, provider.NewError(provider.KindTransient, a.name, spec.Model,
			fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return models.Generation{}, provider.NewError(provider.KindTransient, a.name, spec.Model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Generation{}, provider.NewError(provider.KindTransient, a.name, spec.Model,
			fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return models.Generation{}, provider.NewError(provider.ClassifyStatus(resp.StatusCode), a.name, spec.Model,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256)))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return models.Generation{}, provider.NewError(provider.KindTransient, a.name, spec.Model,
			fmt.Errorf("decode response: %w", err))
	}

	gen := models.Generation{
		Text:             chat.Message.Content,
		Model:            spec.Model,
		PromptTokens:     chat.PromptEvalCount,
		CompletionTokens: chat.EvalCount,
	}
	log.Debug("ollama generation complete",
		"provider", a.name, "model", spec.Model,
		"prompt_tokens", gen.PromptTokens, "completion_tokens", gen.CompletionTokens)
	return gen, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
