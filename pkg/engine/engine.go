// Package engine orchestrates generation requests across the
// selector, cache, provider adapters, and metrics recorder, falling
// back through the provider chain to a static template.
package engine

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/pitchsmith-ai/pitchsmith/pkg/budget"
	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/metrics"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider"
	"github.com/pitchsmith-ai/pitchsmith/pkg/selector"
)

// ErrTerminalFailure is the only error callers of Generate see: every
// provider in the chain was exhausted and no template was available.
var ErrTerminalFailure = errors.New("all providers exhausted and no template fallback available")

// TemplateFunc supplies deterministic static content for a request
// once the provider chain is exhausted.
type TemplateFunc func(req models.GenerationRequest) (string, bool)

// Cache is the subset of the generation cache the engine uses.
type Cache interface {
	Get(prompt, providerID string, task models.TaskKind) (string, bool)
	Set(prompt, providerID string, task models.TaskKind, response string) error
}

// Result is a successful generation outcome. Provider is the label
// that served it: a provider name, "cache", or "template".
type Result struct {
	RequestID string
	Text      string
	Provider  string
	Model     string
	Cached    bool
	Templated bool
}

// Engine runs the per-request fallback state machine. Safe for
// concurrent use; each request executes independently.
type Engine struct {
	selector *selector.Selector
	adapters map[string]provider.Adapter
	cache    Cache
	recorder metrics.Recorder
	enforcer *budget.Enforcer

	minLength int
	backoff   time.Duration

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires an Engine. cache and enforcer may be nil to disable
// caching and budget gating respectively.
func New(cfg *config.Config, sel *selector.Selector, adapters map[string]provider.Adapter, cache Cache, rec metrics.Recorder, enf *budget.Enforcer) *Engine {
	return &Engine{
		selector:  sel,
		adapters:  adapters,
		cache:     cache,
		recorder:  rec,
		enforcer:  enf,
		minLength: cfg.Generation.MinLength,
		backoff:   cfg.Generation.RateLimitBackoff,
		sleep:     sleepCtx,
	}
}

// Generate runs one request through the fallback chain. Provider
// failures never escape: the caller receives generated text, template
// text, or ErrTerminalFailure.
func (e *Engine) Generate(ctx context.Context, req models.GenerationRequest, tmpl TemplateFunc) (Result, error) {
	requestID := uuid.NewString()
	start := time.Now()

	candidates := e.selector.SelectCandidates(req.Task, req.Hints)
	if len(candidates) == 0 {
		log.Warn("no provider candidates, using template", "request_id", requestID, "task", req.Task)
		return e.fallbackToTemplate(ctx, requestID, req, tmpl, start)
	}

	// Cache partition is the highest-ranked candidate's provider.
	cacheProvider := candidates[0].Provider
	if e.cache != nil {
		if text, ok := e.cache.Get(req.Prompt, cacheProvider, req.Task); ok {
			e.record(ctx, models.Sample{
				RequestID: requestID,
				Provider:  models.ProviderLabelCache,
				Task:      req.Task,
				LatencyMs: time.Since(start).Milliseconds(),
				Success:   true,
			})
			return Result{RequestID: requestID, Text: text, Provider: models.ProviderLabelCache, Cached: true}, nil
		}
	}

	for _, cand := range candidates {
		if ctx.Err() != nil {
			// Caller canceled the chain: no further candidates.
			break
		}

		adapter, ok := e.adapters[cand.Provider]
		if !ok {
			log.Warn("no adapter for candidate provider", "request_id", requestID, "provider", cand.Provider)
			continue
		}

		if e.enforcer != nil {
			if err := e.enforcer.Check(ctx, cand.Provider); err != nil {
				if errors.Is(err, budget.ErrBudgetExceeded) {
					log.Warn("provider over budget, skipping", "request_id", requestID, "provider", cand.Provider)
					continue
				}
				log.Error("budget check failed", "request_id", requestID, "provider", cand.Provider, "error", err)
			}
		}

		attemptStart := time.Now()
		gen, retried, err := e.attemptProvider(ctx, req, adapter, cand)
		latency := time.Since(attemptStart).Milliseconds()

		// Length is counted in runes, same as the cache key prefix, and
		// output must exceed the threshold to count as usable.
		if err == nil && utf8.RuneCountInString(gen.Text) > e.minLength {
			if e.cache != nil {
				if cerr := e.cache.Set(req.Prompt, cacheProvider, req.Task, gen.Text); cerr != nil {
					log.Error("cache write failed", "request_id", requestID, "error", cerr)
				}
			}
			e.record(ctx, models.Sample{
				RequestID:        requestID,
				Provider:         cand.Provider,
				Task:             req.Task,
				LatencyMs:        latency,
				PromptTokens:     gen.PromptTokens,
				CompletionTokens: gen.CompletionTokens,
				Success:          true,
				Retried:          retried,
			})
			return Result{
				RequestID: requestID,
				Text:      gen.Text,
				Provider:  cand.Provider,
				Model:     gen.Model,
			}, nil
		}

		if err == nil {
			// Sub-threshold output advances to the next provider, same
			// as a failed call; see DESIGN.md for the retained policy.
			log.Warn("generated text below length threshold, advancing",
				"request_id", requestID, "provider", cand.Provider, "length", utf8.RuneCountInString(gen.Text), "min", e.minLength)
		} else {
			log.Warn("provider exhausted, advancing",
				"request_id", requestID, "provider", cand.Provider, "kind", provider.KindOf(err), "retried", retried, "error", err)
		}

		e.record(ctx, models.Sample{
			RequestID: requestID,
			Provider:  cand.Provider,
			Task:      req.Task,
			LatencyMs: latency,
			Success:   false,
			Retried:   retried,
		})
	}

	return e.fallbackToTemplate(ctx, requestID, req, tmpl, start)
}

// attemptProvider runs one candidate with the provider-local retry
// policy: rate limits back off once onto the provider's cheapest
// model, unknown models retry the documented fallback model
// immediately, auth failures and transient errors never retry.
func (e *Engine) attemptProvider(ctx context.Context, req models.GenerationRequest, adapter provider.Adapter, spec models.ModelSpec) (models.Generation, bool, error) {
	gen, err := adapter.Invoke(ctx, req.Prompt, spec, req.SystemPrompt)
	if err == nil {
		return gen, false, nil
	}

	switch provider.KindOf(err) {
	case provider.KindRateLimited:
		if serr := e.sleep(ctx, e.backoff); serr != nil {
			return models.Generation{}, false, err
		}
	case provider.KindModelNotFound:
		// Retry immediately on the documented fallback model.
	default:
		// AuthInvalid will not resolve itself on retry; Transient
		// advances to the next provider.
		return models.Generation{}, false, err
	}

	fallback := adapter.FallbackModel()
	if fallback == "" || fallback == spec.Model {
		return models.Generation{}, false, err
	}

	retrySpec := spec
	retrySpec.Model = fallback
	log.Info("retrying within provider on fallback model",
		"provider", adapter.Name(), "model", fallback, "kind", provider.KindOf(err))

	gen, retryErr := adapter.Invoke(ctx, req.Prompt, retrySpec, req.SystemPrompt)
	return gen, true, retryErr
}

// fallbackToTemplate is the terminal state after the chain is
// exhausted or skipped. The outcome is recorded as a failure even
// when the caller receives deterministic text.
func (e *Engine) fallbackToTemplate(ctx context.Context, requestID string, req models.GenerationRequest, tmpl TemplateFunc, start time.Time) (Result, error) {
	e.record(ctx, models.Sample{
		RequestID: requestID,
		Provider:  models.ProviderLabelTemplate,
		Task:      req.Task,
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   false,
	})

	if tmpl != nil {
		if text, ok := tmpl(req); ok {
			return Result{
				RequestID: requestID,
				Text:      text,
				Provider:  models.ProviderLabelTemplate,
				Templated: true,
			}, nil
		}
	}

	return Result{}, ErrTerminalFailure
}

func (e *Engine) record(ctx context.Context, s models.Sample) {
	// Samples still get flushed when the caller cancels mid-chain.
	if err := e.recorder.Record(context.WithoutCancel(ctx), s); err != nil {
		log.Error("metrics record failed", "request_id", s.RequestID, "provider", s.Provider, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
