package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pitchsmith-ai/pitchsmith/pkg/budget"
	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
	"github.com/pitchsmith-ai/pitchsmith/pkg/provider"
	"github.com/pitchsmith-ai/pitchsmith/pkg/selector"
)

const longText = "this generated text is comfortably past the minimum length threshold"

type fakeAdapter struct {
	name     string
	fallback string
	respond  func(model string) (models.Generation, error)

	calls []string
}

func (f *fakeAdapter) Name() string          { return f.name }
func (f *fakeAdapter) FallbackModel() string { return f.fallback }

func (f *fakeAdapter) Invoke(_ context.Context, _ string, spec models.ModelSpec, _ string) (models.Generation, error) {
	f.calls = append(f.calls, spec.Model)
	return f.respond(spec.Model)
}

func healthy(name string) *fakeAdapter {
	return &fakeAdapter{
		name: name,
		respond: func(model string) (models.Generation, error) {
			return models.Generation{Text: longText, Model: model, PromptTokens: 10, CompletionTokens: 20}, nil
		},
	}
}

func failing(name string, kind provider.ErrorKind) *fakeAdapter {
	return &fakeAdapter{
		name: name,
		respond: func(model string) (models.Generation, error) {
			return models.Generation{}, provider.NewError(kind, name, model, errors.New("boom"))
		},
	}
}

type fakeCache struct {
	entries map[string]string
	sets    []string // provider partitions written to
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func cacheKey(prompt, providerID string, task models.TaskKind) string {
	return providerID + "|" + string(task) + "|" + prompt
}

func (c *fakeCache) Get(prompt, providerID string, task models.TaskKind) (string, bool) {
	text, ok := c.entries[cacheKey(prompt, providerID, task)]
	return text, ok
}

func (c *fakeCache) Set(prompt, providerID string, task models.TaskKind, response string) error {
	c.entries[cacheKey(prompt, providerID, task)] = response
	c.sets = append(c.sets, providerID)
	return nil
}

type fakeRecorder struct {
	samples []models.Sample
	tokens  map[string]int64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{tokens: make(map[string]int64)}
}

func (r *fakeRecorder) Record(_ context.Context, s models.Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

func (r *fakeRecorder) Snapshot(_ context.Context) (models.UsageSnapshot, error) {
	return models.UsageSnapshot{}, nil
}

func (r *fakeRecorder) TotalTokensByProvider(_ context.Context, providerName string, _ time.Time) (int64, error) {
	return r.tokens[providerName], nil
}

func (r *fakeRecorder) Close() error { return nil }

func (r *fakeRecorder) byProvider(name string) []models.Sample {
	var out []models.Sample
	for _, s := range r.samples {
		if s.Provider == name {
			out = append(out, s)
		}
	}
	return out
}

func engineConfig() *config.Config {
	cfg := config.Default()
	cfg.Generation.MinLength = 10
	cfg.Generation.RateLimitBackoff = time.Millisecond
	cfg.Routing.Longform = []string{"alpha", "beta"}
	cfg.Routing.Structured = []string{"alpha", "beta"}
	cfg.Providers = []config.ProviderConfig{
		{Name: "alpha", Type: config.TypeAnthropic, APIKey: "k",
			Models: []config.ModelConfig{{ID: "alpha-main", Default: true}}},
		{Name: "beta", Type: config.TypeOpenAI, APIKey: "k",
			Models: []config.ModelConfig{{ID: "beta-main", Default: true}}},
	}
	return cfg
}

type harness struct {
	engine   *Engine
	cache    *fakeCache
	recorder *fakeRecorder
	sleeps   int
}

func newHarness(cfg *config.Config, adapters map[string]provider.Adapter, enf *budget.Enforcer) *harness {
	h := &harness{cache: newFakeCache(), recorder: newFakeRecorder()}
	h.engine = New(cfg, selector.New(cfg), adapters, h.cache, h.recorder, enf)
	h.engine.sleep = func(ctx context.Context, _ time.Duration) error {
		h.sleeps++
		return ctx.Err()
	}
	return h
}

func request() models.GenerationRequest {
	return models.GenerationRequest{
		Prompt: "write an intro for the VP of sales at Acme",
		Task:   models.TaskProfileContent,
	}
}

func staticTemplate(models.GenerationRequest) (string, bool) {
	return "Hi there, I came across your profile and wanted to reach out.", true
}

func TestHealthyPrimaryServes(t *testing.T) {
	alpha := healthy("alpha")
	beta := healthy("beta")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha, "beta": beta}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "alpha" || res.Model != "alpha-main" {
		t.Errorf("expected alpha to serve, got %+v", res)
	}
	if len(beta.calls) != 0 {
		t.Errorf("secondary provider should not be invoked, got %d calls", len(beta.calls))
	}
	if len(h.recorder.samples) != 1 {
		t.Fatalf("expected exactly one sample, got %d", len(h.recorder.samples))
	}
	s := h.recorder.samples[0]
	if !s.Success || s.Provider != "alpha" || s.PromptTokens != 10 || s.CompletionTokens != 20 {
		t.Errorf("unexpected sample: %+v", s)
	}
	if s.Retried {
		t.Error("clean first call must not be marked retried")
	}
}

func TestCacheHitSkipsProviders(t *testing.T) {
	alpha := healthy("alpha")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha}, nil)

	req := request()
	h.cache.entries[cacheKey(req.Prompt, "alpha", req.Task)] = "cached text"

	res, err := h.engine.Generate(context.Background(), req, staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached || res.Text != "cached text" {
		t.Errorf("expected cached result, got %+v", res)
	}
	if len(alpha.calls) != 0 {
		t.Errorf("cache hit must not invoke providers, got %d calls", len(alpha.calls))
	}
	if len(h.recorder.samples) != 1 || h.recorder.samples[0].Provider != models.ProviderLabelCache {
		t.Errorf("expected single cache-labeled sample, got %+v", h.recorder.samples)
	}
}

func TestSecondCallServedFromCache(t *testing.T) {
	alpha := healthy("alpha")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha}, nil)
	ctx := context.Background()

	if _, err := h.engine.Generate(ctx, request(), staticTemplate); err != nil {
		t.Fatal(err)
	}
	res, err := h.engine.Generate(ctx, request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Error("expected second identical request to hit cache")
	}
	if len(alpha.calls) != 1 {
		t.Errorf("expected one provider call across both requests, got %d", len(alpha.calls))
	}
}

func TestRateLimitedRetriesOnceOnFallbackModel(t *testing.T) {
	alpha := &fakeAdapter{
		name:     "alpha",
		fallback: "alpha-mini",
		respond: func(model string) (models.Generation, error) {
			if model == "alpha-main" {
				return models.Generation{}, provider.NewError(provider.KindRateLimited, "alpha", model, errors.New("429"))
			}
			return models.Generation{Text: longText, Model: model}, nil
		},
	}
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Model != "alpha-mini" {
		t.Errorf("expected fallback model to serve, got %+v", res)
	}
	if h.sleeps != 1 {
		t.Errorf("expected one backoff sleep, got %d", h.sleeps)
	}
	if got := alpha.calls; len(got) != 2 || got[0] != "alpha-main" || got[1] != "alpha-mini" {
		t.Errorf("unexpected call sequence: %v", got)
	}
	if len(h.recorder.samples) != 1 || !h.recorder.samples[0].Retried {
		t.Errorf("expected single retried sample, got %+v", h.recorder.samples)
	}
}

func TestModelNotFoundRetriesImmediately(t *testing.T) {
	alpha := &fakeAdapter{
		name:     "alpha",
		fallback: "alpha-mini",
		respond: func(model string) (models.Generation, error) {
			if model == "alpha-main" {
				return models.Generation{}, provider.NewError(provider.KindModelNotFound, "alpha", model, errors.New("404"))
			}
			return models.Generation{Text: longText, Model: model}, nil
		},
	}
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Model != "alpha-mini" {
		t.Errorf("expected fallback model, got %+v", res)
	}
	if h.sleeps != 0 {
		t.Errorf("model-not-found retry must not back off, slept %d times", h.sleeps)
	}
}

func TestAuthInvalidAdvancesWithoutRetry(t *testing.T) {
	alpha := failing("alpha", provider.KindAuthInvalid)
	alpha.fallback = "alpha-mini"
	beta := healthy("beta")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha, "beta": beta}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "beta" {
		t.Errorf("expected beta to serve after auth failure, got %+v", res)
	}
	if len(alpha.calls) != 1 {
		t.Errorf("auth failure must not retry within provider, got %d calls", len(alpha.calls))
	}
	if fails := h.recorder.byProvider("alpha"); len(fails) != 1 || fails[0].Success {
		t.Errorf("expected one alpha failure sample, got %+v", fails)
	}
	if succ := h.recorder.byProvider("beta"); len(succ) != 1 || !succ[0].Success {
		t.Errorf("expected one beta success sample, got %+v", succ)
	}
}

func TestShortOutputAdvancesToNextProvider(t *testing.T) {
	alpha := &fakeAdapter{
		name: "alpha",
		respond: func(model string) (models.Generation, error) {
			return models.Generation{Text: "too short", Model: model}, nil
		},
	}
	beta := healthy("beta")
	cfg := engineConfig()
	cfg.Generation.MinLength = 50
	h := newHarness(cfg, map[string]provider.Adapter{"alpha": alpha, "beta": beta}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "beta" {
		t.Errorf("expected advance past sub-threshold output, got %+v", res)
	}
	if fails := h.recorder.byProvider("alpha"); len(fails) != 1 || fails[0].Success {
		t.Errorf("short output must record an alpha failure, got %+v", fails)
	}
}

func TestLengthThresholdCountsRunesStrictly(t *testing.T) {
	// 10 runes but 20 bytes: a byte-length gate would wrongly pass it,
	// and a rune count equal to the minimum is still not above it.
	atThreshold := strings.Repeat("é", 10)
	alpha := &fakeAdapter{
		name: "alpha",
		respond: func(model string) (models.Generation, error) {
			return models.Generation{Text: atThreshold, Model: model}, nil
		},
	}
	beta := &fakeAdapter{
		name: "beta",
		respond: func(model string) (models.Generation, error) {
			return models.Generation{Text: strings.Repeat("é", 11), Model: model}, nil
		},
	}
	cfg := engineConfig()
	cfg.Generation.MinLength = 10
	h := newHarness(cfg, map[string]provider.Adapter{"alpha": alpha, "beta": beta}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "beta" {
		t.Errorf("expected at-threshold output rejected, got %+v", res)
	}
	if fails := h.recorder.byProvider("alpha"); len(fails) != 1 || fails[0].Success {
		t.Errorf("expected alpha failure sample, got %+v", fails)
	}
}

func TestAllProvidersExhaustedUsesTemplate(t *testing.T) {
	alpha := failing("alpha", provider.KindTransient)
	beta := failing("beta", provider.KindTransient)
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha, "beta": beta}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Templated || !strings.Contains(res.Text, "reach out") {
		t.Errorf("expected template result, got %+v", res)
	}
	if res.Provider != models.ProviderLabelTemplate {
		t.Errorf("expected template provider label, got %q", res.Provider)
	}
	// One failure per exhausted provider plus the terminal template sample.
	if len(h.recorder.samples) != 3 {
		t.Fatalf("expected 3 samples, got %+v", h.recorder.samples)
	}
	tmplSamples := h.recorder.byProvider(models.ProviderLabelTemplate)
	if len(tmplSamples) != 1 || tmplSamples[0].Success {
		t.Errorf("template fallback must record a failure sample, got %+v", tmplSamples)
	}
}

func TestNoTemplateIsTerminalFailure(t *testing.T) {
	alpha := failing("alpha", provider.KindTransient)
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha}, nil)

	_, err := h.engine.Generate(context.Background(), request(), nil)
	if !errors.Is(err, ErrTerminalFailure) {
		t.Errorf("expected ErrTerminalFailure, got %v", err)
	}
}

func TestCancellationSkipsChainToTemplate(t *testing.T) {
	alpha := healthy("alpha")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.engine.Generate(ctx, request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Templated {
		t.Errorf("canceled request should fall to template, got %+v", res)
	}
	if len(alpha.calls) != 0 {
		t.Errorf("canceled request must not invoke providers, got %d calls", len(alpha.calls))
	}
}

func TestOverBudgetProviderSkipped(t *testing.T) {
	alpha := healthy("alpha")
	beta := healthy("beta")
	h := &harness{cache: newFakeCache(), recorder: newFakeRecorder()}
	h.recorder.tokens["alpha"] = 5000

	cfg := engineConfig()
	enf := budget.New([]models.BudgetPolicy{
		{Provider: "alpha", MaxTokens: 1000, Period: models.BudgetDaily},
	}, h.recorder)
	h.engine = New(cfg, selector.New(cfg), map[string]provider.Adapter{"alpha": alpha, "beta": beta}, h.cache, h.recorder, enf)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "beta" {
		t.Errorf("expected over-budget alpha skipped, got %+v", res)
	}
	if len(alpha.calls) != 0 {
		t.Errorf("over-budget provider must not be invoked, got %d calls", len(alpha.calls))
	}
}

func TestCacheWritePartitionIsTopCandidate(t *testing.T) {
	alpha := failing("alpha", provider.KindTransient)
	beta := healthy("beta")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"alpha": alpha, "beta": beta}, nil)
	ctx := context.Background()

	if _, err := h.engine.Generate(ctx, request(), staticTemplate); err != nil {
		t.Fatal(err)
	}
	if len(h.cache.sets) != 1 || h.cache.sets[0] != "alpha" {
		t.Fatalf("expected cache write under the lookup partition, got %v", h.cache.sets)
	}

	// The identical follow-up request hits the cache even though a
	// lower-ranked provider produced the text.
	res, err := h.engine.Generate(ctx, request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Errorf("expected follow-up to hit cache, got %+v", res)
	}
	if len(beta.calls) != 1 {
		t.Errorf("expected single beta invocation across both requests, got %d", len(beta.calls))
	}
}

func TestMissingAdapterSkipped(t *testing.T) {
	beta := healthy("beta")
	h := newHarness(engineConfig(), map[string]provider.Adapter{"beta": beta}, nil)

	res, err := h.engine.Generate(context.Background(), request(), staticTemplate)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "beta" {
		t.Errorf("expected candidate without adapter skipped, got %+v", res)
	}
}
