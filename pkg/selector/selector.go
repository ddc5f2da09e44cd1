// Package selector ranks provider+model candidates for a generation
// task.
package selector

import (
	"github.com/pitchsmith-ai/pitchsmith/pkg/config"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

// Selector decides the ordered provider preference for a task. It
// only ever returns providers with a usable client configured; an
// empty result tells the invoker to go straight to the static
// template.
type Selector struct {
	cfg *config.Config
}

// New creates a Selector over the given configuration.
func New(cfg *config.Config) *Selector {
	return &Selector{cfg: cfg}
}

// SelectCandidates returns an ordered list of provider+model
// candidates for the task. An explicit provider or model override
// wins outright and is returned as the sole candidate.
func (s *Selector) SelectCandidates(task models.TaskKind, hints models.ContextHints) []models.ModelSpec {
	if hints.ProviderOverride != "" || hints.ModelOverride != "" {
		if spec, ok := s.resolveOverride(hints); ok {
			return []models.ModelSpec{spec}
		}
		return nil
	}

	class := task.Class()
	if hints.ContentLength > s.cfg.Generation.LongFormThreshold {
		// Long content escalates into the long-form class regardless
		// of the nominal task kind.
		class = models.ClassLongform
	}

	var order []string
	switch class {
	case models.ClassStructured:
		order = s.cfg.Routing.Structured
	default:
		order = s.cfg.Routing.Longform
	}

	var candidates []models.ModelSpec
	listed := make(map[string]bool, len(order))
	for _, name := range order {
		listed[name] = true
		p, ok := s.cfg.Provider(name)
		if !ok || !p.Configured() {
			continue
		}
		if spec, ok := s.pickModel(p, class); ok {
			candidates = append(candidates, spec)
		}
	}

	// Configured providers absent from the preference list still
	// belong in the chain, after the listed ones.
	for _, p := range s.cfg.Providers {
		if listed[p.Name] || !p.Configured() {
			continue
		}
		if spec, ok := s.pickModel(p, class); ok {
			candidates = append(candidates, spec)
		}
	}

	return candidates
}

// resolveOverride maps explicit hints to a single candidate. The
// override only resolves against providers with a usable client.
func (s *Selector) resolveOverride(hints models.ContextHints) (models.ModelSpec, bool) {
	if hints.ProviderOverride != "" {
		p, ok := s.cfg.Provider(hints.ProviderOverride)
		if !ok || !p.Configured() {
			return models.ModelSpec{}, false
		}
		if hints.ModelOverride != "" {
			return p.SpecFor(hints.ModelOverride), true
		}
		return p.DefaultSpec()
	}

	// Model-only override: find the provider whose catalog declares it.
	for _, p := range s.cfg.Providers {
		if !p.Configured() {
			continue
		}
		for _, spec := range p.Specs() {
			if spec.Model == hints.ModelOverride {
				return spec, true
			}
		}
	}
	return models.ModelSpec{}, false
}

// pickModel chooses the model within a provider for a routing class.
// Structured tasks prefer descriptors tagged fast or cost-effective,
// long-form tasks prefer complex; first match in declaration order
// wins, otherwise the provider default.
func (s *Selector) pickModel(p config.ProviderConfig, class models.RoutingClass) (models.ModelSpec, bool) {
	var wanted []string
	switch class {
	case models.ClassStructured:
		wanted = []string{"fast", "cost-effective"}
	default:
		wanted = []string{"complex"}
	}

	for _, spec := range p.Specs() {
		for _, tag := range wanted {
			if spec.HasTag(tag) {
				return spec, true
			}
		}
	}
	return p.DefaultSpec()
}
