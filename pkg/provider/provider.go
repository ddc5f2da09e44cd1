// Package provider defines the adapter contract shared by all backing
// generation services.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

// ErrorKind classifies a provider failure. Adapters are the only
// place allowed to translate a provider-specific failure into a kind;
// everything downstream dispatches on the kind, never on message text.
type ErrorKind string

const (
	KindModelNotFound ErrorKind = "model_not_found"
	KindRateLimited   ErrorKind = "rate_limited"
	KindAuthInvalid   ErrorKind = "auth_invalid"
	KindTransient     ErrorKind = "transient"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Model    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s (model %s): %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with its classified kind.
func NewError(kind ErrorKind, providerName, model string, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Model: model, Err: err}
}

// KindOf extracts the error kind. Unclassified errors, including
// context cancellation surfaced outside an adapter, count as
// transient.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// Adapter executes generation calls against one backing service and
// normalizes results and failures into the shared shape. Adapters
// hold no mutable state beyond their configured client handle and are
// safe for concurrent use once constructed.
type Adapter interface {
	// Name returns the provider identifier used in routing, cache
	// partitioning, and metrics labels.
	Name() string
	// Invoke runs one generation call. On failure it returns a *Error
	// carrying one of the four kinds; failures are never swallowed.
	Invoke(ctx context.Context, prompt string, spec models.ModelSpec, systemPrompt string) (models.Generation, error)
	// FallbackModel names the provider's smallest/cheapest model, used
	// for in-provider retries after rate limits or unknown models.
	FallbackModel() string
}

// ClassifyStatus maps an HTTP status code to an error kind. Shared by
// adapters whose services signal failures with status codes.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 404:
		return KindModelNotFound
	case status == 429:
		return KindRateLimited
	case status == 401 || status == 403:
		return KindAuthInvalid
	default:
		return KindTransient
	}
}
