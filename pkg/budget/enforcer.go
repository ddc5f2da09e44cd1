// Package budget caps token spend per provider.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitchsmith-ai/pitchsmith/pkg/metrics"
	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

// ErrBudgetExceeded is returned when a provider has spent its token
// budget for the current period.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Enforcer checks recorded token usage against budget policies. An
// over-budget provider is skipped in the fallback chain the same way
// a disabled provider is skipped by the selector.
type Enforcer struct {
	policies []models.BudgetPolicy
	recorder metrics.Recorder
}

// New creates an Enforcer with the given policies and recorder.
func New(policies []models.BudgetPolicy, rec metrics.Recorder) *Enforcer {
	return &Enforcer{policies: policies, recorder: rec}
}

// Check returns ErrBudgetExceeded if the provider has exhausted any
// applicable policy for the current period.
func (e *Enforcer) Check(ctx context.Context, providerName string) error {
	for _, p := range e.policies {
		if p.Provider != "*" && p.Provider != providerName {
			continue
		}
		used, err := e.recorder.TotalTokensByProvider(ctx, providerName, periodStart(p.Period))
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return ErrBudgetExceeded
		}
	}
	return nil
}

// Status returns the current usage against every policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		used, err := e.recorder.TotalTokensByProvider(ctx, p.Provider, periodStart(p.Period))
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func periodStart(period models.BudgetPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
