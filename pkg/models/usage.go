package models

import "time"

// Provider labels reserved for terminal outcomes that were not served
// by a real provider adapter.
const (
	ProviderLabelCache    = "cache"
	ProviderLabelTemplate = "template"
)

// Sample records one generation attempt or terminal outcome.
type Sample struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Task             TaskKind  `json:"task"`
	LatencyMs        int64     `json:"latency_ms"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Success          bool      `json:"success"`
	Retried          bool      `json:"retried"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProviderStats aggregates attempts against a single provider label.
type ProviderStats struct {
	Requests    int64 `json:"requests"`
	Successes   int64 `json:"successes"`
	Failures    int64 `json:"failures"`
	TotalTokens int64 `json:"total_tokens"`
}

// TaskStats aggregates attempts for a single task kind.
type TaskStats struct {
	Requests  int64 `json:"requests"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// UsageSnapshot is a point-in-time copy of the usage aggregate.
// Counters only ever increase; the snapshot survives restarts because
// every sample is flushed to storage as it is recorded.
type UsageSnapshot struct {
	TotalRequests         int64                    `json:"total_requests"`
	Successes             int64                    `json:"successes"`
	Failures              int64                    `json:"failures"`
	CumulativeLatencyMs   int64                    `json:"cumulative_latency_ms"`
	TotalPromptTokens     int64                    `json:"total_prompt_tokens"`
	TotalCompletionTokens int64                    `json:"total_completion_tokens"`
	PerProvider           map[string]ProviderStats `json:"per_provider"`
	PerTask               map[TaskKind]TaskStats   `json:"per_task"`
}

// SuccessRatePercent derives the overall success rate at read time.
func (s UsageSnapshot) SuccessRatePercent() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(total) * 100
}
