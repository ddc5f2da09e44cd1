package models

// TaskKind labels the category of outreach content being generated.
// It biases provider and model selection.
type TaskKind string

const (
	TaskProfileContent  TaskKind = "profileContent"
	TaskCompanyContent  TaskKind = "companyContent"
	TaskWarmFollowup    TaskKind = "warmFollowup"
	TaskMessageAnalysis TaskKind = "messageAnalysis"
	TaskMessageResponse TaskKind = "messageResponse"
)

// RoutingClass groups task kinds by the provider strength they favor.
type RoutingClass string

const (
	// ClassLongform favors providers strong at extended, nuanced prose.
	ClassLongform RoutingClass = "longform"
	// ClassStructured favors providers strong at fast, constrained output.
	ClassStructured RoutingClass = "structured"
)

// Class returns the static routing class for a task kind. Unknown task
// kinds default to longform, the safer class for free-form prose.
func (t TaskKind) Class() RoutingClass {
	switch t {
	case TaskMessageAnalysis, TaskMessageResponse:
		return ClassStructured
	default:
		return ClassLongform
	}
}

// Valid reports whether t is one of the known task kinds.
func (t TaskKind) Valid() bool {
	switch t {
	case TaskProfileContent, TaskCompanyContent, TaskWarmFollowup,
		TaskMessageAnalysis, TaskMessageResponse:
		return true
	}
	return false
}

// ContextHints carries caller-supplied selection hints. An explicit
// provider or model override bypasses classification entirely.
type ContextHints struct {
	ContentLength    int    `json:"content_length,omitempty"`
	ProviderOverride string `json:"provider_override,omitempty"`
	ModelOverride    string `json:"model_override,omitempty"`
}

// GenerationRequest is one immutable content-generation request. A
// single request may produce multiple provider attempts.
type GenerationRequest struct {
	Prompt       string       `json:"prompt"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Task         TaskKind     `json:"task"`
	Hints        ContextHints `json:"hints"`
}

// Generation is a normalized successful provider result.
type Generation struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}
