package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps tokens spent against one provider per period.
// Provider "*" matches every provider.
type BudgetPolicy struct {
	Provider  string       `json:"provider" yaml:"provider"`
	MaxTokens int64        `json:"max_tokens" yaml:"max_tokens"`
	Period    BudgetPeriod `json:"period" yaml:"period"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
