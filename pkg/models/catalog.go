package models

// ModelSpec describes one model offered by a provider. A provider may
// declare several specs; exactly one acts as its default.
type ModelSpec struct {
	Provider    string   `json:"provider" yaml:"provider"`
	Model       string   `json:"model" yaml:"model"`
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	Default     bool     `json:"default,omitempty" yaml:"default"`
}

// HasTag reports whether the spec carries the given suitability tag.
func (s ModelSpec) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
