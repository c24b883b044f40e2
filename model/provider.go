package model

import "time"

// ProviderType distinguishes upstreams whose wire quirks the Provider
// Router may need to special-case (credentials shape, endpoint path).
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai"
	ProviderTypeAzure  ProviderType = "azure"
	ProviderTypeCustom ProviderType = "custom"
)

// Provider is a configured upstream LLM backend. Name is unique across the
// resolved configuration. APIKey is sourced from the resolved
// configuration's environment-substitution pass and is never logged.
type Provider struct {
	Name           string
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	ModelAllowList []string
	ProviderType   ProviderType
}

// AllowsModel reports whether actualModelName may be dispatched to this
// provider. An empty allow-list permits every model.
func (p Provider) AllowsModel(actualModelName string) bool {
	if len(p.ModelAllowList) == 0 {
		return true
	}
	for _, m := range p.ModelAllowList {
		if m == actualModelName {
			return true
		}
	}
	return false
}
