package config

import (
	"fmt"

	"github.com/ghiac/llmgate/model"
)

// ConfigError is returned on any Configuration Model validation failure.
// Its Error text identifies the offending field, per the fail-fast
// contract: the process must refuse to serve traffic and surface a
// human-readable message.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// validate enforces every rule the Configuration Model requires before any
// request may be served:
//   - every mapping's providerName references an existing provider
//   - every summarization reductionMode names a resolvable summarizationModel
//   - no duplicate provider names or mapping display names
//   - every provider's apiKey is non-empty (the only required secret)
func (c *Config) validate() error {
	seenProviders := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return &ConfigError{Field: "providers[].name", Message: "provider name must not be empty"}
		}
		if seenProviders[p.Name] {
			return &ConfigError{Field: "providers[].name", Message: fmt.Sprintf("duplicate provider name %q", p.Name)}
		}
		seenProviders[p.Name] = true

		if p.APIKey == "" {
			return &ConfigError{Field: fmt.Sprintf("providers[%s].apiKey", p.Name), Message: "required secret is missing"}
		}
	}

	seenMappings := make(map[string]bool, len(c.Mappings))
	for _, m := range c.Mappings {
		if m.DisplayName == "" {
			return &ConfigError{Field: "mappings[].displayName", Message: "display name must not be empty"}
		}
		if seenMappings[m.DisplayName] {
			return &ConfigError{Field: "mappings[].displayName", Message: fmt.Sprintf("duplicate mapping display name %q", m.DisplayName)}
		}
		seenMappings[m.DisplayName] = true

		if !seenProviders[m.ProviderName] {
			return &ConfigError{
				Field:   fmt.Sprintf("mappings[%s].providerName", m.DisplayName),
				Message: fmt.Sprintf("references unknown provider %q", m.ProviderName),
			}
		}

		cc := m.EffectiveContextConfig(c.DefaultContext)
		if err := c.validateContextConfig(fmt.Sprintf("mappings[%s].contextConfig", m.DisplayName), cc); err != nil {
			return err
		}
	}

	return c.validateContextConfig("defaultContext", c.DefaultContext)
}

// validateContextConfig enforces: reductionMode names one of the three
// supported strategies, and reductionMode=summarization requires a
// summarizationModel that itself resolves to a known mapping or
// "provider/model" form. Any other reductionMode value (a typo, or a
// strategy not yet implemented, e.g. an adaptive mode) is rejected here
// rather than left to fall through the Context Engine's dispatch switch
// at request time.
func (c *Config) validateContextConfig(field string, cc model.ContextConfig) error {
	switch cc.ReductionMode {
	case model.ReductionTruncation, model.ReductionSlidingWindow, model.ReductionSummarization:
	default:
		return &ConfigError{
			Field:   field,
			Message: fmt.Sprintf("reductionMode %q is not supported", cc.ReductionMode),
		}
	}

	if cc.ReductionMode != model.ReductionSummarization {
		return nil
	}
	if cc.SummarizationModel == "" {
		return &ConfigError{Field: field, Message: "reductionMode=summarization requires a summarizationModel"}
	}
	if _, ok := c.mappingByName[cc.SummarizationModel]; ok {
		return nil
	}
	namespace, _ := model.SplitNamespace(cc.SummarizationModel)
	if namespace != "" {
		if _, ok := c.providerByName[namespace]; ok {
			return nil
		}
	}
	return &ConfigError{
		Field:   field,
		Message: fmt.Sprintf("summarizationModel %q does not resolve to a known mapping or provider/model form", cc.SummarizationModel),
	}
}
