package config

import (
	"os"
	"testing"

	"github.com/ghiac/llmgate/model"
)

func TestLoad_ResolvesPlaceholderAndValidates(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-test-key")
	defer os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load("testdata/gateway.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	provider, ok := cfg.Provider("openai")
	if !ok {
		t.Fatal("expected provider \"openai\" to be present")
	}
	if provider.APIKey != "sk-test-key" {
		t.Errorf("APIKey = %q, want resolved env value", provider.APIKey)
	}

	mapping, ok := cfg.Mapping("official/gpt-4")
	if !ok {
		t.Fatal("expected mapping \"official/gpt-4\" to be present")
	}
	if mapping.ActualModelName != "gpt-4" {
		t.Errorf("ActualModelName = %q, want gpt-4", mapping.ActualModelName)
	}

	if cfg.DefaultContext.MaxTurns != 20 {
		t.Errorf("MaxTurns = %d, want 20", cfg.DefaultContext.MaxTurns)
	}
}

func TestLoad_UnresolvedPlaceholderFails(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")

	if _, err := Load("testdata/gateway.yaml"); err == nil {
		t.Fatal("expected error for unresolved ${OPENAI_API_KEY} placeholder")
	}
}

func TestValidate_RejectsUnknownProviderReference(t *testing.T) {
	cfg := &Config{
		providerByName: map[string]model.Provider{},
		mappingByName:  map[string]model.ModelMapping{},
	}
	cfg.Providers = []model.Provider{{Name: "openai", APIKey: "k"}}
	cfg.providerByName["openai"] = cfg.Providers[0]
	cfg.Mappings = []model.ModelMapping{{DisplayName: "m", ProviderName: "ghost"}}
	cfg.mappingByName["m"] = cfg.Mappings[0]

	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for mapping referencing unknown provider")
	}
}

func TestValidate_RejectsSummarizationWithoutModel(t *testing.T) {
	cfg := &Config{
		providerByName: map[string]model.Provider{"openai": {Name: "openai", APIKey: "k"}},
		mappingByName:  map[string]model.ModelMapping{},
		DefaultContext: model.ContextConfig{ReductionMode: model.ReductionSummarization},
	}
	cfg.Providers = []model.Provider{{Name: "openai", APIKey: "k"}}

	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for summarization mode without a summarizationModel")
	}
}

func TestValidate_RejectsUnknownReductionMode(t *testing.T) {
	cfg := &Config{
		providerByName: map[string]model.Provider{"openai": {Name: "openai", APIKey: "k"}},
		mappingByName:  map[string]model.ModelMapping{},
		DefaultContext: model.ContextConfig{ReductionMode: model.ReductionMode("adaptive")},
	}
	cfg.Providers = []model.Provider{{Name: "openai", APIKey: "k"}}

	err := cfg.validate()
	if err == nil {
		t.Fatal("expected validation error for an unsupported reductionMode")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("error = %T, want *ConfigError", err)
	}
}

func TestValidate_RejectsDuplicateProviderNames(t *testing.T) {
	cfg := &Config{
		providerByName: map[string]model.Provider{},
		mappingByName:  map[string]model.ModelMapping{},
	}
	cfg.Providers = []model.Provider{{Name: "openai", APIKey: "k1"}, {Name: "openai", APIKey: "k2"}}

	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for duplicate provider names")
	}
}
