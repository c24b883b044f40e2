package llmgate

import (
	"testing"

	"github.com/ghiac/llmgate/config"
	"github.com/ghiac/llmgate/model"
)

func TestNew_WiresMemoryBackendByDefault(t *testing.T) {
	cfg, err := config.FromResolved(
		[]model.Provider{{Name: "openai", APIKey: "k"}},
		[]model.ModelMapping{{DisplayName: "official/gpt-4", ProviderName: "openai", ActualModelName: "gpt-4"}},
		model.DefaultContextConfig(),
	)
	if err != nil {
		t.Fatalf("config.FromResolved: %v", err)
	}

	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer gw.Stop()

	if gw.Orchestrator == nil || gw.Store == nil || gw.Router == nil || gw.Engine == nil {
		t.Fatal("expected every collaborator to be wired")
	}

	models := gw.Router.ListModels()
	if len(models) != 1 || models[0].ID != "official/gpt-4" {
		t.Errorf("ListModels() = %v, want the single configured mapping", models)
	}
}

func TestNew_RejectsUnknownStorageKind(t *testing.T) {
	cfg, err := config.FromResolved(
		[]model.Provider{{Name: "openai", APIKey: "k"}},
		nil,
		model.DefaultContextConfig(),
	)
	if err != nil {
		t.Fatalf("config.FromResolved: %v", err)
	}
	cfg.Storage.Kind = "carrier-pigeon"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unrecognized storage kind")
	}
}
