package providerrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/llmgate/config"
	"github.com/ghiac/llmgate/model"
)

func testConfig(t *testing.T, providers []model.Provider, mappings []model.ModelMapping) *config.Config {
	t.Helper()
	cfg, err := config.FromResolved(providers, mappings, model.DefaultContextConfig())
	if err != nil {
		t.Fatalf("config.FromResolved: %v", err)
	}
	return cfg
}

func TestResolve_MappingTableTakesPrecedence(t *testing.T) {
	cfg := testConfig(t,
		[]model.Provider{{Name: "openai", APIKey: "k"}},
		[]model.ModelMapping{{DisplayName: "official/gpt-4", ProviderName: "openai", ActualModelName: "gpt-4-turbo"}},
	)
	r := New(cfg)

	provider, actual, _, err := r.Resolve("official/gpt-4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name != "openai" || actual != "gpt-4-turbo" {
		t.Errorf("got (%s, %s), want (openai, gpt-4-turbo)", provider.Name, actual)
	}
}

func TestResolve_FallsBackToNamespaceSplit(t *testing.T) {
	cfg := testConfig(t,
		[]model.Provider{{Name: "openai", APIKey: "k"}},
		nil,
	)
	r := New(cfg)

	provider, actual, _, err := r.Resolve("openai/gpt-4/extra")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if provider.Name != "openai" || actual != "gpt-4/extra" {
		t.Errorf("got (%s, %s), want (openai, gpt-4/extra) — only the first slash should split", provider.Name, actual)
	}
}

func TestResolve_UnknownModelFails(t *testing.T) {
	cfg := testConfig(t, []model.Provider{{Name: "openai", APIKey: "k"}}, nil)
	r := New(cfg)

	_, _, _, err := r.Resolve("ghost/x")
	if err == nil {
		t.Fatal("expected model_not_found error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Code != CodeModelNotFound {
		t.Fatalf("got %#v, want *Error with code model_not_found", err)
	}
}

func TestResolve_NoSlashAndNoMappingFails(t *testing.T) {
	cfg := testConfig(t, []model.Provider{{Name: "openai", APIKey: "k"}}, nil)
	r := New(cfg)

	if _, _, _, err := r.Resolve("gpt-4"); err == nil {
		t.Fatal("expected model_not_found for a bare name with no mapping and no namespace")
	}
}

func TestListModels_EnumeratesMappings(t *testing.T) {
	cfg := testConfig(t,
		[]model.Provider{{Name: "openai", APIKey: "k"}},
		[]model.ModelMapping{
			{DisplayName: "official/gpt-4", ProviderName: "openai", ActualModelName: "gpt-4"},
			{DisplayName: "fast/mini", ProviderName: "openai", ActualModelName: "gpt-4o-mini"},
		},
	)
	r := New(cfg)

	got := r.ListModels()
	if len(got) != 2 {
		t.Fatalf("len(ListModels()) = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.OwnedBy != "openai" {
			t.Errorf("OwnedBy = %q, want openai", m.OwnedBy)
		}
	}
}

func TestDispatch_RewritesModelAndAttachesAuth(t *testing.T) {
	var gotAuth, gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		var body openai.ChatCompletionRequest
		json.NewDecoder(req.Body).Decode(&body)
		gotModel = body.Model

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: body.Model,
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: model.RoleAssistant, Content: "hi"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := model.Provider{Name: "openai", BaseURL: server.URL, APIKey: "sk-test", Timeout: 5 * time.Second}
	r := New(testConfig(t, []model.Provider{provider}, nil))

	resp, err := r.Dispatch(context.Background(), provider, "gpt-4-turbo", openai.ChatCompletionRequest{
		Model:    "official/gpt-4",
		Messages: []openai.ChatCompletionMessage{{Role: model.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotModel != "gpt-4-turbo" {
		t.Errorf("upstream saw model %q, want gpt-4-turbo", gotModel)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("upstream saw Authorization %q, want \"Bearer sk-test\"", gotAuth)
	}
	if resp.Choices[0].Message.Content != "hi" {
		t.Errorf("resp content = %q, want hi", resp.Choices[0].Message.Content)
	}
}

func TestDispatch_SurfacesProviderErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	}))
	defer server.Close()

	provider := model.Provider{Name: "openai", BaseURL: server.URL, APIKey: "sk-test", Timeout: 5 * time.Second}
	r := New(testConfig(t, []model.Provider{provider}, nil))

	_, err := r.Dispatch(context.Background(), provider, "gpt-4", openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{{Role: model.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error for a 429 upstream response")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Code != CodeProviderError {
		t.Fatalf("got %#v, want *Error with code provider_error", err)
	}
}

func TestStreamDispatch_ParsesChunksAndStopsOnDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		frames := []string{
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"lo","reasoning_content":"thinking..."}}]}`,
		}
		for _, f := range frames {
			w.Write([]byte("data: " + f + "\n\n"))
			flusher.Flush()
		}
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	provider := model.Provider{Name: "openai", BaseURL: server.URL, APIKey: "sk-test", Timeout: 5 * time.Second}
	r := New(testConfig(t, []model.Provider{provider}, nil))

	events, err := r.StreamDispatch(context.Background(), provider, "gpt-4", openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{{Role: model.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamDispatch: %v", err)
	}

	var content strings.Builder
	var reasoning strings.Builder
	sawDone := false
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		if ev.Done {
			sawDone = true
			continue
		}
		content.WriteString(ev.Chunk.Choices[0].Delta.Content)
		reasoning.WriteString(ev.Chunk.Choices[0].Delta.ReasoningContent)
	}

	if !sawDone {
		t.Error("expected a terminal Done event")
	}
	if content.String() != "Hello" {
		t.Errorf("accumulated content = %q, want Hello", content.String())
	}
	if reasoning.String() != "thinking..." {
		t.Errorf("accumulated reasoning = %q, want thinking...", reasoning.String())
	}
}

func TestStreamDispatch_PreservesUnknownDeltaFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte(`data: {"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"hi","vendor_extension":{"nested":true}}}]}` + "\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	provider := model.Provider{Name: "openai", BaseURL: server.URL, APIKey: "sk-test", Timeout: 5 * time.Second}
	r := New(testConfig(t, []model.Provider{provider}, nil))

	events, err := r.StreamDispatch(context.Background(), provider, "gpt-4", openai.ChatCompletionRequest{})
	if err != nil {
		t.Fatalf("StreamDispatch: %v", err)
	}

	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		if ev.Done {
			continue
		}
		out, err := json.Marshal(ev.Chunk.Choices[0].Delta)
		if err != nil {
			t.Fatalf("re-marshal delta: %v", err)
		}
		if !strings.Contains(string(out), `"vendor_extension":{"nested":true}`) {
			t.Errorf("re-marshaled delta %s lost the unknown field", out)
		}
	}
}
