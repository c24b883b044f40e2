package orchestrator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/llmgate/config"
	"github.com/ghiac/llmgate/contextengine"
	"github.com/ghiac/llmgate/model"
	"github.com/ghiac/llmgate/providerrouter"
	"github.com/ghiac/llmgate/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestOrchestrator(t *testing.T, upstreamURL string) *Orchestrator {
	t.Helper()
	providers := []model.Provider{{Name: "openai", BaseURL: upstreamURL, APIKey: "sk-test", Timeout: 5 * time.Second}}
	mappings := []model.ModelMapping{{DisplayName: "official/gpt-4", ProviderName: "openai", ActualModelName: "gpt-4-turbo"}}
	cfg, err := config.FromResolved(providers, mappings, model.ContextConfig{MaxTurns: 100, ReductionMode: model.ReductionTruncation})
	if err != nil {
		t.Fatalf("config.FromResolved: %v", err)
	}

	sessionStore := store.NewMemoryStore(30 * time.Minute)
	router := providerrouter.New(cfg)
	engine := contextengine.New(router)

	return New(cfg, sessionStore, engine, router)
}

func newRouter(o *Orchestrator) *gin.Engine {
	r := gin.New()
	o.RegisterRoutes(r)
	o.RegisterAdminRoutes(r)
	return r
}

// unavailableStore is a store.SessionStore stub whose every method fails
// as store.ErrUnavailable, simulating a backend that cannot be reached.
type unavailableStore struct{}

func (unavailableStore) Get(sessionKey string) (*model.Session, error) {
	return nil, fmt.Errorf("dial backend: %w", store.ErrUnavailable)
}
func (unavailableStore) Put(session *model.Session) error { return store.ErrUnavailable }
func (unavailableStore) AppendMessage(sessionKey, userID string, msg model.Message) error {
	return store.ErrUnavailable
}
func (unavailableStore) Reset(sessionKey string) error  { return store.ErrUnavailable }
func (unavailableStore) Delete(sessionKey string) error { return store.ErrUnavailable }
func (unavailableStore) List(userID string) ([]*model.Session, error) {
	return nil, store.ErrUnavailable
}

func TestChatCompletions_BufferedHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body openai.ChatCompletionRequest
		json.NewDecoder(req.Body).Decode(&body)
		resp := openai.ChatCompletionResponse{
			Model: body.Model,
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: model.RoleAssistant, Content: "hello there"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	o := newTestOrchestrator(t, server.URL)
	router := newRouter(o)

	body := `{"model":"official/gpt-4","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Model != "official/gpt-4" {
		t.Errorf("response model = %q, want the display name official/gpt-4", resp.Model)
	}
	if resp.Choices[0].Message.Content != "hello there" {
		t.Errorf("content = %q, want %q", resp.Choices[0].Message.Content, "hello there")
	}

	sessions, err := o.Store.List("user-1")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("List: %v, %d sessions", err, len(sessions))
	}
	if got := len(sessions[0].History.Messages); got != 2 {
		t.Errorf("session history has %d messages, want 2 (user + assistant)", got)
	}
}

func TestChatCompletions_MissingUserIDRejected(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	router := newRouter(o)

	body := `{"model":"official/gpt-4","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletions_UnknownModelReturnsModelNotFound(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	router := newRouter(o)

	body := `{"model":"ghost/x","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body2 map[string]map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body2)
	if body2["error"]["code"] != "model_not_found" {
		t.Errorf("error.code = %q, want model_not_found", body2["error"]["code"])
	}

	if sessions, _ := o.Store.List("user-1"); len(sessions) != 0 {
		t.Error("expected no session mutation for an unresolvable model")
	}
}

// TestChatCompletions_StoreUnavailableReturns503WithRetryAfter covers
// Scenario S6: a store unreachable at request time fails the request
// with 503 and a Retry-After hint, and never reaches the upstream
// provider.
func TestChatCompletions_StoreUnavailableReturns503WithRetryAfter(t *testing.T) {
	upstreamCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		upstreamCalled = true
	}))
	defer server.Close()

	providers := []model.Provider{{Name: "openai", BaseURL: server.URL, APIKey: "sk-test", Timeout: 5 * time.Second}}
	mappings := []model.ModelMapping{{DisplayName: "official/gpt-4", ProviderName: "openai", ActualModelName: "gpt-4-turbo"}}
	cfg, err := config.FromResolved(providers, mappings, model.ContextConfig{MaxTurns: 100, ReductionMode: model.ReductionTruncation})
	if err != nil {
		t.Fatalf("config.FromResolved: %v", err)
	}
	router := providerrouter.New(cfg)
	engine := contextengine.New(router)
	o := New(cfg, unavailableStore{}, engine, router)
	r := newRouter(o)

	body := `{"model":"official/gpt-4","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-3")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body = %s, want 503", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}
	if upstreamCalled {
		t.Error("expected no upstream call when the store is unreachable")
	}
}

func TestChatCompletions_Streaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte(`data: {"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4-turbo","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"}}]}` + "\n\n"))
		flusher.Flush()
		w.Write([]byte(`data: {"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4-turbo","choices":[{"index":0,"delta":{"content":" there"}}]}` + "\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	o := newTestOrchestrator(t, server.URL)
	router := newRouter(o)

	body := `{"model":"official/gpt-4","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var frames []string
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			frames = append(frames, data)
		}
	}
	if len(frames) != 3 || frames[2] != "[DONE]" {
		t.Fatalf("frames = %v, want 2 chunks + [DONE]", frames)
	}

	sessions, err := o.Store.List("user-2")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("List: %v, %d sessions", err, len(sessions))
	}
	msgs := sessions[0].History.Messages
	if msgs[len(msgs)-1].Content != "Hi there" {
		t.Errorf("accumulated assistant content = %q, want %q", msgs[len(msgs)-1].Content, "Hi there")
	}
}

func TestModels_EnumeratesMappings(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	router := newRouter(o)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("len(data) = %d, want 1", len(data))
	}
}

func TestHealth_ReportsStorageAndSessionPolicy(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	router := newRouter(o)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["storage"] != "memory" {
		t.Errorf("storage = %v, want memory", body["storage"])
	}
	if body["session_policy"] != "replace" {
		t.Errorf("session_policy = %v, want replace", body["session_policy"])
	}
}

// TestAdminSessionDetail_SurfacesContextReductionEvents drives a request
// whose message count exceeds maxTurns, then checks the admin detail
// endpoint reports the resulting context_reduction event.
func TestAdminSessionDetail_SurfacesContextReductionEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		resp := openai.ChatCompletionResponse{
			Model:   "gpt-4-turbo",
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: model.RoleAssistant, Content: "ok"}}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	providers := []model.Provider{{Name: "openai", BaseURL: server.URL, APIKey: "sk-test", Timeout: 5 * time.Second}}
	mappings := []model.ModelMapping{{DisplayName: "official/gpt-4", ProviderName: "openai", ActualModelName: "gpt-4-turbo"}}
	cfg, err := config.FromResolved(providers, mappings, model.ContextConfig{MaxTurns: 1, ReductionMode: model.ReductionTruncation})
	if err != nil {
		t.Fatalf("config.FromResolved: %v", err)
	}
	sessionStore := store.NewMemoryStore(30 * time.Minute)
	router := providerrouter.New(cfg)
	engine := contextengine.New(router)
	o := New(cfg, sessionStore, engine, router)
	r := newRouter(o)

	body := `{"model":"official/gpt-4","messages":[
		{"role":"user","content":"one"},{"role":"assistant","content":"two"},
		{"role":"user","content":"three"},{"role":"assistant","content":"four"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-User-Id", "user-4")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	detailReq := httptest.NewRequest(http.MethodGet, "/admin/sessions/user-4:default", nil)
	detailRec := httptest.NewRecorder()
	r.ServeHTTP(detailRec, detailReq)
	if detailRec.Code != http.StatusOK {
		t.Fatalf("detail status = %d, body = %s", detailRec.Code, detailRec.Body.String())
	}

	var detail map[string]any
	json.Unmarshal(detailRec.Body.Bytes(), &detail)
	events, _ := detail["context_reduction_events"].([]any)
	if len(events) != 1 {
		t.Fatalf("context_reduction_events = %v, want exactly one recorded event", detail["context_reduction_events"])
	}
	first, _ := events[0].(map[string]any)
	if first["strategy"] != string(model.ReductionTruncation) {
		t.Errorf("strategy = %v, want %q", first["strategy"], model.ReductionTruncation)
	}
}

func TestAdminSessions_RequiresUserParam(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	router := newRouter(o)

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
