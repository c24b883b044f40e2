// Package providerrouter resolves a client-visible model name to a
// configured upstream provider and performs the buffered or streaming
// HTTP call that reaches it. It is the only component that talks to the
// outside world on the hot path; the orchestrator never constructs an
// upstream request itself.
package providerrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/llmgate/config"
	llminterface "github.com/ghiac/llmgate/llm-interface"
	"github.com/ghiac/llmgate/llmutils"
	"github.com/ghiac/llmgate/model"
)

// ModelInfo is one entry of listModels()'s result, shaped for the
// GET /v1/models response.
type ModelInfo struct {
	ID      string
	OwnedBy string
	Created int64
}

// StreamEvent is one item of streamDispatch's lazy, finite sequence. A
// non-nil Err ends the sequence after this event; Done marks the
// [DONE]/upstream-close terminator with no further events to follow.
type StreamEvent struct {
	Chunk *llminterface.ChatCompletionChunk
	Err   error
	Done  bool
}

// Router is the Provider Router. It holds one pooled *http.Client per
// configured provider, built lazily and reused across requests per the
// "HTTP client connections to providers are pooled per Provider.name"
// resource contract.
type Router struct {
	cfg *config.Config

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New builds a Router over the resolved Configuration.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg, clients: make(map[string]*http.Client)}
}

// Resolve implements the resolution algorithm: mapping-table lookup
// first, then first-"/"-split structural parsing against known
// providers, failing with model_not_found otherwise.
func (r *Router) Resolve(displayName string) (model.Provider, string, model.ContextConfig, error) {
	if mapping, ok := r.cfg.Mapping(displayName); ok {
		provider, ok := r.cfg.Provider(mapping.ProviderName)
		if !ok {
			return model.Provider{}, "", model.ContextConfig{}, ErrModelNotFound(displayName)
		}
		return provider, mapping.ActualModelName, mapping.EffectiveContextConfig(r.cfg.DefaultContext), nil
	}

	namespace, rest := model.SplitNamespace(displayName)
	if namespace != "" {
		if provider, ok := r.cfg.Provider(namespace); ok {
			return provider, rest, r.cfg.DefaultContext, nil
		}
	}

	return model.Provider{}, "", model.ContextConfig{}, ErrModelNotFound(displayName)
}

// ListModels enumerates every configured mapping as a /v1/models entry.
func (r *Router) ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.cfg.Mappings))
	for _, m := range r.cfg.Mappings {
		out = append(out, ModelInfo{ID: m.DisplayName, OwnedBy: m.ProviderName})
	}
	return out
}

// clientFor returns the pooled HTTP client for provider, constructing and
// caching one on first use.
func (r *Router) clientFor(provider model.Provider) *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[provider.Name]; ok {
		return c
	}

	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := &http.Client{Timeout: timeout}
	c := llmutils.NewProviderHTTPClient(provider.APIKey, nil, base)
	r.clients[provider.Name] = c
	return c
}

// Dispatch performs a buffered (non-streaming) call to provider, with
// req.Model rewritten to actualModelName. All other OpenAI-compatible
// parameters pass through unchanged.
func (r *Router) Dispatch(ctx context.Context, provider model.Provider, actualModelName string, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	req.Model = actualModelName
	req.Stream = false

	client := llmutils.NewOpenAIClientForProvider(provider.APIKey, provider.BaseURL, r.clientFor(provider))

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyError(provider.Name, err)
	}
	return &resp, nil
}

// StreamDispatch performs a streaming call to provider, returning a
// channel of StreamEvent the caller drains until Done or Err. The
// returned channel is always closed by the background goroutine, whether
// the stream ends normally, the upstream closes, or ctx is canceled.
func (r *Router) StreamDispatch(ctx context.Context, provider model.Provider, actualModelName string, req openai.ChatCompletionRequest) (<-chan StreamEvent, error) {
	req.Model = actualModelName
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, ErrInvalidResponse(provider.Name, err)
	}

	url := strings.TrimRight(provider.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, classifyError(provider.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := r.clientFor(provider).Do(httpReq)
	if err != nil {
		return nil, classifyError(provider.Name, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		diagnostic, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, ErrProviderStatus(provider.Name, resp.StatusCode, strings.TrimSpace(string(diagnostic)))
	}

	events := make(chan StreamEvent)
	go readSSE(provider.Name, resp.Body, events)
	return events, nil
}

// readSSE parses an upstream line-oriented SSE body: "data: " lines carry
// a JSON chunk, a blank line separates frames, and "data: [DONE]"
// terminates the sequence. It always closes body and the events channel
// before returning.
func readSSE(providerName string, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimPrefix(data, " ")
		}

		if data == "[DONE]" {
			events <- StreamEvent{Done: true}
			return
		}

		var chunk llminterface.ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			events <- StreamEvent{Err: ErrInvalidResponse(providerName, err)}
			return
		}
		events <- StreamEvent{Chunk: &chunk}
	}

	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Err: classifyError(providerName, err)}
		return
	}
	events <- StreamEvent{Done: true}
}

// classifyError maps a transport-level error to the taxonomy's
// provider_error/timeout_error distinction; an undecodable JSON body maps
// to invalid_response.
func classifyError(providerName string, err error) error {
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrInvalidResponse(providerName, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout(providerName, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout(providerName, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ErrProviderStatus(providerName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 400 {
			return ErrProviderStatus(providerName, reqErr.HTTPStatusCode, fmt.Sprint(reqErr.Err))
		}
		return ErrTimeout(providerName, reqErr.Err)
	}
	return ErrTimeout(providerName, err)
}
