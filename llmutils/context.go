package llmutils

import (
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// providerAuthTransport wraps an HTTP client to attach a provider's bearer
// credential to every outbound request, so each configured Provider gets
// its own pooled client carrying its own Authorization header instead of
// mutating a shared client per-call.
type providerAuthTransport struct {
	apiKey    string
	transport http.RoundTripper
}

// RoundTrip implements http.RoundTripper, setting the bearer Authorization
// header before delegating to the underlying transport.
func (c *providerAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	if c.transport != nil {
		return c.transport.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// NewProviderHTTPClient builds an *http.Client that injects apiKey as a
// bearer Authorization header on every request. The second argument is the
// RoundTripper to wrap; when nil, baseClient's transport (or
// http.DefaultTransport) is used. The timeout, redirect policy and cookie
// jar are copied from baseClient; a nil baseClient means no timeout.
func NewProviderHTTPClient(apiKey string, timeout http.RoundTripper, baseClient *http.Client) *http.Client {
	if baseClient == nil {
		baseClient = &http.Client{}
	}

	transport := timeout
	if transport == nil {
		transport = baseClient.Transport
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &http.Client{
		Transport:     &providerAuthTransport{apiKey: apiKey, transport: transport},
		Timeout:       baseClient.Timeout,
		CheckRedirect: baseClient.CheckRedirect,
		Jar:           baseClient.Jar,
	}
}

// NewOpenAIClientForProvider builds a go-openai client pointed at baseURL,
// authenticated via a transport-level Authorization header rather than the
// client's own key field, so the same construction path works uniformly
// across openai/azure/custom provider types.
func NewOpenAIClientForProvider(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(config)
}
