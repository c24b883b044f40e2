package providerrouter

import "fmt"

// Error is a typed router failure the orchestrator maps onto the
// OpenAI-compatible error envelope. Code is one of the taxonomy values
// below; Type is the envelope's top-level error.type.
type Error struct {
	Code     string
	Type     string
	Message  string
	Provider string
	Status   int
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (provider=%s)", e.Code, e.Message, e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code/type constants per the taxonomy: model_not_found is an
// invalid_request_error; provider_error and timeout_error are api_error
// and timeout_error respectively.
const (
	CodeModelNotFound    = "model_not_found"
	CodeInvalidResponse  = "invalid_response"
	CodeProviderError    = "provider_error"
	CodeTimeoutError     = "timeout_error"
	TypeInvalidRequest   = "invalid_request_error"
	TypeAPIError         = "api_error"
	TypeTimeoutError     = "timeout_error"
)

// ErrModelNotFound reports that displayName resolved to neither a known
// mapping nor a structurally valid "provider/model" reference.
func ErrModelNotFound(displayName string) *Error {
	return &Error{
		Code:    CodeModelNotFound,
		Type:    TypeInvalidRequest,
		Message: fmt.Sprintf("no such model %q", displayName),
	}
}

// ErrProviderStatus reports an upstream HTTP status >= 400.
func ErrProviderStatus(provider string, status int, diagnostic string) *Error {
	return &Error{
		Code:     CodeProviderError,
		Type:     TypeAPIError,
		Message:  fmt.Sprintf("upstream returned status %d: %s", status, diagnostic),
		Provider: provider,
		Status:   status,
	}
}

// ErrInvalidResponse reports malformed JSON from an upstream that
// otherwise returned a 2xx status.
func ErrInvalidResponse(provider string, cause error) *Error {
	return &Error{
		Code:     CodeInvalidResponse,
		Type:     TypeAPIError,
		Message:  fmt.Sprintf("invalid upstream response: %v", cause),
		Provider: provider,
	}
}

// ErrTimeout reports a network-level or context-deadline failure talking
// to the provider.
func ErrTimeout(provider string, cause error) *Error {
	return &Error{
		Code:     CodeTimeoutError,
		Type:     TypeTimeoutError,
		Message:  fmt.Sprintf("request to provider timed out: %v", cause),
		Provider: provider,
	}
}
