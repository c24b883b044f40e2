package orchestrator

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/llmgate/providerrouter"
	"github.com/ghiac/llmgate/store"
)

// storeRetryAfterSeconds is the Retry-After hint sent alongside a 503 for
// a store unreachable at request time (spec.md §4.B/§7, Scenario S6).
const storeRetryAfterSeconds = 5

// errorEnvelope is the OpenAI-compatible error shape every failure path
// returns, buffered or mid-stream.
type errorEnvelope struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func envelope(message, errType, code string) gin.H {
	return gin.H{"error": errorEnvelope{Message: message, Type: errType, Code: code}}
}

// writeError sends a buffered error response. httpStatus is derived from
// the error's taxonomy when it is a *providerrouter.Error or a store
// connectivity failure; unrecognized errors fall back to 500/api_error.
func writeError(c *gin.Context, err error) {
	status, body := classify(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(storeRetryAfterSeconds))
	}
	c.JSON(status, body)
}

// writeInvalidRequest is the dedicated 400 path for request-shape
// failures that never reach the router (bad JSON, missing session
// identity).
func writeInvalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, envelope(message, "invalid_request_error", ""))
}

func classify(err error) (int, gin.H) {
	if errors.Is(err, store.ErrUnavailable) {
		return http.StatusServiceUnavailable, envelope("session store is unreachable, please retry", "api_error", "store_unavailable")
	}
	if rerr, ok := err.(*providerrouter.Error); ok {
		switch rerr.Code {
		case providerrouter.CodeModelNotFound:
			return http.StatusBadRequest, envelope(rerr.Message, rerr.Type, rerr.Code)
		case providerrouter.CodeTimeoutError:
			return http.StatusGatewayTimeout, envelope(rerr.Message, rerr.Type, rerr.Code)
		default:
			status := rerr.Status
			if status < 400 {
				status = http.StatusBadGateway
			}
			return status, envelope(rerr.Message, rerr.Type, rerr.Code)
		}
	}
	return http.StatusInternalServerError, envelope(err.Error(), "api_error", "")
}
