package log

import "log/slog"

// Event names emitted to the structured logger, per the logging event
// surface: api_call, api_completion, context_reduction, provider_error,
// reasoning_detected, session_expired.
const (
	EventAPICall           = "api_call"
	EventAPICompletion     = "api_completion"
	EventContextReduction  = "context_reduction"
	EventProviderError     = "provider_error"
	EventReasoningDetected = "reasoning_detected"
	EventSessionExpired    = "session_expired"
)

// Field carries a single structured key/value pair attached to an event.
type Field struct {
	Key   string
	Value any
}

// F builds a Field; a small convenience to keep call sites terse.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// estimatedValue marks a logged count as approximated rather than exact,
// so it renders as {value: N, estimated: true} instead of a bare number.
type estimatedValue struct {
	Value     int  `json:"value"`
	Estimated bool `json:"estimated"`
}

// Estimated tags an event field as an approximated (not authoritative)
// count, per the contract that estimated token counts must be
// distinguishable in logs from exact ones.
func Estimated(key string, value int) Field {
	return Field{Key: key, Value: estimatedValue{Value: value, Estimated: true}}
}

// Event logs a named event with correlation id, session key, and
// arbitrary structured fields, at info level. The API key is never a
// valid field value here — callers must not pass it.
func (l *Logger) Event(event, correlationID, sessionKey string, fields ...Field) {
	attrs := make([]any, 0, len(fields)*2+6)
	attrs = append(attrs, slog.String("event", event), slog.String("correlation_id", correlationID), slog.String("session_key", sessionKey))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.logger.Info("event", attrs...)
}

// EventWarn logs a named event at warning level — used for recoverable
// failures like a summarization fallback to truncation.
func (l *Logger) EventWarn(event, correlationID, sessionKey string, fields ...Field) {
	attrs := make([]any, 0, len(fields)*2+6)
	attrs = append(attrs, slog.String("event", event), slog.String("correlation_id", correlationID), slog.String("session_key", sessionKey))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.logger.Warn("event", attrs...)
}
