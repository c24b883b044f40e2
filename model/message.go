package model

import (
	"github.com/sashabaranov/go-openai"
)

// Role name constants, re-exported from go-openai so callers don't need to
// import the upstream package directly for the common case.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is a single immutable conversation turn. It reuses go-openai's
// wire shape so history round-trips through the Provider Router without a
// translation layer.
type Message = openai.ChatCompletionMessage

// EstimatedTokens approximates token count as ceil(len(content)/4), the
// contract mandated in place of exact per-model tokenization.
func EstimatedTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}

// summaryMarkerPrefix tags a system message as Context-Engine-authored so a
// later reduction pass does not attempt to re-summarize an existing summary.
const summaryMarkerPrefix = "[context-summary] "

// NewSummaryMessage wraps generated summary text as a system-role message,
// marked internally so it is distinguishable from a user-authored system
// prompt.
func NewSummaryMessage(summary string) Message {
	return Message{
		Role:    RoleSystem,
		Content: summaryMarkerPrefix + summary,
	}
}

// IsSummaryMessage reports whether m was produced by NewSummaryMessage.
func IsSummaryMessage(m Message) bool {
	return m.Role == RoleSystem && len(m.Content) >= len(summaryMarkerPrefix) &&
		m.Content[:len(summaryMarkerPrefix)] == summaryMarkerPrefix
}
