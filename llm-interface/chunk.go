// Package llminterface carries the OpenAI-compatible streaming chunk
// shape used by the Provider Router's streamDispatch: a type that
// preserves every delta field an upstream sends, known or not, with its
// value intact, so chain-of-thought fields like reasoning_content or thinking pass
// through without the router needing to know about them in advance.
package llminterface

import (
	"encoding/json"
)

// ChatCompletionChunk is one SSE frame's JSON payload in OpenAI's
// streaming chat-completion shape.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one entry in a ChatCompletionChunk's choices array.
type ChunkChoice struct {
	Index        int         `json:"index"`
	Delta        ChunkDelta  `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
	LogProbs     interface{} `json:"logprobs,omitempty"`
}

// ChunkDelta is the incremental content of one streaming chunk. Content,
// ReasoningContent, and Thinking are promoted to named fields because the
// orchestrator inspects them directly (accumulation into
// accumulatedContent/accumulatedReasoning); every other field the upstream
// sent is retained verbatim in Extra and re-serialized alongside them, so
// re-emitting a ChunkDelta reproduces every original key with the same
// value (key order is not preserved).
type ChunkDelta struct {
	Role             string                     `json:"-"`
	Content          string                     `json:"-"`
	ReasoningContent string                     `json:"-"`
	Thinking         string                     `json:"-"`
	Extra            map[string]json.RawMessage `json:"-"`

	// present tracks which known fields the upstream payload actually
	// included, so MarshalJSON re-emits exactly those keys rather than
	// guessing from zero-valueness (an upstream `"content":""` must
	// round-trip the same as an absent content field does not).
	present map[string]bool
}

// UnmarshalJSON decodes delta, promoting known fields and stashing every
// other key (including ones this package has never seen) in Extra.
func (d *ChunkDelta) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Extra = make(map[string]json.RawMessage, len(raw))
	d.present = make(map[string]bool, len(raw))
	for key, value := range raw {
		switch key {
		case "role":
			json.Unmarshal(value, &d.Role)
			d.present[key] = true
		case "content":
			json.Unmarshal(value, &d.Content)
			d.present[key] = true
		case "reasoning_content":
			json.Unmarshal(value, &d.ReasoningContent)
			d.present[key] = true
		case "thinking":
			json.Unmarshal(value, &d.Thinking)
			d.present[key] = true
		default:
			d.Extra[key] = value
		}
	}
	return nil
}

// MarshalJSON re-encodes delta so that every field present on the way in
// — known or extra — is present on the way out with an identical value.
func (d ChunkDelta) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+4)
	for key, value := range d.Extra {
		out[key] = value
	}

	if d.present["role"] {
		out["role"], _ = json.Marshal(d.Role)
	}
	if d.present["content"] {
		out["content"], _ = json.Marshal(d.Content)
	}
	if d.present["reasoning_content"] {
		out["reasoning_content"], _ = json.Marshal(d.ReasoningContent)
	}
	if d.present["thinking"] {
		out["thinking"], _ = json.Marshal(d.Thinking)
	}

	return json.Marshal(out)
}
