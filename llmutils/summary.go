package llmutils

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/llmgate/model"
)

// LLMClient is the subset of go-openai's client the summarization
// strategy needs, kept as an interface so the Context Engine can be tested
// against a stub instead of a live provider.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// SummaryConfig holds the parameters governing a single summarization call.
type SummaryConfig struct {
	Model     string
	MaxTokens int
}

// summaryPromptTemplate is the prompt mandated for the summarization
// reduction strategy; maxTokens is substituted into the instruction.
const summaryPromptTemplate = "You are a conversation summarizer. Summarize the following conversation concisely, preserving key information, user intent, and important context. Keep the summary under %d tokens."

// GenerateSummary invokes client to summarize oldMessages under the
// summarization reduction strategy's prompt contract, returning the raw
// summary text. Callers are responsible for falling back to truncation on
// any returned error.
func GenerateSummary(ctx context.Context, client LLMClient, oldMessages []model.Message, config SummaryConfig) (string, error) {
	if client == nil {
		return "", fmt.Errorf("llm client is nil")
	}
	if config.Model == "" {
		return "", fmt.Errorf("summarization model is required")
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	systemPrompt := fmt.Sprintf(summaryPromptTemplate, maxTokens)

	var transcript strings.Builder
	for _, m := range oldMessages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}
	transcript.WriteString("Summary:")

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.String()},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarization request failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("summarization returned empty result")
	}

	return resp.Choices[0].Message.Content, nil
}
