package providerrouter

import (
	"context"

	"github.com/ghiac/llmgate/llmutils"
	"github.com/ghiac/llmgate/model"
)

// Summarize resolves summarizationModel through the same Resolve
// algorithm as any other model reference and issues the Context Engine's
// summarization call against it. It satisfies contextengine.Summarizer,
// letting the engine invoke an LLM without importing this package.
func (r *Router) Summarize(ctx context.Context, summarizationModel string, oldMessages []model.Message, maxTokens int) (string, error) {
	provider, actualModel, _, err := r.Resolve(summarizationModel)
	if err != nil {
		return "", err
	}

	client := llmutils.NewOpenAIClientForProvider(provider.APIKey, provider.BaseURL, r.clientFor(provider))
	return llmutils.GenerateSummary(ctx, client, oldMessages, llmutils.SummaryConfig{
		Model:     actualModel,
		MaxTokens: maxTokens,
	})
}
