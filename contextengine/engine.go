// Package contextengine decides when a session's history must be reduced
// and applies one of three strategies — truncation, sliding window, or
// LLM-driven summarization — modeled as a tagged sum with a single
// dispatch point rather than an open strategy class hierarchy.
package contextengine

import (
	"context"
	"fmt"

	"github.com/ghiac/llmgate/log"
	"github.com/ghiac/llmgate/model"
)

// Summarizer performs the LLM call the summarization strategy needs. The
// Provider Router satisfies this by routing to config.SummarizationModel;
// kept as an interface so the engine can be tested without a live
// provider.
type Summarizer interface {
	Summarize(ctx context.Context, summarizationModel string, oldMessages []model.Message, maxTokens int) (string, error)
}

// Engine applies the Context Engine's public operations.
type Engine struct {
	Summarizer    Summarizer
	CorrelationID func() string
}

// New builds an Engine backed by summarizer.
func New(summarizer Summarizer) *Engine {
	return &Engine{Summarizer: summarizer}
}

// ShouldReduce reports whether history has crossed either configured
// limit: turnCount > maxTurns OR estimatedTokens > maxTokens.
func ShouldReduce(history model.ConversationHistory, cfg model.ContextConfig) bool {
	return cfg.Exceeded(history)
}

// Result is the outcome of ApplyStrategy: the replacement history, the
// strategy actually applied (may differ from cfg.ReductionMode on
// summarization fallback), and the summary text when one was produced.
type Result struct {
	History       model.ConversationHistory
	AppliedMode   model.ReductionMode
	Summary       string
	FellBack      bool
	BeforeTokens  int
	AfterTokens   int
}

// ApplyStrategy dispatches on cfg.ReductionMode and returns the reduced
// history. Summarization failures, and summaries that do not lower the
// estimated token count, fall back to truncation over the same input; the
// request must never fail because summarization failed.
func (e *Engine) ApplyStrategy(ctx context.Context, history model.ConversationHistory, cfg model.ContextConfig, sessionKey string) Result {
	before := history.EstimatedTokens()

	switch cfg.ReductionMode {
	case model.ReductionSlidingWindow:
		reduced := applySlidingWindow(history, cfg)
		return Result{History: reduced, AppliedMode: model.ReductionSlidingWindow, BeforeTokens: before, AfterTokens: reduced.EstimatedTokens()}

	case model.ReductionSummarization:
		reduced, summary, err := e.applySummarization(ctx, history, cfg)
		if err == nil && reduced.EstimatedTokens() >= before {
			err = fmt.Errorf("summary did not reduce estimated tokens (%d -> %d)", before, reduced.EstimatedTokens())
		}
		if err != nil {
			log.Log.EventWarn(log.EventContextReduction, e.correlationID(), sessionKey,
				log.F("reason", "summarization_failed"), log.F("error", err.Error()), log.F("fallback", "truncation"))
			reduced = applyTruncation(history, cfg)
			return Result{History: reduced, AppliedMode: model.ReductionTruncation, FellBack: true, BeforeTokens: before, AfterTokens: reduced.EstimatedTokens()}
		}
		return Result{History: reduced, AppliedMode: model.ReductionSummarization, Summary: summary, BeforeTokens: before, AfterTokens: reduced.EstimatedTokens()}

	default:
		reduced := applyTruncation(history, cfg)
		return Result{History: reduced, AppliedMode: model.ReductionTruncation, BeforeTokens: before, AfterTokens: reduced.EstimatedTokens()}
	}
}

func (e *Engine) correlationID() string {
	if e.CorrelationID != nil {
		return e.CorrelationID()
	}
	return ""
}

// applyTruncation keeps the most recent messages such that the result has
// at most cfg.MaxTurns turns, discarding oldest non-system messages first.
// System messages are preserved at the head in original relative order.
func applyTruncation(history model.ConversationHistory, cfg model.ContextConfig) model.ConversationHistory {
	systemMsgs := history.SystemMessages()
	nonSystem := history.NonSystemMessages()

	if cfg.MaxTurns <= 0 {
		return model.NewConversationHistory(append(systemMsgs, nonSystem...)...)
	}

	maxMessages := cfg.MaxTurns * 2
	if len(nonSystem) > maxMessages {
		nonSystem = nonSystem[len(nonSystem)-maxMessages:]
	}

	return model.NewConversationHistory(append(systemMsgs, nonSystem...)...)
}

// applySlidingWindow iterates messages newest-to-oldest, accumulating
// estimated tokens, including each while the running total <= maxTokens.
// All preserved system messages are prepended to the kept set.
func applySlidingWindow(history model.ConversationHistory, cfg model.ContextConfig) model.ConversationHistory {
	systemMsgs := history.SystemMessages()
	nonSystem := history.NonSystemMessages()

	if cfg.MaxTokens <= 0 {
		return model.NewConversationHistory(append(systemMsgs, nonSystem...)...)
	}

	var kept []model.Message
	total := 0
	for i := len(nonSystem) - 1; i >= 0; i-- {
		cost := model.EstimatedTokens(nonSystem[i].Content)
		if total+cost > cfg.MaxTokens {
			break
		}
		total += cost
		kept = append([]model.Message{nonSystem[i]}, kept...)
	}

	return model.NewConversationHistory(append(systemMsgs, kept...)...)
}

// applySummarization partitions history into "old" (everything but the
// tail that fits maxTurns) and "kept" recent messages, summarizes the old
// partition via the Provider Router, and returns the reconstructed
// history: [systemMessages..., SummaryMessage, keptRecent...].
func (e *Engine) applySummarization(ctx context.Context, history model.ConversationHistory, cfg model.ContextConfig) (model.ConversationHistory, string, error) {
	if e.Summarizer == nil {
		return model.ConversationHistory{}, "", fmt.Errorf("no summarizer configured")
	}
	if cfg.SummarizationModel == "" {
		return model.ConversationHistory{}, "", fmt.Errorf("no summarizationModel configured")
	}

	systemMsgs := history.SystemMessages()
	nonSystem := history.NonSystemMessages()

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}
	keptCount := maxTurns * 2
	if keptCount > len(nonSystem) {
		keptCount = len(nonSystem)
	}
	splitAt := len(nonSystem) - keptCount

	old := nonSystem[:splitAt]
	kept := nonSystem[splitAt:]

	if len(old) == 0 {
		return model.ConversationHistory{}, "", fmt.Errorf("nothing to summarize")
	}

	summary, err := e.Summarizer.Summarize(ctx, cfg.SummarizationModel, old, cfg.MaxTokens)
	if err != nil {
		return model.ConversationHistory{}, "", err
	}

	msgs := make([]model.Message, 0, len(systemMsgs)+1+len(kept))
	msgs = append(msgs, systemMsgs...)
	msgs = append(msgs, model.NewSummaryMessage(summary))
	msgs = append(msgs, kept...)

	return model.NewConversationHistory(msgs...), summary, nil
}

// summarizerFunc adapts a plain function with Summarize's signature to the
// Summarizer interface.
type summarizerFunc func(ctx context.Context, summarizationModel string, oldMessages []model.Message, maxTokens int) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, summarizationModel string, oldMessages []model.Message, maxTokens int) (string, error) {
	return f(ctx, summarizationModel, oldMessages, maxTokens)
}

// NewSummarizerFunc builds a Summarizer from a plain function, following
// the http.HandlerFunc convention for lightweight adapters.
func NewSummarizerFunc(f func(ctx context.Context, summarizationModel string, oldMessages []model.Message, maxTokens int) (string, error)) Summarizer {
	return summarizerFunc(f)
}
