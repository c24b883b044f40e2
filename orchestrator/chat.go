package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/llmgate/log"
	"github.com/ghiac/llmgate/model"
	"github.com/ghiac/llmgate/providerrouter"
	"github.com/ghiac/llmgate/store"
)

// handleChatCompletions implements the §4.E request flow for the single
// hot-path endpoint: validate, correlate to a session, reduce context if
// needed, resolve and dispatch to the provider, and emit either a
// buffered JSON response or an SSE stream.
func (o *Orchestrator) handleChatCompletions(c *gin.Context) {
	correlationID := newCorrelationID()

	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		writeInvalidRequest(c, "model and messages are required")
		return
	}

	sessionKey, userID, err := deriveSessionKey(c)
	if err != nil {
		writeInvalidRequest(c, err.Error())
		return
	}

	lock := o.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	log.Log.Event(log.EventAPICall, correlationID, sessionKey, log.F("model", req.Model), log.F("stream", req.Stream))

	// Resolution happens once, up front: it both yields the
	// effectiveContextConfig that shouldReduce needs and the
	// (provider, actualModelName) pair dispatch needs later, so the
	// router is consulted exactly once per request rather than twice.
	provider, actualModel, contextConfig, err := o.Router.Resolve(req.Model)
	if err != nil {
		writeError(c, err)
		return
	}

	session, err := o.Store.Get(sessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeError(c, err)
			return
		}
		session = model.NewSession(sessionKey, userID)
	}

	// Session policy: "replace" — the incoming transcript becomes the
	// session's history outright. See sessionPolicy's doc comment.
	session.ReplaceHistory(model.NewConversationHistory(req.Messages...))

	if contextConfig.Exceeded(session.History) {
		result := o.Engine.ApplyStrategy(c.Request.Context(), session.History, contextConfig, sessionKey)
		session.ReplaceHistory(result.History)
		if result.Summary != "" && contextConfig.MemoryZoneEnabled {
			session.MemoryZone.Append(result.Summary)
		}
		session.RecordReduction(model.ReductionEvent{
			Strategy:     result.AppliedMode,
			FellBack:     result.FellBack,
			BeforeTokens: result.BeforeTokens,
			AfterTokens:  result.AfterTokens,
			At:           time.Now(),
		})
		log.Log.Event(log.EventContextReduction, correlationID, sessionKey,
			log.F("strategy", string(result.AppliedMode)),
			log.Estimated("before_tokens", result.BeforeTokens),
			log.Estimated("after_tokens", result.AfterTokens),
			log.F("fell_back", result.FellBack))
	}

	ctx := c.Request.Context()
	if provider.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, provider.Timeout)
		defer cancel()
	}

	dispatchReq := req
	dispatchReq.Messages = session.History.Messages

	if req.Stream {
		o.streamChatCompletion(c, ctx, correlationID, sessionKey, session, provider, actualModel, dispatchReq, req.Model)
		return
	}
	o.bufferedChatCompletion(c, ctx, correlationID, sessionKey, session, provider, actualModel, dispatchReq, req.Model)
}

// bufferedChatCompletion handles the non-streaming dispatch path.
func (o *Orchestrator) bufferedChatCompletion(c *gin.Context, ctx context.Context, correlationID, sessionKey string, session *model.Session, provider model.Provider, actualModel string, req openai.ChatCompletionRequest, displayName string) {
	resp, err := o.Router.Dispatch(ctx, provider, actualModel, req)
	if err != nil {
		log.Log.EventWarn(log.EventProviderError, correlationID, sessionKey, log.F("provider", provider.Name), log.F("error", err.Error()))
		writeError(c, err)
		return
	}

	if len(resp.Choices) == 0 {
		writeError(c, providerrouter.ErrInvalidResponse(provider.Name, errors.New("no choices in response")))
		return
	}

	assistantMsg := resp.Choices[0].Message
	session.AppendMessage(assistantMsg)
	if err := o.Store.Put(session); err != nil {
		log.Log.EventWarn(log.EventProviderError, correlationID, sessionKey, log.F("reason", "session_store_write_failed"), log.F("error", err.Error()))
	}

	resp.Model = displayName
	log.Log.Event(log.EventAPICompletion, correlationID, sessionKey,
		log.Estimated("completion_tokens", model.EstimatedTokens(assistantMsg.Content)))

	c.JSON(200, resp)
}

// streamChatCompletion handles the SSE dispatch path: forwards each
// upstream chunk verbatim (with the model field rewritten to the
// caller's display name) while accumulating content and reasoning for
// the post-stream session append.
func (o *Orchestrator) streamChatCompletion(c *gin.Context, ctx context.Context, correlationID, sessionKey string, session *model.Session, provider model.Provider, actualModel string, req openai.ChatCompletionRequest, displayName string) {
	events, err := o.Router.StreamDispatch(ctx, provider, actualModel, req)
	if err != nil {
		log.Log.EventWarn(log.EventProviderError, correlationID, sessionKey, log.F("provider", provider.Name), log.F("error", err.Error()))
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	var accumulatedContent, accumulatedReasoning strings.Builder
	disconnected := false

	for ev := range events {
		select {
		case <-ctx.Done():
			disconnected = true
		default:
		}
		if disconnected {
			continue // drain the channel so readSSE's goroutine can exit; discard further frames
		}

		if ev.Err != nil {
			writeSSEError(c, ev.Err)
			writeSSEDone(c)
			log.Log.EventWarn(log.EventProviderError, correlationID, sessionKey, log.F("provider", provider.Name), log.F("error", ev.Err.Error()))
			return
		}
		if ev.Done {
			writeSSEDone(c)
			break
		}

		ev.Chunk.Model = displayName
		if len(ev.Chunk.Choices) > 0 {
			delta := ev.Chunk.Choices[0].Delta
			accumulatedContent.WriteString(delta.Content)
			accumulatedReasoning.WriteString(delta.ReasoningContent)
			accumulatedReasoning.WriteString(delta.Thinking)
		}

		writeSSEChunk(c, ev.Chunk)
	}

	if disconnected {
		// Cancellation contract: abandon the post-response session
		// write entirely. No partial turn is appended.
		return
	}

	content := accumulatedContent.String()
	reasoningLen := accumulatedReasoning.Len()
	finalContent := content
	if finalContent == "" {
		finalContent = accumulatedReasoning.String()
	}

	session.AppendMessage(model.Message{Role: model.RoleAssistant, Content: finalContent})
	if err := o.Store.Put(session); err != nil {
		log.Log.EventWarn(log.EventProviderError, correlationID, sessionKey, log.F("reason", "session_store_write_failed"), log.F("error", err.Error()))
	}

	fields := []log.Field{log.Estimated("completion_tokens", model.EstimatedTokens(finalContent))}
	if reasoningLen > 0 {
		fields = append(fields, log.F("reasoning_detected", true), log.Estimated("reasoning_length", reasoningLen))
		log.Log.Event(log.EventReasoningDetected, correlationID, sessionKey, log.Estimated("reasoning_length", reasoningLen))
	}
	log.Log.Event(log.EventAPICompletion, correlationID, sessionKey, fields...)
}

func writeSSEChunk(c *gin.Context, chunk any) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func writeSSEError(c *gin.Context, err error) {
	_, body := classify(err)
	data, merr := json.Marshal(body)
	if merr != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func writeSSEDone(c *gin.Context) {
	c.Writer.Write([]byte("data: [DONE]\n\n"))
	c.Writer.Flush()
}
