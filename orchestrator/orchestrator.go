// Package orchestrator implements the Request Orchestrator: the ingress
// HTTP surface that correlates each request to a session, runs it through
// the Context Engine, dispatches it to the Provider Router, and emits the
// response as buffered JSON or an SSE stream. It owns no state of its
// own beyond per-session single-flight locks; everything durable lives
// in the Session Store.
package orchestrator

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ghiac/llmgate/config"
	"github.com/ghiac/llmgate/contextengine"
	"github.com/ghiac/llmgate/providerrouter"
	"github.com/ghiac/llmgate/store"
)

// sessionPolicy documents, for GET /health, which of the two discipline
// choices §4.E leaves open this orchestrator implements: replacing the
// session's history with each request's message list outright, rather
// than diffing against a trailing suffix. Simpler, and sufficient given
// clients are expected to resend the full transcript.
const sessionPolicy = "replace"

// Orchestrator wires the Session Store, Context Engine, and Provider
// Router behind the OpenAI-compatible HTTP surface.
type Orchestrator struct {
	Config  *config.Config
	Store   store.SessionStore
	Engine  *contextengine.Engine
	Router  *providerrouter.Router
	Reachable func() bool // external_store_reachable probe; nil for the memory backend

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// New builds an Orchestrator over its three collaborators.
func New(cfg *config.Config, sessionStore store.SessionStore, engine *contextengine.Engine, router *providerrouter.Router) *Orchestrator {
	return &Orchestrator{
		Config:   cfg,
		Store:    sessionStore,
		Engine:   engine,
		Router:   router,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// RegisterRoutes mounts the gateway's public endpoints on router, in the
// teacher's style of a single explicit registration method rather than
// route-table reflection.
func (o *Orchestrator) RegisterRoutes(router *gin.Engine) {
	router.POST("/v1/chat/completions", o.handleChatCompletions)
	router.GET("/v1/models", o.handleModels)
	router.GET("/health", o.handleHealth)
}

// handleModels enumerates every configured mapping.
func (o *Orchestrator) handleModels(c *gin.Context) {
	models := o.Router.ListModels()
	data := make([]gin.H, 0, len(models))
	for _, m := range models {
		data = append(data, gin.H{
			"id":       m.ID,
			"object":   "model",
			"owned_by": m.OwnedBy,
			"created":  m.Created,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// handleHealth reports liveness plus the session policy and storage
// backend an operator needs to reason about request semantics.
func (o *Orchestrator) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":         "ok",
		"storage":        o.Config.Storage.Kind,
		"session_policy": sessionPolicy,
	}
	if o.Reachable != nil {
		body["external_store_reachable"] = o.Reachable()
	}
	c.JSON(http.StatusOK, body)
}

// sessionLock returns the per-sessionKey mutex serializing concurrent
// requests on the same session. Lookup and creation both happen under
// keyLocksMu (a single check, unlike the Session Store backends'
// read-lock-then-write-lock keyLock).
func (o *Orchestrator) sessionLock(sessionKey string) *sync.Mutex {
	o.keyLocksMu.Lock()
	if l, ok := o.keyLocks[sessionKey]; ok {
		o.keyLocksMu.Unlock()
		return l
	}
	l := &sync.Mutex{}
	o.keyLocks[sessionKey] = l
	o.keyLocksMu.Unlock()
	return l
}

// newCorrelationID mints an id to tie together the events logged for one
// request across session load, context reduction, and dispatch.
func newCorrelationID() string {
	return uuid.NewString()
}

// deriveSessionKey builds an opaque sessionKey from caller-supplied
// identity headers, per the spec's "exact derivation is an external
// concern" note: the core only needs an opaque key. X-User-Id is
// required; X-Session-Id defaults to "default" so a user with no
// explicit session still gets one stable, reusable session.
func deriveSessionKey(c *gin.Context) (sessionKey, userID string, err error) {
	userID = c.GetHeader("X-User-Id")
	if userID == "" {
		return "", "", fmt.Errorf("missing required X-User-Id header")
	}
	sessionID := c.GetHeader("X-Session-Id")
	if sessionID == "" {
		sessionID = "default"
	}
	return userID + ":" + sessionID, userID, nil
}
