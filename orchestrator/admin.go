package orchestrator

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/llmgate/store"
	"github.com/ghiac/llmgate/visualize"
)

// RegisterAdminRoutes mounts the introspection surface used by operators:
// session listing/inspection and the routing topology graph. Kept as a
// separate registration call from RegisterRoutes so an embedder can
// choose not to expose it (e.g. behind a separate internal listener).
func (o *Orchestrator) RegisterAdminRoutes(router *gin.Engine) {
	router.GET("/admin/sessions", o.handleAdminSessions)
	router.GET("/admin/sessions/:sessionID", o.handleAdminSessionDetail)
	router.GET("/admin/routing", o.handleAdminRouting)
}

// handleAdminSessions lists every session belonging to the user named by
// the required "user" query parameter.
func (o *Orchestrator) handleAdminSessions(c *gin.Context) {
	userID := c.Query("user")
	if userID == "" {
		writeInvalidRequest(c, "user query parameter is required")
		return
	}

	sessions, err := o.Store.List(userID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"session_id":        s.SessionID,
			"user_id":           s.UserID,
			"turn_count":        s.History.TurnCount(),
			"memory_zone_size":  len(s.MemoryZone.Entries),
			"total_tokens_used": s.TotalTokensUsed,
			"updated_at":        s.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// handleAdminSessionDetail returns one session's full history and memory
// zone, for debugging a specific conversation.
func (o *Orchestrator) handleAdminSessionDetail(c *gin.Context) {
	sessionID := c.Param("sessionID")

	session, err := o.Store.Get(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, envelope("no such session", "invalid_request_error", "session_not_found"))
			return
		}
		writeError(c, err)
		return
	}

	events := make([]gin.H, 0, len(session.ReductionEvents))
	for _, ev := range session.ReductionEvents {
		events = append(events, gin.H{
			"strategy":      ev.Strategy,
			"fell_back":     ev.FellBack,
			"before_tokens": ev.BeforeTokens,
			"after_tokens":  ev.AfterTokens,
			"at":            ev.At,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":               session.SessionID,
		"user_id":                  session.UserID,
		"history":                  session.History.Messages,
		"memory_zone":              session.MemoryZone.Entries,
		"context_reduction_events": events,
		"created_at":               session.CreatedAt,
		"updated_at":               session.UpdatedAt,
	})
}

// handleAdminRouting renders the configured provider/mapping topology as
// an interactive graph.
func (o *Orchestrator) handleAdminRouting(c *gin.Context) {
	gv := visualize.NewRoutingGraphVisualizer(o.Config.Providers, o.Config.Mappings)
	html, err := gv.RenderHTML("Provider Router Topology")
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}
