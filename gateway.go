// Package llmgate wires the Configuration Model, Session Store,
// Context Engine, Provider Router, and Request Orchestrator into a single
// running gateway, mirroring the teacher's top-level wiring type
// (agentize.Agentize) that the cmd/ entrypoint constructs and starts.
package llmgate

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/llmgate/config"
	"github.com/ghiac/llmgate/contextengine"
	"github.com/ghiac/llmgate/orchestrator"
	"github.com/ghiac/llmgate/providerrouter"
	"github.com/ghiac/llmgate/store"
)

// Gateway owns the fully-wired collaborator graph and the memory
// backend's sweep goroutine lifecycle, where applicable.
type Gateway struct {
	Config       *config.Config
	Store        store.SessionStore
	Router       *providerrouter.Router
	Engine       *contextengine.Engine
	Orchestrator *orchestrator.Orchestrator

	memoryStore *store.MemoryStore // non-nil only when Config.Storage.Kind == "memory"
}

// New constructs every collaborator from a validated Config and starts
// the in-process TTL sweeper when the memory backend is selected.
func New(cfg *config.Config) (*Gateway, error) {
	sessionStore, memoryStore, reachable, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build session store: %w", err)
	}

	router := providerrouter.New(cfg)
	engine := contextengine.New(router)
	orch := orchestrator.New(cfg, sessionStore, engine, router)
	orch.Reachable = reachable

	if memoryStore != nil {
		memoryStore.StartSweep(sweepInterval(cfg.SessionTTL))
	}

	return &Gateway{
		Config:       cfg,
		Store:        sessionStore,
		Router:       router,
		Engine:       engine,
		Orchestrator: orch,
		memoryStore:  memoryStore,
	}, nil
}

// sweepInterval runs the memory store's eviction sweep at a fraction of
// the TTL so an expired session is never observable for much longer than
// its configured lifetime.
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// buildStore selects and constructs the Session Store backend named by
// cfg.Storage.Kind, per the Configuration Model's storage selection.
func buildStore(cfg *config.Config) (store.SessionStore, *store.MemoryStore, func() bool, error) {
	switch cfg.Storage.Kind {
	case "", "memory":
		ms := store.NewMemoryStore(cfg.SessionTTL)
		return ms, ms, nil, nil

	case "redis":
		rs, err := store.NewRedisStore(store.RedisStoreConfig{Addr: cfg.Storage.URL, SessionTTL: cfg.SessionTTL})
		if err != nil {
			return nil, nil, nil, err
		}
		reachable := func() bool {
			return rs.Reachable(context.Background())
		}
		return rs, nil, reachable, nil

	case "mongodb":
		mcfg := store.DefaultMongoDBStoreConfig()
		mcfg.URI = cfg.Storage.URL
		mcfg.SessionTTL = cfg.SessionTTL
		ms, err := store.NewMongoDBStore(mcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return ms, nil, nil, nil

	case "sqlite":
		ss, err := store.NewSQLiteStore(cfg.Storage.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		return ss, nil, nil, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// Stop halts any background goroutines the Gateway started (currently
// just the memory store's TTL sweeper).
func (g *Gateway) Stop() {
	if g.memoryStore != nil {
		g.memoryStore.Stop()
	}
}

// RegisterRoutes registers the gateway's public and admin HTTP surfaces onto a
// caller-supplied gin.Engine, leaving listener construction to main.
func (g *Gateway) RegisterRoutes(r *gin.Engine) {
	g.Orchestrator.RegisterRoutes(r)
	g.Orchestrator.RegisterAdminRoutes(r)
}
