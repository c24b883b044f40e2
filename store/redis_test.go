package store

import (
	"os"
	"testing"

	"github.com/ghiac/llmgate/model"
)

// TestRedisStore_BasicOperations requires a reachable Redis instance; set
// REDIS_ADDR to override the default local connection.
func TestRedisStore_BasicOperations(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	redisStore, err := NewRedisStore(RedisStoreConfig{Addr: addr})
	if err != nil {
		t.Skipf("skipping test: Redis not available: %v", err)
	}
	defer redisStore.Close()

	var s SessionStore = redisStore
	defer s.Delete("sess-1")

	if err := s.AppendMessage("sess-1", "user123", model.Message{Role: model.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	retrieved, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if retrieved.UserID != "user123" {
		t.Errorf("UserID mismatch: got %s, want user123", retrieved.UserID)
	}

	sessions, err := s.List("user123")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}

	if err := s.Delete("sess-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.Get("sess-1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
