// Package store implements the Session Store: keyed persistence of
// model.Session records behind a single contract, pluggable across an
// in-process map, Redis, MongoDB, and SQLite.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghiac/llmgate/model"
)

// ErrNotFound is returned by Get when sessionKey has no stored session.
var ErrNotFound = errors.New("store: session not found")

// ErrUnavailable marks a store error as a connectivity failure (the
// backend could not be reached at all) rather than a data error, per
// spec.md §4.B's failure model: "a store unreachable during read fails
// the request" with a 503, as opposed to a malformed/missing record.
var ErrUnavailable = errors.New("store: unavailable")

// unavailable wraps a backend connectivity error so errors.Is(err,
// ErrUnavailable) succeeds for the orchestrator while op and the
// original error remain in the message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// SessionStore is the contract every backend implements: get/put/
// appendMessage/reset/delete, keyed by an opaque sessionKey. AppendMessage
// creates the session if absent. Concurrent AppendMessage calls on the
// same sessionKey are serialized by the implementation.
type SessionStore interface {
	Get(sessionKey string) (*model.Session, error)
	Put(session *model.Session) error
	AppendMessage(sessionKey, userID string, msg model.Message) error
	Reset(sessionKey string) error
	Delete(sessionKey string) error
	List(userID string) ([]*model.Session, error)
}

// MemoryStore is the in-process SessionStore: a map guarded for concurrent
// access, swept in the background for TTL-expired sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	keyLocks map[string]*sync.Mutex

	ttl time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryStore creates an in-memory session store. ttl governs both
// Session.Expired checks and the background sweep interval's eviction
// threshold; a ttl of 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		keyLocks: make(map[string]*sync.Mutex),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// StartSweep launches the background goroutine that evicts sessions whose
// updatedAt+ttl has elapsed. It is a no-op if ttl is 0. Callers should call
// Stop during shutdown.
func (s *MemoryStore) StartSweep(interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop halts the background sweep goroutine, if running.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, session := range s.sessions {
		if session.Expired(s.ttl, now) {
			delete(s.sessions, key)
			delete(s.keyLocks, key)
		}
	}
}

func (s *MemoryStore) keyLock(sessionKey string) *sync.Mutex {
	s.mu.RLock()
	lock, ok := s.keyLocks[sessionKey]
	s.mu.RUnlock()
	if ok {
		return lock
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lock, ok := s.keyLocks[sessionKey]; ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.keyLocks[sessionKey] = lock
	return lock
}

// Get returns a point-in-time snapshot (a clone) of the stored session.
func (s *MemoryStore) Get(sessionKey string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionKey]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// Put upserts session, refreshing UpdatedAt.
func (s *MemoryStore) Put(session *model.Session) error {
	if session == nil {
		return errors.New("store: session cannot be nil")
	}
	session.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

// AppendMessage atomically appends msg to the session identified by
// sessionKey, creating it (with userID) if absent. Concurrent calls on the
// same sessionKey are serialized by a per-key lock, and the mutation of
// the stored *model.Session itself happens under s.mu so it can never run
// concurrently with a Get/List snapshot read.
func (s *MemoryStore) AppendMessage(sessionKey, userID string, msg model.Message) error {
	lock := s.keyLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey]
	if !ok {
		session = model.NewSession(sessionKey, userID)
		s.sessions[sessionKey] = session
	}
	session.AppendMessage(msg)
	return nil
}

// Reset clears the session's history while preserving memoryZone and
// metadata. Held under s.mu for the full read-check-mutate so it can
// never run concurrently with a Get/List snapshot read.
func (s *MemoryStore) Reset(sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey]
	if !ok {
		return ErrNotFound
	}
	session.Reset()
	return nil
}

// Delete removes the session entirely.
func (s *MemoryStore) Delete(sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey)
	delete(s.keyLocks, sessionKey)
	return nil
}

// List returns every session belonging to userID, for the admin surface.
func (s *MemoryStore) List(userID string) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*model.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			sessions = append(sessions, session.Clone())
		}
	}
	return sessions, nil
}
