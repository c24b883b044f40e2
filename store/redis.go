package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ghiac/llmgate/model"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the required external key-value Session Store backend.
// Each session is serialized under key "session:{userId}:{sessionId}" with
// native TTL refreshed on every write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	keyLocksMu sync.RWMutex
	keyLocks   map[string]*sync.Mutex
}

// RedisStoreConfig holds connection parameters for RedisStore.
type RedisStoreConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// NewRedisStore dials addr and verifies connectivity with a PING.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client:   client,
		ttl:      config.SessionTTL,
		keyLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisKey builds the required "session:{userId}:{sessionId}" keying
// scheme. sessionKey doubles as sessionId here; userID is carried
// separately so the scheme is stable even before a session exists.
func redisKey(userID, sessionKey string) string {
	return fmt.Sprintf("session:%s:%s", userID, sessionKey)
}

func (s *RedisStore) keyLock(sessionKey string) *sync.Mutex {
	s.keyLocksMu.RLock()
	lock, ok := s.keyLocks[sessionKey]
	s.keyLocksMu.RUnlock()
	if ok {
		return lock
	}

	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	if lock, ok := s.keyLocks[sessionKey]; ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.keyLocks[sessionKey] = lock
	return lock
}

// indexKey maps a bare sessionKey to its owning userID, so Get can find a
// session without the caller already knowing userID.
func (s *RedisStore) indexKey(sessionKey string) string {
	return "session_index:" + sessionKey
}

// Get implements SessionStore.
func (s *RedisStore) Get(sessionKey string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userID, err := s.client.Get(ctx, s.indexKey(sessionKey)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("lookup session index", err)
	}

	data, err := s.client.Get(ctx, redisKey(userID, sessionKey)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get session", err)
	}

	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Put implements SessionStore: upsert with a refreshed native TTL.
func (s *RedisStore) Put(session *model.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	session.UpdatedAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKey(session.UserID, session.SessionID), data, s.ttl)
	pipe.Set(ctx, s.indexKey(session.SessionID), session.UserID, s.ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("put session", err)
	}
	return nil
}

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}

// AppendMessage implements SessionStore, serializing concurrent appends to
// the same sessionKey via a per-key mutex.
func (s *RedisStore) AppendMessage(sessionKey, userID string, msg model.Message) error {
	lock := s.keyLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.Get(sessionKey)
	if err == ErrNotFound {
		session = model.NewSession(sessionKey, userID)
	} else if err != nil {
		return err
	}

	session.AppendMessage(msg)
	return s.Put(session)
}

// Reset implements SessionStore: clears history, preserves memory zone.
func (s *RedisStore) Reset(sessionKey string) error {
	lock := s.keyLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.Get(sessionKey)
	if err != nil {
		return err
	}
	session.Reset()
	return s.Put(session)
}

// Delete implements SessionStore.
func (s *RedisStore) Delete(sessionKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userID, err := s.client.Get(ctx, s.indexKey(sessionKey)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return unavailable("lookup session index", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKey(userID, sessionKey))
	pipe.Del(ctx, s.indexKey(sessionKey))
	pipe.SRem(ctx, userSessionsKey(userID), sessionKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// List returns every session belonging to userID, for the admin surface.
func (s *RedisStore) List(userID string) ([]*model.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionKeys, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, unavailable("list session keys", err)
	}

	var sessions []*model.Session
	for _, sessionKey := range sessionKeys {
		data, err := s.client.Get(ctx, redisKey(userID, sessionKey)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, unavailable("get session", err)
		}
		var session model.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

// Reachable reports whether the Redis connection currently responds to
// PING, for GET /health's external_store_reachable field.
func (s *RedisStore) Reachable(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}
