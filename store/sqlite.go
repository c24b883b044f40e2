package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ghiac/llmgate/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed SessionStore: a convenient single-node
// durable backend for development and small deployments, storing each
// session as a JSON blob alongside its indexed key columns.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	keyLocksMu sync.RWMutex
	keyLocks   map[string]*sync.Mutex
}

// NewSQLiteStore opens (creating if absent) a SQLite database at dbPath.
// An empty dbPath opens an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		path:     dbPath,
		keyLocks: make(map[string]*sync.Mutex),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		data        TEXT NOT NULL,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) keyLock(sessionKey string) *sync.Mutex {
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

// Get implements SessionStore.
func (s *SQLiteStore) Get(sessionKey string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE session_key = ?`, sessionKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("query session", err)
	}

	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Put implements SessionStore: upsert with a refreshed UpdatedAt.
func (s *SQLiteStore) Put(session *model.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	session.UpdatedAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO sessions (session_key, user_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			user_id = excluded.user_id,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, session.SessionID, session.UserID, string(data), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return unavailable("upsert session", err)
	}
	return nil
}

// AppendMessage implements SessionStore, serializing concurrent appends to
// the same sessionKey via a per-key mutex.
func (s *SQLiteStore) AppendMessage(sessionKey, userID string, msg model.Message) error {
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
func (s *SQLiteStore) Reset(sessionKey string) error {
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
func (s *SQLiteStore) Delete(sessionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_key = ?`, sessionKey)
	if err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// List returns every session belonging to userID, for the admin surface.
func (s *SQLiteStore) List(userID string) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT data FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, unavailable("query sessions", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var session model.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}
