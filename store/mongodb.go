package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ghiac/llmgate/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore is the MongoDB-backed SessionStore: a durable external
// backend, offered alongside the in-memory and Redis backends behind the
// same interface.
type MongoDBStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection

	sessionTTL time.Duration

	keyLocksMu sync.RWMutex
	keyLocks   map[string]*sync.Mutex
}

// MongoDBStoreConfig holds connection parameters for MongoDBStore.
type MongoDBStoreConfig struct {
	URI        string
	Database   string
	Collection string
	SessionTTL time.Duration
}

// DefaultMongoDBStoreConfig returns the conventional local development
// connection parameters.
func DefaultMongoDBStoreConfig() MongoDBStoreConfig {
	return MongoDBStoreConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "llmgate",
		Collection: "sessions",
		SessionTTL: 30 * time.Minute,
	}
}

// NewMongoDBStore dials MongoDB, verifies connectivity, and ensures the
// indexes the store's queries rely on.
func NewMongoDBStore(config MongoDBStoreConfig) (*MongoDBStore, error) {
	if config.URI == "" {
		config.URI = "mongodb://localhost:27017"
	}
	if config.Database == "" {
		config.Database = "llmgate"
	}
	if config.Collection == "" {
		config.Collection = "sessions"
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	database := client.Database(config.Database)
	collection := database.Collection(config.Collection)

	store := &MongoDBStore{
		client:     client,
		database:   database,
		collection: collection,
		sessionTTL: config.SessionTTL,
		keyLocks:   make(map[string]*sync.Mutex),
	}

	if err := store.initIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	return store, nil
}

func (s *MongoDBStore) initIndexes(ctx context.Context) error {
	if _, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create user_id index: %w", err)
	}

	if _, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(s.sessionTTL.Seconds())),
	}); err != nil {
		return fmt.Errorf("create updated_at ttl index: %w", err)
	}

	return nil
}

// Close disconnects the underlying MongoDB client.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// keyLock returns the per-sessionKey mutex used to serialize appendMessage,
// creating it on first use.
func (s *MongoDBStore) keyLock(sessionKey string) *sync.Mutex {
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

// sessionDocument is the on-disk shape: the Session itself is stored as a
// JSON blob so the schema tracks model.Session without a BSON mapping
// layer, the same trick the teacher store used for its session payloads.
type sessionDocument struct {
	SessionKey string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Data       string    `bson:"data"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func encodeSession(session *model.Session) (sessionDocument, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return sessionDocument{}, fmt.Errorf("marshal session: %w", err)
	}
	return sessionDocument{
		SessionKey: session.SessionID,
		UserID:     session.UserID,
		Data:       string(data),
		UpdatedAt:  session.UpdatedAt,
	}, nil
}

func decodeSession(doc sessionDocument) (*model.Session, error) {
	var session model.Session
	if err := json.Unmarshal([]byte(doc.Data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Get implements SessionStore.
func (s *MongoDBStore) Get(sessionKey string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var doc sessionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionKey}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find session", err)
	}
	return decodeSession(doc)
}

// Put implements SessionStore: upsert with a refreshed UpdatedAt.
func (s *MongoDBStore) Put(session *model.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	session.UpdatedAt = time.Now()

	doc, err := encodeSession(session)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": doc.SessionKey}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return unavailable("upsert session", err)
	}
	return nil
}

// AppendMessage implements SessionStore, serializing concurrent appends to
// the same sessionKey via a per-key mutex.
func (s *MongoDBStore) AppendMessage(sessionKey, userID string, msg model.Message) error {
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
func (s *MongoDBStore) Reset(sessionKey string) error {
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
func (s *MongoDBStore) Delete(sessionKey string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": sessionKey})
	if err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// List returns every session belonging to userID, for the admin surface.
func (s *MongoDBStore) List(userID string) ([]*model.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cur, err := s.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer cur.Close(ctx)

	var sessions []*model.Session
	for cur.Next(ctx) {
		var doc sessionDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		session, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, cur.Err()
}
