package chatbot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/csss-services/internal/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollection = "chat_sessions"

// Session is the context remembered for a chat session.
type Session struct {
	SessionID   string    `bson:"session_id" json:"session_id"`
	LastMessage string    `bson:"last_message" json:"last_message"`
	Category    string    `bson:"category" json:"category"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
}

type SessionStore interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
}

// MongoSessions keeps sessions in MongoDB; a TTL index on expires_at
// drops idle ones.
type MongoSessions struct {
	coll *mongo.Collection
	ttl  time.Duration
}

func NewMongoSessions(database *mongo.Database, ttl time.Duration) (*MongoSessions, error) {
	if err := db.CreateTTLIndexForCollection(database, sessionCollection); err != nil {
		return nil, err
	}
	return &MongoSessions{coll: database.Collection(sessionCollection), ttl: ttl}, nil
}

func (m *MongoSessions) Save(ctx context.Context, s Session) error {
	s.ExpiresAt = s.UpdatedAt.Add(m.ttl)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.coll.UpdateOne(ctx,
		bson.M{"session_id": s.SessionID},
		bson.M{"$set": s},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save chat session %s: %w", s.SessionID, err)
	}
	return nil
}

// Get returns nil, nil for unknown sessions.
func (m *MongoSessions) Get(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := m.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session %s: %w", sessionID, err)
	}
	return &s, nil
}

// MemorySessions is the store used when no MongoDB is configured.
type MemorySessions struct {
	ttl      time.Duration
	sessions sync.Map // session id -> Session
	now      func() time.Time
}

func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{ttl: ttl, now: time.Now}
}

func (m *MemorySessions) Save(_ context.Context, s Session) error {
	s.ExpiresAt = s.UpdatedAt.Add(m.ttl)
	m.sessions.Store(s.SessionID, s)
	m.prune()
	return nil
}

func (m *MemorySessions) Get(_ context.Context, sessionID string) (*Session, error) {
	v, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, nil
	}
	s := v.(Session)
	if m.now().After(s.ExpiresAt) {
		m.sessions.Delete(sessionID)
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessions) prune() {
	now := m.now()
	m.sessions.Range(func(key, value any) bool {
		if now.After(value.(Session).ExpiresAt) {
			m.sessions.Delete(key)
		}
		return true
	})
}
