package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yeremiapane/order-relay/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionState is what a customer session keeps across restarts.
type SessionState struct {
	Orders  []models.Order      `json:"orders"`
	Current models.CurrentOrder `json:"current_order"`
}

// SessionStore persists customer session state by session id.
// Loading an unknown session returns an empty state.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (SessionState, error)
	Save(ctx context.Context, sessionID string, state SessionState) error
}

// SessionRecord is the row GormSessionStore writes.
type SessionRecord struct {
	SessionID string `gorm:"primaryKey;size:64"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (SessionRecord) TableName() string {
	return "customer_sessions"
}

// GormSessionStore keeps sessions in a local database, typically a sqlite
// file on the kiosk.
type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) (*GormSessionStore, error) {
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session table: %w", err)
	}
	return &GormSessionStore{db: db}, nil
}

func (s *GormSessionStore) Load(ctx context.Context, sessionID string) (SessionState, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).First(&rec, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionState{}, nil
	}
	if err != nil {
		return SessionState{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return decodeState(rec.Payload)
}

func (s *GormSessionStore) Save(ctx context.Context, sessionID string, state SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	rec := SessionRecord{SessionID: sessionID, Payload: string(payload), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// RedisClient is the part of *redis.Client the session store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSessionStore shares sessions between kiosks through redis.
type RedisSessionStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore -> ttl 0 berarti session tidak pernah expired
func NewRedisSessionStore(client RedisClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "session:", ttl: ttl}
}

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (SessionState, error) {
	payload, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return SessionState{}, nil
	}
	if err != nil {
		return SessionState{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return decodeState(payload)
}

func (s *RedisSessionStore) Save(ctx context.Context, sessionID string, state SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func decodeState(payload string) (SessionState, error) {
	var state SessionState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	return state, nil
}
