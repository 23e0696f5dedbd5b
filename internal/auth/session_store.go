package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-denoise-project/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore keeps login sessions server side. The browser only holds the id.
type SessionStore interface {
	Create(ctx context.Context, userID uint) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

type gormSessionStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewGormSessionStore stores sessions in the sessions table.
func NewGormSessionStore(db *gorm.DB, ttl time.Duration) SessionStore {
	return &gormSessionStore{db: db, ttl: ttl, now: time.Now}
}

func (s *gormSessionStore) Create(ctx context.Context, userID uint) (*models.Session, error) {
	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get returns ErrSessionExpired for stale sessions and removes them.
func (s *gormSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	if session.Expired(s.now()) {
		_ = s.Delete(ctx, id)
		return nil, ErrSessionExpired
	}
	return &session, nil
}

func (s *gormSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSessionStore stores sessions as hashes that redis expires itself.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *redisSessionStore) Create(ctx context.Context, userID uint) (*models.Session, error) {
	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	key := sessionKey(session.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", strconv.FormatUint(uint64(userID), 10),
			"created_at", now.UTC().Format(time.RFC3339Nano),
			"expires_at", session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *redisSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	values, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}

	userID, err := strconv.ParseUint(values["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, values["created_at"])
	expiresAt, err := time.Parse(time.RFC3339Nano, values["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}

	session := &models.Session{ID: id, UserID: uint(userID), CreatedAt: createdAt, ExpiresAt: expiresAt}
	if session.Expired(s.now()) {
		_ = s.Delete(ctx, id)
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
