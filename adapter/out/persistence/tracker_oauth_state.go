package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"reply_tracker/core/port/out"
)

// OAuthStateKey is the Redis key prefix for pending OAuth states.
const OAuthStateKey = "oauth:state:"

var (
	ErrEmptyState   = errors.New("state cannot be empty")
	ErrStateUnknown = errors.New("state not found or expired")
)

// StateClient is the go-redis surface the state store needs.
type StateClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisOAuthStateStore keeps OAuth states in Redis.
type RedisOAuthStateStore struct {
	client StateClient
}

var _ out.OAuthStateStore = (*RedisOAuthStateStore)(nil)

func NewRedisOAuthStateStore(client StateClient) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

func (s *RedisOAuthStateStore) StoreState(ctx context.Context, state string, ttl time.Duration) error {
	if state == "" {
		return ErrEmptyState
	}
	if err := s.client.Set(ctx, OAuthStateKey+state, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// ValidateState uses GETDEL so a state can only be redeemed once.
func (s *RedisOAuthStateStore) ValidateState(ctx context.Context, state string) error {
	if state == "" {
		return ErrEmptyState
	}
	_, err := s.client.GetDel(ctx, OAuthStateKey+state).Result()
	if errors.Is(err, redis.Nil) {
		return ErrStateUnknown
	}
	if err != nil {
		return fmt.Errorf("failed to validate OAuth state: %w", err)
	}
	return nil
}

// MemoryOAuthStateStore is the single-process fallback used when Redis is
// not configured.
type MemoryOAuthStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

var _ out.OAuthStateStore = (*MemoryOAuthStateStore)(nil)

func NewMemoryOAuthStateStore() *MemoryOAuthStateStore {
	return &MemoryOAuthStateStore{states: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryOAuthStateStore) StoreState(_ context.Context, state string, ttl time.Duration) error {
	if state == "" {
		return ErrEmptyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.states {
		if !now.Before(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(ttl)
	return nil
}

func (s *MemoryOAuthStateStore) ValidateState(_ context.Context, state string) error {
	if state == "" {
		return ErrEmptyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	delete(s.states, state)
	if !ok || !s.now().Before(exp) {
		return ErrStateUnknown
	}
	return nil
}
