package keycloak

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// CachedToken is an access token with its absolute expiry.
type CachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// usable reports whether the token may still be handed out at now given
// the safety margin.
func (t CachedToken) usable(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// TokenStore holds at most one cached admin token.
type TokenStore interface {
	// Load returns the cached token, or ok false when there is none.
	Load(ctx context.Context) (token CachedToken, ok bool, err error)

	// Save replaces the cached token.
	Save(ctx context.Context, token CachedToken) error

	// Clear drops the cached token, if any.
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token CachedToken
	set   bool
}

// NewMemoryTokenStore returns an empty MemoryTokenStore.
func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Load(context.Context) (CachedToken, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token CachedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.set = token, true
	return nil
}

func (s *MemoryTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.set = CachedToken{}, false
	return nil
}

// KV is the key-value subset of the Redis client used by
// [RedisTokenStore]. *redis.Client from pkg/clients/redis satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
}

// RedisTokenStore shares the token between replicas through Redis. The
// key expires together with the token.
type RedisTokenStore struct {
	kv  KV
	key string
	now func() time.Time
}

// NewRedisTokenStore stores the token for clientID in realm under a key
// derived from both.
func NewRedisTokenStore(kv KV, realm, clientID string) *RedisTokenStore {
	return &RedisTokenStore{
		kv:  kv,
		key: "keycloak:admin_token:" + realm + ":" + clientID,
		now: time.Now,
	}
}

// Key returns the Redis key the token is stored under, before the
// client's prefix is applied.
func (s *RedisTokenStore) Key() string { return s.key }

func (s *RedisTokenStore) Load(ctx context.Context) (CachedToken, bool, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if sserr.IsNotFound(err) {
			return CachedToken{}, false, nil
		}
		return CachedToken{}, false, err
	}
	var token CachedToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return CachedToken{}, false, sserr.Wrap(err, sserr.CodeInternal, "keycloak: cached admin token is corrupt")
	}
	return token, true, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, token CachedToken) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(token)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "keycloak: failed to encode admin token")
	}
	return s.kv.Set(ctx, s.key, string(data), ttl)
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	_, err := s.kv.Del(ctx, s.key)
	return err
}
