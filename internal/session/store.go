// Package session stores opaque bearer tokens in Redis. A token maps to the
// user id that logged in and expires after a fixed TTL; nothing about the
// caller is encoded in the token itself.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:v1:"

// ErrExpired reports a token that is unknown or past its TTL.
var ErrExpired = errors.New("session: token expired or unknown")

// Store issues and resolves session tokens.
type Store interface {
	Issue(ctx context.Context, userID string) (string, error)
	Resolve(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

type redisStore struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(cache *redis.Client, ttl time.Duration) Store {
	return &redisStore{cache: cache, ttl: ttl}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *redisStore) Issue(ctx context.Context, userID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, keyPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return token, nil
}

func (s *redisStore) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := s.cache.Get(ctx, keyPrefix+token).Result()
	if err == redis.Nil {
		return "", ErrExpired
	}
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return userID, nil
}

func (s *redisStore) Revoke(ctx context.Context, token string) error {
	if err := s.cache.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

type memoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]memorySession
}

type memorySession struct {
	userID  string
	expires time.Time
}

// NewMemoryStore builds an in-memory session store for running without Redis.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{ttl: ttl, tokens: make(map[string]memorySession)}
}

func (s *memoryStore) Issue(_ context.Context, userID string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memorySession{userID: userID, expires: time.Now().Add(s.ttl)}
	return token, nil
}

func (s *memoryStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.tokens[token]
	if !ok {
		return "", ErrExpired
	}
	if time.Now().After(sess.expires) {
		delete(s.tokens, token)
		return "", ErrExpired
	}
	return sess.userID, nil
}

func (s *memoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}
