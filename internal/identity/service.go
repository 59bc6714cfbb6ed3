// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/avelier/umbra/internal/cache"
	"github.com/avelier/umbra/internal/metrics"
)

// Default TTLs. The salt cache outlives a single day to cover day-boundary
// skew across processes; the session pin holds a user ID fixed for the
// cached lifetime of its session.
const (
	DefaultSaltCacheTTL = 48 * time.Hour
	DefaultSessionTTL   = 24 * time.Hour
)

// Service orchestrates the identity subsystem. Both caches are owned and
// injected here rather than accessed as process globals, and are safe for
// concurrent use; the only cross-process coordination is the salt store's
// insert-or-ignore-then-read sequence.
type Service struct {
	store SaltStore

	saltCache    *cache.Cache
	sessionCache *cache.Cache

	saltCacheTTL time.Duration
	sessionTTL   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithSaltCacheTTL overrides the salt cache TTL.
func WithSaltCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.saltCacheTTL = ttl }
}

// WithSessionTTL overrides the session pin TTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// NewService creates an identity service backed by the given salt store.
func NewService(store SaltStore, opts ...Option) *Service {
	s := &Service{
		store:        store,
		saltCacheTTL: DefaultSaltCacheTTL,
		sessionTTL:   DefaultSessionTTL,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.saltCache = cache.New(s.saltCacheTTL)
	s.sessionCache = cache.New(s.sessionTTL)

	return s
}

// ComputeIdentity derives the pseudonymous user ID for one event.
//
// The fast path is the session cache: once an ID is pinned for
// (appID, sessionID) it is returned unchanged for the pin's lifetime even
// if the client IP changes mid-session (mobile network handoff). On a
// miss, the day's salt is resolved through the salt cache and store, the
// digest computed, and both caches populated.
//
// Concurrent first calls for the same session may each compute and write;
// the hash is deterministic for identical inputs so last-write-wins is
// benign. If the salt store is unreachable the whole call fails: callers
// never receive an empty or non-pseudonymous fallback identifier.
func (s *Service) ComputeIdentity(ctx context.Context, ts time.Time, appID, sessionID, userAgent, clientIP string) (string, error) {
	sessionKey := appID + ":" + sessionID

	if v, ok := s.sessionCache.Get(sessionKey); ok {
		if id, ok := v.(string); ok && id != "" {
			metrics.IdentityComputations.WithLabelValues("session_cache").Inc()
			return id, nil
		}
	}

	day := DayOf(ts)
	salt, err := s.resolveSalt(ctx, appID, day)
	if err != nil {
		metrics.IdentityFailures.Inc()
		return "", fmt.Errorf("resolve salt for app %s day %s: %w", appID, day, err)
	}

	start := time.Now()
	id := HashHex(clientIP, userAgent, salt)
	metrics.HashDuration.Observe(time.Since(start).Seconds())

	s.sessionCache.SetWithTTL(sessionKey, id, s.sessionTTL)

	return id, nil
}

// resolveSalt fetches the (appID, day) salt from the cache, falling back
// to the store on a miss. A cache miss is normal control flow, not an
// error; a store failure is a hard failure.
func (s *Service) resolveSalt(ctx context.Context, appID, day string) ([]byte, error) {
	cacheKey := appID + ":" + day

	if v, ok := s.saltCache.Get(cacheKey); ok {
		if salt, ok := v.([]byte); ok && len(salt) == SaltSize {
			metrics.IdentityComputations.WithLabelValues("salt_cache").Inc()
			return salt, nil
		}
	}

	salt, err := s.store.GetOrCreateSalt(ctx, appID, day)
	if err != nil {
		return nil, err
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt store returned %d bytes, want %d", len(salt), SaltSize)
	}

	metrics.IdentityComputations.WithLabelValues("salt_store").Inc()
	s.saltCache.SetWithTTL(cacheKey, salt, s.saltCacheTTL)

	return salt, nil
}

// SessionCacheStats exposes session cache counters for health reporting.
func (s *Service) SessionCacheStats() cache.Stats {
	return s.sessionCache.GetStats()
}

// SaltCacheStats exposes salt cache counters for health reporting.
func (s *Service) SaltCacheStats() cache.Stats {
	return s.saltCache.GetStats()
}
