// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// SaltStore is the durable store of per-(app, day) salts. The production
// implementation lives in internal/database on DuckDB; MemorySaltStore
// below serves tests and single-process development.
type SaltStore interface {
	// GetOrCreateSalt returns the salt for (appID, day), creating it on
	// first use. day is a YYYY-MM-DD UTC calendar day. Implementations
	// must be safe under N-way concurrent first access from multiple
	// processes: exactly one salt ever persists per key, an existing salt
	// is never overwritten, and all callers converge on the stored value.
	// The context governs cancellation; there is no internal timeout.
	GetOrCreateSalt(ctx context.Context, appID, day string) ([]byte, error)
}

// NewSalt generates SaltSize cryptographically-random bytes. Callers
// generate speculatively before attempting an insert; bytes from a losing
// insert are discarded, never returned.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DayOf returns the UTC calendar day of ts in YYYY-MM-DD form. A zero ts
// falls back to the current time, so events without a client timestamp
// still land on the receive day.
func DayOf(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format("2006-01-02")
}

// MemorySaltStore is an in-process SaltStore. It mirrors the durable
// store's insert-or-ignore-then-read convergence: the first write for a
// key wins, later speculative salts are discarded.
type MemorySaltStore struct {
	mu    sync.Mutex
	salts map[string][]byte
}

// NewMemorySaltStore creates an empty in-memory salt store.
func NewMemorySaltStore() *MemorySaltStore {
	return &MemorySaltStore{salts: make(map[string][]byte)}
}

// GetOrCreateSalt implements SaltStore.
func (s *MemorySaltStore) GetOrCreateSalt(ctx context.Context, appID, day string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidate, err := NewSalt()
	if err != nil {
		return nil, err
	}

	key := appID + ":" + day

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.salts[key]; ok {
		out := make([]byte, len(existing))
		copy(out, existing)
		return out, nil
	}

	s.salts[key] = candidate
	out := make([]byte, len(candidate))
	copy(out, candidate)
	return out, nil
}

// Seed installs a known salt for (appID, day), replacing nothing if a salt
// already exists. Returns true if the seed was installed. Test helper.
func (s *MemorySaltStore) Seed(appID, day string, salt []byte) bool {
	key := appID + ":" + day

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salts[key]; ok {
		return false
	}
	stored := make([]byte, len(salt))
	copy(stored, salt)
	s.salts[key] = stored
	return true
}

// Len returns the number of stored salts. Test helper.
func (s *MemorySaltStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.salts)
}
