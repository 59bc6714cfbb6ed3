// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package database

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/identity"
	"github.com/avelier/umbra/internal/models"
)

// testDBSemaphore serializes database creation; concurrent DuckDB CGO
// calls under CI resource pressure can hang.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates a new in-memory test database. The semaphore is held
// for the entire test lifecycle and released via t.Cleanup so only one test
// has an active DuckDB connection at a time.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})

	return db
}

func TestGetOrCreateSaltReturnsStableSalt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.GetOrCreateSalt(ctx, "APP1", "2024-01-15")
	if err != nil {
		t.Fatalf("GetOrCreateSalt failed: %v", err)
	}
	if len(first) != identity.SaltSize {
		t.Fatalf("Expected %d-byte salt, got %d", identity.SaltSize, len(first))
	}

	second, err := db.GetOrCreateSalt(ctx, "APP1", "2024-01-15")
	if err != nil {
		t.Fatalf("GetOrCreateSalt failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Expected repeated calls to return the original salt unchanged")
	}
}

func TestGetOrCreateSaltKeyIsolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a, _ := db.GetOrCreateSalt(ctx, "APP1", "2024-01-15")
	b, _ := db.GetOrCreateSalt(ctx, "APP2", "2024-01-15")
	c, _ := db.GetOrCreateSalt(ctx, "APP1", "2024-01-16")

	if bytes.Equal(a, b) {
		t.Error("Expected per-app salt isolation")
	}
	if bytes.Equal(a, c) {
		t.Error("Expected per-day salt isolation")
	}
}

func TestGetOrCreateSaltConcurrentConvergence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const callers = 10
	results := make([][]byte, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			salt, err := db.GetOrCreateSalt(ctx, "APP1", "2024-01-15")
			if err != nil {
				t.Errorf("Caller %d failed: %v", n, err)
				return
			}
			results[n] = salt
		}(i)
	}
	wg.Wait()

	// Exactly one row persisted
	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM app_salts WHERE app_id = ? AND date = ?`,
		"APP1", "2024-01-15").Scan(&count)
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected exactly one salt row, got %d", count)
	}

	for i := 1; i < callers; i++ {
		if !bytes.Equal(results[0], results[i]) {
			t.Fatalf("Caller %d observed a different salt", i)
		}
	}
}

func TestSeededSaltNeverOverwritten(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seeded := bytes.Repeat([]byte{0x42}, identity.SaltSize)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO app_salts (app_id, date, salt) VALUES (?, ?, ?)`,
		"APP1", "2024-01-15", seeded)
	if err != nil {
		t.Fatalf("Seed insert failed: %v", err)
	}

	got, err := db.GetOrCreateSalt(ctx, "APP1", "2024-01-15")
	if err != nil {
		t.Fatalf("GetOrCreateSalt failed: %v", err)
	}
	if !bytes.Equal(got, seeded) {
		t.Error("Expected the seeded salt to be returned unchanged")
	}
}

func TestGetOrCreateSaltHonorsCancellation(t *testing.T) {
	db := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := db.GetOrCreateSalt(ctx, "APP1", "2024-01-15"); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestAppRegistry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateApp(ctx, "APP1", "Test App", "secret-key"); err != nil {
		t.Fatalf("CreateApp failed: %v", err)
	}

	app, err := db.GetAppByKey(ctx, "secret-key")
	if err != nil {
		t.Fatalf("GetAppByKey failed: %v", err)
	}
	if app.AppID != "APP1" || app.Name != "Test App" {
		t.Errorf("Unexpected app: %+v", app)
	}
	if app.APIKeyHash == "secret-key" {
		t.Error("API key must be stored hashed, not in plaintext")
	}

	if _, err := db.GetAppByKey(ctx, "wrong-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown key, got: %v", err)
	}

	byID, err := db.GetApp(ctx, "APP1")
	if err != nil {
		t.Fatalf("GetApp failed: %v", err)
	}
	if byID.AppID != "APP1" {
		t.Errorf("Unexpected app by ID: %+v", byID)
	}
	if _, err := db.GetApp(ctx, "MISSING"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown app, got: %v", err)
	}
}

func TestInsertAndCountEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	events := []*models.NormalizedEvent{
		testEvent("APP1", "pageview"),
		testEvent("APP1", "click"),
		testEvent("APP2", "pageview"),
	}

	if err := db.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	count, err := db.CountEvents(ctx, "APP1")
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events for APP1, got %d", count)
	}
}

func TestInsertEventsEmptyBatch(t *testing.T) {
	db := setupTestDB(t)

	if err := db.InsertEvents(context.Background(), nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got: %v", err)
	}
}

func TestInsertEventsRollsBackOnDuplicate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	dup := testEvent("APP1", "pageview")
	if err := db.InsertEvents(ctx, []*models.NormalizedEvent{dup}); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Batch containing a duplicate primary key fails entirely
	fresh := testEvent("APP1", "click")
	err := db.InsertEvents(ctx, []*models.NormalizedEvent{fresh, dup})
	if err == nil {
		t.Fatal("Expected duplicate event_id to fail the batch")
	}

	count, _ := db.CountEvents(ctx, "APP1")
	if count != 1 {
		t.Errorf("Expected rollback to keep only the original event, got %d", count)
	}
}

func TestPruneSalts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120).Format("2006-01-02")
	if _, err := db.GetOrCreateSalt(ctx, "APP1", old); err != nil {
		t.Fatalf("GetOrCreateSalt failed: %v", err)
	}
	if _, err := db.GetOrCreateSalt(ctx, "APP1", identity.DayOf(time.Now())); err != nil {
		t.Fatalf("GetOrCreateSalt failed: %v", err)
	}

	pruned, err := db.PruneSalts(ctx, 90)
	if err != nil {
		t.Fatalf("PruneSalts failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned salt row, got %d", pruned)
	}

	// Zero retention disables pruning
	pruned, err = db.PruneSalts(ctx, 0)
	if err != nil || pruned != 0 {
		t.Errorf("Expected disabled pruning to be a no-op, got %d, %v", pruned, err)
	}
}

func TestPruneEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	stale := testEvent("APP1", "pageview")
	stale.Timestamp = time.Now().UTC().AddDate(0, 0, -60)
	recent := testEvent("APP1", "pageview")

	if err := db.InsertEvents(ctx, []*models.NormalizedEvent{stale, recent}); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	pruned, err := db.PruneEvents(ctx, 30)
	if err != nil {
		t.Fatalf("PruneEvents failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned event, got %d", pruned)
	}
}

func TestHashAPIKeyDeterministic(t *testing.T) {
	a := HashAPIKey("key")
	b := HashAPIKey("key")
	if a != b {
		t.Error("Expected deterministic key hashing")
	}
	if a == HashAPIKey("other") {
		t.Error("Expected different keys to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}

func testEvent(appID, name string) *models.NormalizedEvent {
	e := models.NewNormalizedEvent(appID)
	e.SessionID = uuid.New().String()
	e.UserIDHex = "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"
	e.Name = name
	e.URL = "https://example.com/"
	return e
}
