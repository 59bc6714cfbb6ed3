// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/avelier/umbra/internal/metrics"
	"github.com/avelier/umbra/internal/models"
)

// HashAPIKey returns the lowercase hex SHA-256 of an app API key. Only the
// hash is persisted; lookups hash the presented key and match on it.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CreateApp registers an application. The plaintext API key is hashed
// before storage and never persisted.
func (db *DB) CreateApp(ctx context.Context, appID, name, apiKey string) error {
	start := time.Now()

	stmt, err := db.prepare(ctx, `
		INSERT INTO apps (app_id, name, api_key_hash)
		VALUES (?, ?, ?)`)
	if err != nil {
		return storeErr("prepare insert", err)
	}

	if _, err := stmt.ExecContext(ctx, appID, name, HashAPIKey(apiKey)); err != nil {
		metrics.RecordDBError("insert", "apps")
		return storeErr("create app", err)
	}

	metrics.RecordDBQuery("insert", "apps", start)
	return nil
}

// GetAppByKey resolves a presented API key to a registered app.
// Returns ErrNotFound for unknown keys.
func (db *DB) GetAppByKey(ctx context.Context, apiKey string) (*models.App, error) {
	start := time.Now()

	stmt, err := db.prepare(ctx, `
		SELECT app_id, name, api_key_hash, created_at
		FROM apps WHERE api_key_hash = ?`)
	if err != nil {
		return nil, storeErr("prepare select", err)
	}

	app := &models.App{}
	err = stmt.QueryRowContext(ctx, HashAPIKey(apiKey)).
		Scan(&app.AppID, &app.Name, &app.APIKeyHash, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "apps")
		return nil, storeErr("lookup app", err)
	}

	metrics.RecordDBQuery("select", "apps", start)
	return app, nil
}

// GetApp fetches a registered app by its ID. Returns ErrNotFound when the
// app does not exist.
func (db *DB) GetApp(ctx context.Context, appID string) (*models.App, error) {
	stmt, err := db.prepare(ctx, `
		SELECT app_id, name, api_key_hash, created_at
		FROM apps WHERE app_id = ?`)
	if err != nil {
		return nil, storeErr("prepare select", err)
	}

	app := &models.App{}
	err = stmt.QueryRowContext(ctx, appID).
		Scan(&app.AppID, &app.Name, &app.APIKeyHash, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "apps")
		return nil, storeErr("lookup app", err)
	}

	return app, nil
}
