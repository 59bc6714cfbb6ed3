// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with a timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates the core tables and indexes.
//
// app_salts is the salt store: at most one immutable salt ever exists per
// (app_id, date); the UNIQUE constraint is what makes the
// insert-or-ignore-then-read sequence a correct cross-process convergence
// primitive with no application-level locking.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS app_salts (
			app_id TEXT NOT NULL,
			date TEXT NOT NULL,
			salt BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (app_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS apps (
			app_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key_hash TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (api_key_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			app_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			name TEXT NOT NULL,
			url TEXT,
			referrer TEXT,
			os TEXT,
			os_version TEXT,
			browser TEXT,
			browser_version TEXT,
			device TEXT,
			locale TEXT,
			screen_size TEXT,
			country_code TEXT,
			region TEXT,
			city TEXT,
			latitude DOUBLE,
			longitude DOUBLE,
			props TEXT,
			schema_version INTEGER DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_app_time ON events (app_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user ON events (app_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events (app_id, session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_salts_date ON app_salts (date)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}
