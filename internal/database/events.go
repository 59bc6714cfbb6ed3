// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/avelier/umbra/internal/metrics"
	"github.com/avelier/umbra/internal/models"
)

// InsertEvents writes a batch of normalized rows inside one transaction.
// The batch is all-or-nothing: a failed insert rolls back the whole batch
// so the consumer can nack and redeliver without partial writes.
func (db *DB) InsertEvents(ctx context.Context, events []*models.NormalizedEvent) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin batch", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			event_id, app_id, session_id, user_id, timestamp, name,
			url, referrer, os, os_version, browser, browser_version,
			device, locale, screen_size, country_code, region, city,
			latitude, longitude, props, schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return storeErr("prepare batch insert", err)
	}
	defer closeQuietly(stmt)

	for _, e := range events {
		e.EnsureSchemaVersion()

		var props interface{}
		if len(e.Props) > 0 {
			props = string(e.Props)
		}

		_, err := stmt.ExecContext(ctx,
			e.EventID, e.AppID, e.SessionID, e.UserIDHex, e.Timestamp, e.Name,
			nullable(e.URL), nullable(e.Referrer), nullable(e.OS), nullable(e.OSVersion),
			nullable(e.Browser), nullable(e.BrowserVer), nullable(e.Device),
			nullable(e.Locale), nullable(e.ScreenSize), nullable(e.CountryCode),
			nullable(e.Region), nullable(e.City), e.Latitude, e.Longitude,
			props, e.SchemaVersion,
		)
		if err != nil {
			_ = tx.Rollback()
			metrics.RecordDBError("insert", "events")
			return storeErr(fmt.Sprintf("insert event %s", e.EventID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBError("commit", "events")
		return storeErr("commit batch", err)
	}

	metrics.RecordDBQuery("insert_batch", "events", start)
	return nil
}

// nullable maps empty strings to NULL so optional columns stay NULL
// instead of accumulating empty-string values.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CountEvents returns the number of stored events for an app. Used by
// tests and the readiness probe's storage check.
func (db *DB) CountEvents(ctx context.Context, appID string) (int64, error) {
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE app_id = ?`, appID).Scan(&count)
	if err != nil {
		return 0, storeErr("count events", err)
	}
	return count, nil
}

// PruneEvents deletes event rows older than the retention window.
func (db *DB) PruneEvents(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		metrics.RecordDBError("delete", "events")
		return 0, storeErr("prune events", err)
	}
	metrics.RecordDBQuery("delete", "events", start)

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return rows, nil
}
