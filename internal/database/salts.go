// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/avelier/umbra/internal/identity"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/metrics"
)

// GetOrCreateSalt implements identity.SaltStore on DuckDB.
//
// A candidate salt is generated speculatively, then inserted with
// ON CONFLICT DO NOTHING so an existing row is never overwritten, and the
// stored salt is read back unconditionally. Under N-way concurrent first
// access exactly one insert wins; every caller returns the winning row.
// The candidate bytes of a losing insert are discarded.
//
// The context governs cancellation of both statements; a cancelled insert
// leaves no partial row because the statement is atomic. Store failures
// propagate to the caller wrapped into ErrStoreUnavailable. There is no
// fallback salt; inventing one without persistence would diverge
// identities across processes.
func (db *DB) GetOrCreateSalt(ctx context.Context, appID, day string) ([]byte, error) {
	candidate, err := identity.NewSalt()
	if err != nil {
		return nil, err
	}

	start := time.Now()

	insert, err := db.prepare(ctx, `
		INSERT INTO app_salts (app_id, date, salt)
		VALUES (?, ?, ?)
		ON CONFLICT (app_id, date) DO NOTHING`)
	if err != nil {
		return nil, storeErr("prepare insert", err)
	}

	res, err := insert.ExecContext(ctx, appID, day, candidate)
	if err != nil {
		metrics.RecordDBError("insert_or_ignore", "app_salts")
		return nil, storeErr("insert salt", err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		metrics.SaltsCreated.Inc()
		logging.Debug().Str("app_id", appID).Str("date", day).Msg("Daily salt created")
	}

	query, err := db.prepare(ctx, `SELECT salt FROM app_salts WHERE app_id = ? AND date = ?`)
	if err != nil {
		return nil, storeErr("prepare select", err)
	}

	var salt []byte
	if err := query.QueryRowContext(ctx, appID, day).Scan(&salt); err != nil {
		metrics.RecordDBError("select", "app_salts")
		return nil, storeErr("read salt", err)
	}

	if len(salt) != identity.SaltSize {
		return nil, fmt.Errorf("stored salt for %s/%s has %d bytes, want %d", appID, day, len(salt), identity.SaltSize)
	}

	metrics.RecordDBQuery("get_or_create", "app_salts", start)

	return salt, nil
}

// PruneSalts deletes salt rows older than the retention window. Retention
// is a maintenance concern; the identity core never deletes salts itself.
func (db *DB) PruneSalts(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM app_salts WHERE date < ?`, cutoff)
	if err != nil {
		metrics.RecordDBError("delete", "app_salts")
		return 0, storeErr("prune salts", err)
	}
	metrics.RecordDBQuery("delete", "app_salts", start)

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return rows, nil
}
