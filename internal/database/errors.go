// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package database

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrStoreUnavailable wraps connection and query failures against the
	// durable store. Callers treat it as a hard failure of the operation.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
)

// storeErr wraps a low-level database error into ErrStoreUnavailable while
// preserving the cause chain for errors.Is/As.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
