// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package models

import "time"

// App is a registered application allowed to submit events. API keys are
// stored as SHA-256 hashes; the plaintext key is only ever seen on the
// wire in the X-Umbra-Key header.
type App struct {
	AppID      string    `json:"app_id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
