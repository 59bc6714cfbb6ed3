// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package models defines the data types shared across the ingestion
// pipeline: client payloads, normalized analytics rows, geolocation data,
// and registered apps.
package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// SchemaVersion is the current normalized event schema version.
// Increment on breaking changes to NormalizedEvent.
const SchemaVersion = 1

// IngestEvent is a single client-submitted telemetry event as it arrives
// at the endpoint, before validation and enrichment. Client IP and user
// agent are filled from the HTTP layer, not from the body.
type IngestEvent struct {
	// Name is the event type, e.g. "pageview" or a custom event name.
	Name string `json:"name" validate:"required,min=1,max=128,eventname"`

	// SessionID groups events from one client session. Required because
	// identity pinning is keyed on it.
	SessionID string `json:"session_id" validate:"required,min=1,max=128"`

	// URL is the page or screen the event occurred on.
	URL string `json:"url" validate:"omitempty,max=2048"`

	// Referrer is the referring URL, if any.
	Referrer string `json:"referrer" validate:"omitempty,max=2048"`

	// Timestamp is the client-reported event time. Zero means the server
	// receive time is used.
	Timestamp time.Time `json:"timestamp"`

	// Locale is a BCP 47 language tag, e.g. "en-US". Malformed values
	// degrade to a warning, never a rejection.
	Locale string `json:"locale,omitempty"`

	// ScreenSize is "WxH" in CSS pixels, e.g. "1920x1080". Malformed
	// values degrade to a warning.
	ScreenSize string `json:"screen_size,omitempty"`

	// Props carries arbitrary event properties, stored as-is.
	Props json.RawMessage `json:"props,omitempty"`
}

// IngestBatch is the body of a batched submission.
type IngestBatch struct {
	Events []IngestEvent `json:"events" validate:"required,min=1,dive"`
}

// NormalizedEvent is the canonical analytics row produced by the pipeline
// and forwarded downstream. This is the only shape the analytics store and
// the event bus ever see; raw client IPs never appear on it.
type NormalizedEvent struct {
	// Schema version for forward/backward compatibility
	SchemaVersion int `json:"schema_version,omitempty"`

	// Identification
	EventID   string    `json:"event_id"`
	AppID     string    `json:"app_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// UserIDHex is the daily-rotating pseudonymous user identifier:
	// 64 uppercase hex characters, derived by the identity subsystem.
	UserIDHex string `json:"user_id"`

	// Event payload
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Referrer string `json:"referrer,omitempty"`

	// Client hints (parsed externally, stored as provided)
	OS         string `json:"os,omitempty"`
	OSVersion  string `json:"os_version,omitempty"`
	Browser    string `json:"browser,omitempty"`
	BrowserVer string `json:"browser_version,omitempty"`
	Device     string `json:"device,omitempty"`
	Locale     string `json:"locale,omitempty"`
	ScreenSize string `json:"screen_size,omitempty"`

	// Geolocation (country-level and below, from GeoIP enrichment)
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`

	// Props carries arbitrary event properties as raw JSON.
	Props json.RawMessage `json:"props,omitempty"`
}

// NewNormalizedEvent creates a row with a unique event ID, schema version,
// and UTC timestamp.
func NewNormalizedEvent(appID string) *NormalizedEvent {
	return &NormalizedEvent{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		AppID:         appID,
		Timestamp:     time.Now().UTC(),
	}
}

// EnsureSchemaVersion sets the schema version if not already set.
// Call this when processing rows that may predate explicit versioning.
func (e *NormalizedEvent) EnsureSchemaVersion() {
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SchemaVersion
	}
}
