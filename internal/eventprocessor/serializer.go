// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package eventprocessor

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/avelier/umbra/internal/models"
)

// Serializer handles normalized event encoding for NATS messages.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts an event to JSON bytes.
func (s *Serializer) Marshal(event *models.NormalizedEvent) ([]byte, error) {
	if event.EventID == "" || event.AppID == "" {
		return nil, fmt.Errorf("event missing identity: event_id=%q app_id=%q", event.EventID, event.AppID)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal converts JSON bytes to an event. Rows written before explicit
// schema versioning get the current version stamped on.
func (s *Serializer) Unmarshal(data []byte) (*models.NormalizedEvent, error) {
	var event models.NormalizedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	event.EnsureSchemaVersion()
	return &event, nil
}
