// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package ingest

import (
	"context"

	"github.com/avelier/umbra/internal/models"
)

// EventPublisher is the transport-side delivery contract, satisfied by the
// JetStream publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *models.NormalizedEvent) error
}

// PublisherSink delivers rows to the event bus on a fixed topic.
type PublisherSink struct {
	publisher EventPublisher
	topic     string
}

// NewPublisherSink wraps a publisher as a sink.
func NewPublisherSink(publisher EventPublisher, topic string) *PublisherSink {
	return &PublisherSink{publisher: publisher, topic: topic}
}

func (s *PublisherSink) Deliver(ctx context.Context, event *models.NormalizedEvent) error {
	return s.publisher.PublishEvent(ctx, s.topic, event)
}

// EventStore is the storage-side delivery contract, satisfied by the
// analytics database.
type EventStore interface {
	InsertEvents(ctx context.Context, events []*models.NormalizedEvent) error
}

// StoreSink writes rows straight to the analytics store. Used when the
// event bus is disabled and the endpoint and store run in one process.
type StoreSink struct {
	store EventStore
}

// NewStoreSink wraps a store as a sink.
func NewStoreSink(store EventStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Deliver(ctx context.Context, event *models.NormalizedEvent) error {
	return s.store.InsertEvents(ctx, []*models.NormalizedEvent{event})
}
