// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package eventprocessor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/avelier/umbra/internal/cache"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/metrics"
	"github.com/avelier/umbra/internal/models"
)

// EventStore is the analytics store the consumer writes into.
type EventStore interface {
	InsertEvents(ctx context.Context, events []*models.NormalizedEvent) error
}

// ConsumerStats holds runtime counters for monitoring.
type ConsumerStats struct {
	MessagesReceived  int64
	MessagesProcessed int64
	ParseErrors       int64
	DuplicatesSkipped int64
	BatchesFlushed    int64
	LastMessageTime   time.Time
}

// StoreConsumer consumes normalized events from JetStream and writes them
// to the analytics store in batches. Messages are acked only after their
// batch commits, so a crash between receive and flush means redelivery,
// not loss; the dedup cache and the events primary key absorb replays.
type StoreConsumer struct {
	source     MessageSource
	store      EventStore
	serializer *Serializer
	config     ConsumerConfig
	dedup      *cache.LRUCache

	messagesReceived  atomic.Int64
	messagesProcessed atomic.Int64
	parseErrors       atomic.Int64
	duplicatesSkipped atomic.Int64
	batchesFlushed    atomic.Int64
	lastMessageTime   atomic.Value // time.Time
}

// NewStoreConsumer creates a consumer over the given source and store.
func NewStoreConsumer(source MessageSource, store EventStore, cfg ConsumerConfig) (*StoreConsumer, error) {
	if source == nil {
		return nil, fmt.Errorf("message source required")
	}
	if store == nil {
		return nil, fmt.Errorf("event store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &StoreConsumer{
		source:     source,
		store:      store,
		serializer: NewSerializer(),
		config:     cfg,
	}
	if cfg.DedupWindow > 0 {
		c.dedup = cache.NewLRUCache(cfg.DedupEntries, cfg.DedupWindow)
	}
	c.lastMessageTime.Store(time.Time{})

	return c, nil
}

// Serve consumes until the context is canceled. The signature fits a
// supervision tree service.
func (c *StoreConsumer) Serve(ctx context.Context) error {
	messages, err := c.source.Subscribe(ctx, c.config.Topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.config.Topic, err)
	}

	logging.Info().
		Str("topic", c.config.Topic).
		Int("batch_size", c.config.BatchSize).
		Dur("flush_interval", c.config.FlushInterval).
		Msg("Store consumer started")

	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()

	var batch []*models.NormalizedEvent
	var pending []*message.Message

	flush := func(flushCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		c.flushBatch(flushCtx, batch, pending)
		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Final flush runs on a fresh context; ctx is already dead
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			flush(flushCtx)
			cancel()
			logging.Info().Msg("Store consumer stopped")
			return ctx.Err()

		case <-ticker.C:
			flush(ctx)

		case msg, ok := <-messages:
			if !ok {
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				flush(flushCtx)
				cancel()
				return nil
			}

			event := c.decode(msg)
			if event == nil {
				continue
			}

			batch = append(batch, event)
			pending = append(pending, msg)

			if len(batch) >= c.config.BatchSize {
				flush(ctx)
			}
		}
	}
}

// decode deserializes and dedup-checks one message. Malformed and duplicate
// messages are acked immediately so JetStream stops redelivering them.
func (c *StoreConsumer) decode(msg *message.Message) *models.NormalizedEvent {
	c.messagesReceived.Add(1)
	c.lastMessageTime.Store(time.Now())
	metrics.NATSConsumed.Inc()

	event, err := c.serializer.Unmarshal(msg.Payload)
	if err != nil {
		c.parseErrors.Add(1)
		logging.Warn().
			Str("message_uuid", msg.UUID).
			Err(err).
			Msg("Failed to parse event message")
		msg.Ack()
		return nil
	}

	if c.dedup != nil {
		if _, seen := c.dedup.Get(event.EventID); seen {
			c.duplicatesSkipped.Add(1)
			msg.Ack()
			return nil
		}
	}

	return event
}

// flushBatch writes a batch and settles its messages: ack on commit, nack
// on failure so JetStream redelivers.
func (c *StoreConsumer) flushBatch(ctx context.Context, batch []*models.NormalizedEvent, pending []*message.Message) {
	if err := c.store.InsertEvents(ctx, batch); err != nil {
		logging.Warn().
			Int("batch_size", len(batch)).
			Err(err).
			Msg("Failed to flush event batch")
		for _, msg := range pending {
			msg.Nack()
		}
		return
	}

	for i, msg := range pending {
		if c.dedup != nil {
			c.dedup.Add(batch[i].EventID, struct{}{})
		}
		msg.Ack()
	}

	c.messagesProcessed.Add(int64(len(batch)))
	c.batchesFlushed.Add(1)

	logging.Debug().
		Int("count", len(batch)).
		Msg("Flushed event batch to store")
}

// Stats returns current runtime counters.
func (c *StoreConsumer) Stats() ConsumerStats {
	var lastTime time.Time
	if t, ok := c.lastMessageTime.Load().(time.Time); ok {
		lastTime = t
	}
	return ConsumerStats{
		MessagesReceived:  c.messagesReceived.Load(),
		MessagesProcessed: c.messagesProcessed.Load(),
		ParseErrors:       c.parseErrors.Load(),
		DuplicatesSkipped: c.duplicatesSkipped.Load(),
		BatchesFlushed:    c.batchesFlushed.Load(),
		LastMessageTime:   lastTime,
	}
}
