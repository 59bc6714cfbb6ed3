// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package eventprocessor moves normalized events from the ingestion endpoint
// to the analytics store over NATS JetStream. The publisher side is wrapped
// in a circuit breaker; the consumer side batches rows into DuckDB.
package eventprocessor

import (
	"fmt"
	"time"

	"github.com/avelier/umbra/internal/config"
)

// PublisherConfig holds settings for the JetStream publisher.
type PublisherConfig struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int

	// TrackMsgID enables JetStream deduplication on Nats-Msg-Id.
	TrackMsgID bool
}

// SubscriberConfig holds settings for the durable JetStream subscriber.
type SubscriberConfig struct {
	URL              string
	StreamName       string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	MaxReconnects    int
	ReconnectWait    time.Duration
	MaxDeliver       int
	MaxAckPending    int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
}

// StreamConfig holds the JetStream stream definition.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// ServerConfig holds settings for the embedded NATS server.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// ConsumerConfig holds settings for the analytics store consumer.
type ConsumerConfig struct {
	Topic         string
	BatchSize     int
	FlushInterval time.Duration

	// DedupWindow is how long consumed event IDs are remembered to drop
	// JetStream redeliveries. Zero disables consumer-side deduplication.
	DedupWindow  time.Duration
	DedupEntries int
}

// PublisherConfigFrom derives publisher settings from the app config.
func PublisherConfigFrom(cfg *config.NATSConfig) PublisherConfig {
	return PublisherConfig{
		URL:             cfg.URL,
		MaxReconnects:   cfg.MaxReconnects,
		ReconnectWait:   cfg.ReconnectWait,
		ReconnectBuffer: 8 * 1024 * 1024,
		TrackMsgID:      true,
	}
}

// SubscriberConfigFrom derives subscriber settings from the app config.
func SubscriberConfigFrom(cfg *config.NATSConfig) SubscriberConfig {
	return SubscriberConfig{
		URL:              cfg.URL,
		StreamName:       cfg.StreamName,
		DurableName:      cfg.DurableName,
		QueueGroup:       cfg.QueueGroup,
		SubscribersCount: 1,
		MaxReconnects:    cfg.MaxReconnects,
		ReconnectWait:    cfg.ReconnectWait,
		MaxDeliver:       5,
		MaxAckPending:    1024,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
	}
}

// StreamConfigFrom derives the stream definition from the app config.
func StreamConfigFrom(cfg *config.NATSConfig) StreamConfig {
	return StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{cfg.Subject},
		MaxAge:          time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		MaxBytes:        cfg.MaxStore,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// ServerConfigFrom derives embedded server settings from the app config.
func ServerConfigFrom(cfg *config.NATSConfig) ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              -1, // random free port
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}
}

// ConsumerConfigFrom derives consumer settings from the app config.
func ConsumerConfigFrom(cfg *config.NATSConfig) ConsumerConfig {
	return ConsumerConfig{
		Topic:         cfg.Subject,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		DedupWindow:   5 * time.Minute,
		DedupEntries:  10000,
	}
}

// Validate checks consumer settings.
func (c *ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("consumer topic required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %v", c.FlushInterval)
	}
	return nil
}
