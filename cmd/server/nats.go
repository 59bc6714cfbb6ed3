// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package main

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/avelier/umbra/internal/api"
	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/database"
	"github.com/avelier/umbra/internal/eventprocessor"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/supervisor"
)

// natsComponents bundles the transport pieces wired during startup so the
// sink, readiness checks, and shutdown all reference one place.
type natsComponents struct {
	Publisher  *eventprocessor.Publisher
	subscriber *eventprocessor.Subscriber
	streamInit *eventprocessor.StreamInitializer
	conn       *natsgo.Conn
}

// initNATS brings up the JetStream transport: optionally an embedded NATS
// server, the event stream, the circuit-breaker publisher, and the durable
// consumer that batches events into the store. The embedded server and the
// consumer run under the supervisor tree; the publisher is owned by the
// pipeline sink and closed on shutdown.
func initNATS(ctx context.Context, cfg *config.NATSConfig, db *database.DB, tree *supervisor.Tree) (*natsComponents, error) {
	url := cfg.URL

	if cfg.EmbeddedServer {
		srvCfg := eventprocessor.ServerConfigFrom(cfg)
		srv, err := eventprocessor.NewEmbeddedServer(&srvCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		url = srv.ClientURL()
		tree.AddMessagingService(supervisor.NewMessagingService(srv, 10*time.Second))
		logging.Info().Str("url", url).Str("store_dir", cfg.StoreDir).Msg("Embedded NATS server started")
	}

	// Dedicated connection for stream provisioning and health probes.
	conn, err := natsgo.Connect(url,
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	streamCfg := eventprocessor.StreamConfigFrom(cfg)
	streamInit, err := eventprocessor.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := streamInit.EnsureStream(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("provision stream: %w", err)
	}

	wmLogger := eventprocessor.NewLoggerAdapter()

	pubCfg := eventprocessor.PublisherConfigFrom(cfg)
	pubCfg.URL = url
	publisher, err := eventprocessor.NewPublisher(pubCfg, wmLogger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	subCfg := eventprocessor.SubscriberConfigFrom(cfg)
	subCfg.URL = url
	subscriber, err := eventprocessor.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		_ = publisher.Close()
		conn.Close()
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	consumer, err := eventprocessor.NewStoreConsumer(subscriber, db, eventprocessor.ConsumerConfigFrom(cfg))
	if err != nil {
		_ = subscriber.Close()
		_ = publisher.Close()
		conn.Close()
		return nil, fmt.Errorf("create store consumer: %w", err)
	}
	tree.AddStorageService(consumer)

	return &natsComponents{
		Publisher:  publisher,
		subscriber: subscriber,
		streamInit: streamInit,
		conn:       conn,
	}, nil
}

// ReadinessChecks reports transport health: the stream must be queryable
// and the publish circuit breaker must not be open.
func (n *natsComponents) ReadinessChecks() []api.ReadinessCheck {
	return []api.ReadinessCheck{
		{
			Name: "event-stream",
			Check: func(ctx context.Context) error {
				if !n.streamInit.IsHealthy(ctx) {
					return fmt.Errorf("event stream unavailable")
				}
				return nil
			},
		},
		{
			Name: "event-publisher",
			Check: func(ctx context.Context) error {
				if n.Publisher.BreakerState() == gobreaker.StateOpen {
					return fmt.Errorf("publish circuit breaker open")
				}
				return nil
			},
		},
	}
}

// Close releases transport resources not owned by the supervisor tree.
func (n *natsComponents) Close() {
	if err := n.Publisher.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing publisher")
	}
	if err := n.subscriber.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing subscriber")
	}
	n.conn.Close()
}
