// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avelier/umbra/internal/logging"
)

// HTTPServer matches the *http.Server lifecycle methods the wrapper needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an http.Server to the suture Serve pattern:
// ListenAndServe runs in a goroutine, context cancellation triggers a
// bounded graceful Shutdown.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an HTTP server as a supervised service.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is already canceled, so shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String identifies the service in suture logs.
func (h *HTTPService) String() string {
	return "http-server"
}

// MessagingServer matches the embedded NATS server lifecycle.
type MessagingServer interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// MessagingService keeps an already-started embedded NATS server under
// supervision: it blocks while the server runs and shuts it down when the
// tree stops. If the server dies underneath us, Serve returns an error so
// suture tears the messaging layer down and restarts it.
type MessagingService struct {
	server          MessagingServer
	shutdownTimeout time.Duration
	pollInterval    time.Duration
}

// NewMessagingService wraps an embedded NATS server as a supervised service.
func NewMessagingService(server MessagingServer, shutdownTimeout time.Duration) *MessagingService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &MessagingService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		pollInterval:    5 * time.Second,
	}
}

// Serve implements suture.Service.
func (s *MessagingService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()

			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("messaging server shutdown failed: %w", err)
			}
			return ctx.Err()

		case <-ticker.C:
			if !s.server.IsRunning() {
				return errors.New("messaging server stopped unexpectedly")
			}
		}
	}
}

// String identifies the service in suture logs.
func (s *MessagingService) String() string {
	return "nats-server"
}

// RetentionStore matches the pruning operations of the event store.
type RetentionStore interface {
	PruneSalts(ctx context.Context, retentionDays int) (int64, error)
	PruneEvents(ctx context.Context, retentionDays int) (int64, error)
}

// PrunerConfig holds retention pruner settings.
type PrunerConfig struct {
	// Interval between pruning passes. Default: 1h.
	Interval time.Duration

	// SaltRetentionDays and EventRetentionDays are passed through to the
	// store. 0 disables pruning for that table.
	SaltRetentionDays  int
	EventRetentionDays int
}

// PrunerService periodically deletes expired salt and event rows.
//
// Expired salts are the salts whose retention window has passed; deleting
// them makes the identities derived from them permanently uncomputable,
// which is the privacy property the rotation scheme exists for. The first
// pass runs shortly after startup so a long-stopped instance catches up.
type PrunerService struct {
	store        RetentionStore
	config       PrunerConfig
	initialDelay time.Duration
}

// NewPrunerService creates the retention pruner.
func NewPrunerService(store RetentionStore, config PrunerConfig) *PrunerService {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &PrunerService{store: store, config: config, initialDelay: 30 * time.Second}
}

// Serve implements suture.Service.
func (p *PrunerService) Serve(ctx context.Context) error {
	// Initial pass after a short delay, then on the interval.
	initial := time.NewTimer(p.initialDelay)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-initial.C:
		p.prune(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *PrunerService) prune(ctx context.Context) {
	if p.config.SaltRetentionDays > 0 {
		pruned, err := p.store.PruneSalts(ctx, p.config.SaltRetentionDays)
		switch {
		case err != nil:
			logging.Warn().Err(err).Msg("Salt pruning failed")
		case pruned > 0:
			logging.Info().Int64("pruned", pruned).Msg("Expired salts deleted")
		}
	}

	if p.config.EventRetentionDays > 0 {
		pruned, err := p.store.PruneEvents(ctx, p.config.EventRetentionDays)
		switch {
		case err != nil:
			logging.Warn().Err(err).Msg("Event pruning failed")
		case pruned > 0:
			logging.Info().Int64("pruned", pruned).Msg("Expired events deleted")
		}
	}
}

// String identifies the service in suture logs.
func (p *PrunerService) String() string {
	return "retention-pruner"
}
