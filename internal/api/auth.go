// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/avelier/umbra/internal/cache"
	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/database"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/models"
)

// AppKeyHeader carries the app's API key on submissions.
const AppKeyHeader = "X-Umbra-Key"

type appContextKey struct{}

// AppStore resolves API keys to registered apps.
type AppStore interface {
	GetAppByKey(ctx context.Context, apiKey string) (*models.App, error)
}

// AppAuthenticator authenticates submissions by app key. Resolved apps are
// cached with a TTL so the hot path does not hit the database per event,
// and each app gets a token-bucket rate limiter.
type AppAuthenticator struct {
	store    AppStore
	appCache *cache.Cache

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAppAuthenticator creates an authenticator over the app registry.
func NewAppAuthenticator(store AppStore, cfg *config.APIConfig) *AppAuthenticator {
	a := &AppAuthenticator{
		store:    store,
		appCache: cache.New(cfg.AppCacheTTL),
		limiters: make(map[string]*rate.Limiter),
	}
	if cfg.AppRateLimit > 0 {
		a.limit = rate.Limit(cfg.AppRateLimit)
		a.burst = cfg.AppRateBurst
		if a.burst <= 0 {
			a.burst = int(cfg.AppRateLimit)
		}
	}
	return a
}

// Middleware authenticates the request and enforces the per-app rate
// limit. The resolved app lands in the request context.
func (a *AppAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)

		key := r.Header.Get(AppKeyHeader)
		if key == "" {
			rw.Unauthorized("Missing " + AppKeyHeader + " header")
			return
		}

		app, err := a.resolve(r.Context(), key)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				rw.Unauthorized("Unknown API key")
				return
			}
			logging.Ctx(r.Context()).Error().Err(err).Msg("App lookup failed")
			rw.ServiceUnavailable("App registry unavailable")
			return
		}

		if !a.allow(app.AppID) {
			rw.TooManyRequests("App event budget exhausted")
			return
		}

		ctx := context.WithValue(r.Context(), appContextKey{}, app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AppFromContext returns the authenticated app, or nil outside the
// authenticated route group.
func AppFromContext(ctx context.Context) *models.App {
	app, _ := ctx.Value(appContextKey{}).(*models.App)
	return app
}

func (a *AppAuthenticator) resolve(ctx context.Context, key string) (*models.App, error) {
	if cached, ok := a.appCache.Get(key); ok {
		if app, ok := cached.(*models.App); ok {
			return app, nil
		}
	}

	app, err := a.store.GetAppByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	a.appCache.Set(key, app)
	return app, nil
}

// allow checks the app's token bucket. Wide open when no limit is set.
func (a *AppAuthenticator) allow(appID string) bool {
	if a.limit == 0 {
		return true
	}

	a.mu.Lock()
	limiter, ok := a.limiters[appID]
	if !ok {
		limiter = rate.NewLimiter(a.limit, a.burst)
		a.limiters[appID] = limiter
	}
	a.mu.Unlock()

	return limiter.Allow()
}
