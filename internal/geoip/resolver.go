// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package geoip

import (
	"context"
	"fmt"

	"github.com/avelier/umbra/internal/cache"
	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/metrics"
	"github.com/avelier/umbra/internal/models"
)

// Resolver resolves client IPs with an LRU cache in front of the configured
// providers. Providers are tried in order until one succeeds; total failure
// returns an empty location so enrichment never blocks ingestion.
type Resolver struct {
	providers []Provider
	cache     *cache.LRUCache
}

// NewResolver creates a resolver over the given providers.
func NewResolver(lru *cache.LRUCache, providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		cache:     lru,
	}
}

// FromConfig builds a resolver from the geoip config section. An unknown
// provider name is a config validation bug, reported as an error here too.
func FromConfig(cfg *config.GeoIPConfig) (*Resolver, error) {
	lru := cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)

	switch cfg.Provider {
	case "", "none":
		return NewResolver(lru, NoopProvider{}), nil
	case "maxmind":
		// ip-api.com picks up the slack when the GeoLite2 daily budget runs out
		return NewResolver(lru,
			NewMaxMindProvider(cfg.AccountID, cfg.LicenseKey, cfg.Timeout),
			NewIPAPIProvider(cfg.Timeout),
		), nil
	case "ipapi":
		return NewResolver(lru, NewIPAPIProvider(cfg.Timeout)), nil
	default:
		return nil, fmt.Errorf("unknown geoip provider: %q", cfg.Provider)
	}
}

// Resolve returns the location for an IP. Private and unparseable addresses
// resolve to an empty location without touching any provider.
func (r *Resolver) Resolve(ctx context.Context, ipAddress string) *models.Geolocation {
	ipAddress = NormalizeIP(ipAddress)

	if ipAddress == "" || IsPrivateIP(ipAddress) {
		return &models.Geolocation{IPAddress: ipAddress}
	}

	if cached, ok := r.cache.Get(ipAddress); ok {
		if geo, ok := cached.(*models.Geolocation); ok {
			metrics.GeoIPLookups.WithLabelValues("cache", "cached").Inc()
			return geo
		}
	}

	geo := r.lookup(ctx, ipAddress)
	r.cache.Add(ipAddress, geo)
	return geo
}

func (r *Resolver) lookup(ctx context.Context, ipAddress string) *models.Geolocation {
	for _, provider := range r.providers {
		if !provider.IsAvailable() {
			continue
		}

		geo, err := provider.Lookup(ctx, ipAddress)
		if err != nil {
			metrics.GeoIPLookups.WithLabelValues(provider.Name(), "error").Inc()
			logging.Ctx(ctx).Debug().Err(err).
				Str("provider", provider.Name()).
				Msg("GeoIP provider failed")
			continue
		}

		if geo.IsZero() {
			metrics.GeoIPLookups.WithLabelValues(provider.Name(), "miss").Inc()
		} else {
			metrics.GeoIPLookups.WithLabelValues(provider.Name(), "hit").Inc()
		}
		return geo
	}

	// Negative results are cached too, so a dead upstream is not hammered
	metrics.GeoIPLookups.WithLabelValues("none", "error").Inc()
	return &models.Geolocation{IPAddress: ipAddress}
}

// CacheStats exposes cache counters for diagnostics.
func (r *Resolver) CacheStats() (hits, misses int64, size int) {
	return r.cache.Stats()
}
