// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package geoip

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/avelier/umbra/internal/cache"
	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/models"
)

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.9", "203.0.113.9"},
		{"203.0.113.9:54123", "203.0.113.9"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"[2001:db8::1]", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeIP(tt.in); got != tt.want {
			t.Errorf("NormalizeIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.1.1", "127.0.0.1", "169.254.0.5", "100.64.0.1", "::1", "fe80::1", "fc00::1"}
	for _, ip := range private {
		if !IsPrivateIP(ip) {
			t.Errorf("Expected %s to be private", ip)
		}
	}

	public := []string{"203.0.113.9", "8.8.8.8", "2001:4860:4860::8888"}
	for _, ip := range public {
		if IsPrivateIP(ip) {
			t.Errorf("Expected %s to be public", ip)
		}
	}

	if IsPrivateIP("not-an-ip") {
		t.Error("Unparseable input must not be classified private")
	}
}

// stubProvider returns a fixed location or error and counts calls.
type stubProvider struct {
	geo       *models.Geolocation
	err       error
	available bool
	calls     int
}

func (s *stubProvider) Lookup(_ context.Context, ip string) (*models.Geolocation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	geo := *s.geo
	geo.IPAddress = ip
	return &geo, nil
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) IsAvailable() bool { return s.available }

func testResolver(providers ...Provider) *Resolver {
	return NewResolver(cache.NewLRUCache(100, time.Hour), providers...)
}

func TestResolvePrivateIPSkipsProviders(t *testing.T) {
	stub := &stubProvider{geo: &models.Geolocation{CountryCode: "US"}, available: true}
	r := testResolver(stub)

	geo := r.Resolve(context.Background(), "192.168.1.50:8080")
	if !geo.IsZero() {
		t.Errorf("Expected empty location for private IP, got %+v", geo)
	}
	if stub.calls != 0 {
		t.Errorf("Expected no provider calls for private IP, got %d", stub.calls)
	}
}

func TestResolveCachesLookups(t *testing.T) {
	stub := &stubProvider{geo: &models.Geolocation{CountryCode: "DE", City: "Berlin"}, available: true}
	r := testResolver(stub)

	for i := 0; i < 5; i++ {
		geo := r.Resolve(context.Background(), "203.0.113.9")
		if geo.CountryCode != "DE" {
			t.Fatalf("Unexpected location: %+v", geo)
		}
	}

	if stub.calls != 1 {
		t.Errorf("Expected exactly 1 provider call with warm cache, got %d", stub.calls)
	}
}

func TestResolveFallsBackAcrossProviders(t *testing.T) {
	dead := &stubProvider{err: errors.New("upstream down"), available: true}
	offline := &stubProvider{geo: &models.Geolocation{CountryCode: "FR"}, available: false}
	alive := &stubProvider{geo: &models.Geolocation{CountryCode: "NL"}, available: true}
	r := testResolver(dead, offline, alive)

	geo := r.Resolve(context.Background(), "203.0.113.10")
	if geo.CountryCode != "NL" {
		t.Errorf("Expected fallback to the live provider, got %+v", geo)
	}
	if offline.calls != 0 {
		t.Error("Unavailable provider must be skipped without a call")
	}
}

func TestResolveDegradesToEmptyLocation(t *testing.T) {
	dead := &stubProvider{err: errors.New("upstream down"), available: true}
	r := testResolver(dead)

	geo := r.Resolve(context.Background(), "203.0.113.11")
	if geo == nil || !geo.IsZero() {
		t.Errorf("Expected empty location on total failure, got %+v", geo)
	}

	// Negative result is cached: the dead provider is not retried
	r.Resolve(context.Background(), "203.0.113.11")
	if dead.calls != 1 {
		t.Errorf("Expected negative caching, got %d provider calls", dead.calls)
	}
}

func TestIPAPIProviderLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"country": "Netherlands",
			"countryCode": "NL",
			"regionName": "North Holland",
			"city": "Amsterdam",
			"lat": 52.37,
			"lon": 4.89,
			"timezone": "Europe/Amsterdam",
			"query": "203.0.113.12"
		}`))
	}))
	defer server.Close()

	p := NewIPAPIProvider(time.Second)
	p.baseURL = server.URL

	geo, err := p.Lookup(context.Background(), "203.0.113.12")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if geo.CountryCode != "NL" || geo.City != "Amsterdam" {
		t.Errorf("Unexpected location: %+v", geo)
	}
}

func TestIPAPIProviderFailStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "fail", "message": "reserved range"}`))
	}))
	defer server.Close()

	p := NewIPAPIProvider(time.Second)
	p.baseURL = server.URL

	if _, err := p.Lookup(context.Background(), "203.0.113.13"); err == nil {
		t.Error("Expected error for fail status")
	}
}

func TestIPAPIProviderRateLimit(t *testing.T) {
	p := NewIPAPIProvider(time.Second)
	p.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "success", "countryCode": "US", "lat": 1, "lon": 1}`))
	}))
	defer server.Close()
	p.baseURL = server.URL

	if _, err := p.Lookup(context.Background(), "203.0.113.14"); err != nil {
		t.Fatalf("First lookup should pass: %v", err)
	}
	if _, err := p.Lookup(context.Background(), "203.0.113.15"); err == nil {
		t.Error("Expected rate limit error on exhausted budget")
	}
}

func TestMaxMindProviderRequiresCredentials(t *testing.T) {
	p := NewMaxMindProvider("", "", time.Second)
	if p.IsAvailable() {
		t.Error("Expected provider without credentials to be unavailable")
	}
	if _, err := p.Lookup(context.Background(), "203.0.113.16"); err == nil {
		t.Error("Expected error for unconfigured provider")
	}
}

func TestMaxMindProviderLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "12345" || pass != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code": "AUTHORIZATION_INVALID", "error": "bad credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"city": {"names": {"en": "Rotterdam"}},
			"country": {"iso_code": "NL", "names": {"en": "Netherlands"}},
			"location": {"latitude": 51.92, "longitude": 4.48, "time_zone": "Europe/Amsterdam"},
			"subdivisions": [{"iso_code": "ZH", "names": {"en": "South Holland"}}]
		}`))
	}))
	defer server.Close()

	p := NewMaxMindProvider("12345", "key", time.Second)
	p.baseURL = server.URL

	geo, err := p.Lookup(context.Background(), "203.0.113.17")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if geo.CountryCode != "NL" || geo.City != "Rotterdam" || geo.Region != "South Holland" {
		t.Errorf("Unexpected location: %+v", geo)
	}

	bad := NewMaxMindProvider("12345", "wrong", time.Second)
	bad.baseURL = server.URL
	if _, err := bad.Lookup(context.Background(), "203.0.113.17"); err == nil {
		t.Error("Expected error for rejected credentials")
	}
}

func TestFromConfigProviderSelection(t *testing.T) {
	for _, provider := range []string{"", "none", "ipapi", "maxmind"} {
		cfg := &config.GeoIPConfig{Provider: provider, CacheSize: 10, CacheTTL: time.Hour}
		if _, err := FromConfig(cfg); err != nil {
			t.Errorf("Expected provider %q to build, got: %v", provider, err)
		}
	}

	if _, err := FromConfig(&config.GeoIPConfig{Provider: "bogus"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
