// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package geoip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/avelier/umbra/internal/models"
)

// ipAPIFreeRPM is the free-tier limit of ip-api.com.
const ipAPIFreeRPM = 45

// IPAPIProvider looks up locations through the free ip-api.com service.
// No API key is required; the free tier allows 45 requests per minute,
// enforced client-side so the upstream never blocks us.
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// ipAPIResponse is the JSON response from ip-api.com.
type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	Query       string  `json:"query"`
}

// NewIPAPIProvider creates an ip-api.com provider on the free tier.
func NewIPAPIProvider(timeout time.Duration) *IPAPIProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/ipAPIFreeRPM), ipAPIFreeRPM),
		baseURL: "http://ip-api.com/json",
	}
}

func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

// Lookup queries ip-api.com. Returns an error without calling out when the
// client-side budget is exhausted.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded for ip-api.com (%d req/min)", ipAPIFreeRPM)
	}
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	result, err := p.query(ctx, ipAddress)
	if err != nil {
		return nil, err
	}

	return &models.Geolocation{
		IPAddress:   ipAddress,
		CountryCode: result.CountryCode,
		Country:     result.Country,
		Region:      result.RegionName,
		City:        result.City,
		Latitude:    result.Lat,
		Longitude:   result.Lon,
		Timezone:    result.Timezone,
	}, nil
}

func (p *IPAPIProvider) query(ctx context.Context, ipAddress string) (*ipAPIResponse, error) {
	// The fields parameter trims the response to what we consume
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,regionName,city,lat,lon,timezone,query",
		p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}
	return &result, nil
}
