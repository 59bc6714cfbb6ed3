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

	"github.com/avelier/umbra/internal/models"
)

// MaxMindProvider looks up locations through MaxMind's GeoLite2 city web
// service. Requires a free MaxMind account and license key; the free tier
// allows 1,000 lookups/day.
type MaxMindProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

// maxMindResponse is the subset of the GeoLite2 city response we consume.
type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		TimeZone  string  `json:"time_zone"`
	} `json:"location"`
	Subdivisions []struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"subdivisions"`
}

type maxMindErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindProvider creates a GeoLite2 web-service provider. Credentials
// come from https://www.maxmind.com/en/account.
func NewMaxMindProvider(accountID, licenseKey string, timeout time.Duration) *MaxMindProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MaxMindProvider{
		client:     &http.Client{Timeout: timeout},
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    "https://geolite.info/geoip/v2.1/city",
	}
}

func (p *MaxMindProvider) Name() string {
	return "maxmind-geolite2"
}

func (p *MaxMindProvider) IsAvailable() bool {
	return p.accountID != "" && p.licenseKey != ""
}

// Lookup queries the GeoLite2 web service.
func (p *MaxMindProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("maxmind credentials not configured")
	}
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	result, err := p.query(ctx, ipAddress)
	if err != nil {
		return nil, err
	}

	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		CountryCode: result.Country.ISOCode,
		Country:     result.Country.Names["en"],
		City:        result.City.Names["en"],
		Latitude:    result.Location.Latitude,
		Longitude:   result.Location.Longitude,
		Timezone:    result.Location.TimeZone,
	}
	if len(result.Subdivisions) > 0 {
		geo.Region = result.Subdivisions[0].Names["en"]
	}
	return geo, nil
}

func (p *MaxMindProvider) query(ctx context.Context, ipAddress string) (*maxMindResponse, error) {
	url := fmt.Sprintf("%s/%s", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// MaxMind uses Basic Auth: account ID as username, license key as password
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query maxmind: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp maxMindErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("maxmind error (%s): %s", errResp.Code, errResp.Error)
		}
		return nil, fmt.Errorf("maxmind returned status %d", resp.StatusCode)
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode maxmind response: %w", err)
	}
	return &result, nil
}
