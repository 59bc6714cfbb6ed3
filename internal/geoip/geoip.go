// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package geoip resolves client IPs to coarse geographic data for event
// enrichment. Lookups go through an in-process LRU cache; provider failures
// degrade to an empty location, never a rejected event.
package geoip

import (
	"context"
	"net"
	"strings"

	"github.com/avelier/umbra/internal/models"
)

// Provider is a geolocation lookup backend.
type Provider interface {
	// Lookup returns geolocation data for the given IP address.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// IsAvailable reports whether the provider is configured and usable.
	IsAvailable() bool
}

// NoopProvider is the disabled backend: every lookup yields an empty
// location. Used when geo enrichment is turned off.
type NoopProvider struct{}

func (NoopProvider) Lookup(_ context.Context, ipAddress string) (*models.Geolocation, error) {
	return &models.Geolocation{IPAddress: ipAddress}, nil
}

func (NoopProvider) Name() string { return "none" }

func (NoopProvider) IsAvailable() bool { return true }

// privateRanges covers RFC 1918, loopback, link-local, and their IPv6
// equivalents. Addresses in these ranges cannot be geolocated.
var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP reports whether the address is in a private or local range.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// NormalizeIP strips a port and IPv6 brackets from an address as it arrives
// from the HTTP layer, e.g. "203.0.113.9:54123" or "[2001:db8::1]:443".
func NormalizeIP(addr string) string {
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]:"); idx != -1 {
			return addr[1:idx]
		}
		return strings.Trim(addr, "[]")
	}

	// Bare IPv6 addresses have multiple colons and no port
	if strings.Count(addr, ":") != 1 {
		return addr
	}
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
