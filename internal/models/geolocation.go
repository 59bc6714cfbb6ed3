// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package models

// Geolocation is the result of a GeoIP lookup for a client IP.
type Geolocation struct {
	IPAddress   string  `json:"ip_address"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone,omitempty"`
}

// IsZero reports whether the lookup produced no usable location.
func (g *Geolocation) IsZero() bool {
	return g == nil || (g.CountryCode == "" && g.Latitude == 0 && g.Longitude == 0)
}
