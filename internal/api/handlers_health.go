// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package api

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck probes one dependency for the readiness endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks  []ReadinessCheck
	version string
}

// NewHealthHandler creates a health handler with the given dependency
// checks.
func NewHealthHandler(version string, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
	}
}

// Live handles GET /api/v1/health/live. It answers 200 whenever the
// process can serve HTTP at all.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /api/v1/health/ready. It answers 200 only when every
// dependency check passes; a failed salt store check here is the same
// condition that makes event submissions fail hard.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true

	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			results[check.Name] = err.Error()
			healthy = false
		} else {
			results[check.Name] = "ok"
		}
	}

	if !healthy {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"One or more dependencies are unavailable", results)
		return
	}

	rw.Success(map[string]interface{}{
		"status": "ready",
		"checks": results,
	})
}
