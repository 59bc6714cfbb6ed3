// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/avelier/umbra/internal/config"
	"github.com/avelier/umbra/internal/ingest"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/models"
	"github.com/avelier/umbra/internal/validation"
)

// Handler serves the ingestion endpoints.
type Handler struct {
	pipeline *ingest.Pipeline
	cfg      *config.APIConfig
}

// NewHandler creates the ingestion handler.
func NewHandler(pipeline *ingest.Pipeline, cfg *config.APIConfig) *Handler {
	return &Handler{
		pipeline: pipeline,
		cfg:      cfg,
	}
}

// IngestEvent handles POST /api/v1/events: a single event submission.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var event models.IngestEvent
	if !h.decodeBody(rw, w, r, &event) {
		return
	}

	result, err := h.pipeline.Process(r.Context(), h.requestContext(r), &event)
	if err != nil {
		h.writePipelineError(rw, r, err)
		return
	}

	rw.Accepted(result)
}

// IngestBatch handles POST /api/v1/events/batch: multiple events from one
// client in one request. Events are processed in order; a bad event rejects
// only itself.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var batch models.IngestBatch
	if !h.decodeBody(rw, w, r, &batch) {
		return
	}

	if len(batch.Events) == 0 {
		rw.BadRequest("Batch contains no events")
		return
	}
	if len(batch.Events) > h.cfg.MaxBatchSize {
		rw.PayloadTooLarge(fmt.Sprintf("Batch exceeds %d events", h.cfg.MaxBatchSize))
		return
	}

	items, err := h.pipeline.ProcessBatch(r.Context(), h.requestContext(r), batch.Events)
	if err != nil {
		// Events ahead of the failure point are already delivered. The
		// partial results go back with the error so a retry can resume
		// from the failed event instead of re-submitting the stored prefix.
		logging.Ctx(r.Context()).Error().Err(err).Msg("Batch ingestion failed")
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"Event ingestion temporarily unavailable", map[string]interface{}{
				"accepted": len(items),
				"items":    items,
			})
		return
	}

	accepted := 0
	for _, item := range items {
		if item.Accepted() {
			accepted++
		}
	}

	rw.Accepted(map[string]interface{}{
		"accepted": accepted,
		"rejected": len(items) - accepted,
		"items":    items,
	})
}

// requestContext collects the transport-level facts the pipeline needs.
// The client IP comes from RemoteAddr, which the RealIP middleware has
// already rewritten from X-Forwarded-For when behind a proxy.
func (h *Handler) requestContext(r *http.Request) ingest.RequestContext {
	appID := ""
	if app := AppFromContext(r.Context()); app != nil {
		appID = app.AppID
	}
	return ingest.RequestContext{
		AppID:     appID,
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// decodeBody decodes a size-capped JSON body. Returns false if a response
// has already been written. The body is read fully before unmarshalling:
// the MaxBytesReader error must be checked on the read itself, since the
// JSON decoder wraps it beyond recognition.
func (h *Handler) decodeBody(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			rw.PayloadTooLarge(fmt.Sprintf("Request body exceeds %d bytes", h.cfg.MaxBodyBytes))
			return false
		}
		rw.BadRequest("Unreadable request body")
		return false
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		rw.BadRequest("Malformed JSON body: " + err.Error())
		return false
	}

	return true
}

// writePipelineError maps pipeline failures to status codes: validation to
// 400, everything else (salt store down, broker down) to 503. Identity
// failures are never papered over with a placeholder ID.
func (h *Handler) writePipelineError(rw *ResponseWriter, r *http.Request, err error) {
	var vErr *validation.RequestValidationError
	if errors.As(err, &vErr) {
		apiErr := vErr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	logging.Ctx(r.Context()).Error().Err(err).Msg("Event ingestion failed")
	rw.ServiceUnavailable("Event ingestion temporarily unavailable")
}
