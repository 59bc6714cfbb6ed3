// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package ingest implements the event processing pipeline: validate the
// client payload, degrade malformed secondary fields to warnings, enrich
// with user-agent and geolocation detail, compute the pseudonymous daily
// identity, and hand the normalized row to the delivery sink.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avelier/umbra/internal/geoip"
	"github.com/avelier/umbra/internal/identity"
	"github.com/avelier/umbra/internal/logging"
	"github.com/avelier/umbra/internal/metrics"
	"github.com/avelier/umbra/internal/models"
	"github.com/avelier/umbra/internal/validation"
)

// EventSink receives normalized rows at the end of the pipeline.
type EventSink interface {
	Deliver(ctx context.Context, event *models.NormalizedEvent) error
}

// RequestContext carries the transport-level facts about a submission that
// never appear in the body: where it came from and who sent it.
type RequestContext struct {
	AppID     string
	ClientIP  string
	UserAgent string
}

// Result is the outcome for one accepted event.
type Result struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Pipeline processes client events into normalized analytics rows.
type Pipeline struct {
	identity *identity.Service
	geo      *geoip.Resolver
	ua       UAParser
	sink     EventSink
}

// NewPipeline wires the pipeline stages. A nil parser disables UA
// classification.
func NewPipeline(identitySvc *identity.Service, geo *geoip.Resolver, ua UAParser, sink EventSink) *Pipeline {
	if ua == nil {
		ua = NoopParser{}
	}
	return &Pipeline{
		identity: identitySvc,
		geo:      geo,
		ua:       ua,
		sink:     sink,
	}
}

// Process validates, enriches, and delivers a single event.
//
// Malformed secondary fields (locale, screen size, an out-of-window
// timestamp) degrade to warnings on the result. A validation failure rejects the event;
// an identity or delivery failure is an infrastructure error the caller
// maps to a 5xx. The event is never stored with a placeholder identity.
func (p *Pipeline) Process(ctx context.Context, req RequestContext, in *models.IngestEvent) (*Result, error) {
	if err := validation.ValidateStruct(in); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	var warnings []Warning

	ts, warn := checkTimestamp(in.Timestamp, now)
	warnings = appendWarning(warnings, warn)

	locale, warn := checkLocale(in.Locale)
	warnings = appendWarning(warnings, warn)

	screenSize, warn := checkScreenSize(in.ScreenSize)
	warnings = appendWarning(warnings, warn)

	clientIP := geoip.NormalizeIP(req.ClientIP)

	userID, err := p.identity.ComputeIdentity(ctx, ts, req.AppID, in.SessionID, req.UserAgent, clientIP)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("identity").Inc()
		return nil, fmt.Errorf("compute identity: %w", err)
	}

	event := models.NewNormalizedEvent(req.AppID)
	event.SessionID = in.SessionID
	event.Timestamp = ts
	event.UserIDHex = userID
	event.Name = in.Name
	event.URL = in.URL
	event.Referrer = in.Referrer
	event.Locale = locale
	event.ScreenSize = screenSize
	event.Props = in.Props

	uaInfo := p.ua.Parse(req.UserAgent)
	event.OS = uaInfo.OS
	event.OSVersion = uaInfo.OSVersion
	event.Browser = uaInfo.Browser
	event.BrowserVer = uaInfo.BrowserVer
	event.Device = uaInfo.Device

	if p.geo != nil {
		geo := p.geo.Resolve(ctx, clientIP)
		event.CountryCode = geo.CountryCode
		event.Region = geo.Region
		event.City = geo.City
		event.Latitude = geo.Latitude
		event.Longitude = geo.Longitude
	}

	if err := p.sink.Deliver(ctx, event); err != nil {
		metrics.EventsRejected.WithLabelValues("delivery").Inc()
		return nil, fmt.Errorf("deliver event: %w", err)
	}

	metrics.EventsIngested.WithLabelValues(req.AppID).Inc()
	logWarnings(ctx, req.AppID, event.EventID, warnings)

	return &Result{
		EventID:  event.EventID,
		UserID:   userID,
		Warnings: warnings,
	}, nil
}

// ProcessBatch processes events in order, stopping at the first
// infrastructure error. Per-event validation failures reject only that
// event; its slot in the results carries the error. On an infrastructure
// error the items delivered before the failure come back alongside it, so
// the caller can report what is already stored.
func (p *Pipeline) ProcessBatch(ctx context.Context, req RequestContext, events []models.IngestEvent) ([]BatchItem, error) {
	items := make([]BatchItem, 0, len(events))

	for i := range events {
		result, err := p.Process(ctx, req, &events[i])
		if err != nil {
			var vErr *validation.RequestValidationError
			if errors.As(err, &vErr) {
				items = append(items, BatchItem{Error: vErr.Error()})
				continue
			}
			// Identity or delivery failure: the whole batch stops here
			return items, err
		}
		items = append(items, BatchItem{Result: result})
	}

	return items, nil
}

// BatchItem is the per-event outcome in a batch response.
type BatchItem struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Accepted reports whether the event made it into the pipeline.
func (b BatchItem) Accepted() bool {
	return b.Result != nil
}

func appendWarning(warnings []Warning, w *Warning) []Warning {
	if w == nil {
		return warnings
	}
	metrics.EventWarnings.WithLabelValues(w.Field).Inc()
	return append(warnings, *w)
}

func logWarnings(ctx context.Context, appID, eventID string, warnings []Warning) {
	for _, w := range warnings {
		logging.Ctx(ctx).Warn().
			Str("app_id", appID).
			Str("event_id", eventID).
			Str("field", w.Field).
			Str("reason", w.Reason).
			Msg("Malformed event field dropped")
	}
}
