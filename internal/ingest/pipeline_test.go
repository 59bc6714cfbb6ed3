// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avelier/umbra/internal/cache"
	"github.com/avelier/umbra/internal/geoip"
	"github.com/avelier/umbra/internal/identity"
	"github.com/avelier/umbra/internal/models"
	"github.com/avelier/umbra/internal/validation"
)

// captureSink records delivered events and can be made to fail.
type captureSink struct {
	mu     sync.Mutex
	events []*models.NormalizedEvent
	err    error
}

func (s *captureSink) Deliver(_ context.Context, event *models.NormalizedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) last(t *testing.T) *models.NormalizedEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		t.Fatal("No events delivered")
	}
	return s.events[len(s.events)-1]
}

// fixedGeo always answers with one location.
type fixedGeo struct {
	geo models.Geolocation
}

func (f *fixedGeo) Lookup(_ context.Context, ip string) (*models.Geolocation, error) {
	geo := f.geo
	geo.IPAddress = ip
	return &geo, nil
}

func (f *fixedGeo) Name() string { return "fixed" }

func (f *fixedGeo) IsAvailable() bool { return true }

func testPipeline(t *testing.T, sink EventSink) *Pipeline {
	t.Helper()
	svc := identity.NewService(identity.NewMemorySaltStore())
	geo := geoip.NewResolver(
		cache.NewLRUCache(100, time.Hour),
		&fixedGeo{geo: models.Geolocation{CountryCode: "NL", City: "Amsterdam", Latitude: 52.37, Longitude: 4.89}},
	)
	return NewPipeline(svc, geo, NewHeuristicParser(), sink)
}

func testRequest() RequestContext {
	return RequestContext{
		AppID:     "APP1",
		ClientIP:  "203.0.113.9:41234",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
	}
}

func testIngestEvent() *models.IngestEvent {
	return &models.IngestEvent{
		Name:      "pageview",
		SessionID: "sess-1",
		URL:       "https://example.com/pricing",
		Locale:    "en-US",
	}
}

func TestProcessProducesNormalizedEvent(t *testing.T) {
	sink := &captureSink{}
	p := testPipeline(t, sink)

	result, err := p.Process(context.Background(), testRequest(), testIngestEvent())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
	if len(result.UserID) != 64 || result.UserID != strings.ToUpper(result.UserID) {
		t.Errorf("Expected 64 uppercase hex chars, got %q", result.UserID)
	}

	event := sink.last(t)
	if event.AppID != "APP1" || event.Name != "pageview" {
		t.Errorf("Unexpected event: %+v", event)
	}
	if event.UserIDHex != result.UserID {
		t.Error("Result and event user IDs must match")
	}
	if event.OS != "Windows" || event.Browser != "Chrome" || event.Device != "desktop" {
		t.Errorf("Unexpected UA classification: %+v", event)
	}
	if event.CountryCode != "NL" || event.City != "Amsterdam" {
		t.Errorf("Expected geo enrichment, got %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Error("Expected server receive time for zero client timestamp")
	}
}

func TestProcessStableIdentityWithinSession(t *testing.T) {
	sink := &captureSink{}
	p := testPipeline(t, sink)

	first, err := p.Process(context.Background(), testRequest(), testIngestEvent())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Same session from a new IP mid-session keeps its identity
	req := testRequest()
	req.ClientIP = "198.51.100.7:9000"
	second, err := p.Process(context.Background(), req, testIngestEvent())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if first.UserID != second.UserID {
		t.Error("Expected pinned identity across an IP change within the session")
	}
}

func TestProcessRejectsInvalidEvent(t *testing.T) {
	sink := &captureSink{}
	p := testPipeline(t, sink)

	event := testIngestEvent()
	event.Name = ""

	_, err := p.Process(context.Background(), testRequest(), event)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	var vErr *validation.RequestValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("Expected RequestValidationError, got %T", err)
	}
	if len(sink.events) != 0 {
		t.Error("Rejected event must not be delivered")
	}
}

func TestProcessWarnsOnMalformedSecondaryFields(t *testing.T) {
	sink := &captureSink{}
	p := testPipeline(t, sink)

	event := testIngestEvent()
	event.Locale = "!!not-a-locale!!"
	event.ScreenSize = "huge"
	event.Timestamp = time.Now().Add(2 * time.Hour)

	result, err := p.Process(context.Background(), testRequest(), event)
	if err != nil {
		t.Fatalf("Malformed secondary fields must not reject the event: %v", err)
	}
	if len(result.Warnings) != 3 {
		t.Fatalf("Expected 3 warnings, got %v", result.Warnings)
	}

	delivered := sink.last(t)
	if delivered.Locale != "" || delivered.ScreenSize != "" {
		t.Errorf("Malformed fields must be dropped, got %+v", delivered)
	}
	if delivered.Timestamp.After(time.Now().Add(time.Minute)) {
		t.Error("Future timestamp must be replaced with receive time")
	}
}

func TestProcessIdentityFailureIsHard(t *testing.T) {
	sink := &captureSink{}
	svc := identity.NewService(&downStore{})
	p := NewPipeline(svc, nil, nil, sink)

	_, err := p.Process(context.Background(), testRequest(), testIngestEvent())
	if err == nil {
		t.Fatal("Expected error when the salt store is down")
	}
	if len(sink.events) != 0 {
		t.Error("No event may be delivered without a computed identity")
	}
}

// downStore fails every salt request.
type downStore struct{}

func (d *downStore) GetOrCreateSalt(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("store down")
}

func TestProcessDeliveryFailurePropagates(t *testing.T) {
	sink := &captureSink{err: errors.New("broker down")}
	p := testPipeline(t, sink)

	if _, err := p.Process(context.Background(), testRequest(), testIngestEvent()); err == nil {
		t.Fatal("Expected delivery error to propagate")
	}
}

func TestProcessBatchMixedOutcomes(t *testing.T) {
	sink := &captureSink{}
	p := testPipeline(t, sink)

	events := []models.IngestEvent{
		*testIngestEvent(),
		{Name: "", SessionID: "sess-1"}, // invalid
		*testIngestEvent(),
	}

	items, err := p.ProcessBatch(context.Background(), testRequest(), events)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	if !items[0].Accepted() || items[1].Accepted() || !items[2].Accepted() {
		t.Errorf("Unexpected outcomes: %+v", items)
	}
	if len(sink.events) != 2 {
		t.Errorf("Expected 2 delivered events, got %d", len(sink.events))
	}
}

func TestProcessBatchStopsOnInfrastructureError(t *testing.T) {
	sink := &captureSink{}
	svc := identity.NewService(&downStore{})
	p := NewPipeline(svc, nil, nil, sink)

	events := []models.IngestEvent{*testIngestEvent(), *testIngestEvent()}
	items, err := p.ProcessBatch(context.Background(), testRequest(), events)
	if err == nil {
		t.Fatal("Expected infrastructure error")
	}
	if len(items) != 0 {
		t.Errorf("Expected no accepted items, got %d", len(items))
	}
}

// flakySink delivers a fixed number of events and then fails.
type flakySink struct {
	captureSink
	remaining int
}

func (s *flakySink) Deliver(ctx context.Context, event *models.NormalizedEvent) error {
	if s.remaining <= 0 {
		return errors.New("broker down")
	}
	s.remaining--
	return s.captureSink.Deliver(ctx, event)
}

func TestProcessBatchReturnsPartialResultsOnError(t *testing.T) {
	sink := &flakySink{remaining: 2}
	p := testPipeline(t, sink)

	events := []models.IngestEvent{
		*testIngestEvent(), *testIngestEvent(), *testIngestEvent(), *testIngestEvent(),
	}
	items, err := p.ProcessBatch(context.Background(), testRequest(), events)
	if err == nil {
		t.Fatal("Expected the delivery failure to surface")
	}

	// The two events delivered before the failure stay in the results so
	// the caller can tell the client what is already stored.
	if len(items) != 2 {
		t.Fatalf("Expected 2 partial items, got %d", len(items))
	}
	for i, item := range items {
		if !item.Accepted() {
			t.Errorf("Item %d should carry its result: %+v", i, item)
		}
	}
	if len(sink.events) != 2 {
		t.Errorf("Expected 2 delivered events, got %d", len(sink.events))
	}
}

func TestStoreSinkDelivers(t *testing.T) {
	store := &captureStore{}
	sink := NewStoreSink(store)

	event := models.NewNormalizedEvent("APP1")
	if err := sink.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 1 {
		t.Errorf("Expected one single-event batch, got %v", store.batches)
	}
}

type captureStore struct {
	batches [][]*models.NormalizedEvent
}

func (s *captureStore) InsertEvents(_ context.Context, events []*models.NormalizedEvent) error {
	s.batches = append(s.batches, events)
	return nil
}
