// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package ingest

import (
	"testing"
	"time"
)

func TestCheckLocale(t *testing.T) {
	valid := []string{"en", "en-US", "pt-BR", "zh-Hans-CN", "nl"}
	for _, locale := range valid {
		if got, warn := checkLocale(locale); got != locale || warn != nil {
			t.Errorf("Expected %q to pass, got %q, %v", locale, got, warn)
		}
	}

	invalid := []string{"e", "en_US", "123", "!!", "en-", "aaaa-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}
	for _, locale := range invalid {
		if got, warn := checkLocale(locale); got != "" || warn == nil {
			t.Errorf("Expected %q to warn, got %q, %v", locale, got, warn)
		}
	}

	if got, warn := checkLocale(""); got != "" || warn != nil {
		t.Error("Empty locale is absent, not malformed")
	}
}

func TestCheckScreenSize(t *testing.T) {
	valid := []string{"1920x1080", "390x844", "2x2"}
	for _, size := range valid {
		if got, warn := checkScreenSize(size); got != size || warn != nil {
			t.Errorf("Expected %q to pass, got %q, %v", size, got, warn)
		}
	}

	invalid := []string{"huge", "1920", "0x0", "-1x100", "1920x", "99999999x2"}
	for _, size := range invalid {
		if got, warn := checkScreenSize(size); got != "" || warn == nil {
			t.Errorf("Expected %q to warn, got %q, %v", size, got, warn)
		}
	}
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	if ts, warn := checkTimestamp(time.Time{}, now); !ts.Equal(now) || warn != nil {
		t.Error("Zero timestamp should silently use receive time")
	}

	past := now.Add(-time.Hour)
	if ts, warn := checkTimestamp(past, now); !ts.Equal(past) || warn != nil {
		t.Error("Recent past timestamps are accepted as-is")
	}

	yesterday := now.Add(-48 * time.Hour)
	if ts, warn := checkTimestamp(yesterday, now); !ts.Equal(yesterday) || warn != nil {
		t.Error("Timestamps within the past window are accepted as-is")
	}

	slightlyAhead := now.Add(time.Minute)
	if ts, warn := checkTimestamp(slightlyAhead, now); !ts.Equal(slightlyAhead) || warn != nil {
		t.Error("Small clock skew is tolerated")
	}

	future := now.Add(time.Hour)
	ts, warn := checkTimestamp(future, now)
	if !ts.Equal(now) || warn == nil {
		t.Error("Far-future timestamp should be replaced with a warning")
	}

	ancient := now.Add(-30 * 24 * time.Hour)
	ts, warn = checkTimestamp(ancient, now)
	if !ts.Equal(now) || warn == nil {
		t.Error("Far-past timestamp should be replaced with a warning")
	}
}

func TestHeuristicParser(t *testing.T) {
	p := NewHeuristicParser()

	tests := []struct {
		ua      string
		os      string
		browser string
		device  string
	}{
		{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36",
			"Windows", "Chrome", "desktop",
		},
		{
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
			"iOS", "Safari", "mobile",
		},
		{
			"Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
			"Linux", "Firefox", "desktop",
		},
		{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
			"Windows", "Edge", "desktop",
		},
		{
			"Googlebot/2.1 (+http://www.google.com/bot.html)",
			"", "", "bot",
		},
	}

	for _, tt := range tests {
		info := p.Parse(tt.ua)
		if info.OS != tt.os || info.Browser != tt.browser || info.Device != tt.device {
			t.Errorf("Parse(%q) = %+v, want os=%s browser=%s device=%s",
				tt.ua, info, tt.os, tt.browser, tt.device)
		}
	}

	if info := p.Parse(""); info != (UAInfo{}) {
		t.Errorf("Empty UA should yield zero info, got %+v", info)
	}
}
