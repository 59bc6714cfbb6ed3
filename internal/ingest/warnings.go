// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Warning records a malformed secondary field that was dropped or adjusted
// without rejecting the event. The caller logs these.
type Warning struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%q)", w.Field, w.Reason, w.Value)
}

// localePattern accepts BCP 47-shaped language tags: a 2-3 letter language
// subtag, optionally followed by script/region/variant subtags.
var localePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})*$`)

// checkLocale returns the locale if well-formed, or empty plus a warning.
func checkLocale(locale string) (string, *Warning) {
	if locale == "" {
		return "", nil
	}
	if len(locale) > 35 || !localePattern.MatchString(locale) {
		return "", &Warning{Field: "locale", Value: truncate(locale, 64), Reason: "not a valid language tag"}
	}
	return locale, nil
}

// maxScreenDim bounds screen dimensions to something a real display could
// report; larger values are treated as garbage.
const maxScreenDim = 32768

// checkScreenSize returns the "WxH" value if well-formed, or empty plus a
// warning.
func checkScreenSize(size string) (string, *Warning) {
	if size == "" {
		return "", nil
	}

	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return "", &Warning{Field: "screen_size", Value: truncate(size, 64), Reason: "expected WxH"}
	}

	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 || width > maxScreenDim || height > maxScreenDim {
		return "", &Warning{Field: "screen_size", Value: truncate(size, 64), Reason: "dimensions out of range"}
	}

	return size, nil
}

// maxFutureSkew is how far ahead of server time a client timestamp may be
// before it is replaced with the receive time.
const maxFutureSkew = 5 * time.Minute

// maxPastSkew is how far behind server time a client timestamp may be.
// Every distinct day an invented timestamp lands on mints its own daily
// salt, so unbounded backdating is as suspect as a future clock.
const maxPastSkew = 72 * time.Hour

// checkTimestamp returns the event timestamp to use. Zero means the client
// did not report one; values outside the skew window indicate a broken
// clock and are replaced, with a warning.
func checkTimestamp(ts, now time.Time) (time.Time, *Warning) {
	if ts.IsZero() {
		return now, nil
	}
	if ts.After(now.Add(maxFutureSkew)) {
		return now, &Warning{
			Field:  "timestamp",
			Value:  ts.UTC().Format(time.RFC3339),
			Reason: "timestamp in the future, using receive time",
		}
	}
	if ts.Before(now.Add(-maxPastSkew)) {
		return now, &Warning{
			Field:  "timestamp",
			Value:  ts.UTC().Format(time.RFC3339),
			Reason: "timestamp too far in the past, using receive time",
		}
	}
	return ts.UTC(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
