// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package ingest

import "strings"

// UAInfo is the parsed user-agent detail attached to normalized events.
type UAInfo struct {
	OS         string
	OSVersion  string
	Browser    string
	BrowserVer string
	Device     string
}

// UAParser turns a raw User-Agent header into structured fields. The parser
// never fails: unrecognized agents yield zero-value info.
type UAParser interface {
	Parse(userAgent string) UAInfo
}

// HeuristicParser classifies the common browser and OS families by
// substring matching. Good enough for aggregate analytics; anything exotic
// lands in the empty bucket rather than a wrong one.
type HeuristicParser struct{}

// NewHeuristicParser returns the default parser.
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

// Parse classifies the user agent. Order matters: Edge and Opera embed
// "Chrome", Chrome embeds "Safari".
func (p *HeuristicParser) Parse(userAgent string) UAInfo {
	if userAgent == "" {
		return UAInfo{}
	}

	info := UAInfo{
		OS:      detectOS(userAgent),
		Device:  detectDevice(userAgent),
		Browser: detectBrowser(userAgent),
	}
	return info
}

func detectOS(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iOS"):
		return "iOS"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "CrOS"):
		return "ChromeOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return ""
	}
}

func detectDevice(ua string) string {
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		return "tablet"
	case strings.Contains(ua, "Mobile"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "Android"):
		return "mobile"
	case strings.Contains(ua, "bot"), strings.Contains(ua, "Bot"), strings.Contains(ua, "crawler"):
		return "bot"
	default:
		return "desktop"
	}
}

func detectBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return ""
	}
}

// NoopParser leaves all fields empty. Used when UA classification is
// disabled.
type NoopParser struct{}

func (NoopParser) Parse(string) UAInfo { return UAInfo{} }
