// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package identity implements the pseudonymous user identification
// subsystem: a daily-rotating, per-app-salted hashing scheme that turns
// (client IP, user agent, session) into a user ID that is stable for the
// day and unlinkable across days.
//
// Layering, leaves first:
//
//   - SaltStore: durable per-(app, day) random salt, created once
//   - salt cache: in-memory, 48h TTL by default
//   - hasher: SHA-256 over ip, separator, user agent, salt
//   - session cache: pins a computed ID to (app, session) for 24h
//   - Service: orchestrates the above behind ComputeIdentity
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SaltSize is the length in bytes of a daily salt.
const SaltSize = 16

// hashSeparator is the byte placed between the client IP and the user
// agent before hashing. ASCII unit separator: it cannot appear in an IP
// literal, keeping the concatenation unambiguous.
const hashSeparator = 0x1F

// Hash computes the pseudonymous identity digest for the given inputs.
// It is a deterministic pure function: identical (ip, userAgent, salt)
// always yields the identical digest. That determinism is what makes the
// ID stable for the day and consistent across processes sharing a salt.
func Hash(clientIP, userAgent string, salt []byte) [sha256.Size]byte {
	buf := make([]byte, 0, len(clientIP)+1+len(userAgent)+len(salt))
	buf = append(buf, clientIP...)
	buf = append(buf, hashSeparator)
	buf = append(buf, userAgent...)
	buf = append(buf, salt...)
	return sha256.Sum256(buf)
}

// HashHex returns the public form of the identity digest: a 64-character
// uppercase hexadecimal string.
func HashHex(clientIP, userAgent string, salt []byte) string {
	digest := Hash(clientIP, userAgent, salt)
	return strings.ToUpper(hex.EncodeToString(digest[:]))
}
