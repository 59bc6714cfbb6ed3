// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package identity

import (
	"bytes"
	"strings"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0xAB}, SaltSize)

	first := HashHex("203.0.113.5", "TestAgent/1.0", salt)
	for i := 0; i < 10; i++ {
		if got := HashHex("203.0.113.5", "TestAgent/1.0", salt); got != first {
			t.Fatalf("Hash not deterministic: %s != %s", got, first)
		}
	}
}

func TestHashHexFormat(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)
	id := HashHex("203.0.113.5", "TestAgent/1.0", salt)

	if len(id) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(id))
	}
	if id != strings.ToUpper(id) {
		t.Errorf("Expected uppercase hex, got %s", id)
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			t.Fatalf("Non-hex character %q in identity %s", r, id)
		}
	}
}

func TestHashDistinctSalts(t *testing.T) {
	saltA := bytes.Repeat([]byte{0x01}, SaltSize)
	saltB := bytes.Repeat([]byte{0x02}, SaltSize)

	idA := HashHex("203.0.113.5", "TestAgent/1.0", saltA)
	idB := HashHex("203.0.113.5", "TestAgent/1.0", saltB)

	if idA == idB {
		t.Error("Expected different salts to produce different identities")
	}
}

func TestHashDistinctInputs(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)

	base := HashHex("203.0.113.5", "TestAgent/1.0", salt)

	if got := HashHex("203.0.113.6", "TestAgent/1.0", salt); got == base {
		t.Error("Expected different IPs to produce different identities")
	}
	if got := HashHex("203.0.113.5", "OtherAgent/2.0", salt); got == base {
		t.Error("Expected different user agents to produce different identities")
	}
}

func TestHashSeparatorUnambiguous(t *testing.T) {
	// Without a separator, ("1.2.3.45", "6Agent") and ("1.2.3.4", "56Agent")
	// would concatenate identically. The separator byte must keep them apart.
	salt := bytes.Repeat([]byte{0x01}, SaltSize)

	a := HashHex("1.2.3.45", "6Agent", salt)
	b := HashHex("1.2.3.4", "56Agent", salt)

	if a == b {
		t.Error("Expected separator to disambiguate shifted ip/ua boundaries")
	}
}

func TestHashEmptyInputs(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)

	// Degenerate inputs still produce a well-formed digest.
	id := HashHex("", "", salt)
	if len(id) != 64 {
		t.Errorf("Expected 64 hex characters for empty inputs, got %d", len(id))
	}
}
