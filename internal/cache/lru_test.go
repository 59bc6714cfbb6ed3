// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRUCache(10, 1*time.Minute)

	c.Add("key1", "value1")
	value, exists := c.Get("key1")
	if !exists {
		t.Error("Expected key1 to exist")
	}
	if value != "value1" {
		t.Errorf("Expected value1, got %v", value)
	}

	if _, exists := c.Get("missing"); exists {
		t.Error("Expected missing key to not exist")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3, 1*time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// Touch "a" so "b" becomes the least recently used
	c.Get("a")

	c.Add("d", 4)

	if _, exists := c.Get("b"); exists {
		t.Error("Expected b to be evicted as least recently used")
	}
	if _, exists := c.Get("a"); !exists {
		t.Error("Expected a to survive eviction after recent access")
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 entries at capacity, got %d", c.Len())
	}
}

func TestLRUExpiration(t *testing.T) {
	c := NewLRUCache(10, 50*time.Millisecond)

	c.Add("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, exists := c.Get("key1"); exists {
		t.Error("Expected key1 to be expired")
	}
}

func TestLRUUpdate(t *testing.T) {
	c := NewLRUCache(10, 1*time.Minute)

	c.Add("key1", "first")
	c.Add("key1", "second")

	value, _ := c.Get("key1")
	if value != "second" {
		t.Errorf("Expected updated value, got %v", value)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry after update, got %d", c.Len())
	}
}

func TestLRURemove(t *testing.T) {
	c := NewLRUCache(10, 1*time.Minute)

	c.Add("key1", "value1")
	if !c.Remove("key1") {
		t.Error("Expected Remove to return true for existing key")
	}
	if c.Remove("key1") {
		t.Error("Expected Remove to return false for removed key")
	}
	if _, exists := c.Get("key1"); exists {
		t.Error("Expected key1 to be removed")
	}
}

func TestLRUCleanupExpired(t *testing.T) {
	c := NewLRUCache(10, 30*time.Millisecond)

	c.Add("key1", 1)
	c.Add("key2", 2)
	time.Sleep(60 * time.Millisecond)

	removed := c.CleanupExpired()
	if removed != 2 {
		t.Errorf("Expected 2 expired entries removed, got %d", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after cleanup, got %d", c.Len())
	}
}

func TestLRUClear(t *testing.T) {
	c := NewLRUCache(10, 1*time.Minute)

	c.Add("key1", 1)
	c.Add("key2", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Expected empty cache after clear, got %d", c.Len())
	}

	// Cache remains usable after clear
	c.Add("key3", 3)
	if _, exists := c.Get("key3"); !exists {
		t.Error("Expected cache to be usable after clear")
	}
}

func TestLRUStats(t *testing.T) {
	c := NewLRUCache(10, 1*time.Minute)

	c.Add("key1", 1)
	c.Get("key1")
	c.Get("missing")

	hits, misses, size := c.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if misses != 1 {
		t.Errorf("Expected 1 miss, got %d", misses)
	}
	if size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRUCache(100, 1*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				c.Add(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("Expected capacity bound of 100, got %d", c.Len())
	}
}
