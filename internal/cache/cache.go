// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package cache implements the bounded history cache: a FIFO ring of the
// last N processed blocks, each carrying the pre-state snapshot and the
// records it emitted, so a reorg can be rolled back deterministically.
//
// The cache has no durable backing store (no persistence across
// restarts). Its bookkeeping enforces monotonically increasing, contiguous
// heights and a single eviction step when full.
package cache

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/debshrew/debshrew/internal/record"
)

// BlockID identifies a block by height and hash.
type BlockID struct {
	Height uint32
	Hash   common.Hash
}

// Entry is one cached block: its identity, the transform-state snapshot
// taken immediately before it was processed, and the records it emitted.
type Entry struct {
	Height   uint32
	Hash     common.Hash
	PreState map[string][]byte
	Records  []record.Record
}

// Cache is a bounded, contiguous FIFO of Entry, newest at the back.
type Cache struct {
	capacity int
	entries  []Entry
}

// New creates a history cache holding at most capacity entries. capacity
// must be >= 1.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{capacity: capacity}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int { return len(c.entries) }

// Capacity returns the configured maximum depth N.
func (c *Cache) Capacity() int { return c.capacity }

// Append inserts a new entry. If the cache is non-empty, entry.Height must
// be exactly one greater than the current newest entry's height — the
// "unbroken chain" invariant. When the cache is at capacity the
// oldest entry is evicted in the same step.
func (c *Cache) Append(entry Entry) error {
	if len(c.entries) > 0 {
		newest := c.entries[len(c.entries)-1]
		if entry.Height != newest.Height+1 {
			return fmt.Errorf("cache: non-adjacent append: newest height %d, got %d", newest.Height, entry.Height)
		}
	}
	if len(c.entries) == c.capacity {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, entry)
	return nil
}

// Reset empties the cache. Used on a deep reorg.
func (c *Cache) Reset() {
	c.entries = nil
}

// Latest returns the newest cached block identity, if any.
func (c *Cache) Latest() (BlockID, bool) {
	if len(c.entries) == 0 {
		return BlockID{}, false
	}
	e := c.entries[len(c.entries)-1]
	return BlockID{Height: e.Height, Hash: e.Hash}, true
}

// PreStateAt returns the pre-state snapshot recorded for the given height,
// if that height is still cached.
func (c *Cache) PreStateAt(height uint32) (map[string][]byte, bool) {
	for _, e := range c.entries {
		if e.Height == height {
			return e.PreState, true
		}
	}
	return nil, false
}

// HashAt returns the cached hash at the given height, if present.
func (c *Cache) HashAt(height uint32) (common.Hash, bool) {
	for _, e := range c.entries {
		if e.Height == height {
			return e.Hash, true
		}
	}
	return common.Hash{}, false
}

// CommonAncestor walks cached entries from newest to oldest, calling
// canonicalHashAt for each cached height, and returns the height of the
// first entry whose cached hash agrees with the canonical chain. Returns
// (0, false) if no cached entry agrees — a deep reorg beyond the cache's depth.
func (c *Cache) CommonAncestor(canonicalHashAt func(height uint32) (common.Hash, error)) (uint32, bool, error) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		canon, err := canonicalHashAt(e.Height)
		if err != nil {
			return 0, false, fmt.Errorf("cache: common ancestor lookup at height %d: %w", e.Height, err)
		}
		if canon == e.Hash {
			return e.Height, true, nil
		}
	}
	return 0, false, nil
}

// PopAbove removes and returns, newest first, all entries with height >
// the given height. The returned entries are no longer held by the cache.
func (c *Cache) PopAbove(height uint32) []Entry {
	cut := len(c.entries)
	for i, e := range c.entries {
		if e.Height > height {
			cut = i
			break
		}
	}
	popped := c.entries[cut:]
	c.entries = c.entries[:cut]

	out := make([]Entry, len(popped))
	for i, e := range popped {
		out[len(popped)-1-i] = e // reverse: newest first
	}
	return out
}
