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

// Package backoff implements the bounded exponential backoff the
// synchronizer uses for its source-call retries and its guest-recoverable
// retry loop, doubling on failure and resetting on success.
package backoff

import "time"

// Backoff tracks a doubling delay capped at Max, reset to Min on success.
// Not safe for concurrent use; each caller that needs independent backoff
// state should hold its own instance.
type Backoff struct {
	Min     time.Duration
	Max     time.Duration
	current time.Duration
}

// New returns a Backoff starting at min, doubling up to max.
func New(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max, current: min}
}

// Next returns the delay to wait before the next retry and doubles the
// internal delay for the following call, capped at Max.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return d
}

// Reset restores the delay to Min, called after a successful attempt.
func (b *Backoff) Reset() {
	b.current = b.Min
}
