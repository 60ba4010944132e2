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

// Package syncengine implements the Synchronizer: the driver state
// machine that polls the source for its tip, detects forward progress
// versus reorgs, orchestrates transform apply/rollback, and hands
// records to the sink in a single total order.
package syncengine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/debshrew/debshrew/internal/backoff"
	"github.com/debshrew/debshrew/internal/cache"
	"github.com/debshrew/debshrew/internal/metricsreg"
	"github.com/debshrew/debshrew/internal/record"
	"github.com/debshrew/debshrew/internal/sink"
	"github.com/debshrew/debshrew/internal/source"
	"github.com/debshrew/debshrew/internal/transform"
)

// Phase is the synchronizer's current state.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePolling     Phase = "polling"
	PhaseApplying    Phase = "applying"
	PhaseRollingBack Phase = "rolling_back"
	PhaseDegraded    Phase = "degraded"
)

// SourceClient is the narrow upstream capability the synchronizer polls.
// Satisfied by *source.Client; declared here so tests can substitute a
// fake.
type SourceClient interface {
	TipHeight(ctx context.Context) (uint32, error)
	HashAt(ctx context.Context, height uint32) (common.Hash, error)
}

// Host is the transform host capability the synchronizer drives.
// Satisfied by *transform.Host.
type Host interface {
	ProcessBlock(height uint32, hash common.Hash) ([]record.Record, error)
	Rollback(height uint32, hash common.Hash) ([]record.Record, error)
	State() transform.State
	SetState(transform.State)
}

// Synchronizer is the core driver loop.
type Synchronizer struct {
	src   SourceClient
	host  Host
	cache *cache.Cache
	sink  sink.Sink

	startHeight  uint32
	pollInterval time.Duration
	maxRetries   int
	retryDelay   time.Duration

	phase      Phase
	nextHeight uint32
}

// New constructs a Synchronizer. startHeight is the first height to
// process when the cache is empty.
func New(src SourceClient, host Host, c *cache.Cache, snk sink.Sink, startHeight uint32, pollInterval time.Duration, maxRetries int, retryDelay time.Duration) *Synchronizer {
	return &Synchronizer{
		src:          src,
		host:         host,
		cache:        c,
		sink:         snk,
		startHeight:  startHeight,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
		retryDelay:   retryDelay,
		phase:        PhaseIdle,
		nextHeight:   startHeight,
	}
}

// Phase returns the synchronizer's current state, for status reporting.
func (s *Synchronizer) Phase() Phase { return s.phase }

// Run drives the polling loop until ctx is cancelled or the
// synchronizer transitions to Degraded or hits a consistency violation.
// A cancellation is observed only between block applications; on exit
// the sink is flushed.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.sink.Flush()
		default:
		}

		s.phase = PhasePolling
		if err := s.tick(ctx); err != nil {
			s.phase = PhaseDegraded
			metricsreg.DegradedGauge.Update(1)
			log.Error("synchronizer entering degraded state", "err", err, "next_height", s.nextHeight)
			if ferr := s.sink.Flush(); ferr != nil {
				log.Error("flush while degrading failed", "err", ferr)
			}
			return err
		}
		s.phase = PhaseIdle

		select {
		case <-ctx.Done():
			return s.sink.Flush()
		case <-time.After(s.pollInterval):
		}
	}
}

// tick executes one polling-loop iteration.
func (s *Synchronizer) tick(ctx context.Context) error {
	var upstream uint32
	start := time.Now()
	err := s.withRetry(ctx, "tip_height", func() error {
		var e error
		upstream, e = s.src.TipHeight(ctx)
		return e
	})
	metricsreg.TipPollLatency.UpdateSince(start)
	if err != nil {
		return &ErrDegraded{Cause: fmt.Errorf("tip_height exhausted retries: %w", err)}
	}

	localI := int64(s.nextHeight) - 1
	upstreamI := int64(upstream)

	switch {
	case upstreamI == localI:
		if latest, ok := s.cache.Latest(); ok {
			var tipHash common.Hash
			if err := s.withRetry(ctx, "hash_at(tip)", func() error {
				var e error
				tipHash, e = s.src.HashAt(ctx, upstream)
				return e
			}); err != nil {
				return &ErrDegraded{Cause: fmt.Errorf("hash_at(%d) exhausted retries: %w", upstream, err)}
			}
			if tipHash != latest.Hash {
				metricsreg.ReorgsTotal.Inc(1)
				return s.reorgBranch(ctx, upstream)
			}
		}
		return nil
	case upstreamI > localI:
		return s.forwardApply(ctx, s.nextHeight, upstream)
	default:
		return s.reorgBranch(ctx, upstream)
	}
}

// forwardApply applies heights [from, to] in order, breaking into the
// reorg branch if a parent-linkage mismatch is detected.
func (s *Synchronizer) forwardApply(ctx context.Context, from, to uint32) error {
	for h := from; h <= to; h++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var hash common.Hash
		if err := s.withRetry(ctx, "hash_at", func() error {
			var e error
			hash, e = s.src.HashAt(ctx, h)
			return e
		}); err != nil {
			return &ErrDegraded{Cause: fmt.Errorf("hash_at(%d) exhausted retries: %w", h, err)}
		}

		if prev, ok := s.cache.Latest(); ok && prev.Height == h-1 {
			var parentHash common.Hash
			if err := s.withRetry(ctx, "hash_at(parent)", func() error {
				var e error
				parentHash, e = s.src.HashAt(ctx, prev.Height)
				return e
			}); err != nil {
				return &ErrDegraded{Cause: fmt.Errorf("parent linkage recheck at %d exhausted retries: %w", prev.Height, err)}
			}
			if parentHash != prev.Hash {
				metricsreg.ReorgsTotal.Inc(1)
				return s.reorgBranch(ctx, to)
			}
		}

		s.phase = PhaseApplying
		applyStart := time.Now()
		if err := s.applyBlock(ctx, h, hash); err != nil {
			return err
		}
		metricsreg.ApplyLatency.UpdateSince(applyStart)
		s.nextHeight = h + 1
	}
	return nil
}

// applyBlock runs process_block for height h, retrying guest-recoverable
// failures with backoff, and on success appends
// the cache entry and forwards its records to the sink in order.
func (s *Synchronizer) applyBlock(ctx context.Context, h uint32, hash common.Hash) error {
	preState := s.host.State().Clone()
	b := backoff.New(s.retryDelay, maxBackoffFor(s.retryDelay, s.maxRetries))

	attempts := 0
	for {
		recs, err := s.host.ProcessBlock(h, hash)
		if err == nil {
			entry := cache.Entry{Height: h, Hash: hash, PreState: preState, Records: recs}
			if err := s.cache.Append(entry); err != nil {
				return &ErrConsistencyViolation{Cause: fmt.Errorf("append height %d: %w", h, err)}
			}
			metricsreg.CacheDepth.Update(int64(s.cache.Len()))
			metricsreg.BlocksApplied.Inc(1)
			if len(recs) > 0 {
				metricsreg.RecordsEmitted.Inc(int64(len(recs)))
				if err := s.withRetry(ctx, "sink_send", func() error { return s.sink.Send(recs) }); err != nil {
					return &ErrDegraded{Cause: fmt.Errorf("sink send for height %d exhausted retries: %w", h, err)}
				}
			}
			return nil
		}

		// Every failed invocation restores the host's live state from the
		// pre-invocation snapshot, whether or not the
		// block will be retried.
		s.host.SetState(preState.Clone())

		var gf *transform.ErrGuestFailure
		if !errors.As(err, &gf) {
			return &ErrConsistencyViolation{Cause: fmt.Errorf("process_block(%d): %w", h, err)}
		}
		if !isTransientGuestCause(gf.Cause) {
			return &ErrDegraded{Cause: fmt.Errorf("guest fatal at height %d: %w", h, gf)}
		}

		attempts++
		if attempts > s.maxRetries {
			return &ErrDegraded{Cause: fmt.Errorf("guest recoverable failure at height %d exhausted retries: %w", h, gf)}
		}
		log.Debug("transform guest recoverable failure, retrying", "height", h, "attempt", attempts, "err", gf)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Next()):
		}
	}
}

// reorgBranch walks the cache back to the common ancestor, rolls back
// every entry above it, and resumes forward apply from there. A common
// ancestor miss is a deep reorg: the cache is reset and the synchronizer
// resumes from upstream-N.
func (s *Synchronizer) reorgBranch(ctx context.Context, upstreamTip uint32) error {
	s.phase = PhaseRollingBack

	ancestor, found, err := s.cache.CommonAncestor(func(h uint32) (common.Hash, error) {
		var hash common.Hash
		e := s.withRetry(ctx, "hash_at(ancestor)", func() error {
			var e2 error
			hash, e2 = s.src.HashAt(ctx, h)
			return e2
		})
		return hash, e
	})
	if err != nil {
		return &ErrDegraded{Cause: fmt.Errorf("common ancestor lookup: %w", err)}
	}

	if !found {
		metricsreg.DeepReorgsTotal.Inc(1)
		log.Warn("deep reorg beyond cache depth, resetting cache", "cache_depth", s.cache.Capacity(), "upstream", upstreamTip)
		s.cache.Reset()
		newLocal := int64(upstreamTip) - int64(s.cache.Capacity())
		floor := int64(s.startHeight) - 1
		if newLocal < floor {
			newLocal = floor
		}
		s.nextHeight = uint32(newLocal + 1)
		return s.forwardApply(ctx, s.nextHeight, upstreamTip)
	}

	popped := s.cache.PopAbove(ancestor)
	now := time.Now()
	for _, entry := range popped {
		if err := s.rollbackEntry(ctx, entry, now); err != nil {
			return err
		}
	}

	s.nextHeight = ancestor + 1
	return s.forwardApply(ctx, s.nextHeight, upstreamTip)
}

// rollbackEntry runs Rollback for one cached entry, retrying
// guest-recoverable failures with backoff the same way applyBlock retries
// process_block, and on success forwards the resulting records (direct
// rollback output, or the inverse of the original records if the guest
// exports no rollback entry point) to the sink in order.
func (s *Synchronizer) rollbackEntry(ctx context.Context, entry cache.Entry, now time.Time) error {
	b := backoff.New(s.retryDelay, maxBackoffFor(s.retryDelay, s.maxRetries))

	attempts := 0
	for {
		s.host.SetState(transform.State(entry.PreState).Clone())
		recs, err := s.host.Rollback(entry.Height, entry.Hash)
		if err == nil {
			if len(recs) == 0 {
				recs, err = record.InvertBlock(entry.Records, entry.Height, hex.EncodeToString(entry.Hash.Bytes()), now)
				if err != nil {
					return &ErrConsistencyViolation{Cause: fmt.Errorf("invert block %d: %w", entry.Height, err)}
				}
			}
			metricsreg.BlocksRolledBack.Inc(1)
			if len(recs) > 0 {
				metricsreg.RecordsEmitted.Inc(int64(len(recs)))
				if err := s.withRetry(ctx, "sink_send", func() error { return s.sink.Send(recs) }); err != nil {
					return &ErrDegraded{Cause: fmt.Errorf("sink send for rollback of height %d exhausted retries: %w", entry.Height, err)}
				}
			}
			return nil
		}

		var gf *transform.ErrGuestFailure
		if !errors.As(err, &gf) {
			return &ErrConsistencyViolation{Cause: fmt.Errorf("rollback(%d): %w", entry.Height, err)}
		}
		if !isTransientGuestCause(gf.Cause) {
			return &ErrDegraded{Cause: fmt.Errorf("rollback fatal at height %d: %w", entry.Height, gf)}
		}

		attempts++
		if attempts > s.maxRetries {
			return &ErrDegraded{Cause: fmt.Errorf("guest recoverable rollback failure at height %d exhausted retries: %w", entry.Height, gf)}
		}
		log.Debug("transform guest recoverable rollback failure, retrying", "height", entry.Height, "attempt", attempts, "err", gf)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Next()):
		}
	}
}

// withRetry runs fn, retrying with bounded exponential backoff up to
// maxRetries times on failure.
func (s *Synchronizer) withRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.New(s.retryDelay, maxBackoffFor(s.retryDelay, s.maxRetries))
	attempts := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		attempts++
		if attempts > s.maxRetries {
			return err
		}
		metricsreg.SourceRetries.Inc(1)
		log.Debug("retrying after transient failure", "op", op, "attempt", attempts, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Next()):
		}
	}
}

// isTransientGuestCause reports whether a guest failure's underlying
// cause is a source transport error propagated through call_view — the
// "guest recoverable" category — as opposed to a guest trap
// or logic error, which is "Guest fatal".
func isTransientGuestCause(err error) bool {
	var te *source.ErrTransport
	return errors.As(err, &te)
}

// maxBackoffFor derives a backoff cap from the configured retry delay
// and retry count so the last retry's wait stays bounded even for large
// maxRetries.
func maxBackoffFor(delay time.Duration, maxRetries int) time.Duration {
	if maxRetries <= 0 {
		return delay
	}
	ceiling := delay
	for i := 0; i < maxRetries && ceiling < time.Hour; i++ {
		ceiling *= 2
	}
	return ceiling
}
