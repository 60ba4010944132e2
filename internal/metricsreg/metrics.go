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

// Package metricsreg registers the daemon's runtime metrics against the
// global go-ethereum/metrics registry.
package metricsreg

import "github.com/ethereum/go-ethereum/metrics"

var (
	BlocksApplied       = metrics.NewRegisteredCounter("debshrew/sync/blocks/applied", nil)
	BlocksRolledBack    = metrics.NewRegisteredCounter("debshrew/sync/blocks/rolledback", nil)
	ReorgsTotal         = metrics.NewRegisteredCounter("debshrew/sync/reorgs/total", nil)
	DeepReorgsTotal     = metrics.NewRegisteredCounter("debshrew/sync/reorgs/deep/total", nil)
	DegradedGauge       = metrics.NewRegisteredGauge("debshrew/sync/degraded", nil) // 0=healthy, 1=degraded
	RecordsEmitted      = metrics.NewRegisteredCounter("debshrew/sync/records/emitted", nil)
	CacheDepth          = metrics.NewRegisteredGauge("debshrew/cache/depth", nil)
	SourceRetries       = metrics.NewRegisteredCounter("debshrew/source/retries", nil)
	ApplyLatency        = metrics.NewRegisteredTimer("debshrew/sync/block/apply/latency", nil)
	TipPollLatency      = metrics.NewRegisteredTimer("debshrew/source/tip/latency", nil)
)
