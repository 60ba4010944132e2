// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/debshrew/debshrew/internal/cache"
	"github.com/debshrew/debshrew/internal/config"
	"github.com/debshrew/debshrew/internal/sink"
	"github.com/debshrew/debshrew/internal/source"
	"github.com/debshrew/debshrew/internal/statusapi"
	"github.com/debshrew/debshrew/internal/syncengine"
	"github.com/debshrew/debshrew/internal/transform"
)

// Runner manages the daemon lifecycle: wiring the source client, transform
// host, history cache, sink and synchronizer from a loaded Config, then
// driving the synchronizer's polling loop on a background goroutine until
// Stop is called or the loop exits on its own (degraded or consistency
// violation).
type Runner struct {
	cfg *config.Config

	src  *source.Client
	host *transform.Host
	c    *cache.Cache
	snk  sink.Sink
	sync *syncengine.Synchronizer

	status *statusapi.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErr  error
}

// NewRunner builds a Runner from cfg. If cfg.Status.Enabled, the /status
// and /metrics HTTP endpoints are started on cfg.Status.ListenAddr.
func NewRunner(cfg *config.Config) (*Runner, error) {
	script, err := os.ReadFile(cfg.Transform.Path)
	if err != nil {
		return nil, fmt.Errorf("reading transform script: %w", err)
	}

	srcOpts := []source.Option{source.WithTimeout(cfg.Timeout())}
	if cfg.Source.Username != "" || cfg.Source.Password != "" {
		srcOpts = append(srcOpts, source.WithBasicAuth(cfg.Source.Username, cfg.Source.Password))
	}
	src := source.New(cfg.Source.URL, srcOpts...)

	host, err := transform.New(script, src, log.Root(), cfg.TransformBudget())
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("loading transform: %w", err)
	}

	snk, err := buildSink(cfg.Sink)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("building sink: %w", err)
	}

	c := cache.New(cfg.CacheSize)
	s := syncengine.New(src, host, c, snk, cfg.StartHeight, cfg.PollInterval(), cfg.Source.MaxRetries, cfg.RetryDelay())

	r := &Runner{cfg: cfg, src: src, host: host, c: c, snk: snk, sync: s}

	if cfg.Status.Enabled {
		status, err := statusapi.Start(cfg.Status.ListenAddr, phaseAdapter{s})
		if err != nil {
			src.Close()
			snk.Close()
			return nil, fmt.Errorf("starting status server: %w", err)
		}
		r.status = status
	}

	return r, nil
}

// buildSink constructs the configured sink binding. Unknown types are
// rejected by Config.Validate before NewRunner is ever called.
func buildSink(cfg config.Sink) (sink.Sink, error) {
	switch cfg.Type {
	case "", "console":
		return sink.NewConsole(os.Stdout), nil
	case "file":
		opts := sink.FileOptions{Path: cfg.Options["path"]}
		if v, ok := cfg.Options["max_size_mb"]; ok {
			fmt.Sscanf(v, "%d", &opts.MaxSizeMB)
		}
		if v, ok := cfg.Options["max_backups"]; ok {
			fmt.Sscanf(v, "%d", &opts.MaxBackups)
		}
		if v, ok := cfg.Options["max_age_days"]; ok {
			fmt.Sscanf(v, "%d", &opts.MaxAgeDays)
		}
		opts.Compress = cfg.Options["compress"] == "true"
		return sink.NewFile(opts)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// phaseAdapter narrows Synchronizer.Phase's custom Phase type down to the
// plain string statusapi.PhaseReporter expects.
type phaseAdapter struct{ s *syncengine.Synchronizer }

func (p phaseAdapter) Phase() string { return string(p.s.Phase()) }

// Start launches the synchronizer's polling loop in the background.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("already running")
	}
	r.running = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runErr = r.sync.Run(ctx)
	}()
	return nil
}

// Stop cancels the synchronizer loop, waits for it to exit, and tears down
// the status server, sink and source client. A degraded or consistency
// violation error from the loop is returned to the caller.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.cancel()
	r.wg.Wait()
	r.running = false

	if r.status != nil {
		if err := r.status.Close(); err != nil {
			log.Error("failed to close status server", "err", err)
		}
	}
	if err := r.snk.Close(); err != nil {
		log.Error("failed to close sink", "err", err)
	}
	r.src.Close()

	if r.runErr != nil && !errors.Is(r.runErr, context.Canceled) {
		return r.runErr
	}
	return nil
}
