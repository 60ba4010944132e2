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

// debshrew is the reorg-aware CDC daemon: it polls a metashrew source for
// new blocks, runs each one through a sandboxed transform, and streams the
// resulting Debezium-style records to a sink, rolling transforms back and
// re-emitting inverse records when the source reorganizes.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/debshrew/debshrew/internal/config"
)

var (
	app = cli.NewApp()

	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		Value:   "debshrew.yaml",
	}
	sourceURLFlag = &cli.StringFlag{
		Name:  "source-url",
		Usage: "Metashrew JSON-RPC endpoint (overrides config and DEBSHREW_SOURCE_URL)",
	}
	transformPathFlag = &cli.StringFlag{
		Name:  "transform",
		Usage: "Path to the transform script (overrides config and DEBSHREW_TRANSFORM_PATH)",
	}
	startHeightFlag = &cli.Uint64Flag{
		Name:  "start-height",
		Usage: "Block height to begin syncing from when the cache is empty",
	}
	cacheSizeFlag = &cli.IntFlag{
		Name:  "cache-size",
		Usage: "Number of recent blocks retained for rollback",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: trace, debug, info, warn, error, crit",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Path to a rotated log file (overrides config and DEBSHREW_LOG_FILE; empty logs to stderr)",
	}
	statusAddrFlag = &cli.StringFlag{
		Name:  "status-addr",
		Usage: "Listen address for the /status and /metrics HTTP endpoints (overrides config and DEBSHREW_STATUS_LISTEN_ADDR; empty disables it)",
	}
)

func init() {
	app.Name = "debshrew"
	app.Usage = "Reorg-aware CDC pipeline for metashrew-indexed Bitcoin metaprotocol state"
	app.Action = runDaemon
	app.Flags = []cli.Flag{
		configFlag,
		sourceURLFlag,
		transformPathFlag,
		startHeightFlag,
		cacheSizeFlag,
		logLevelFlag,
		logFileFlag,
		statusAddrFlag,
	}
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {})); err != nil {
		fmt.Fprintln(os.Stderr, "automaxprocs:", err)
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyCLIOverrides(ctx, cfg)

	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(logWriter(cfg), parseLevel(cfg.LogLevel), true)))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	runner, err := NewRunner(cfg)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := runner.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	log.Info("debshrew started", "source", cfg.Source.URL, "transform", cfg.Transform.Path, "start_height", cfg.StartHeight)

	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig)

	return runner.Stop()
}

// applyCLIOverrides applies explicitly-set flags on top of the loaded
// config, giving CLI flags the highest precedence of the three
// configuration layers (YAML file, DEBSHREW_ environment, CLI flags).
func applyCLIOverrides(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet(sourceURLFlag.Name) {
		cfg.Source.URL = ctx.String(sourceURLFlag.Name)
	}
	if ctx.IsSet(transformPathFlag.Name) {
		cfg.Transform.Path = ctx.String(transformPathFlag.Name)
	}
	if ctx.IsSet(startHeightFlag.Name) {
		cfg.StartHeight = uint32(ctx.Uint64(startHeightFlag.Name))
	}
	if ctx.IsSet(cacheSizeFlag.Name) {
		cfg.CacheSize = ctx.Int(cacheSizeFlag.Name)
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = ctx.String(logLevelFlag.Name)
	}
	if ctx.IsSet(logFileFlag.Name) {
		cfg.Log.File = ctx.String(logFileFlag.Name)
	}
	if ctx.IsSet(statusAddrFlag.Name) {
		addr := ctx.String(statusAddrFlag.Name)
		cfg.Status.Enabled = addr != ""
		cfg.Status.ListenAddr = addr
	}
}

// logWriter returns the destination for the daemon's structured log
// output: a lumberjack-rotated file when log.file is configured, stderr
// otherwise.
func logWriter(cfg *config.Config) io.Writer {
	if cfg.Log.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{Filename: cfg.Log.File}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}
