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
	"flag"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/debshrew/debshrew/internal/config"
)

func TestApplyCLIOverridesOnlyTouchesSetFlags(t *testing.T) {
	set := flag.NewFlagSet("debshrew-test", flag.ContinueOnError)
	require.NoError(t, sourceURLFlag.Apply(set))
	require.NoError(t, cacheSizeFlag.Apply(set))
	require.NoError(t, startHeightFlag.Apply(set))
	require.NoError(t, transformPathFlag.Apply(set))
	require.NoError(t, logLevelFlag.Apply(set))
	require.NoError(t, set.Set(sourceURLFlag.Name, "http://override:8080"))
	require.NoError(t, set.Set(cacheSizeFlag.Name, "9"))

	ctx := cli.NewContext(app, set, nil)
	cfg := config.Default()
	cfg.Source.URL = "http://file-value:8080"
	cfg.Transform.Path = "./file-transform.js"

	applyCLIOverrides(ctx, cfg)

	require.Equal(t, "http://override:8080", cfg.Source.URL)
	require.Equal(t, 9, cfg.CacheSize)
	require.Equal(t, "./file-transform.js", cfg.Transform.Path, "unset flags must not clobber loaded config")
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	require.Equal(t, log.LevelInfo, parseLevel("nonsense"))
	require.Equal(t, log.LevelDebug, parseLevel("debug"))
}

func TestApplyCLIOverridesStatusAddrEmptyDisables(t *testing.T) {
	set := flag.NewFlagSet("debshrew-test", flag.ContinueOnError)
	require.NoError(t, statusAddrFlag.Apply(set))
	require.NoError(t, set.Set(statusAddrFlag.Name, ""))

	ctx := cli.NewContext(app, set, nil)
	cfg := config.Default()
	cfg.Status.Enabled = true
	cfg.Status.ListenAddr = ":6060"

	applyCLIOverrides(ctx, cfg)

	require.False(t, cfg.Status.Enabled)
	require.Equal(t, "", cfg.Status.ListenAddr)
}

func TestLogWriterDefaultsToStderr(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, os.Stderr, logWriter(cfg))
}

func TestLogWriterUsesLumberjackWhenFileSet(t *testing.T) {
	cfg := config.Default()
	cfg.Log.File = "/tmp/debshrew-test.log"

	w := logWriter(cfg)

	roll, ok := w.(*lumberjack.Logger)
	require.True(t, ok, "expected a *lumberjack.Logger when log.file is set")
	require.Equal(t, cfg.Log.File, roll.Filename)
}
