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

package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/debshrew/debshrew/internal/record"
)

// File appends one JSON record per line to a log file, rotated by
// lumberjack the same way the daemon's own structured log output is
// rotated.
type File struct {
	mu   sync.Mutex
	roll *lumberjack.Logger
	w    *bufio.Writer
}

// FileOptions configures rotation thresholds. Zero values take
// lumberjack's defaults (rotate at 100 MB, keep all backups, no age cap).
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFile opens (creating if necessary) a rotated JSONL sink at opts.Path.
func NewFile(opts FileOptions) (*File, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sink/file: path is required")
	}
	roll := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return &File{roll: roll, w: bufio.NewWriter(roll)}, nil
}

func (f *File) Send(batch []record.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	enc := json.NewEncoder(f.w)
	for _, rec := range batch {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("sink/file: encode record %s/%s: %w", rec.Payload.Table, rec.Payload.Key, err)
		}
	}
	return nil
}

func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Flush()
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.w.Flush(); err != nil {
		return err
	}
	return f.roll.Close()
}
