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
	"io"
	"sync"

	"github.com/debshrew/debshrew/internal/record"
)

// Console writes one JSON record per line to an io.Writer, typically
// os.Stdout. It is the simplest sink binding, used for local inspection
// and in tests.
type Console struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewConsole wraps w in a buffered, line-delimited JSON sink.
func NewConsole(w io.Writer) *Console {
	return &Console{w: bufio.NewWriter(w)}
}

func (c *Console) Send(batch []record.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	enc := json.NewEncoder(c.w)
	for _, rec := range batch {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("sink/console: encode record %s/%s: %w", rec.Payload.Table, rec.Payload.Key, err)
		}
	}
	return nil
}

func (c *Console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Flush()
}

func (c *Console) Close() error {
	return c.Flush()
}
