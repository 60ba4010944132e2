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

// Package sink implements the downstream record sink contract and two
// concrete bindings: a console printer and a newline-delimited JSON file
// writer. Broker and relational bindings are out of scope for now.
package sink

import "github.com/debshrew/debshrew/internal/record"

// Sink is the abstract downstream contract: send, flush, close. The
// synchronizer hands it records in a single total order and expects that
// order preserved on delivery.
type Sink interface {
	Send(batch []record.Record) error
	Flush() error
	Close() error
}
