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

// Package record defines the Debezium-style CDC record emitted by the
// pipeline and the inversion rules used to undo a block's records during a
// reorg rollback.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation identifies the kind of change a Payload describes.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Header carries the provenance of a record: who emitted it, when, and at
// which block.
type Header struct {
	Source        string  `json:"source"`
	Timestamp     string  `json:"timestamp"` // RFC3339 UTC
	BlockHeight   uint32  `json:"block_height"`
	BlockHash     string  `json:"block_hash"` // lowercase hex, no 0x prefix
	TransactionID *string `json:"transaction_id"`
}

// Payload describes the logical change itself.
type Payload struct {
	Operation Operation       `json:"operation"`
	Table     string          `json:"table"`
	Key       string          `json:"key"`
	Before    json.RawMessage `json:"before"`
	After     json.RawMessage `json:"after"`
}

// Record is the full CDC record: header + payload.
type Record struct {
	Header  Header  `json:"header"`
	Payload Payload `json:"payload"`
}

// Validate enforces the operation/before/after shape:
//
//	Create: before = none, after = some.
//	Delete: before = some, after = none.
//	Update: before = some, after = some.
func (r Record) Validate() error {
	before, after := len(r.Payload.Before) > 0 && string(r.Payload.Before) != "null", len(r.Payload.After) > 0 && string(r.Payload.After) != "null"
	switch r.Payload.Operation {
	case OpCreate:
		if before || !after {
			return fmt.Errorf("record: create on %s/%s must have before=none after=some", r.Payload.Table, r.Payload.Key)
		}
	case OpUpdate:
		if !before || !after {
			return fmt.Errorf("record: update on %s/%s must have before=some after=some", r.Payload.Table, r.Payload.Key)
		}
	case OpDelete:
		if !before || after {
			return fmt.Errorf("record: delete on %s/%s must have before=some after=none", r.Payload.Table, r.Payload.Key)
		}
	default:
		return fmt.Errorf("record: unknown operation %q", r.Payload.Operation)
	}
	return nil
}

// NowRFC3339 renders t as the UTC RFC3339 timestamp string used by Header.Timestamp.
func NowRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
