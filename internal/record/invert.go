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

package record

import (
	"fmt"
	"time"
)

// Invert synthesizes the inverse of original, for use when a block is
// rolled back and the guest did not supply its own rollback records. Header
// fields are preserved except timestamp (refreshed to now) and
// block_height/block_hash, which are set to the rolled-back block's
// identity.
func Invert(original Record, blockHeight uint32, blockHash string, now time.Time) (Record, error) {
	inv := Record{
		Header: Header{
			Source:        original.Header.Source,
			Timestamp:     NowRFC3339(now),
			BlockHeight:   blockHeight,
			BlockHash:     blockHash,
			TransactionID: original.Header.TransactionID,
		},
		Payload: Payload{
			Table: original.Payload.Table,
			Key:   original.Payload.Key,
		},
	}

	switch original.Payload.Operation {
	case OpCreate:
		// Create -> Delete: before = original.after, after = none.
		inv.Payload.Operation = OpDelete
		inv.Payload.Before = original.Payload.After
		inv.Payload.After = nil
	case OpDelete:
		// Delete -> Create: before = none, after = original.before.
		inv.Payload.Operation = OpCreate
		inv.Payload.Before = nil
		inv.Payload.After = original.Payload.Before
	case OpUpdate:
		// Update -> Update: before/after swapped.
		inv.Payload.Operation = OpUpdate
		inv.Payload.Before = original.Payload.After
		inv.Payload.After = original.Payload.Before
	default:
		return Record{}, fmt.Errorf("invert: unknown operation %q on %s/%s", original.Payload.Operation, original.Payload.Table, original.Payload.Key)
	}

	if err := inv.Validate(); err != nil {
		return Record{}, fmt.Errorf("invert: synthesized record failed validation: %w", err)
	}
	return inv, nil
}

// InvertBlock inverts a whole block's emitted records in reverse emission
// order: "for each popped entry ... in reverse
// emission order".
func InvertBlock(originals []Record, blockHeight uint32, blockHash string, now time.Time) ([]Record, error) {
	out := make([]Record, 0, len(originals))
	for i := len(originals) - 1; i >= 0; i-- {
		inv, err := Invert(originals[i], blockHeight, blockHash, now)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}
