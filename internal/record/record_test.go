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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCreate(table, key, after string) Record {
	return Record{
		Header: Header{Source: "test", Timestamp: "2024-01-01T00:00:00Z", BlockHeight: 1, BlockHash: "ab"},
		Payload: Payload{
			Operation: OpCreate,
			Table:     table,
			Key:       key,
			After:     []byte(after),
		},
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"valid create", newCreate("balances", "a", `{"n":1}`), false},
		{"create with before", Record{Payload: Payload{Operation: OpCreate, Before: []byte(`{}`), After: []byte(`{}`)}}, true},
		{"create without after", Record{Payload: Payload{Operation: OpCreate}}, true},
		{"valid update", Record{Payload: Payload{Operation: OpUpdate, Before: []byte(`1`), After: []byte(`2`)}}, false},
		{"update missing before", Record{Payload: Payload{Operation: OpUpdate, After: []byte(`2`)}}, true},
		{"valid delete", Record{Payload: Payload{Operation: OpDelete, Before: []byte(`1`)}}, false},
		{"delete with after", Record{Payload: Payload{Operation: OpDelete, Before: []byte(`1`), After: []byte(`2`)}}, true},
		{"unknown op", Record{Payload: Payload{Operation: "bogus"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestInvertCreateDelete(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	orig := newCreate("balances", "addr1", `{"n":105}`)

	inv, err := Invert(orig, 105, "deadbeef", now)
	require.NoError(t, err)
	require.Equal(t, OpDelete, inv.Payload.Operation)
	require.JSONEq(t, `{"n":105}`, string(inv.Payload.Before))
	require.Nil(t, inv.Payload.After)
	require.Equal(t, uint32(105), inv.Header.BlockHeight)
	require.Equal(t, "deadbeef", inv.Header.BlockHash)

	// Round trip: invert of invert of a Create is again a Create with the
	// same payload (up to timestamp).
	roundTrip, err := Invert(inv, 105, "deadbeef", now)
	require.NoError(t, err)
	require.Equal(t, OpCreate, roundTrip.Payload.Operation)
	require.JSONEq(t, string(orig.Payload.After), string(roundTrip.Payload.After))
	require.Nil(t, roundTrip.Payload.Before)
}

func TestInvertUpdateSwapsBeforeAfter(t *testing.T) {
	now := time.Now()
	orig := Record{
		Header:  Header{Source: "t", BlockHeight: 1, BlockHash: "aa"},
		Payload: Payload{Operation: OpUpdate, Table: "t", Key: "k", Before: []byte(`"A"`), After: []byte(`"B"`)},
	}
	inv, err := Invert(orig, 1, "aa", now)
	require.NoError(t, err)
	require.Equal(t, OpUpdate, inv.Payload.Operation)
	require.JSONEq(t, `"B"`, string(inv.Payload.Before))
	require.JSONEq(t, `"A"`, string(inv.Payload.After))
}

func TestInvertBlockReversesOrder(t *testing.T) {
	now := time.Now()
	r1 := newCreate("t", "1", `1`)
	r2 := newCreate("t", "2", `2`)
	inv, err := InvertBlock([]Record{r1, r2}, 1, "aa", now)
	require.NoError(t, err)
	require.Len(t, inv, 2)
	require.Equal(t, "2", inv[0].Payload.Key)
	require.Equal(t, "1", inv[1].Payload.Key)
}
