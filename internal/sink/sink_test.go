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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/debshrew/debshrew/internal/record"
)

func sampleRecord(key string) record.Record {
	return record.Record{
		Header:  record.Header{Source: "test", Timestamp: "2024-01-01T00:00:00Z", BlockHeight: 1, BlockHash: "aa"},
		Payload: record.Payload{Operation: record.OpCreate, Table: "t", Key: key, After: []byte(`1`)},
	}
}

func TestConsoleSendWritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	require.NoError(t, c.Send([]record.Record{sampleRecord("a"), sampleRecord("b")}))
	require.NoError(t, c.Flush())

	lines := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var rec record.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines++
	}
	require.Equal(t, 2, lines)
}

func TestFileSinkWritesRecordToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")
	f, err := NewFile(FileOptions{Path: path})
	require.NoError(t, err)

	require.NoError(t, f.Send([]record.Record{sampleRecord("a")}))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec record.Record
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	require.Equal(t, "a", rec.Payload.Key)
}

func TestFileSinkRequiresPath(t *testing.T) {
	_, err := NewFile(FileOptions{})
	require.Error(t, err)
}
