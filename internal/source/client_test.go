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

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string          `json:"method"`
	Params []interface{}   `json:"params"`
	ID     json.RawMessage `json:"id"`
}

func newFakeMetashrew(t *testing.T, handler func(method string, params []interface{}) (interface{}, string)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, errMsg := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if errMsg != "" {
			resp["error"] = map[string]interface{}{"code": -32000, "message": errMsg}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestTipHeight(t *testing.T) {
	srv := newFakeMetashrew(t, func(method string, params []interface{}) (interface{}, string) {
		require.Equal(t, "metashrew_height", method)
		return 12345, ""
	})
	defer srv.Close()

	c := New(srv.URL, WithTimeout(2*time.Second))
	defer c.Close()
	h, err := c.TipHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(12345), h)
}

func TestHashAt(t *testing.T) {
	srv := newFakeMetashrew(t, func(method string, params []interface{}) (interface{}, string) {
		require.Equal(t, "metashrew_blockhash", method)
		return "0x" + strings.Repeat("ab", 32), ""
	})
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()
	h, err := c.HashAt(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, byte(0xab), h[0])
}

func TestHashAtMalformedIsNotFound(t *testing.T) {
	srv := newFakeMetashrew(t, func(method string, params []interface{}) (interface{}, string) {
		return "not-hex", ""
	})
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()
	_, err := c.HashAt(context.Background(), 100)
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestCallView(t *testing.T) {
	srv := newFakeMetashrew(t, func(method string, params []interface{}) (interface{}, string) {
		require.Equal(t, "metashrew_view", method)
		require.Equal(t, "latest", params[2])
		return "deadbeef", ""
	})
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()
	resp, err := c.CallView("balance", []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, resp)
}

func TestTransportErrorWrapsUnderlying(t *testing.T) {
	srv := newFakeMetashrew(t, func(method string, params []interface{}) (interface{}, string) {
		return nil, "boom"
	})
	defer srv.Close()

	c := New(srv.URL)
	defer c.Close()
	_, err := c.TipHeight(context.Background())
	require.Error(t, err)
	var te *ErrTransport
	require.ErrorAs(t, err, &te)
}
