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

package statusapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedPhase string

func (p fixedPhase) Phase() string { return string(p) }

func TestStatusEndpointReportsPhase(t *testing.T) {
	srv, err := Start("127.0.0.1:0", fixedPhase("idle"))
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.listener.Addr().String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "idle", body["phase"])
}

func TestMetricsEndpointServes(t *testing.T) {
	srv, err := Start("127.0.0.1:0", fixedPhase("idle"))
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
