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

// Package statusapi serves /status and /metrics over plain HTTP:
// net.Listen plus http.Server, started in a goroutine and torn down by
// Close.
package statusapi

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	emetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
)

// PhaseReporter exposes the synchronizer's current phase for /status.
type PhaseReporter interface {
	Phase() string
}

// Server serves operational status and Prometheus metrics.
type Server struct {
	listener net.Listener
	http     *http.Server
}

// Start binds listenAddr and begins serving /status and /metrics.
func Start(listenAddr string, phase PhaseReporter) (*Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"phase": phase.Phase()})
	})
	mux.Handle("/metrics", prometheus.Handler(emetrics.DefaultRegistry))

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("statusapi: listen on %s: %w", listenAddr, err)
	}
	httpSrv := &http.Server{Handler: mux}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("status server error", "err", err)
		}
	}()
	log.Info("status server started", "addr", listener.Addr())

	return &Server{listener: listener, http: httpSrv}, nil
}

// Close stops the server.
func (s *Server) Close() error {
	return s.http.Close()
}
