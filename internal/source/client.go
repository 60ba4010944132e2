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

// Package source implements the Source Client: the narrow upstream
// capability the synchronizer consumes (tip_height, hash_at, call_view),
// bound to metashrew's JSON-RPC surface over HTTP(S) with lazy connect
// and reconnect-on-error.
package source

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrTransport wraps a failed RPC round trip. The synchronizer treats it
// as transient and retries with backoff.
type ErrTransport struct {
	Op  string
	Err error
}

func (e *ErrTransport) Error() string { return fmt.Sprintf("source: %s: %v", e.Op, e.Err) }
func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrNotFound is returned by hash_at for a height the upstream does not
// yet know about. Within [0, tip_height()] the caller treats this as
// transient.
type ErrNotFound struct {
	Height uint32
}

func (e *ErrNotFound) Error() string { return fmt.Sprintf("source: height %d not found", e.Height) }

// Client is the Source Client: tip_height, hash_at, call_view over
// metashrew's JSON-RPC methods.
type Client struct {
	endpoint string
	username string
	password string
	timeout  time.Duration

	mu  sync.Mutex
	rpc *rpc.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth sets HTTP Basic credentials ("Authentication:
// optional HTTP Basic").
func WithBasicAuth(username, password string) Option {
	return func(c *Client) { c.username, c.password = username, password }
}

// WithTimeout sets the per-call timeout. Default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a Client for the given HTTP(S) endpoint. The RPC
// connection is established lazily on first use.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{endpoint: endpoint, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client(ctx context.Context) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		return c.rpc, nil
	}
	var rpcOpts []rpc.ClientOption
	if c.username != "" || c.password != "" {
		rpcOpts = append(rpcOpts, rpc.WithHTTPAuth(func(h http.Header) error {
			h.Set("Authorization", "Basic "+basicAuth(c.username, c.password))
			return nil
		}))
	}
	client, err := rpc.DialOptions(ctx, c.endpoint, rpcOpts...)
	if err != nil {
		return nil, err
	}
	c.rpc = client
	log.Info("Connected to metashrew RPC", "endpoint", c.endpoint)
	return client, nil
}

// Close releases the underlying RPC connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

// TipHeight returns metashrew's current best-chain height.
func (c *Client) TipHeight(ctx context.Context) (uint32, error) {
	cl, err := c.client(ctx)
	if err != nil {
		return 0, &ErrTransport{Op: "metashrew_height", Err: err}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var height uint64
	if err := cl.CallContext(callCtx, &height, "metashrew_height"); err != nil {
		c.invalidate()
		return 0, &ErrTransport{Op: "metashrew_height", Err: err}
	}
	return uint32(height), nil
}

// HashAt returns the block hash at height on metashrew's current best
// chain. Results may change across calls at the same height; that is how
// the synchronizer detects a reorg.
func (c *Client) HashAt(ctx context.Context, height uint32) (common.Hash, error) {
	cl, err := c.client(ctx)
	if err != nil {
		return common.Hash{}, &ErrTransport{Op: "metashrew_blockhash", Err: err}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var hashHex string
	if err := cl.CallContext(callCtx, &hashHex, "metashrew_blockhash", height); err != nil {
		c.invalidate()
		return common.Hash{}, &ErrTransport{Op: "metashrew_blockhash", Err: err}
	}
	raw, err := hex.DecodeString(trim0x(hashHex))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, &ErrNotFound{Height: height}
	}
	return common.BytesToHash(raw), nil
}

// CallView forwards an opaque view request to metashrew at the current
// tip ("latest"). It implements transform.ViewCaller so the transform
// host's call_view capability routes straight through to the upstream.
func (c *Client) CallView(name string, params []byte) ([]byte, error) {
	cl, err := c.client(context.Background())
	if err != nil {
		return nil, &ErrTransport{Op: "metashrew_view", Err: err}
	}
	callCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var respHex string
	if err := cl.CallContext(callCtx, &respHex, "metashrew_view", name, hex.EncodeToString(params), "latest"); err != nil {
		c.invalidate()
		return nil, &ErrTransport{Op: "metashrew_view", Err: err}
	}
	resp, err := hex.DecodeString(trim0x(respHex))
	if err != nil {
		return nil, &ErrTransport{Op: "metashrew_view", Err: fmt.Errorf("response is not hex: %w", err)}
	}
	return resp, nil
}

// invalidate drops the current connection so the next call reconnects,
// mirroring OutboxReader's reconnect-on-error discipline.
func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
