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

// Package transform implements the sandboxed transform host: it loads a
// guest script exporting process_block/rollback, exposes the host
// capabilities to it, and runs one invocation at a time
// under a wall-clock budget.
//
// There is no WebAssembly runtime in this module's dependency stack.
// dop251/goja — a pure-Go ECMAScript VM already required by go-ethereum
// and exercised the same way in its internal/jsre package — stands in for the
// bytecode sandbox: a goja.Runtime plays the role of the guest instance,
// host capabilities are bound as native functions on a "host" object
// instead of WASM imports, and goja.Runtime.Interrupt enforces the
// invocation time budget instead of a fuel counter.
package transform

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/ethereum/go-ethereum/common"

	"github.com/debshrew/debshrew/internal/record"
)

// ViewCaller forwards a guest's call_view request to the upstream source.
// Implemented by the source client package; declared here to avoid a
// dependency cycle.
type ViewCaller interface {
	CallView(name string, params []byte) ([]byte, error)
}

// Logger receives guest log_stdout/log_stderr output.
type Logger interface {
	Info(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
}

// ErrGuestFailure is returned when process_block or rollback signals
// failure (non-zero / thrown exception) or exceeds its time budget. The
// synchronizer treats it as recoverable (retried with backoff) only when
// Cause is a source transport error raised through call_view; any other
// cause is fatal.
type ErrGuestFailure struct {
	Entry string // "process_block" or "rollback"
	Cause error
}

func (e *ErrGuestFailure) Error() string {
	return fmt.Sprintf("transform: %s failed: %v", e.Entry, e.Cause)
}

func (e *ErrGuestFailure) Unwrap() error { return e.Cause }

// Host runs a single compiled guest script in a goja.Runtime, exposing
// the host capability surface. It is not safe for
// concurrent use: the synchronizer guarantees at most one in-flight
// process_block/rollback at a time, and Host relies on that.
type Host struct {
	vm      *goja.Runtime
	program *goja.Program
	viewer  ViewCaller
	log     Logger
	budget  time.Duration

	state State

	// per-invocation context, set by ProcessBlock/Rollback before running
	// the guest and read by the bound host functions during the call.
	height uint32
	hash   common.Hash
	clock  time.Time
	buffer []record.Record
}

// New compiles src as a guest script and constructs a Host bound to it.
// The Host starts with an empty State; callers restore a snapshot via
// SetState.
func New(src []byte, viewer ViewCaller, log Logger, budget time.Duration) (*Host, error) {
	program, err := goja.Compile("transform.js", string(src), true)
	if err != nil {
		return nil, fmt.Errorf("transform: compile guest script: %w", err)
	}
	h := &Host{
		vm:      goja.New(),
		program: program,
		viewer:  viewer,
		log:     log,
		budget:  budget,
		state:   State{},
	}
	disableAmbientCapabilities(h.vm)
	h.bindHost()
	if _, err := h.vm.RunProgram(program); err != nil {
		return nil, fmt.Errorf("transform: load guest script: %w", err)
	}
	return h, nil
}

// State returns the live transform state. Callers must not retain the
// returned map across a ProcessBlock/Rollback call; use Clone for that.
func (h *Host) State() State { return h.state }

// SetState replaces the live transform state, e.g. when restoring a
// pre-state snapshot before a rollback invocation.
func (h *Host) SetState(s State) { h.state = s }

// disableAmbientCapabilities strips the ambient wall-clock and randomness
// the ECMAScript global environment otherwise exposes, per the
// determinism requirement: "The host must not expose
// wall-clock time, randomness, filesystem, or network beyond call_view."
func disableAmbientCapabilities(vm *goja.Runtime) {
	global := vm.GlobalObject()
	global.Delete("Date")
	if math := global.Get("Math"); math != nil {
		if obj, ok := math.(*goja.Object); ok {
			obj.Set("random", func(goja.FunctionCall) goja.Value {
				panic(vm.NewTypeError("Math.random is not available to transforms"))
			})
		}
	}
}

func (h *Host) bindHost() {
	host := h.vm.NewObject()
	host.Set("get_height", h.getHeight)
	host.Set("get_block_hash", h.getBlockHash)
	host.Set("get_state", h.getState)
	host.Set("set_state", h.setState)
	host.Set("delete_state", h.deleteState)
	host.Set("call_view", h.callView)
	host.Set("push_cdc_message", h.pushCDCMessage)
	host.Set("log_stdout", h.logStdout)
	host.Set("log_stderr", h.logStderr)
	host.Set("now", h.now) // frozen-at-invocation-start clock, see SPEC_FULL.md
	h.vm.Set("host", host)
}

func (h *Host) getHeight(goja.FunctionCall) goja.Value {
	return h.vm.ToValue(h.height)
}

func (h *Host) getBlockHash(goja.FunctionCall) goja.Value {
	return h.vm.ToValue(hex.EncodeToString(h.hash.Bytes()))
}

// getState/setState/deleteState exchange byte-string values as lowercase
// hex, so the guest can hold arbitrary binary state through a JS string.
func (h *Host) getState(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	v, ok := h.state[key]
	if !ok {
		return goja.Null()
	}
	return h.vm.ToValue(hex.EncodeToString(v))
}

func (h *Host) setState(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	valHex := call.Argument(1).String()
	v, err := hex.DecodeString(valHex)
	if err != nil {
		panic(h.vm.NewTypeError("set_state: value is not hex: %v", err))
	}
	h.state[key] = v
	return goja.Undefined()
}

func (h *Host) deleteState(call goja.FunctionCall) goja.Value {
	delete(h.state, call.Argument(0).String())
	return goja.Undefined()
}

func (h *Host) callView(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	paramsHex := call.Argument(1).String()
	params, err := hex.DecodeString(paramsHex)
	if err != nil {
		panic(h.vm.NewTypeError("call_view: params is not hex: %v", err))
	}
	result, err := h.viewer.CallView(name, params)
	if err != nil {
		// Surfaced to the guest as a catchable exception; an uncaught
		// throw fails the invocation and is classified as a recoverable
		// guest failure by the synchronizer.
		panic(h.vm.NewGoError(fmt.Errorf("call_view %s: %w", name, err)))
	}
	return h.vm.ToValue(hex.EncodeToString(result))
}

// pushCDCMessage accepts the CDC record serialized as a JSON string (the
// guest's "byte buffer") and stamps the authoritative block_height /
// block_hash before buffering it. source, timestamp and transaction_id
// remain the guest's responsibility, with timestamp defaulting to now()
// if left empty.
func (h *Host) pushCDCMessage(call goja.FunctionCall) goja.Value {
	raw := call.Argument(0).String()
	var rec record.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		panic(h.vm.NewTypeError("push_cdc_message: invalid record JSON: %v", err))
	}
	if rec.Header.Timestamp == "" {
		rec.Header.Timestamp = record.NowRFC3339(h.clock)
	}
	rec.Header.BlockHeight = h.height
	rec.Header.BlockHash = hex.EncodeToString(h.hash.Bytes())
	if err := rec.Validate(); err != nil {
		panic(h.vm.NewGoError(fmt.Errorf("push_cdc_message: %w", err)))
	}
	h.buffer = append(h.buffer, rec)
	return goja.Undefined()
}

func (h *Host) logStdout(call goja.FunctionCall) goja.Value {
	if h.log != nil {
		h.log.Info("transform", "stream", "stdout", "msg", call.Argument(0).String())
	}
	return goja.Undefined()
}

func (h *Host) logStderr(call goja.FunctionCall) goja.Value {
	if h.log != nil {
		h.log.Error("transform", "stream", "stderr", "msg", call.Argument(0).String())
	}
	return goja.Undefined()
}

func (h *Host) now(goja.FunctionCall) goja.Value {
	return h.vm.ToValue(record.NowRFC3339(h.clock))
}

// invoke runs entryPoint with a snapshot of the context already set on h,
// enforcing the time budget via goja's interrupt mechanism. It returns
// ErrGuestFailure on a thrown exception, a missing process_block entry
// point, a non-zero return status, or a budget overrun. A missing
// rollback entry point yields nil, nil.
func (h *Host) invoke(entryPoint string, height uint32, hash common.Hash) ([]record.Record, error) {
	fn, ok := goja.AssertFunction(h.vm.Get(entryPoint))
	if !ok {
		if entryPoint == "rollback" {
			return nil, nil // rollback is optional; caller falls back to inversion.
		}
		return nil, &ErrGuestFailure{Entry: entryPoint, Cause: fmt.Errorf("guest does not export %s", entryPoint)}
	}

	h.height, h.hash, h.clock, h.buffer = height, hash, time.Now(), nil

	if h.budget > 0 {
		timer := time.AfterFunc(h.budget, func() {
			h.vm.Interrupt(fmt.Errorf("%s exceeded time budget %s", entryPoint, h.budget))
		})
		defer timer.Stop()
		defer h.vm.ClearInterrupt()
	}

	result, err := fn(goja.Undefined())
	if err != nil {
		return nil, &ErrGuestFailure{Entry: entryPoint, Cause: unwrapGuestError(err)}
	}
	if status := result.ToInteger(); status != 0 {
		return nil, &ErrGuestFailure{Entry: entryPoint, Cause: fmt.Errorf("returned status %d", status)}
	}
	return h.buffer, nil
}

// unwrapGuestError recovers the original Go error from an uncaught
// exception thrown via panic(vm.NewGoError(err)) (e.g. from call_view),
// so the synchronizer can classify the failure with errors.As against
// the source package's error types instead of matching on string output.
// If err is a plain script exception (syntax error, thrown string, a
// plain "new Error(...)"), it is returned unchanged.
func unwrapGuestError(err error) error {
	ex, ok := err.(*goja.Exception)
	if !ok {
		return err
	}
	if exported, ok := ex.Value().Export().(error); ok {
		return exported
	}
	return err
}

// ProcessBlock runs the guest's process_block entry point with the given
// block context. On failure the caller must discard the buffered records
// and restore state from the pre-invocation snapshot.
func (h *Host) ProcessBlock(height uint32, hash common.Hash) ([]record.Record, error) {
	return h.invoke("process_block", height, hash)
}

// Rollback runs the guest's optional rollback entry point for the given
// block context. A nil, nil result means the guest does not export
// rollback and the caller should synthesize inverse records instead.
func (h *Host) Rollback(height uint32, hash common.Hash) ([]record.Record, error) {
	return h.invoke("rollback", height, hash)
}
