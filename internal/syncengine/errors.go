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

package syncengine

import "fmt"

// ErrDegraded is returned by Run when the synchronizer transitions to the
// Degraded state: transient retries exhausted or the guest failed in a
// way that is not recoverable ("guest fatal" / retry exhaustion).
// The process is expected to flush and exit.
type ErrDegraded struct {
	Cause error
}

func (e *ErrDegraded) Error() string { return fmt.Sprintf("synchronizer degraded: %v", e.Cause) }
func (e *ErrDegraded) Unwrap() error { return e.Cause }

// ErrConsistencyViolation signals a broken core invariant: a cache
// append that should have been adjacent wasn't, or an inversion rule
// could not be applied to a cached original. These are
// programmer errors, not operational conditions, and abort the process.
type ErrConsistencyViolation struct {
	Cause error
}

func (e *ErrConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation: %v", e.Cause)
}
func (e *ErrConsistencyViolation) Unwrap() error { return e.Cause }
