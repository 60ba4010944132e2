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

package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := New(time.Second, 8*time.Second)
	require.Equal(t, time.Second, b.Next())
	require.Equal(t, 2*time.Second, b.Next())
	require.Equal(t, 4*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next(), "capped at max")
}

func TestBackoffResetsToMin(t *testing.T) {
	b := New(time.Second, 8*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	require.Equal(t, time.Second, b.Next())
}

func TestBackoffClampsInvalidBounds(t *testing.T) {
	b := New(0, 0)
	require.Equal(t, time.Second, b.Next())
}
