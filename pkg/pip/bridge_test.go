// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TurbineOne/ffmpeg-pip/pkg/framepool"
	"github.com/TurbineOne/ffmpeg-pip/pkg/metrics"
)

func TestAcquireDropReason(t *testing.T) {
	closed, err := framepool.NewPool(testFormat, framepool.PoolOptions{MinBuffers: 1, MaxBuffers: 1})
	require.NoError(t, err)
	closed.Close()

	_, closedErr := closed.Get()
	require.Error(t, closedErr)

	failing := func(int) ([]byte, error) { return nil, errors.New("out of memory") }
	_, allocErr := framepool.NewPool(testFormat, framepool.PoolOptions{MinBuffers: 1, Allocator: failing})
	require.Error(t, allocErr)

	full, err := framepool.NewPool(testFormat, framepool.PoolOptions{MinBuffers: 1, MaxBuffers: 1})
	require.NoError(t, err)
	defer full.Close()

	_, err = full.Get()
	require.NoError(t, err)

	_, exhaustedErr := full.Get()
	require.Error(t, exhaustedErr)

	assert.Equal(t, metrics.DropPoolClosed, acquireDropReason(closedErr))
	assert.Equal(t, metrics.DropAllocation, acquireDropReason(allocErr))
	assert.Equal(t, metrics.DropPoolExhausted, acquireDropReason(exhaustedErr))
}
