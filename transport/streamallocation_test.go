// Copyright 2024 The Httpengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAllocationAcquireReusesHeldConnectionForSameRoute(t *testing.T) {
	addr := startEchoListener(t)
	p := NewPool(5, time.Minute)
	defer p.Close()
	route := testRoute(t, addr)

	sa := NewStreamAllocation(p)
	conn1, _, err := sa.Acquire(context.Background(), route)
	require.NoError(t, err)

	conn2, _, err := sa.Acquire(context.Background(), route)
	require.NoError(t, err)
	assert.Same(t, conn1, conn2, "re-acquiring the same route while holding a connection must not dial again")
}

func TestStreamAllocationAcquireSwitchesRouteReleasesOld(t *testing.T) {
	addrA := startEchoListener(t)
	addrB := startEchoListener(t)
	p := NewPool(5, time.Minute)
	defer p.Close()

	routeA := testRoute(t, addrA)
	routeB := testRoute(t, addrB)

	sa := NewStreamAllocation(p)
	_, _, err := sa.Acquire(context.Background(), routeA)
	require.NoError(t, err)

	_, _, err = sa.Acquire(context.Background(), routeB)
	require.NoError(t, err)

	assert.Equal(t, 1, p.IdleCount(routeA), "switching routes must release the old connection back to the pool")
}

func TestStreamAllocationReleaseReturnsConnectionToPool(t *testing.T) {
	addr := startEchoListener(t)
	p := NewPool(5, time.Minute)
	defer p.Close()
	route := testRoute(t, addr)

	sa := NewStreamAllocation(p)
	_, _, err := sa.Acquire(context.Background(), route)
	require.NoError(t, err)

	sa.Release()
	assert.Equal(t, 1, p.IdleCount(route))
	assert.Nil(t, sa.Connection())
}

func TestStreamAllocationCancelClosesHeldConnection(t *testing.T) {
	addr := startEchoListener(t)
	p := NewPool(5, time.Minute)
	defer p.Close()
	route := testRoute(t, addr)

	sa := NewStreamAllocation(p)
	conn, _, err := sa.Acquire(context.Background(), route)
	require.NoError(t, err)

	sa.Cancel()
	assert.True(t, sa.Canceled())
	assert.False(t, conn.Reusable())

	_, _, err = sa.Acquire(context.Background(), route)
	assert.ErrorIs(t, err, context.Canceled)
}
