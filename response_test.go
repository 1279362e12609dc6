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

package httpengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewRequestBuilder().URL("http://example.com").Get().Build()
	require.NoError(t, err)
	return req
}

func TestResponseBuilderRequiresRequestStatusAndBody(t *testing.T) {
	req := testRequest(t)

	_, err := NewResponseBuilder().StatusCode(200).Body(emptyResponseBody()).Build()
	require.Error(t, err, "missing request")

	_, err = NewResponseBuilder().Request(req).Body(emptyResponseBody()).Build()
	require.Error(t, err, "missing status code")

	_, err = NewResponseBuilder().Request(req).StatusCode(200).Build()
	require.Error(t, err, "missing body")

	resp, err := NewResponseBuilder().Request(req).StatusCode(200).Body(emptyResponseBody()).Build()
	require.NoError(t, err)
	assert.True(t, resp.IsSuccessful())
}

func TestResponseIsRedirect(t *testing.T) {
	req := testRequest(t)
	for _, code := range []int{300, 301, 302, 303, 307, 308} {
		resp, err := NewResponseBuilder().Request(req).StatusCode(code).Body(emptyResponseBody()).Build()
		require.NoError(t, err)
		assert.Truef(t, resp.IsRedirect(), "status %d should be a redirect candidate", code)
	}
	resp, err := NewResponseBuilder().Request(req).StatusCode(200).Body(emptyResponseBody()).Build()
	require.NoError(t, err)
	assert.False(t, resp.IsRedirect())
}

func TestResponsePriorResponseChainStripsBodies(t *testing.T) {
	req := testRequest(t)
	first, err := NewResponseBuilder().Request(req).StatusCode(302).Body(emptyResponseBody()).Build()
	require.NoError(t, err)

	second, err := NewResponseBuilder().Request(req).StatusCode(200).Body(emptyResponseBody()).PriorResponse(first).Build()
	require.NoError(t, err)

	require.NotNil(t, second.PriorResponse())
	assert.Nil(t, second.PriorResponse().Body(), "prior response must not carry a body")
	assert.Equal(t, 302, second.PriorResponse().StatusCode())
}

func TestResponseNetworkAndCacheResponseStripBodies(t *testing.T) {
	req := testRequest(t)
	network, err := NewResponseBuilder().Request(req).StatusCode(200).Body(emptyResponseBody()).Build()
	require.NoError(t, err)

	merged, err := NewResponseBuilder().Request(req).StatusCode(200).Body(emptyResponseBody()).
		NetworkResponse(network).CacheResponse(network).Build()
	require.NoError(t, err)

	assert.Nil(t, merged.NetworkResponse().Body())
	assert.Nil(t, merged.CacheResponse().Body())
}

func TestResponseNewBuilderRoundTrip(t *testing.T) {
	req := testRequest(t)
	resp, err := NewResponseBuilder().Request(req).StatusCode(200).Header("X-A", "1").Body(emptyResponseBody()).Build()
	require.NoError(t, err)

	resp2, err := resp.NewBuilder().StatusCode(201).Build()
	require.NoError(t, err)
	assert.Equal(t, 201, resp2.StatusCode())
	assert.Equal(t, "1", resp2.Header("X-A"))
}
