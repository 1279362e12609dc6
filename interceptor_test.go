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

func terminalResponse(t *testing.T, req *Request) *Response {
	t.Helper()
	resp, err := NewResponseBuilder().Request(req).StatusCode(200).Body(emptyResponseBody()).Build()
	require.NoError(t, err)
	return resp
}

func newTestChain(t *testing.T, interceptors []Interceptor) *Chain {
	t.Helper()
	req := testRequest(t)
	return &Chain{
		interceptors: interceptors,
		index:        -1,
		request:      req,
		call:         &realCall{originalRequest: req},
	}
}

func TestChainProceedInvokesNextInterceptor(t *testing.T) {
	req := testRequest(t)
	var seen *Request
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) {
			seen = chain.Request()
			return terminalResponse(t, chain.Request()), nil
		}),
	}
	chain := newTestChain(t, interceptors)

	resp, err := chain.Proceed(req)
	require.NoError(t, err)
	assert.Same(t, req, seen)
	assert.Equal(t, 200, resp.StatusCode())
}

func TestChainProceedTwiceOnSameInstancePanics(t *testing.T) {
	req := testRequest(t)
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) { return terminalResponse(t, chain.Request()), nil }),
	}
	chain := newTestChain(t, interceptors)

	require.NoError(t, func() error { _, err := chain.Proceed(req); return err }())
	assert.Panics(t, func() { chain.Proceed(req) })
}

func TestChainProceedOnFinalChainPanics(t *testing.T) {
	req := testRequest(t)
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) {
			assert.Panics(t, func() { chain.Proceed(chain.Request()) })
			return terminalResponse(t, chain.Request()), nil
		}),
	}
	chain := newTestChain(t, interceptors)
	_, err := chain.Proceed(req)
	require.NoError(t, err)
}

func TestChainProceedRejectsNilResponseWithNilError(t *testing.T) {
	req := testRequest(t)
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) { return nil, nil }),
	}
	chain := newTestChain(t, interceptors)
	_, err := chain.Proceed(req)
	require.Error(t, err)
}

func TestChainProceedRejectsResponseWithNilBody(t *testing.T) {
	req := testRequest(t)
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) {
			return &Response{request: chain.Request(), statusCode: 200}, nil
		}),
	}
	chain := newTestChain(t, interceptors)
	_, err := chain.Proceed(req)
	require.Error(t, err)
}

func TestChainProceedShortCircuitsOnCancellation(t *testing.T) {
	req := testRequest(t)
	called := false
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) {
			called = true
			return terminalResponse(t, chain.Request()), nil
		}),
	}
	chain := newTestChain(t, interceptors)
	chain.call.canceled.Store(true)

	_, err := chain.Proceed(req)
	require.Error(t, err)
	assert.False(t, called, "a canceled call must not reach the next interceptor")
}

func TestChainRestartProducesFreshUnproceededChain(t *testing.T) {
	req := testRequest(t)
	interceptors := []Interceptor{
		InterceptorFunc(func(chain *Chain) (*Response, error) { return terminalResponse(t, chain.Request()), nil }),
	}
	chain := newTestChain(t, interceptors)
	_, err := chain.Proceed(req)
	require.NoError(t, err)

	restarted := chain.restart(nil)
	assert.NotPanics(t, func() { restarted.Proceed(req) }, "a restarted chain allows a fresh Proceed call")
}
