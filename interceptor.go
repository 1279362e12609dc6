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
	"time"

	"github.com/caddyserver/httpengine/transport"
)

// Interceptor is like MiddlewareHandler except it takes the chain's
// current request and either proceeds down the chain, short-circuits
// with a synthesized Response, or returns an I/O error (spec §4.2).
type Interceptor interface {
	Intercept(chain *Chain) (*Response, error)
}

// InterceptorFunc adapts a function to an Interceptor.
type InterceptorFunc func(chain *Chain) (*Response, error)

func (f InterceptorFunc) Intercept(chain *Chain) (*Response, error) { return f(chain) }

// Chain is the remaining tail of interceptors plus the current request.
// Each instance permits exactly one Proceed call (zero for the terminal
// chain, which forbids it outright) — spec §4.2.
type Chain struct {
	interceptors []Interceptor
	index        int
	request      *Request

	call *realCall

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	streamAllocation *transport.StreamAllocation
	conn             *transport.Connection

	proceeded bool
	isFinal   bool
}

// Request returns the chain's current request.
func (c *Chain) Request() *Request { return c.request }

// Call returns the Call this chain belongs to.
func (c *Chain) Call() *Call { return &Call{real: c.call} }

// ConnectTimeout, ReadTimeout, WriteTimeout return the configured
// per-operation timeouts, as spec §5 requires every suspension point to
// honor configurable timeouts.
func (c *Chain) ConnectTimeout() time.Duration { return c.connectTimeout }
func (c *Chain) ReadTimeout() time.Duration    { return c.readTimeout }
func (c *Chain) WriteTimeout() time.Duration   { return c.writeTimeout }

// Connection returns the connection bound to this hop, if the chain has
// passed through Connect; nil earlier in the chain.
func (c *Chain) Connection() *transport.Connection { return c.conn }

// StreamAllocation returns the per-call resource claim against the
// connection pool, set up by RetryAndFollowUp before the first hop.
func (c *Chain) StreamAllocation() *transport.StreamAllocation { return c.streamAllocation }

// Proceed advances the chain to the next interceptor with request as
// the new current request. It panics with an IllegalStateError if
// called more than once on the same Chain instance, or if this chain is
// final (spec §4.2 "exactly one proceed"; "forbidden" on the final
// chain).
func (c *Chain) Proceed(request *Request) (*Response, error) {
	if c.isFinal {
		panic(newIllegalStateError("proceed called on the final chain"))
	}
	if c.proceeded {
		panic(newIllegalStateError("proceed called more than once on this chain"))
	}
	c.proceeded = true

	next := &Chain{
		interceptors:     c.interceptors,
		index:            c.index + 1,
		request:          request,
		call:             c.call,
		connectTimeout:   c.connectTimeout,
		readTimeout:      c.readTimeout,
		writeTimeout:     c.writeTimeout,
		streamAllocation: c.streamAllocation,
		conn:             c.conn,
		isFinal:          c.index+1 == len(c.interceptors)-1,
	}

	if c.call.isCanceled() {
		return nil, newCanceledError()
	}

	resp, err := c.interceptors[next.index].Intercept(next)
	if err == nil && resp == nil {
		return nil, newIllegalStateError("interceptor returned a nil response and a nil error")
	}
	if err == nil && resp.body == nil {
		return nil, newIllegalStateError("interceptor returned a response with a nil body")
	}
	return resp, err
}

// withConn returns a copy of c carrying conn, used internally by
// Connect to bind a connection for the remainder of this hop without
// mutating the chain the caller still holds.
func (c *Chain) withConn(conn *transport.Connection, sa *transport.StreamAllocation) *Chain {
	cp := *c
	cp.conn = conn
	cp.streamAllocation = sa
	cp.proceeded = false
	return &cp
}

// restart returns a copy of c reset to an unproceeded state and bound to
// sa, with no connection yet acquired. RetryAndFollowUp uses this to
// drive one hop per attempt/follow-up through the same interceptor tail
// without violating the single-proceed rule on any one Chain instance.
func (c *Chain) restart(sa *transport.StreamAllocation) *Chain {
	cp := *c
	cp.conn = nil
	cp.streamAllocation = sa
	cp.proceeded = false
	return &cp
}
