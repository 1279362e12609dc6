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
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Callback receives the outcome of an asynchronous Call, invoked exactly
// once on the Dispatcher's executor (spec §4.8).
type Callback interface {
	OnResponse(call *Call, resp *Response)
	OnFailure(call *Call, err error)
}

// CallbackFuncs adapts two functions to a Callback.
type CallbackFuncs struct {
	OnResponseFunc func(call *Call, resp *Response)
	OnFailureFunc  func(call *Call, err error)
}

func (f CallbackFuncs) OnResponse(call *Call, resp *Response) {
	if f.OnResponseFunc != nil {
		f.OnResponseFunc(call, resp)
	}
}

func (f CallbackFuncs) OnFailure(call *Call, err error) {
	if f.OnFailureFunc != nil {
		f.OnFailureFunc(call, err)
	}
}

// Call is a one-shot execution binding of (client, request), per spec
// §4.8. The zero value is not usable; obtain one from Client.NewCall.
type Call struct {
	real *realCall
}

type realCall struct {
	client          *Client
	originalRequest *Request
	forWebSocket    bool
	id              string

	mu       sync.Mutex
	executed bool
	canceled atomic.Bool

	listener EventListener
}

func newCall(client *Client, req *Request, forWebSocket bool) *Call {
	return &Call{real: &realCall{
		client:          client,
		originalRequest: req,
		forWebSocket:    forWebSocket,
		id:              uuid.NewString(),
	}}
}

// Request returns the original request this Call was created with.
func (c *Call) Request() *Request { return c.real.originalRequest }

// IsExecuted reports whether Execute or Enqueue has been called.
func (c *Call) IsExecuted() bool {
	c.real.mu.Lock()
	defer c.real.mu.Unlock()
	return c.real.executed
}

// IsCanceled reports whether Cancel has been called.
func (c *Call) IsCanceled() bool { return c.real.canceled.Load() }

func (c *realCall) isCanceled() bool { return c.canceled.Load() }

// Cancel marks the call canceled. Idempotent and safe from any thread
// (spec §5). A call not yet dispatched removes itself from the ready
// queue. A call blocked in I/O is not interrupted: its connection is not
// closed, and the call fails with a Canceled error once that I/O returns
// or hits its read/write timeout.
func (c *Call) Cancel() {
	c.real.canceled.Store(true)
	c.real.client.cfg.Dispatcher.cancelPending(c.real)
}

// Clone produces a fresh Call with the same (client, request,
// forWebSocket); the executed flag is not copied (spec §4.8).
func (c *Call) Clone() *Call {
	return newCall(c.real.client, c.real.originalRequest, c.real.forWebSocket)
}

func (c *realCall) markExecuted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executed {
		return newIllegalStateError("call already executed")
	}
	c.executed = true
	return nil
}

// Execute runs the call synchronously and returns the final response or
// an I/O failure (spec §4.8). Invoking Execute (or Enqueue) a second
// time on the same Call raises IllegalStateError.
func (c *Call) Execute() (*Response, error) {
	rc := c.real
	if err := rc.markExecuted(); err != nil {
		return nil, err
	}

	rc.listener = rc.client.cfg.EventListenerFactory.NewListener(c)
	rc.listener.CallStart(rc.originalRequest)

	rc.client.cfg.Dispatcher.registerSync(rc)
	defer rc.client.cfg.Dispatcher.finishSync(rc)

	resp, err := rc.run()
	if err != nil {
		rc.listener.CallFailed(err)
	} else {
		rc.listener.CallEnd(resp)
	}
	return resp, err
}

// Enqueue runs the call asynchronously on the Dispatcher's executor,
// invoking exactly one of cb.OnResponse/cb.OnFailure on completion
// (spec §4.8). If the call was canceled after the network returned, it
// reports OnFailure with a Canceled error.
func (c *Call) Enqueue(cb Callback) {
	rc := c.real
	if err := rc.markExecuted(); err != nil {
		if cb != nil {
			cb.OnFailure(c, err)
		}
		return
	}

	rc.listener = rc.client.cfg.EventListenerFactory.NewListener(c)
	rc.listener.CallStart(rc.originalRequest)

	rc.client.cfg.Dispatcher.enqueueAsync(&asyncCall{call: c, rc: rc, cb: cb})
}

// run drives the fixed interceptor pipeline for this call (spec §4.2).
func (c *realCall) run() (*Response, error) {
	if c.isCanceled() {
		return nil, newCanceledError()
	}
	interceptors := c.client.interceptors
	start := &Chain{
		interceptors:   interceptors,
		index:          -1,
		request:        c.originalRequest,
		call:           c,
		connectTimeout: c.client.cfg.ConnectTimeout,
		readTimeout:    c.client.cfg.ReadTimeout,
		writeTimeout:   c.client.cfg.WriteTimeout,
	}
	return start.Proceed(c.originalRequest)
}
