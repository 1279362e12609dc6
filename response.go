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
)

// Response is an immutable HTTP response, per spec §3. The header
// portion is immutable; Body is a one-shot stream.
type Response struct {
	request *Request

	statusCode int
	status     string
	proto      string
	headers    Headers
	body       *ResponseBody

	networkResponse *Response
	cacheResponse   *Response
	priorResponse   *Response

	sentAt     time.Time
	receivedAt time.Time
}

// Request returns the request that produced this response.
func (r *Response) Request() *Request { return r.request }

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Status returns the status text as recorded, which includes the code
// (e.g. "200 OK"), or "" if none was set.
func (r *Response) Status() string { return r.status }

// Proto returns the protocol version string, e.g. "HTTP/1.1".
func (r *Response) Proto() string { return r.proto }

// Headers returns the response headers.
func (r *Response) Headers() Headers { return r.headers }

// Header returns the first value of name, or "".
func (r *Response) Header(name string) string { return r.headers.Get(name) }

// Body returns the one-shot response body stream, or nil.
func (r *Response) Body() *ResponseBody { return r.body }

// NetworkResponse returns the pre-cache-merge server response, if this
// response involved a network round trip.
func (r *Response) NetworkResponse() *Response { return r.networkResponse }

// CacheResponse returns the stored response that was used, if any.
func (r *Response) CacheResponse() *Response { return r.cacheResponse }

// PriorResponse returns the previous hop in a redirect/auth chain, if
// any. Prior responses never carry a body (spec §3).
func (r *Response) PriorResponse() *Response { return r.priorResponse }

// SentAt returns when the request was sent.
func (r *Response) SentAt() time.Time { return r.sentAt }

// ReceivedAt returns when the response was received.
func (r *Response) ReceivedAt() time.Time { return r.receivedAt }

// IsSuccessful reports whether the status code is in [200, 300).
func (r *Response) IsSuccessful() bool { return r.statusCode >= 200 && r.statusCode < 300 }

// IsRedirect reports whether the status code is one the engine treats as
// a redirect candidate in its follow-up policy (spec §4.3).
func (r *Response) IsRedirect() bool {
	switch r.statusCode {
	case 300, 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// CacheControl returns the response's parsed Cache-Control directives.
func (r *Response) CacheControl() CacheControl {
	return ParseCacheControl(r.headers.Values("Cache-Control"))
}

// NewBuilder returns a builder seeded from r.
func (r *Response) NewBuilder() *ResponseBuilder {
	return &ResponseBuilder{
		request:         r.request,
		statusCode:      r.statusCode,
		status:          r.status,
		proto:           r.proto,
		headers:         newHeadersBuilderFrom(r.headers),
		body:            r.body,
		networkResponse: r.networkResponse,
		cacheResponse:   r.cacheResponse,
		priorResponse:   r.priorResponse,
		sentAt:          r.sentAt,
		receivedAt:      r.receivedAt,
	}
}

// ResponseBuilder accumulates response state before producing an
// immutable Response via Build.
type ResponseBuilder struct {
	request *Request

	statusCode int
	status     string
	proto      string
	headers    *HeadersBuilder
	body       *ResponseBody

	networkResponse *Response
	cacheResponse   *Response
	priorResponse   *Response

	sentAt     time.Time
	receivedAt time.Time
}

// NewResponseBuilder returns an empty builder with HTTP/1.1 defaulted.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{proto: "HTTP/1.1", headers: NewHeadersBuilder()}
}

func (b *ResponseBuilder) Request(req *Request) *ResponseBuilder { b.request = req; return b }
func (b *ResponseBuilder) StatusCode(code int) *ResponseBuilder  { b.statusCode = code; return b }
func (b *ResponseBuilder) Status(status string) *ResponseBuilder { b.status = status; return b }
func (b *ResponseBuilder) Proto(proto string) *ResponseBuilder   { b.proto = proto; return b }
func (b *ResponseBuilder) Body(body *ResponseBody) *ResponseBuilder { b.body = body; return b }
func (b *ResponseBuilder) SentAt(t time.Time) *ResponseBuilder  { b.sentAt = t; return b }
func (b *ResponseBuilder) ReceivedAt(t time.Time) *ResponseBuilder { b.receivedAt = t; return b }

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers.Set(name, value)
	return b
}

func (b *ResponseBuilder) AddHeader(name, value string) *ResponseBuilder {
	b.headers.Add(name, value)
	return b
}

func (b *ResponseBuilder) RemoveHeader(name string) *ResponseBuilder {
	b.headers.RemoveAll(name)
	return b
}

func (b *ResponseBuilder) Headers(h Headers) *ResponseBuilder {
	b.headers = newHeadersBuilderFrom(h)
	return b
}

// NetworkResponse sets the pre-cache-merge server response. resp's body
// is stripped, per spec §3's "priorResponse chains have no bodies" and
// the analogous rule applied here to avoid holding two live bodies.
func (b *ResponseBuilder) NetworkResponse(resp *Response) *ResponseBuilder {
	b.networkResponse = stripBody(resp)
	return b
}

// CacheResponse sets the stored response that was consulted; stripped
// of its body for the same reason as NetworkResponse.
func (b *ResponseBuilder) CacheResponse(resp *Response) *ResponseBuilder {
	b.cacheResponse = stripBody(resp)
	return b
}

// PriorResponse sets the previous hop in a redirect/auth chain; its body
// is always stripped (spec §3).
func (b *ResponseBuilder) PriorResponse(resp *Response) *ResponseBuilder {
	b.priorResponse = stripBody(resp)
	return b
}

func stripBody(resp *Response) *Response {
	if resp == nil {
		return nil
	}
	cp := *resp
	cp.body = nil
	return &cp
}

// Build validates and returns the immutable Response. At most one of
// NetworkResponse/CacheResponse may itself carry a body (spec §3); since
// NetworkResponse/CacheResponse always strip bodies on assignment here,
// that invariant holds by construction.
func (b *ResponseBuilder) Build() (*Response, error) {
	if b.request == nil {
		return nil, &IllegalArgumentError{Msg: "response request is required"}
	}
	if b.statusCode == 0 {
		return nil, &IllegalArgumentError{Msg: "response status code is required"}
	}
	if b.body == nil {
		return nil, newIllegalStateError("response body must not be nil")
	}
	return &Response{
		request:         b.request,
		statusCode:      b.statusCode,
		status:          b.status,
		proto:           b.proto,
		headers:         b.headers.Build(),
		body:            b.body,
		networkResponse: b.networkResponse,
		cacheResponse:   b.cacheResponse,
		priorResponse:   b.priorResponse,
		sentAt:          b.sentAt,
		receivedAt:      b.receivedAt,
	}, nil
}
