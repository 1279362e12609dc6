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
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// permitsBody/requiresBody implement spec §3's method table: GET/HEAD
// forbid a body; POST/PUT/PATCH/PROPPATCH/REPORT require one.
var (
	methodsForbiddingBody = map[string]bool{"GET": true, "HEAD": true}
	methodsRequiringBody  = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "PROPPATCH": true, "REPORT": true}
)

func permitsBody(method string) bool { return !methodsForbiddingBody[strings.ToUpper(method)] }
func requiresBody(method string) bool { return methodsRequiringBody[strings.ToUpper(method)] }

// Request is an immutable description of an HTTP request, per spec §3.
type Request struct {
	url     *url.URL
	method  string
	headers Headers
	body    RequestBody
	tag     any

	ccOnce sync.Once
	cc     CacheControl
}

// URL returns the request's URL.
func (r *Request) URL() *url.URL { return r.url }

// Method returns the request's method.
func (r *Request) Method() string { return r.method }

// Headers returns the request's headers.
func (r *Request) Headers() Headers { return r.headers }

// Header returns the first value of name, or "".
func (r *Request) Header(name string) string { return r.headers.Get(name) }

// Body returns the request body, or nil if none.
func (r *Request) Body() RequestBody { return r.body }

// HasBody reports whether the request carries a body.
func (r *Request) HasBody() bool { return r.body != nil }

// Tag returns the request's opaque tag, used for cancellation keying and
// caller-side correlation. Defaults to the Request's own identity if
// never set explicitly (Design Note: "Tag identity default").
func (r *Request) Tag() any {
	if r.tag != nil {
		return r.tag
	}
	return r
}

// CacheControl returns the request's parsed Cache-Control directives,
// computed once on first access and memoized — safe for concurrent
// readers (Design Note "Lazy-initialized CacheControl").
func (r *Request) CacheControl() CacheControl {
	r.ccOnce.Do(func() {
		r.cc = ParseCacheControl(r.headers.Values("Cache-Control"))
	})
	return r.cc
}

// NewBuilder returns a builder seeded from r, for producing a modified
// copy; r itself is not observed again after Build is called on the
// result (spec §4.1).
func (r *Request) NewBuilder() *RequestBuilder {
	return &RequestBuilder{
		url:     r.url,
		method:  r.method,
		headers: newHeadersBuilderFrom(r.headers),
		body:    r.body,
		tag:     r.tag,
	}
}

// RequestBuilder accumulates request state before producing an
// immutable Request via Build.
type RequestBuilder struct {
	url     *url.URL
	method  string
	headers *HeadersBuilder
	body    RequestBody
	tag     any
	err     error
}

// NewRequestBuilder returns an empty builder defaulting to GET.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{method: "GET", headers: NewHeadersBuilder()}
}

// URL sets the request URL from a string, normalizing ws/wss schemes.
func (b *RequestBuilder) URL(rawurl string) *RequestBuilder {
	u, err := ParseURL(rawurl)
	if err != nil {
		b.err = err
		return b
	}
	b.url = u
	return b
}

// SetURL sets the request URL directly.
func (b *RequestBuilder) SetURL(u *url.URL) *RequestBuilder {
	b.url = u
	return b
}

// Method sets the method and, optionally, the body. The body is
// validated against the method's rules at Build time: a non-nil body
// must be permitted by the method, and a nil body is rejected for
// methods that require one (POST, PUT, PATCH, ...).
func (b *RequestBuilder) Method(method string, body RequestBody) *RequestBuilder {
	if method == "" {
		b.err = &IllegalArgumentError{Msg: "method must not be empty"}
		return b
	}
	b.method = strings.ToUpper(method)
	b.body = body
	return b
}

// Get is shorthand for Method("GET", nil).
func (b *RequestBuilder) Get() *RequestBuilder { return b.Method("GET", nil) }

// Head is shorthand for Method("HEAD", nil).
func (b *RequestBuilder) Head() *RequestBuilder { return b.Method("HEAD", nil) }

// Post is shorthand for Method("POST", body).
func (b *RequestBuilder) Post(body RequestBody) *RequestBuilder { return b.Method("POST", body) }

// Put is shorthand for Method("PUT", body).
func (b *RequestBuilder) Put(body RequestBody) *RequestBuilder { return b.Method("PUT", body) }

// Patch is shorthand for Method("PATCH", body).
func (b *RequestBuilder) Patch(body RequestBody) *RequestBuilder { return b.Method("PATCH", body) }

// Delete is shorthand for Method("DELETE", body). A nil body receives
// the zero-length sentinel (spec §4.1, §9 Open Question).
func (b *RequestBuilder) Delete(body RequestBody) *RequestBuilder {
	if body == nil {
		body = emptyBody
	}
	return b.Method("DELETE", body)
}

// Header sets a single-valued header, replacing any prior entries.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.headers.Set(name, value)
	return b
}

// AddHeader appends a header value without replacing prior entries.
func (b *RequestBuilder) AddHeader(name, value string) *RequestBuilder {
	b.headers.Add(name, value)
	return b
}

// RemoveHeader removes all entries for name.
func (b *RequestBuilder) RemoveHeader(name string) *RequestBuilder {
	b.headers.RemoveAll(name)
	return b
}

// Headers replaces the entire header set.
func (b *RequestBuilder) Headers(h Headers) *RequestBuilder {
	b.headers = newHeadersBuilderFrom(h)
	return b
}

// CacheControl serializes cc into a single Cache-Control header, or
// removes the header entirely if cc is empty (spec §4.1).
func (b *RequestBuilder) CacheControl(cc CacheControl) *RequestBuilder {
	b.headers.RemoveAll("Cache-Control")
	if s := cc.String(); s != "" {
		b.headers.Set("Cache-Control", s)
	}
	return b
}

// Tag sets the request's opaque tag.
func (b *RequestBuilder) Tag(tag any) *RequestBuilder {
	b.tag = tag
	return b
}

// Build validates and returns the immutable Request.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.url == nil {
		return nil, &IllegalArgumentError{Msg: "request URL is required"}
	}
	if b.method == "" {
		b.method = "GET"
	}
	if b.body != nil && !permitsBody(b.method) {
		return nil, &IllegalArgumentError{Msg: fmt.Sprintf("method %s does not permit a request body", b.method)}
	}
	if b.body == nil && requiresBody(b.method) {
		return nil, &IllegalArgumentError{Msg: fmt.Sprintf("method %s requires a request body", b.method)}
	}
	return &Request{
		url:     b.url,
		method:  b.method,
		headers: b.headers.Build(),
		body:    b.body,
		tag:     b.tag,
	}, nil
}

// newCancelKey returns a fresh opaque uuid key. Nothing in the package
// calls it: the Dispatcher's queues match calls by *realCall pointer
// identity.
func newCancelKey() string { return uuid.NewString() }
