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
	"io"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

const defaultUserAgent = "httpengine/1.0"

// bridgeInterceptor implements the Bridge interceptor. Whether it asked
// for transparent gzip is kept in a local variable of Intercept across
// the Proceed call, so no request-scoped state is threaded through the
// intermediate interceptors.
type bridgeInterceptor struct {
	client *Client
}

// Intercept implements the Bridge interceptor (spec §4.4): translates
// application request to network request, and network response back to
// application response.
func (b *bridgeInterceptor) Intercept(chain *Chain) (*Response, error) {
	userReq := chain.Request()
	netBuilder := userReq.NewBuilder()

	if body := userReq.Body(); body != nil {
		if userReq.Header("Content-Type") == "" && body.ContentType() != "" {
			netBuilder.Header("Content-Type", body.ContentType())
		}
		if userReq.Header("Content-Length") == "" && userReq.Header("Transfer-Encoding") == "" {
			if body.ContentLength() >= 0 {
				netBuilder.Header("Content-Length", strconv.FormatInt(body.ContentLength(), 10))
				netBuilder.RemoveHeader("Transfer-Encoding")
			} else {
				netBuilder.Header("Transfer-Encoding", "chunked")
				netBuilder.RemoveHeader("Content-Length")
			}
		}
	}

	if userReq.Header("Host") == "" {
		netBuilder.Header("Host", hostHeaderValue(userReq.URL()))
	}
	if userReq.Header("Connection") == "" {
		netBuilder.Header("Connection", "Keep-Alive")
	}

	transparentGzip := false
	if userReq.Header("Accept-Encoding") == "" && userReq.Header("Range") == "" {
		netBuilder.Header("Accept-Encoding", "gzip")
		transparentGzip = true
	}

	if b.client.cfg.CookieJar != nil {
		cookies := b.client.cfg.CookieJar.Cookies(userReq.URL())
		if len(cookies) > 0 {
			netBuilder.Header("Cookie", cookieHeaderValue(cookies))
		}
	}

	if userReq.Header("User-Agent") == "" {
		netBuilder.Header("User-Agent", defaultUserAgent)
	}

	netReq, err := netBuilder.Build()
	if err != nil {
		return nil, err
	}

	networkResponse, err := chain.Proceed(netReq)
	if err != nil {
		return nil, err
	}
	if b.client.cfg.Cache == nil {
		// no Cache interceptor below: every response here came from the
		// network, so record it as its own networkResponse.
		if networkResponse, err = networkResponse.NewBuilder().NetworkResponse(networkResponse).Build(); err != nil {
			return nil, err
		}
	}

	if b.client.cfg.CookieJar != nil {
		if setCookies := networkResponse.Headers().Values("Set-Cookie"); len(setCookies) > 0 {
			b.client.cfg.CookieJar.SetCookies(userReq.URL(), parseSetCookies(setCookies))
		}
	}

	if !transparentGzip {
		return networkResponse, nil
	}
	if networkResponse.Header("Content-Encoding") != "gzip" {
		return networkResponse, nil
	}
	if !responseHasBody(networkResponse) {
		return networkResponse, nil
	}

	gz, err := gzip.NewReader(networkResponse.Body())
	if err != nil {
		// malformed gzip: surface the body unchanged rather than hide
		// the bytes behind a failed decoder.
		return networkResponse, nil
	}
	decoded := NewResponseBody(networkResponse.Body().ContentType(), -1, struct {
		io.Reader
		io.Closer
	}{gz, closerFunc(func() error {
		gz.Close()
		return networkResponse.Body().Close()
	})})

	rb := networkResponse.NewBuilder().
		Body(decoded).
		RemoveHeader("Content-Encoding").
		RemoveHeader("Content-Length")
	return rb.Build()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// responseHasBody reports whether resp is the kind of response HTTP
// permits a body on — used to gate transparent gzip decoding (spec
// §4.4: "the response has a body per HTTP rules").
func responseHasBody(resp *Response) bool {
	if resp.Request().Method() == "HEAD" {
		return false
	}
	switch resp.StatusCode() {
	case 204, 205, 304:
		return false
	}
	return true
}

func cookieHeaderValue(cookies []*http.Cookie) string {
	s := ""
	for i, c := range cookies {
		if i > 0 {
			s += "; "
		}
		s += c.Name + "=" + c.Value
	}
	return s
}

func parseSetCookies(values []string) []*http.Cookie {
	var out []*http.Cookie
	for _, v := range values {
		if c := (&http.Response{Header: http.Header{"Set-Cookie": {v}}}).Cookies(); len(c) > 0 {
			out = append(out, c...)
		}
	}
	return out
}
