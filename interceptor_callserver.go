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
	"io"
	"strings"
	"time"

	"github.com/caddyserver/httpengine/transport"
)

// callServerInterceptor implements the CallServer interceptor (spec
// §4.7): the last interceptor in the chain, it writes the request over
// the bound connection and parses the response, including Expect:
// 100-continue handling and zero-length enforcement for HEAD/204/205.
type callServerInterceptor struct {
	client *Client
}

func (cs *callServerInterceptor) Intercept(chain *Chain) (*Response, error) {
	req := chain.Request()
	conn := chain.Connection()
	sa := chain.StreamAllocation()
	if conn == nil {
		return nil, newIllegalStateError("callServer interceptor reached with no connection bound")
	}
	codec := transport.NewHTTP1Codec(conn)

	listener := chain.Call().real.listener

	out := transport.OutgoingRequest{
		Method:     req.Method(),
		RequestURI: requestURITarget(req),
		Proto:      "HTTP/1.1",
		Host:       hostHeaderValue(req.URL()),
	}
	h := req.Headers()
	for i := 0; i < h.Len(); i++ {
		out.HeaderNames = append(out.HeaderNames, h.Name(i))
		out.HeaderValues = append(out.HeaderValues, h.Value(i))
	}

	sentAt := time.Now()
	conn.Raw().SetWriteDeadline(sentAt.Add(chain.WriteTimeout()))
	if err := codec.WriteRequestHeaders(out); err != nil {
		conn.MarkNonReusable()
		return nil, err
	}
	listener.RequestHeadersEnd(req)

	body := req.Body()
	writeBody := body != nil
	expectContinue := strings.EqualFold(req.Header("Expect"), "100-continue")

	if expectContinue && writeBody {
		conn.Raw().SetReadDeadline(time.Now().Add(chain.ReadTimeout()))
		status, ok, err := codec.ReadInterimResponse()
		if err != nil {
			conn.MarkNonReusable()
			return nil, err
		}
		switch {
		case ok && status == 100:
			// server is ready for the body.
		case ok:
			conn.MarkNonReusable()
			return nil, newProtocolError(fmt.Sprintf("unexpected interim status %d", status), nil)
		default:
			// server answered the headers without requesting the body
			// (e.g. a 417 or an early error response): skip writing it.
			writeBody = false
		}
	}

	if writeBody {
		chunked := strings.EqualFold(req.Header("Transfer-Encoding"), "chunked")
		w := codec.RequestBodyWriter(body.ContentLength(), chunked)
		conn.Raw().SetWriteDeadline(time.Now().Add(chain.WriteTimeout()))
		if err := body.WriteTo(w); err != nil {
			conn.MarkNonReusable()
			return nil, err
		}
	}
	if err := codec.FinishRequest(); err != nil {
		conn.MarkNonReusable()
		return nil, err
	}

	conn.Raw().SetReadDeadline(time.Now().Add(chain.ReadTimeout()))
	httpResp, err := codec.ReadResponseHeaders(req.Method())
	receivedAt := time.Now()
	if err != nil {
		conn.MarkNonReusable()
		return nil, err
	}

	if httpResp.Close || !httpResp.ProtoAtLeast(1, 1) {
		conn.MarkNonReusable()
	}

	rb := NewResponseBuilder().
		Request(req).
		StatusCode(httpResp.StatusCode).
		Status(httpResp.Status).
		Proto(httpResp.Proto).
		SentAt(sentAt).
		ReceivedAt(receivedAt)
	for name, values := range httpResp.Header {
		for _, v := range values {
			rb.AddHeader(name, v)
		}
	}

	var respBody *ResponseBody
	if req.Method() == "HEAD" || httpResp.StatusCode == 204 || httpResp.StatusCode == 205 {
		respBody = emptyResponseBody()
		cs.release(sa, conn)
	} else {
		raw := codec.ResponseBodyReader(httpResp, req.Method())
		respBody = NewResponseBody(httpResp.Header.Get("Content-Type"), httpResp.ContentLength,
			&releasingBody{ReadCloser: raw, release: func() { cs.release(sa, conn) }})
	}
	rb.Body(respBody)

	resp, err := rb.Build()
	if err != nil {
		return nil, err
	}
	listener.ResponseHeadersEnd(resp)
	return resp, nil
}

func (cs *callServerInterceptor) release(sa *transport.StreamAllocation, conn *transport.Connection) {
	if sa != nil {
		sa.Release()
		return
	}
	cs.client.pool.Put(conn)
}

// requestURITarget returns the request-line target for req: an absolute
// path plus query, defaulting to "/" for an empty path.
func requestURITarget(req *Request) string {
	u := req.URL()
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// releasingBody wraps the wire-level body reader so that closing the
// ResponseBody releases the connection back to the pool exactly once —
// spec §4.7's "closure ultimately releases the connection."
type releasingBody struct {
	io.ReadCloser
	release func()
	done    bool
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.done {
		b.done = true
		b.release()
	}
	return err
}
