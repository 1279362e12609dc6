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
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
)

// OutgoingRequest is the wire-level shape CallServer hands to the codec:
// method, URL request-line target, and ordered headers. The core never
// hands the codec its own Request/Headers types directly, keeping this
// package free of an import cycle back to the root package.
type OutgoingRequest struct {
	Method       string
	RequestURI   string
	Proto        string
	HeaderNames  []string
	HeaderValues []string
	Host         string
}

// HttpCodec is a protocol-specific request writer / response reader for
// one request/response exchange (spec glossary). HTTP1Codec is the only
// implementation; a future HTTP/2 codec would satisfy the same
// interface and be selected by Pool/StreamAllocation based on ALPN.
type HttpCodec interface {
	// WriteRequestHeaders writes the request line and headers and
	// flushes them immediately (so Expect: 100-continue can await an
	// interim response before the body is written).
	WriteRequestHeaders(req OutgoingRequest) error
	// RequestBodyWriter returns a writer for the request body. If
	// chunked is true, each Write is flushed as its own chunk.
	RequestBodyWriter(contentLength int64, chunked bool) io.WriteCloser
	// FinishRequest completes the request stream (final chunk, etc).
	FinishRequest() error
	// ReadInterimResponse reads a 1xx response, for 100-continue
	// handling; ok is false if the next status line is not 1xx.
	ReadInterimResponse() (status int, ok bool, err error)
	// ReadResponseHeaders parses the response status line and headers.
	ReadResponseHeaders(forMethod string) (*http.Response, error)
	// ResponseBodyReader returns a reader bound to resp's body framing
	// (content-length, chunked, or close-delimited).
	ResponseBodyReader(resp *http.Response, forMethod string) io.ReadCloser
}

// HTTP1Codec implements HttpCodec over a buffered net.Conn using
// net/http's wire parser for the response line/headers — a real, if
// minimal, HTTP/1.1 transport so the core's Connect/CallServer
// interceptors have a genuine collaborator to drive (spec.md places the
// wire codec out of scope "at its interface to the core"; this is that
// interface's concrete implementation).
type HTTP1Codec struct {
	conn *Connection
	bw   *bufio.Writer
	br   *bufio.Reader

	bodyWriter *chunkedOrFixedWriter
}

// NewHTTP1Codec returns a codec bound to conn.
func NewHTTP1Codec(conn *Connection) *HTTP1Codec {
	return &HTTP1Codec{conn: conn, bw: conn.Writer(), br: conn.Reader()}
}

func (c *HTTP1Codec) WriteRequestHeaders(req OutgoingRequest) error {
	if _, err := fmt.Fprintf(c.bw, "%s %s %s\r\n", req.Method, req.RequestURI, req.Proto); err != nil {
		return err
	}
	for i := range req.HeaderNames {
		if _, err := fmt.Fprintf(c.bw, "%s: %s\r\n", req.HeaderNames[i], req.HeaderValues[i]); err != nil {
			return err
		}
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *HTTP1Codec) RequestBodyWriter(contentLength int64, chunked bool) io.WriteCloser {
	c.bodyWriter = &chunkedOrFixedWriter{bw: c.bw, chunked: chunked, remaining: contentLength}
	return c.bodyWriter
}

func (c *HTTP1Codec) FinishRequest() error {
	if c.bodyWriter != nil && c.bodyWriter.chunked {
		if _, err := c.bw.WriteString("0\r\n\r\n"); err != nil {
			return err
		}
	}
	return c.bw.Flush()
}

func (c *HTTP1Codec) ReadInterimResponse() (int, bool, error) {
	// peek at "HTTP/1.1 NNN" so a final (non-1xx) response is left
	// unread in the buffer for ReadResponseHeaders.
	head, err := c.br.Peek(len("HTTP/1.1 100"))
	if err != nil {
		return 0, false, err
	}
	code, _ := parseStatusLine(string(head))
	if code < 100 || code >= 200 {
		return code, false, nil
	}
	if _, err := readStatusLine(c.br); err != nil {
		return code, true, err
	}
	// drain the (empty) header block of the interim response
	tp := textproto.NewReader(c.br)
	if _, err := tp.ReadMIMEHeader(); err != nil && err != io.EOF {
		return code, true, err
	}
	return code, true, nil
}

func (c *HTTP1Codec) ReadResponseHeaders(forMethod string) (*http.Response, error) {
	resp, err := http.ReadResponse(c.br, &http.Request{Method: forMethod})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTP1Codec) ResponseBodyReader(resp *http.Response, forMethod string) io.ReadCloser {
	if forMethod == "HEAD" || resp.StatusCode == 204 || resp.StatusCode == 205 {
		return io.NopCloser(bytes.NewReader(nil))
	}
	// http.ReadResponse already leaves resp.Body framed correctly for
	// Content-Length, chunked, and close-delimited bodies.
	return resp.Body
}

func readStatusLine(br *bufio.Reader) (string, error) {
	tp := textproto.NewReader(br)
	return tp.ReadLine()
}

func parseStatusLine(line string) (code int, reason string) {
	var proto string
	n, _ := fmt.Sscanf(line, "%s %d", &proto, &code)
	if n < 2 {
		return 0, ""
	}
	if idx := indexNth(line, ' ', 2); idx >= 0 && idx+1 <= len(line) {
		reason = line[idx+1:]
	}
	return code, reason
}

func indexNth(s string, sep byte, n int) int {
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			count++
			if count == n {
				return i
			}
		}
	}
	return -1
}

// chunkedOrFixedWriter streams a request body either as a fixed number
// of raw bytes or as HTTP chunked transfer-encoding, flushing each
// Write as its own chunk (spec §4.7: "if chunked, flush each chunk").
type chunkedOrFixedWriter struct {
	bw        *bufio.Writer
	chunked   bool
	remaining int64
}

func (w *chunkedOrFixedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.chunked {
		if _, err := fmt.Fprintf(w.bw, "%x\r\n", len(p)); err != nil {
			return 0, err
		}
		if _, err := w.bw.Write(p); err != nil {
			return 0, err
		}
		if _, err := w.bw.WriteString("\r\n"); err != nil {
			return 0, err
		}
		return len(p), w.bw.Flush()
	}
	n, err := w.bw.Write(p)
	if err != nil {
		return n, err
	}
	w.remaining -= int64(n)
	return n, w.bw.Flush()
}

func (w *chunkedOrFixedWriter) Close() error { return nil }
