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
	"bytes"
	"io"
)

// RequestBody is an outgoing request payload. ContentLength is -1 for
// unknown (chunked) length. A RequestBody is written at most once per
// network attempt, but may be re-opened across retries/redirects iff
// CanReplay reports true (Design Note "Request body re-transmission").
type RequestBody interface {
	ContentType() string
	ContentLength() int64
	// CanReplay reports whether WriteTo can be called again after a
	// prior call. Streaming sinks that consume an external resource
	// (a file already read past, a one-shot io.Reader) return false.
	CanReplay() bool
	WriteTo(w io.Writer) error
}

// byteBody is a RequestBody backed by an in-memory byte slice; always
// replayable.
type byteBody struct {
	contentType string
	data        []byte
}

// NewByteBody returns a RequestBody backed by data, with known length.
func NewByteBody(contentType string, data []byte) RequestBody {
	return byteBody{contentType: contentType, data: data}
}

func (b byteBody) ContentType() string   { return b.contentType }
func (b byteBody) ContentLength() int64  { return int64(len(b.data)) }
func (b byteBody) CanReplay() bool       { return true }
func (b byteBody) WriteTo(w io.Writer) error {
	_, err := w.Write(b.data)
	return err
}

// streamBody is a RequestBody backed by a one-shot io.Reader of the
// given length (-1 if unknown); never replayable.
type streamBody struct {
	contentType string
	length      int64
	open        func() (io.ReadCloser, error)
	opened      bool
}

// NewStreamBody returns a one-shot RequestBody that opens its content
// lazily via open, which is called at most once: a second WriteTo
// fails. length is -1 if unknown. Streams opened via a function that
// can genuinely be re-invoked (e.g. re-opening a file) should use
// NewReplayableStreamBody instead.
func NewStreamBody(contentType string, length int64, open func() (io.ReadCloser, error)) RequestBody {
	return &streamBody{contentType: contentType, length: length, open: open}
}

func (b *streamBody) ContentType() string  { return b.contentType }
func (b *streamBody) ContentLength() int64 { return b.length }
func (b *streamBody) CanReplay() bool      { return false }
func (b *streamBody) WriteTo(w io.Writer) error {
	if b.opened {
		return newIllegalStateError("stream body already consumed")
	}
	b.opened = true
	rc, err := b.open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

// replayableStreamBody is like streamBody but CanReplay reports true,
// for sources that are cheap to re-open (e.g. os.Open on a path).
type replayableStreamBody struct {
	streamBody
}

// NewReplayableStreamBody is like NewStreamBody but marks the body as
// replayable: open will be invoked again on every attempt.
func NewReplayableStreamBody(contentType string, length int64, open func() (io.ReadCloser, error)) RequestBody {
	return &replayableStreamBody{streamBody{contentType: contentType, length: length, open: open}}
}

func (b *replayableStreamBody) CanReplay() bool { return true }
func (b *replayableStreamBody) WriteTo(w io.Writer) error {
	rc, err := b.open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

// emptyBody is the zero-length sentinel RequestBuilder.Delete uses when
// given a nil body, per spec §9 Open Question: emits Content-Length: 0
// rather than omitting the header.
var emptyBody RequestBody = byteBody{data: []byte{}}

// ResponseBody is a one-shot, closeable stream of response bytes,
// exposed to application code exactly once (spec §3).
type ResponseBody struct {
	contentType   string
	contentLength int64
	reader        io.ReadCloser
	closed        bool
}

// NewResponseBody wraps r as a ResponseBody; length is -1 if unknown.
func NewResponseBody(contentType string, length int64, r io.ReadCloser) *ResponseBody {
	return &ResponseBody{contentType: contentType, contentLength: length, reader: r}
}

// ContentType returns the declared content type, or "".
func (b *ResponseBody) ContentType() string { return b.contentType }

// ContentLength returns the declared length, or -1 if unknown.
func (b *ResponseBody) ContentLength() int64 { return b.contentLength }

// Read implements io.Reader.
func (b *ResponseBody) Read(p []byte) (int, error) {
	if b.reader == nil {
		return 0, io.EOF
	}
	return b.reader.Read(p)
}

// Close releases the underlying stream (and, transitively, the
// connection holding it — spec §4.7's "closure ultimately releases the
// connection back to the pool").
func (b *ResponseBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.reader == nil {
		return nil
	}
	return b.reader.Close()
}

// Bytes reads the entire body into memory and closes it. Convenience for
// small responses and tests.
func (b *ResponseBody) Bytes() ([]byte, error) {
	defer b.Close()
	var buf bytes.Buffer
	if b.reader != nil {
		if _, err := io.Copy(&buf, b.reader); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// String reads the entire body as a string. See Bytes.
func (b *ResponseBody) String() (string, error) {
	data, err := b.Bytes()
	return string(data), err
}

// emptyResponseBody returns a zero-length, already-satisfiable body —
// used for HEAD and 204/205 responses (spec §4.7).
func emptyResponseBody() *ResponseBody {
	return NewResponseBody("", 0, io.NopCloser(bytes.NewReader(nil)))
}
