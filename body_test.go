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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBodyIsReplayable(t *testing.T) {
	b := NewByteBody("text/plain", []byte("hello"))
	assert.True(t, b.CanReplay())
	assert.Equal(t, int64(5), b.ContentLength())

	var buf1, buf2 bytes.Buffer
	require.NoError(t, b.WriteTo(&buf1))
	require.NoError(t, b.WriteTo(&buf2))
	assert.Equal(t, "hello", buf1.String())
	assert.Equal(t, "hello", buf2.String())
}

func TestStreamBodyIsNotReplayable(t *testing.T) {
	b := NewStreamBody("text/plain", -1, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewBufferString("hi")), nil
	})
	assert.False(t, b.CanReplay())

	var buf bytes.Buffer
	require.NoError(t, b.WriteTo(&buf))
	assert.Equal(t, "hi", buf.String())

	err := b.WriteTo(&buf)
	require.Error(t, err, "a one-shot stream body must reject a second write")
}

func TestReplayableStreamBodyReopensEachTime(t *testing.T) {
	calls := 0
	b := NewReplayableStreamBody("text/plain", -1, func() (io.ReadCloser, error) {
		calls++
		return io.NopCloser(bytes.NewBufferString("hi")), nil
	})
	assert.True(t, b.CanReplay())

	var buf bytes.Buffer
	require.NoError(t, b.WriteTo(&buf))
	require.NoError(t, b.WriteTo(&buf))
	assert.Equal(t, 2, calls)
}

func TestResponseBodyBytesClosesUnderlyingReader(t *testing.T) {
	rc := &trackedCloser{Reader: bytes.NewBufferString("payload")}
	rb := NewResponseBody("text/plain", 7, rc)

	data, err := rb.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.True(t, rc.closed)
}

func TestResponseBodyCloseIsIdempotent(t *testing.T) {
	rc := &trackedCloser{Reader: bytes.NewBufferString("x")}
	rb := NewResponseBody("text/plain", 1, rc)
	require.NoError(t, rb.Close())
	require.NoError(t, rb.Close())
	assert.Equal(t, 1, rc.closeCount)
}

func TestEmptyResponseBodyReadsNothing(t *testing.T) {
	rb := emptyResponseBody()
	data, err := rb.Bytes()
	require.NoError(t, err)
	assert.Empty(t, data)
}

type trackedCloser struct {
	Reader     *bytes.Buffer
	closed     bool
	closeCount int
}

func (t *trackedCloser) Read(p []byte) (int, error) { return t.Reader.Read(p) }
func (t *trackedCloser) Close() error {
	t.closed = true
	t.closeCount++
	return nil
}
