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
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/caddyserver/httpengine/cachestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheServesFreshResponseWithoutHittingNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write([]byte("cacheable"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Cache = cachestore.NewMemoryStore()
	client := newTestClient(t, cfg)

	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	resp1, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	body1, err := resp1.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "cacheable", body1)

	req2, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)
	resp2, err := client.NewCall(req2).Execute()
	require.NoError(t, err)
	body2, err := resp2.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "cacheable", body2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second request must be served from cache")

	hitsCount, _, _ := client.CacheStats().Snapshot()
	assert.Equal(t, int64(1), hitsCount)
}

func TestPlainNetworkResponseCarriesNetworkResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	defer resp.Body().Close()

	assert.Equal(t, 200, resp.StatusCode())
	require.NotNil(t, resp.NetworkResponse(), "a response that reached the network must carry its networkResponse")
	assert.Nil(t, resp.CacheResponse())
}

func TestCacheDoesNotServeNoCacheStoredResponseWithoutRevalidation(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n > 1 {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "no-cache, max-age=3600")
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Cache = cachestore.NewMemoryStore()
	client := newTestClient(t, cfg)

	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)
	resp1, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	resp1.Body().Close()

	req2, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)
	resp2, err := client.NewCall(req2).Execute()
	require.NoError(t, err)
	resp2.Body().Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests),
		"a stored response with Cache-Control: no-cache must always be revalidated, even within max-age")
}

func TestCacheRevalidatesWithConditionalRequestOnStaleEntry(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n > 1 {
			assert.NotEmpty(t, r.Header.Get("If-None-Match"), "revalidation must send the stored validator")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Cache = cachestore.NewMemoryStore()
	client := newTestClient(t, cfg)

	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)
	resp1, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	resp1.Body().Close()

	req2, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)
	resp2, err := client.NewCall(req2).Execute()
	require.NoError(t, err)
	body2, err := resp2.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "body", body2, "a 304 revalidation must merge back onto the stored body")

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestBridgeTransparentlyDecodesGzipResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("decompressed"))
		gz.Close()
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	defer resp.Body().Close()

	body, err := resp.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "decompressed", body)
	assert.Empty(t, resp.Header("Content-Encoding"), "Content-Encoding must be stripped once the body is decoded")
}

func TestBridgeLeavesExplicitAcceptEncodingAlone(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("raw"))
	gz.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "identity", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL).Get().Header("Accept-Encoding", "identity").Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	defer resp.Body().Close()

	assert.Equal(t, "gzip", resp.Header("Content-Encoding"), "a caller-set Accept-Encoding disables transparent decoding")
}
