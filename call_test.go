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
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.EventListenerFactory = NoopEventListenerFactory()
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCallExecuteBasicGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Served", "1")
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
	assert.Equal(t, "1", resp.Header("X-Served"))
	body, err := resp.Body().String()
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
}

func TestCallExecuteTwiceFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	call := client.NewCall(req)
	resp, err := call.Execute()
	require.NoError(t, err)
	resp.Body().Close()

	_, err = call.Execute()
	require.Error(t, err)
}

func TestCallCloneAllowsReExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	call := client.NewCall(req)
	resp, err := call.Execute()
	require.NoError(t, err)
	resp.Body().Close()

	clone := call.Clone()
	assert.False(t, clone.IsExecuted())
	resp2, err := clone.Execute()
	require.NoError(t, err)
	resp2.Body().Close()
}

func TestCallRedirectChainFollowsAndTracksPriorResponse(t *testing.T) {
	var finalPath = "/final"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/mid", http.StatusFound)
		case "/mid":
			http.Redirect(w, r, finalPath, http.StatusFound)
		case finalPath:
			w.Write([]byte("done"))
		}
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL + "/start").Get().Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	defer resp.Body().Close()

	assert.Equal(t, 200, resp.StatusCode())
	require.NotNil(t, resp.PriorResponse())
	assert.Equal(t, 302, resp.PriorResponse().StatusCode())
	require.NotNil(t, resp.PriorResponse().PriorResponse())
	assert.Nil(t, resp.PriorResponse().Body(), "prior responses never carry a body")
}

func TestCallRedirectDowngradesPostOn302(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/post" {
			http.Redirect(w, r, "/landed", http.StatusFound)
			return
		}
		gotMethod = r.Method
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL + "/post").Post(NewByteBody("text/plain", []byte("x"))).Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	resp.Body().Close()

	assert.Equal(t, "GET", gotMethod)
}

func TestCallRedirectDowngradesPutOn301(t *testing.T) {
	var gotMethod string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/put" {
			http.Redirect(w, r, "/landed", http.StatusMovedPermanently)
			return
		}
		gotMethod = r.Method
		buf := make([]byte, 16)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL + "/put").Put(NewByteBody("text/plain", []byte("x"))).Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	resp.Body().Close()

	assert.Equal(t, "GET", gotMethod, "301 must coerce any non-GET/HEAD method to GET")
	assert.Empty(t, gotBody, "301 must drop the body along with the method downgrade")
}

func TestCallRedirectCoercesGetOn300(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/choices" {
			http.Redirect(w, r, "/landed", http.StatusMultipleChoices)
			return
		}
		gotMethod = r.Method
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL + "/choices").Patch(NewByteBody("text/plain", []byte("x"))).Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	resp.Body().Close()

	assert.Equal(t, "GET", gotMethod, "300 must coerce a non-GET/HEAD method to GET per spec")
}

func TestCallRedirectPreservesMethodAndBodyOn307(t *testing.T) {
	var gotMethod string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/put" {
			http.Redirect(w, r, "/landed", http.StatusTemporaryRedirect)
			return
		}
		gotMethod = r.Method
		buf := make([]byte, 16)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	defer srv.Close()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL + "/put").Put(NewByteBody("text/plain", []byte("x"))).Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	resp.Body().Close()

	assert.Equal(t, "PUT", gotMethod, "307 must preserve the original method")
	assert.Equal(t, "x", gotBody, "307 must preserve the original body")
}

func TestCallDoesNotFollowRedirectsWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.FollowRedirects = false
	client := newTestClient(t, cfg)
	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	resp, err := client.NewCall(req).Execute()
	require.NoError(t, err)
	defer resp.Body().Close()
	assert.Equal(t, 302, resp.StatusCode())
	assert.Nil(t, resp.PriorResponse())
}

func TestCallCancellationDuringExecuteReturnsCanceledError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("late"))
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	client := newTestClient(t, DefaultConfig())
	req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
	require.NoError(t, err)

	call := client.NewCall(req)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := call.Execute()
		require.Error(t, err)
		assert.True(t, IsCanceled(err))
	}()

	time.Sleep(20 * time.Millisecond)
	call.Cancel()
	<-done
}

func TestDispatcherEnforcesMaxRequestsPerHost(t *testing.T) {
	const perHost = 2
	release := make(chan struct{})
	var mu sync.Mutex
	current, peak := 0, 0
	track := func(delta int) {
		mu.Lock()
		defer mu.Unlock()
		current += delta
		if current > peak {
			peak = current
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		track(1)
		<-release
		track(-1)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxRequests = 10
	cfg.MaxRequestsPerHost = perHost
	client := newTestClient(t, cfg)

	const total = 6
	results := make(chan error, total)
	for i := 0; i < total; i++ {
		req, err := NewRequestBuilder().URL(srv.URL).Get().Build()
		require.NoError(t, err)
		client.NewCall(req).Enqueue(CallbackFuncs{
			OnResponseFunc: func(call *Call, resp *Response) {
				resp.Body().Close()
				results <- nil
			},
			OnFailureFunc: func(call *Call, err error) { results <- err },
		})
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, client.Dispatcher().RunningCountForHost("127.0.0.1"), perHost)

	close(release)
	for i := 0; i < total; i++ {
		require.NoError(t, <-results)
	}
	assert.LessOrEqual(t, peak, perHost, "dispatcher must never run more than maxRequestsPerHost concurrent calls to one host")
}
