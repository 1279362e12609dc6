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
	"net/http"
	"time"

	"github.com/caddyserver/httpengine/cachestore"
)

// cacheInterceptor implements the Cache interceptor (spec §4.5): serves
// a fresh stored response without touching the network, revalidates a
// stale one with a conditional request, and stores cacheable responses
// for next time. Grounded on RFC 7234's freshness/validation model, the
// way caddy's own handlers lean on documented RFCs for header semantics
// rather than inventing their own (caddyhttp/reverseproxy/*).
type cacheInterceptor struct {
	client *Client
	stats  *CacheStats
}

func (ci *cacheInterceptor) Intercept(chain *Chain) (*Response, error) {
	store := ci.client.cfg.Cache
	req := chain.Request()
	cacheable := req.Method() == "GET" && store != nil

	var key string
	var candidate *Response
	if cacheable {
		key = cachestore.Key(req.Method(), req.URL().String(), nil)
		if entry, ok, err := store.Get(key); err == nil && ok && varyMatches(entry, req) {
			candidate = responseFromEntry(req, entry)
		}
	}

	strategy := computeCacheStrategy(req, candidate, time.Now())
	stats := ci.stats

	if strategy.networkRequest == nil && strategy.cacheResponse == nil {
		resp, err := NewResponseBuilder().
			Request(req).
			StatusCode(504).
			Status("504 Unsatisfiable Request (only-if-cached)").
			Body(emptyResponseBody()).
			Build()
		return resp, err
	}

	if strategy.networkRequest == nil {
		stats.trackResponse(false, false)
		resp, err := strategy.cacheResponse.NewBuilder().CacheResponse(strategy.cacheResponse).Build()
		return resp, err
	}

	rawNetworkResponse, err := chain.Proceed(strategy.networkRequest)
	if err != nil {
		return nil, err
	}
	stats.trackResponse(true, strategy.cacheResponse != nil)

	if rawNetworkResponse.StatusCode() == 304 && strategy.cacheResponse != nil {
		merged := mergeHeaders(strategy.cacheResponse, rawNetworkResponse)
		rawNetworkResponse.Body().Close()
		resp, err := merged.NewBuilder().
			NetworkResponse(rawNetworkResponse).
			CacheResponse(strategy.cacheResponse).
			Build()
		if err == nil && cacheable {
			ci.store(store, key, req, resp)
		}
		return resp, err
	}

	// Every response that reached the network, not just the 304 merge
	// above, must carry its own networkResponse per spec §8 scenario 1 —
	// mirrors OkHttp's CacheInterceptor wrapping the raw network
	// response before handing it back up the chain.
	networkResponse, err := rawNetworkResponse.NewBuilder().NetworkResponse(rawNetworkResponse).Build()
	if err != nil {
		return nil, err
	}

	if cacheable {
		reqCC := req.CacheControl()
		respCC := networkResponse.CacheControl()
		if isStorableStatus(networkResponse.StatusCode()) && !respCC.NoStore && !reqCC.NoStore {
			ci.store(store, key, req, networkResponse)
		} else {
			_ = store.Remove(key)
		}
	}

	return networkResponse, nil
}

func (ci *cacheInterceptor) store(store cachestore.Store, key string, req *Request, resp *Response) {
	body, err := resp.Body().Bytes()
	if err != nil {
		return
	}
	// resp.Body is one-shot; replace it with a fresh reader over the
	// bytes we just captured so callers downstream still see content.
	resp.body = NewResponseBody(resp.body.ContentType(), int64(len(body)), io.NopCloser(bytes.NewReader(body)))

	editor, err := store.Edit(key)
	if err != nil {
		return
	}
	entry := &cachestore.Entry{
		RequestURL:    req.URL().String(),
		RequestMethod: req.Method(),
		VaryHeaders:   varySnapshot(resp.Headers(), req.Headers()),
		StatusCode:    resp.StatusCode(),
		Status:        resp.Status(),
		Proto:         resp.Proto(),
		Headers:       headersToMap(resp.Headers()),
		Body:          body,
		ServedAt:      dateOrNow(resp.Headers(), resp.ReceivedAt()),
		FetchedAt:     resp.ReceivedAt(),
		RequestAt:     resp.SentAt(),
	}
	if err := editor.Commit(entry); err != nil {
		editor.Abort()
	}
}

// cacheStrategy is the decision CacheInterceptor reaches for one
// request: which request (if any) to send to the network, and which
// stored response (if any) backs a hit or a conditional revalidation.
type cacheStrategy struct {
	networkRequest *Request
	cacheResponse  *Response
}

func computeCacheStrategy(req *Request, cached *Response, now time.Time) cacheStrategy {
	reqCC := req.CacheControl()

	if cached == nil {
		if reqCC.OnlyIfCached {
			return cacheStrategy{}
		}
		return cacheStrategy{networkRequest: req}
	}

	respCC := cached.CacheControl()
	if reqCC.NoStore || respCC.NoStore {
		return cacheStrategy{networkRequest: req}
	}

	servedAt := dateOrNow(cached.Headers(), cached.ReceivedAt())
	age := computeAge(cached, now)
	lifetime, _ := computeFreshnessLifetime(cached.Headers(), respCC, servedAt)

	if reqCC.HasMaxAge() && age > reqCC.MaxAge {
		lifetime = 0
	}
	if reqCC.HasMinFresh() && lifetime-age < reqCC.MinFresh {
		lifetime = age // force staleness
	}

	fresh := age < lifetime
	if !fresh && reqCC.HasMaxStale() && !respCC.MustRevalidate {
		fresh = age-lifetime < reqCC.MaxStale
	}
	if !reqCC.NoCache && !respCC.NoCache && fresh {
		return cacheStrategy{cacheResponse: cached}
	}
	if reqCC.OnlyIfCached {
		return cacheStrategy{}
	}

	// stale (or explicitly no-cache): revalidate conditionally if the
	// stored response carries a validator, otherwise fall back to a
	// plain network request.
	conditional := req.NewBuilder()
	hasValidator := false
	if etag := cached.Header("ETag"); etag != "" {
		conditional.Header("If-None-Match", etag)
		hasValidator = true
	}
	if lm := cached.Header("Last-Modified"); lm != "" {
		conditional.Header("If-Modified-Since", lm)
		hasValidator = true
	} else if d := cached.Header("Date"); d != "" {
		conditional.Header("If-Modified-Since", d)
		hasValidator = true
	}
	netReq, err := conditional.Build()
	if err != nil || !hasValidator {
		return cacheStrategy{networkRequest: req, cacheResponse: cached}
	}
	return cacheStrategy{networkRequest: netReq, cacheResponse: cached}
}

func computeFreshnessLifetime(h Headers, respCC CacheControl, servedAt time.Time) (time.Duration, bool) {
	if respCC.HasMaxAge() {
		return respCC.MaxAge, true
	}
	if exp := h.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			return t.Sub(servedAt), true
		}
		return 0, true // unparsable Expires: already expired
	}
	if lm := h.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			age := servedAt.Sub(t)
			if age > 0 {
				heuristic := age / 10
				const cap = 24 * time.Hour
				if heuristic > cap {
					heuristic = cap
				}
				return heuristic, false
			}
		}
	}
	return 0, false
}

func computeAge(cached *Response, now time.Time) time.Duration {
	servedAt := dateOrNow(cached.Headers(), cached.ReceivedAt())
	apparentAge := now.Sub(servedAt)
	if apparentAge < 0 {
		apparentAge = 0
	}
	return apparentAge
}

func dateOrNow(h Headers, fallback time.Time) time.Time {
	if d := h.Get("Date"); d != "" {
		if t, err := http.ParseTime(d); err == nil {
			return t
		}
	}
	return fallback
}

// isStorableStatus reports whether statusCode is cacheable by default
// per RFC 7231 §6.1, absent any explicit freshness information.
func isStorableStatus(statusCode int) bool {
	switch statusCode {
	case 200, 203, 204, 300, 301, 404, 405, 410, 414, 501, 308:
		return true
	}
	return false
}

// mergeHeaders implements RFC 7234 §4.3.4 as spec §4.5 enumerates it: on
// a 304, the stored response's headers are updated with every header
// present in the 304 except the ones spec §4.5 calls out as "not to be
// updated" (they describe the cached entity body, not this exchange)
// and the hop-by-hop ones the conditional exchange itself produced.
func mergeHeaders(cached, fresh *Response) *Response {
	notUpdated := map[string]bool{
		"Content-Length": true, "Content-Encoding": true, "Transfer-Encoding": true,
		"Content-Range": true, "Trailer": true, "Vary": true,
		"Connection": true, "Proxy-Connection": true, "Keep-Alive": true, "Upgrade": true,
	}

	rb := cached.NewBuilder()
	replaced := make(map[string]bool)
	for i := 0; i < fresh.Headers().Len(); i++ {
		name := fresh.Headers().Name(i)
		if notUpdated[name] {
			continue
		}
		if !replaced[name] {
			rb.RemoveHeader(name)
			replaced[name] = true
		}
		rb.AddHeader(name, fresh.Headers().Value(i))
	}
	merged, _ := rb.Build()
	return merged
}

func varySnapshot(respHeaders, reqHeaders Headers) map[string][]string {
	names := respHeaders.Values("Vary")
	if len(names) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, n := range names {
		out[n] = reqHeaders.Values(n)
	}
	return out
}

func varyMatches(entry *cachestore.Entry, req *Request) bool {
	for name, values := range entry.VaryHeaders {
		current := req.Headers().Values(name)
		if !stringSlicesEqual(current, values) {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func headersToMap(h Headers) map[string][]string {
	out := make(map[string][]string)
	for i := 0; i < h.Len(); i++ {
		out[h.Name(i)] = append(out[h.Name(i)], h.Value(i))
	}
	return out
}

func responseFromEntry(req *Request, e *cachestore.Entry) *Response {
	rb := NewResponseBuilder().
		Request(req).
		StatusCode(e.StatusCode).
		Status(e.Status).
		Proto(e.Proto).
		SentAt(e.RequestAt).
		ReceivedAt(e.FetchedAt).
		Body(NewResponseBody(firstOf(e.Headers["Content-Type"]), int64(len(e.Body)), io.NopCloser(bytes.NewReader(e.Body))))
	for name, values := range e.Headers {
		for _, v := range values {
			rb.AddHeader(name, v)
		}
	}
	resp, _ := rb.Build()
	return resp
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
