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

	"github.com/caddyserver/httpengine/transport"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// connectionRetryBackoff bounds the pause between a failed connection
// attempt and its retry, so a flapping listener doesn't get hammered in
// a tight loop (spec §4.3 leaves the pacing unspecified; this mirrors
// the backoff/v4 usage pattern other clients in the ecosystem use for
// the same purpose).
func connectionRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = time.Second
	return b
}

// maxFollowUps bounds the redirect/auth/retry chain for one Call, per
// spec §4.3's "at most 20 follow-ups."
const maxFollowUps = 20

// maxConnectionFailureRetries bounds how many times one attempt may be
// retried purely because the connection attempt itself failed (as
// opposed to a follow-up driven by the response), per spec §4.3's
// "retry-on-connection-failure" policy.
const maxConnectionFailureRetries = 1

// retryAndFollowUpInterceptor implements the RetryAndFollowUp
// interceptor (spec §4.3): owns the StreamAllocation for the whole call,
// retries recoverable connection failures, and drives the follow-up
// policy for authentication challenges and redirects.
type retryAndFollowUpInterceptor struct {
	client *Client
}

func (r *retryAndFollowUpInterceptor) Intercept(chain *Chain) (*Response, error) {
	sa := transport.NewStreamAllocation(r.client.pool)

	resp, err := r.proceed(chain, chain.Request(), sa, 0, 0, 0, nil)
	if err != nil {
		// on success the connection stays held until the response body is
		// closed (releasingBody); on failure release it here.
		sa.Release()
		if chain.Call().real.isCanceled() {
			return nil, newCanceledError()
		}
	}
	return resp, err
}

// proceed drives one attempt (and, recursively, any follow-ups) through
// the remainder of the interceptor chain. prevStatus is the status code
// of the response that produced req as a follow-up (0 for the original
// request), used to stop a 408, 503 or 421 from being retried twice in a
// row. prior is that response, attached as the new response's
// PriorResponse so the chain runs from the most recent hop backwards.
func (r *retryAndFollowUpInterceptor) proceed(chain *Chain, req *Request, sa *transport.StreamAllocation, followUpCount, connectFailures, prevStatus int, prior *Response) (*Response, error) {
	if chain.Call().real.isCanceled() {
		return nil, newCanceledError()
	}

	hop := chain.restart(sa)
	resp, err := hop.Proceed(req)
	if err != nil {
		if recovered, ok := r.recoverableRequest(req, err, connectFailures); ok {
			r.client.log.Debug("retrying after connection failure", zap.Error(err))
			// the held connection (if any) is suspect; release it so the
			// next attempt dials fresh rather than reusing it blindly.
			sa.Release()
			time.Sleep(connectionRetryBackoff().NextBackOff())
			return r.proceed(chain, recovered, sa, followUpCount, connectFailures+1, prevStatus, prior)
		}
		return nil, err
	}
	if prior != nil {
		if resp, err = resp.NewBuilder().PriorResponse(prior).Build(); err != nil {
			return nil, err
		}
	}

	followUp, err := r.followUpRequest(req, resp, sa, prevStatus)
	if err != nil {
		resp.Body().Close()
		return nil, err
	}
	if followUp == nil {
		return resp, nil
	}

	if followUpCount >= maxFollowUps {
		resp.Body().Close()
		return nil, newProtocolError("too many follow-up requests", nil)
	}
	status := resp.StatusCode()
	resp.Body().Close()

	return r.proceed(chain, followUp, sa, followUpCount+1, 0, status, resp)
}

// recoverableRequest decides whether a connection-level failure should
// be retried with the same request (spec §4.3: retry on connection
// failure iff the client allows it, the failure wasn't a fatal TLS
// handshake failure, and the request body — if any — can be replayed).
func (r *retryAndFollowUpInterceptor) recoverableRequest(req *Request, err error, connectFailures int) (*Request, bool) {
	if connectFailures >= maxConnectionFailureRetries {
		return nil, false
	}
	if !r.client.cfg.RetryOnConnectionFailure {
		return nil, false
	}
	if _, fatal := err.(*transport.HandshakeError); fatal {
		return nil, false
	}
	if req.HasBody() && !req.Body().CanReplay() {
		return nil, false
	}
	return req, true
}

// followUpRequest implements spec §4.3's follow-up policy: 401/407
// authentication challenges, 3xx redirects, and 408/503/421 retries.
// Returns (nil, nil) when resp should simply be returned to the caller.
func (r *retryAndFollowUpInterceptor) followUpRequest(req *Request, resp *Response, sa *transport.StreamAllocation, prevStatus int) (*Request, error) {
	switch resp.StatusCode() {
	case 401:
		if r.client.cfg.Authenticator == nil {
			return nil, nil
		}
		route, err := routeFor(r.client, req)
		if err != nil {
			return nil, err
		}
		return r.client.cfg.Authenticator.Authenticate(route, resp)

	case 407:
		if r.client.cfg.ProxyAuthenticator == nil {
			return nil, nil
		}
		route, err := routeFor(r.client, req)
		if err != nil {
			return nil, err
		}
		return r.client.cfg.ProxyAuthenticator.Authenticate(route, resp)

	case 300, 301, 302, 303, 307, 308:
		return r.redirectRequest(req, resp)

	case 408:
		if prevStatus == 408 {
			return nil, nil // already retried once for a timeout; don't loop
		}
		if !r.client.cfg.RetryOnConnectionFailure || !idempotentRetry(req) {
			return nil, nil
		}
		return req, nil

	case 503:
		// retry once, and only when the server asks for an immediate
		// retry (Retry-After: 0); any other 503 goes to the caller.
		if prevStatus == 503 || resp.Header("Retry-After") != "0" {
			return nil, nil
		}
		if !idempotentRetry(req) {
			return nil, nil
		}
		return req, nil

	case 421:
		// Misdirected Request: the connection was reused for an origin
		// it doesn't actually serve. Force a fresh connection and retry
		// the same request once.
		if prevStatus == 421 {
			return nil, nil
		}
		if conn := sa.Connection(); conn != nil {
			conn.MarkNonReusable()
		}
		sa.Release()
		return req, nil

	default:
		return nil, nil
	}
}

// idempotentRetry reports whether req is safe to resend verbatim: GET
// and HEAD always are; other methods only if the body (if any) can be
// replayed, mirroring the replay rule used for connection-failure retries.
func idempotentRetry(req *Request) bool {
	switch req.Method() {
	case "GET", "HEAD":
		return true
	}
	return !req.HasBody() || req.Body().CanReplay()
}

// redirectRequest builds the follow-up request for a 3xx response, per
// spec §4.3: requires Location, honors FollowRedirects/FollowSslRedirects,
// coerces to GET and drops the body for 300/301/302/303 (preserving
// method and body for 307/308), and strips Authorization when the
// redirect crosses to a different host.
func (r *retryAndFollowUpInterceptor) redirectRequest(req *Request, resp *Response) (*Request, error) {
	if !r.client.cfg.FollowRedirects {
		return nil, nil
	}
	location := resp.Header("Location")
	if location == "" {
		return nil, nil
	}
	target, err := req.URL().Parse(location)
	if err != nil {
		return nil, nil // malformed Location: surface the redirect response as-is
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, nil
	}
	if req.URL().Scheme == "https" && target.Scheme == "http" && !r.client.cfg.FollowSslRedirects {
		return nil, nil
	}

	method := req.Method()
	body := req.Body()
	switch resp.StatusCode() {
	case 300, 301, 302, 303:
		if method != "GET" && method != "HEAD" {
			method = "GET"
			body = nil
		}
	// 307, 308 preserve method and body.
	default:
	}
	if body != nil && !body.CanReplay() {
		return nil, nil // can't replay a one-shot body across hosts/methods
	}

	b := req.NewBuilder().SetURL(target).Method(method, body)
	if !sameHost(req.URL(), target) {
		b.RemoveHeader("Authorization")
	}
	return b.Build()
}
