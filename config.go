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
	"crypto/tls"
	"net/url"
	"time"

	"github.com/caddyserver/httpengine/cachestore"
	"github.com/caddyserver/httpengine/cookiejar"
	"github.com/caddyserver/httpengine/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Authenticator produces a follow-up request in response to a 401/407
// challenge, or (nil, nil) if it has no credentials to offer (spec
// §4.3, SPEC_FULL "Authenticator interface").
type Authenticator interface {
	Authenticate(route transport.Route, resp *Response) (*Request, error)
}

// AuthenticatorFunc adapts a function to an Authenticator.
type AuthenticatorFunc func(route transport.Route, resp *Response) (*Request, error)

func (f AuthenticatorFunc) Authenticate(route transport.Route, resp *Response) (*Request, error) {
	return f(route, resp)
}

// Proxy selects a proxy URL for a request, or returns nil for a direct
// connection (spec §6 "proxy, proxySelector"). The selected proxy's host
// is recorded on the Route and so in the pool key; the connection itself
// is always dialed to the origin host, not through the proxy.
type Proxy func(req *Request) (*url.URL, error)

// NoProxy always connects directly.
func NoProxy(*Request) (*url.URL, error) { return nil, nil }

// Config enumerates the recognized client options from spec §6. It is
// a plain struct, not a fluent builder with inheritance (Design Note 1):
// validation happens once, in NewClient. FollowRedirects and
// RetryOnConnectionFailure have no zero-value-means-unset convention
// like the timeout and pool-size fields below: start from DefaultConfig
// and override fields rather than building a bare Config{} if you want
// either of them on.
type Config struct {
	Interceptors        []Interceptor
	NetworkInterceptors []Interceptor

	Dispatcher *Dispatcher

	Cache     cachestore.Store
	CookieJar cookiejar.Jar

	Authenticator      Authenticator
	ProxyAuthenticator Authenticator

	FollowRedirects          bool
	FollowSslRedirects       bool
	RetryOnConnectionFailure bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Protocols []string // e.g. "http/1.1"; HTTP/2 selection is an external transport concern

	TLSClientConfig *tls.Config

	Proxy Proxy
	Dns   transport.Dns

	EventListenerFactory EventListenerFactory

	MaxIdleConnectionsPerHost int
	IdleConnectionTimeout     time.Duration
	MaxRequests               int
	MaxRequestsPerHost        int

	Logger *zap.Logger
}

// DefaultConfig returns the engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		FollowRedirects:           true,
		FollowSslRedirects:        false,
		RetryOnConnectionFailure:  true,
		ConnectTimeout:            10 * time.Second,
		ReadTimeout:               10 * time.Second,
		WriteTimeout:              10 * time.Second,
		Protocols:                 []string{"http/1.1"},
		Proxy:                     NoProxy,
		Dns:                       transport.SystemDns{},
		MaxIdleConnectionsPerHost: 5,
		IdleConnectionTimeout:     5 * time.Minute,
		MaxRequests:               64,
		MaxRequestsPerHost:        5,
		EventListenerFactory:      NewTracingEventListenerFactory(),
	}
}

// Client binds a validated Config to the interceptor pipeline and the
// collaborators (pool, cache, jar) it assembles from that config. It is
// the type application code calls NewCall on.
type Client struct {
	cfg  Config
	pool *transport.Pool
	log  *zap.Logger

	interceptors []Interceptor
	cacheStats   *CacheStats
	gauges       *dispatcherGauges
}

// NewClient validates cfg, fills in defaults for zero-valued fields, and
// returns a ready-to-use Client.
func NewClient(cfg Config) (*Client, error) {
	d := DefaultConfig()
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = d.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if len(cfg.Protocols) == 0 {
		cfg.Protocols = d.Protocols
	}
	if cfg.Proxy == nil {
		cfg.Proxy = d.Proxy
	}
	if cfg.Dns == nil {
		cfg.Dns = d.Dns
	}
	if cfg.MaxIdleConnectionsPerHost == 0 {
		cfg.MaxIdleConnectionsPerHost = d.MaxIdleConnectionsPerHost
	}
	if cfg.IdleConnectionTimeout == 0 {
		cfg.IdleConnectionTimeout = d.IdleConnectionTimeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = d.MaxRequests
	}
	if cfg.MaxRequestsPerHost == 0 {
		cfg.MaxRequestsPerHost = d.MaxRequestsPerHost
	}
	if cfg.EventListenerFactory == nil {
		cfg.EventListenerFactory = d.EventListenerFactory
	}
	if cfg.CookieJar == nil {
		cfg.CookieJar = cookiejar.NewMemoryJar()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher(cfg.MaxRequests, cfg.MaxRequestsPerHost)
	}

	pool := transport.NewPool(cfg.MaxIdleConnectionsPerHost, cfg.IdleConnectionTimeout)
	pool.Dialer = transport.NewDnsDialer(cfg.Dns, nil)
	pool.TLSClientConfig = cfg.TLSClientConfig

	c := &Client{cfg: cfg, pool: pool, log: loggerOrDefault(cfg.Logger)}
	if cfg.Cache != nil {
		c.cacheStats = newCacheStats()
	}
	c.gauges = newDispatcherGauges(cfg.Dispatcher)
	c.interceptors = c.assemblePipeline()
	return c, nil
}

// CacheStats returns the cache hit/network/conditional counters, or nil
// if this client was built without a Cache.
func (c *Client) CacheStats() *CacheStats { return c.cacheStats }

// MetricsCollectors returns every prometheus.Collector this client
// maintains (cache stats, dispatcher gauges), ready for registration
// into an application's registry.
func (c *Client) MetricsCollectors() []prometheus.Collector {
	var out []prometheus.Collector
	if c.cacheStats != nil {
		out = append(out, c.cacheStats.Collectors()...)
	}
	out = append(out, c.gauges.Collectors()...)
	return out
}

// assemblePipeline builds the fixed interceptor order from spec §4.2:
// application interceptors, RetryAndFollowUp, Bridge, Cache, Connect,
// network interceptors (skipped for WebSocket calls — this engine never
// sets forWebSocket, so none are skipped here), CallServer.
func (c *Client) assemblePipeline() []Interceptor {
	chain := make([]Interceptor, 0, len(c.cfg.Interceptors)+len(c.cfg.NetworkInterceptors)+5)
	chain = append(chain, c.cfg.Interceptors...)
	chain = append(chain, &retryAndFollowUpInterceptor{client: c})
	chain = append(chain, &bridgeInterceptor{client: c})
	if c.cfg.Cache != nil {
		chain = append(chain, &cacheInterceptor{client: c, stats: c.cacheStats})
	}
	chain = append(chain, &connectInterceptor{client: c})
	chain = append(chain, c.cfg.NetworkInterceptors...)
	chain = append(chain, &callServerInterceptor{client: c})
	return chain
}

// Close releases the client's pooled connections.
func (c *Client) Close() error { return c.pool.Close() }

// NewCall returns a one-shot Call binding this client to req, per spec
// §4.8.
func (c *Client) NewCall(req *Request) *Call {
	return newCall(c, req, false)
}

// Dispatcher returns the client's Dispatcher.
func (c *Client) Dispatcher() *Dispatcher { return c.cfg.Dispatcher }
