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
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Dialer opens new connections. *net.Dialer satisfies this.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Pool is the connection pool spec.md places out of scope except at its
// interface to the core: externally synchronized, LRU eviction of idle
// keep-alive connections on a timer (spec §5). Concurrent Gets for the
// same Route wait on one in-flight dial via singleflight; one of them
// takes the resulting connection and each of the others dials its own.
type Pool struct {
	MaxIdlePerRoute int
	IdleTimeout     time.Duration
	Dialer          Dialer
	TLSClientConfig *tls.Config

	mu    sync.Mutex
	idle  map[string][]*Connection
	group singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPool returns a Pool with the given idle timeout and per-route cap.
// It starts a background goroutine that evicts idle connections past
// idleTimeout; call Close to stop it.
func NewPool(maxIdlePerRoute int, idleTimeout time.Duration) *Pool {
	p := &Pool{
		MaxIdlePerRoute: maxIdlePerRoute,
		IdleTimeout:     idleTimeout,
		Dialer:          &net.Dialer{},
		idle:            make(map[string][]*Connection),
		stop:            make(chan struct{}),
	}
	go p.evictLoop()
	return p
}

func (p *Pool) evictLoop() {
	interval := p.IdleTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.evictIdle()
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, conns := range p.idle {
		var keep []*Connection
		for _, c := range conns {
			if c.idleFor(p.IdleTimeout) {
				_ = c.Close()
				continue
			}
			keep = append(keep, c)
		}
		if len(keep) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = keep
		}
	}
}

// Close stops the eviction goroutine and closes all idle connections.
func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conns := range p.idle {
		for _, c := range conns {
			_ = c.Close()
		}
	}
	p.idle = make(map[string][]*Connection)
	return nil
}

// Get returns an idle connection for route if one is available,
// otherwise dials a fresh one (concurrent cold callers for a route wait
// on one singleflight dial; only one of them receives that connection).
func (p *Pool) Get(ctx context.Context, route Route) (*Connection, error) {
	if c := p.takeIdle(route); c != nil {
		return c, nil
	}

	_, err, _ := p.group.Do(route.Key()+":dial", func() (any, error) {
		conn, err := p.dial(ctx, route)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.idle[route.Key()] = append(p.idle[route.Key()], conn)
		p.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	// the shared dial's connection is parked in the idle set so exactly
	// one waiter takes it; a caller that loses the race dials its own.
	if c := p.takeIdle(route); c != nil {
		return c, nil
	}
	return p.dial(ctx, route)
}

func (p *Pool) dial(ctx context.Context, route Route) (*Connection, error) {
	addr := net.JoinHostPort(route.Host, route.Port)
	rawConn, err := p.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DialError{Route: route, Err: err}
	}
	if route.Scheme == "https" {
		cfg := p.TLSClientConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		cfg = cfg.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = route.Host
		}
		tlsConn := tls.Client(rawConn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = rawConn.Close()
			return nil, &HandshakeError{Route: route, Err: err}
		}
		rawConn = tlsConn
	}
	return newConnection(route, rawConn), nil
}

func (p *Pool) takeIdle(route Route) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns := p.idle[route.Key()]
	if len(conns) == 0 {
		return nil
	}
	// LRU: most-recently-idled at the end; take it so it's least
	// likely to have been quietly closed by the peer.
	c := conns[len(conns)-1]
	p.idle[route.Key()] = conns[:len(conns)-1]
	return c
}

// Put returns conn to the idle set if it is reusable and there is room,
// otherwise closes it.
func (p *Pool) Put(conn *Connection) {
	if conn == nil || !conn.Reusable() {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	conn.touchIdle()

	p.mu.Lock()
	defer p.mu.Unlock()
	key := conn.Route.Key()
	if len(p.idle[key]) >= p.MaxIdlePerRoute && p.MaxIdlePerRoute > 0 {
		_ = conn.Close()
		return
	}
	p.idle[key] = append(p.idle[key], conn)
}

// IdleCount returns the number of idle connections currently pooled for
// route, for tests and metrics.
func (p *Pool) IdleCount(route Route) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[route.Key()])
}

// DialError reports a failed connection attempt with no route
// established — recoverable per spec §4.3's retry policy.
type DialError struct {
	Route Route
	Err   error
}

func (e *DialError) Error() string { return "dial " + e.Route.String() + ": " + e.Err.Error() }
func (e *DialError) Unwrap() error { return e.Err }

// HandshakeError reports a TLS handshake failure. Certificate-pinning
// and handshake failures with no alternate route are fatal per spec
// §4.3, so this type is distinguished from DialError so the retry
// policy can tell them apart.
type HandshakeError struct {
	Route Route
	Err   error
}

func (e *HandshakeError) Error() string {
	return "tls handshake " + e.Route.String() + ": " + e.Err.Error()
}
func (e *HandshakeError) Unwrap() error { return e.Err }
