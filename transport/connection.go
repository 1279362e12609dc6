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
	"crypto/tls"
	"net"
	"sync"
	"time"
)

// Connection is a RealConnection in spec terms: a live socket (plain or
// TLS) bound to one Route, reusable across requests until marked
// non-reusable (spec §4.7) or evicted idle by the Pool.
type Connection struct {
	Route Route
	Proto string // "HTTP/1.1" etc.

	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	tlsOK  bool
	mu     sync.Mutex
	reuse  bool
	idleAt time.Time
}

// newConnection wraps conn for Route route.
func newConnection(route Route, conn net.Conn) *Connection {
	_, isTLS := conn.(*tls.Conn)
	return &Connection{
		Route: route,
		Proto: "HTTP/1.1",
		conn:  conn,
		br:    bufio.NewReader(conn),
		bw:    bufio.NewWriter(conn),
		tlsOK: isTLS,
		reuse: true,
	}
}

// Reader returns the buffered reader for response parsing.
func (c *Connection) Reader() *bufio.Reader { return c.br }

// Writer returns the buffered writer for request serialization.
func (c *Connection) Writer() *bufio.Writer { return c.bw }

// Raw returns the underlying net.Conn, e.g. for setting deadlines.
func (c *Connection) Raw() net.Conn { return c.conn }

// MarkNonReusable flags the connection so Pool.Put closes it instead of
// returning it to the idle set (spec §4.7: Connection: close, or
// protocol < 1.1 without keep-alive).
func (c *Connection) MarkNonReusable() {
	c.mu.Lock()
	c.reuse = false
	c.mu.Unlock()
}

// Reusable reports whether the connection may be returned to the pool.
func (c *Connection) Reusable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reuse
}

// Close closes the underlying socket.
func (c *Connection) Close() error { return c.conn.Close() }

func (c *Connection) touchIdle() {
	c.mu.Lock()
	c.idleAt = time.Now()
	c.mu.Unlock()
}

func (c *Connection) idleFor(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.idleAt.IsZero() && time.Since(c.idleAt) >= d
}
