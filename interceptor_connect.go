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
	"context"

	"github.com/caddyserver/httpengine/transport"
	"go.uber.org/zap"
)

// connectInterceptor implements the Connect interceptor (spec §4.6):
// finds a healthy connection to carry the request, acquiring it from the
// StreamAllocation RetryAndFollowUp established for this attempt, and
// binds it to the chain for CallServer and any network interceptors.
type connectInterceptor struct {
	client *Client
}

func (c *connectInterceptor) Intercept(chain *Chain) (*Response, error) {
	req := chain.Request()
	sa := chain.StreamAllocation()
	if sa == nil {
		sa = transport.NewStreamAllocation(c.client.pool)
	}

	route, err := routeFor(c.client, req)
	if err != nil {
		return nil, err
	}

	listener := chain.Call().real.listener
	listener.ConnectStart(route.String())

	ctx, cancel := context.WithTimeout(context.Background(), chain.ConnectTimeout())
	defer cancel()

	conn, _, err := sa.Acquire(ctx, route)
	listener.ConnectEnd(route.String(), err)
	if err != nil {
		return nil, err
	}

	c.client.log.Debug("connected", zap.String("route", route.String()))

	next := chain.withConn(conn, sa)
	return next.Proceed(req)
}

// routeFor derives the dial target for req, honoring the client's proxy
// selector (spec §6 "proxy, proxySelector").
func routeFor(client *Client, req *Request) (transport.Route, error) {
	u := req.URL()
	port := u.Port()
	if port == "" {
		port = defaultPort(u.Scheme)
	}
	route := transport.Route{Scheme: u.Scheme, Host: u.Hostname(), Port: port}

	if client.cfg.Proxy == nil {
		return route, nil
	}
	proxyURL, err := client.cfg.Proxy(req)
	if err != nil {
		return transport.Route{}, err
	}
	if proxyURL != nil {
		route.Proxy = proxyURL.Host
	}
	return route, nil
}
