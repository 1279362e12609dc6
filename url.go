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
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ParseURL parses rawurl and normalizes it for use by the engine. A
// ws:/wss: scheme is silently rewritten to http:/https: — the engine has
// no separate WebSocket request path, so this keeps callers that hand in
// WebSocket-flavored URLs working without a special case (spec Open
// Question, §9).
//
// Only http and https (post-normalization) are accepted; anything else
// is an IllegalArgument-class error.
func ParseURL(rawurl string) (*url.URL, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, &IllegalArgumentError{Msg: fmt.Sprintf("invalid URL %q: %v", rawurl, err)}
	}
	normalizeScheme(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &IllegalArgumentError{Msg: fmt.Sprintf("unsupported scheme %q in URL %q", u.Scheme, rawurl)}
	}
	if u.Host == "" {
		return nil, &IllegalArgumentError{Msg: fmt.Sprintf("URL %q has no host", rawurl)}
	}
	return u, nil
}

func normalizeScheme(u *url.URL) {
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = strings.ToLower(u.Scheme)
	}
}

// hostHeaderValue returns the Host header value for u: host[:port],
// omitting the port when it is the scheme's default.
func hostHeaderValue(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		return host
	}
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		return host
	}
	return net.JoinHostPort(host, port)
}

// defaultPort returns the scheme's default port.
func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// sameHost reports whether a and b share scheme, host, and effective port —
// used to decide whether a redirect crosses a host boundary (§4.3) and
// so whether to strip the Authorization header.
func sameHost(a, b *url.URL) bool {
	if a.Scheme != b.Scheme || !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return false
	}
	ap, bp := a.Port(), b.Port()
	if ap == "" {
		ap = defaultPort(a.Scheme)
	}
	if bp == "" {
		bp = defaultPort(b.Scheme)
	}
	return ap == bp
}
