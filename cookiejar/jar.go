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

// Package cookiejar provides the CookieJar collaborator spec.md assumes
// but scopes out of the core ("the cookie jar... required to be
// internally thread-safe" — spec §5). Jar is the interface; MemoryJar is
// an in-memory implementation good enough for a single process lifetime;
// a persistent store would implement the same Jar interface.
package cookiejar

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is a minimal cookie record; wraps net/http.Cookie for parsing
// but the jar only keeps the fields it needs to decide applicability.
type Cookie struct {
	Name, Value string
	Domain      string
	Path        string
	Expires     time.Time
	Secure      bool
	HostOnly    bool
}

// Jar is the interface the Bridge interceptor depends on: push newly
// received cookies in, pull applicable cookies out for a URL.
type Jar interface {
	SetCookies(u *url.URL, cookies []*http.Cookie)
	Cookies(u *url.URL) []*http.Cookie
}

// MemoryJar is an in-memory, domain/path-scoped cookie jar, internally
// thread-safe per spec §5.
type MemoryJar struct {
	mu      sync.Mutex
	byKey   map[string][]Cookie // keyed by eTLD+1
}

// NewMemoryJar returns an empty jar.
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{byKey: make(map[string][]Cookie)}
}

func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// SetCookies records cookies received from u, per §4.4 "cookies from
// Set-Cookie are pushed to the cookie store."
func (j *MemoryJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	key := registrableDomain(u.Hostname())

	j.mu.Lock()
	defer j.mu.Unlock()
	existing := j.byKey[key]
	for _, c := range cookies {
		domain := c.Domain
		hostOnly := domain == ""
		if hostOnly {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		rec := Cookie{
			Name: c.Name, Value: c.Value, Domain: strings.ToLower(domain),
			Path: path, Secure: c.Secure, HostOnly: hostOnly,
		}
		if !c.Expires.IsZero() {
			rec.Expires = c.Expires
		} else if c.MaxAge < 0 {
			rec.Expires = time.Unix(0, 0)
		} else if c.MaxAge > 0 {
			rec.Expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		}

		replaced := false
		for i, e := range existing {
			if e.Name == rec.Name && e.Domain == rec.Domain && e.Path == rec.Path {
				existing[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, rec)
		}
	}
	j.byKey[key] = existing
}

// Cookies returns the cookies applicable to u, in the order they were
// added, per §4.4 "in insertion order."
func (j *MemoryJar) Cookies(u *url.URL) []*http.Cookie {
	key := registrableDomain(u.Hostname())
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*http.Cookie
	var live []Cookie
	for _, c := range j.byKey[key] {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue // expired; drop on the next write pass below
		}
		live = append(live, c)
		if !domainMatches(c, u.Hostname()) {
			continue
		}
		if !pathMatches(c.Path, u.Path) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	j.byKey[key] = live
	return out
}

func domainMatches(c Cookie, host string) bool {
	host = strings.ToLower(host)
	if c.HostOnly {
		return host == c.Domain
	}
	return host == c.Domain || strings.HasSuffix(host, "."+c.Domain)
}

func pathMatches(cookiePath, reqPath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if cookiePath == reqPath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		return len(reqPath) > len(cookiePath) && reqPath[len(cookiePath)] == '/'
	}
	return false
}
