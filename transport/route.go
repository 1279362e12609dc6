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

// Package transport implements the external collaborators spec.md
// scopes out of the core: the connection pool, the HTTP/1.1 codec, and
// route/dial selection. The core's Connect and CallServer interceptors
// depend only on the small interfaces this package exposes.
package transport

import "fmt"

// Route identifies one dial target: scheme, host, and port, plus an
// optional proxy address. Two requests with the same Route may share a
// pooled Connection.
type Route struct {
	Scheme string
	Host   string
	Port   string
	Proxy  string // "" for direct
}

// Key returns a string uniquely identifying the route for pool lookups.
func (r Route) Key() string {
	return fmt.Sprintf("%s://%s:%s|%s", r.Scheme, r.Host, r.Port, r.Proxy)
}

func (r Route) String() string { return r.Key() }
