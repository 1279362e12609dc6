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
	"math"
	"strconv"
	"strings"
	"time"
)

// CacheControl is the parsed directive set from a Cache-Control header,
// per spec §3. Zero value is "no directives at all" (fully cacheable,
// no constraints).
type CacheControl struct {
	NoCache       bool
	NoStore       bool
	Private       bool
	Public        bool
	MustRevalidate bool
	OnlyIfCached  bool
	NoTransform   bool
	Immutable     bool

	MaxAge  time.Duration
	hasMaxAge bool
	SMaxAge time.Duration
	hasSMaxAge bool
	MaxStale  time.Duration
	hasMaxStale bool
	MinFresh  time.Duration
	hasMinFresh bool
}

// HasMaxAge reports whether a max-age directive was present.
func (c CacheControl) HasMaxAge() bool { return c.hasMaxAge }

// HasSMaxAge reports whether an s-maxage directive was present.
func (c CacheControl) HasSMaxAge() bool { return c.hasSMaxAge }

// HasMaxStale reports whether a max-stale directive was present.
func (c CacheControl) HasMaxStale() bool { return c.hasMaxStale }

// HasMinFresh reports whether a min-fresh directive was present.
func (c CacheControl) HasMinFresh() bool { return c.hasMinFresh }

// ForceNetwork returns the canonical "no-cache" directive set: the cache may
// still validate conditionally, but must not serve a stored response
// without contacting the origin (spec §3).
func ForceNetwork() CacheControl {
	return CacheControl{NoCache: true}
}

// ForceCache returns the canonical "only serve from cache" directive set:
// only-if-cached with an unbounded max-stale, so any stored response
// (however stale) is acceptable and the network is never consulted.
func ForceCache() CacheControl {
	return CacheControl{OnlyIfCached: true, MaxStale: math.MaxInt64, hasMaxStale: true}
}

// ParseCacheControl parses the Cache-Control header value(s). Unknown
// directives are ignored, matching RFC 7234's extensibility rule.
func ParseCacheControl(values []string) CacheControl {
	var cc CacheControl
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, arg, hasArg := part, "", false
			if idx := strings.IndexByte(part, '='); idx >= 0 {
				name = strings.TrimSpace(part[:idx])
				arg = strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
				hasArg = true
			}
			switch strings.ToLower(name) {
			case "no-cache":
				cc.NoCache = true
			case "no-store":
				cc.NoStore = true
			case "private":
				cc.Private = true
			case "public":
				cc.Public = true
			case "must-revalidate":
				cc.MustRevalidate = true
			case "only-if-cached":
				cc.OnlyIfCached = true
			case "no-transform":
				cc.NoTransform = true
			case "immutable":
				cc.Immutable = true
			case "max-age":
				if d, ok := parseSeconds(arg, hasArg); ok {
					cc.MaxAge, cc.hasMaxAge = d, true
				}
			case "s-maxage":
				if d, ok := parseSeconds(arg, hasArg); ok {
					cc.SMaxAge, cc.hasSMaxAge = d, true
				}
			case "max-stale":
				if !hasArg {
					cc.MaxStale, cc.hasMaxStale = time.Duration(math.MaxInt64), true
				} else if d, ok := parseSeconds(arg, hasArg); ok {
					cc.MaxStale, cc.hasMaxStale = d, true
				}
			case "min-fresh":
				if d, ok := parseSeconds(arg, hasArg); ok {
					cc.MinFresh, cc.hasMinFresh = d, true
				}
			}
		}
	}
	return cc
}

func parseSeconds(s string, hasArg bool) (time.Duration, bool) {
	if !hasArg {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// String serializes the directive set into a single Cache-Control
// header value, or "" if the set is empty (caller should then remove
// the header entirely, per spec §4.1).
func (c CacheControl) String() string {
	var parts []string
	add := func(s string) { parts = append(parts, s) }
	if c.NoCache {
		add("no-cache")
	}
	if c.NoStore {
		add("no-store")
	}
	if c.Private {
		add("private")
	}
	if c.Public {
		add("public")
	}
	if c.MustRevalidate {
		add("must-revalidate")
	}
	if c.OnlyIfCached {
		add("only-if-cached")
	}
	if c.NoTransform {
		add("no-transform")
	}
	if c.Immutable {
		add("immutable")
	}
	if c.hasMaxAge {
		add("max-age=" + strconv.FormatInt(int64(c.MaxAge/time.Second), 10))
	}
	if c.hasSMaxAge {
		add("s-maxage=" + strconv.FormatInt(int64(c.SMaxAge/time.Second), 10))
	}
	if c.hasMaxStale {
		if c.MaxStale == time.Duration(math.MaxInt64) {
			add("max-stale")
		} else {
			add("max-stale=" + strconv.FormatInt(int64(c.MaxStale/time.Second), 10))
		}
	}
	if c.hasMinFresh {
		add("min-fresh=" + strconv.FormatInt(int64(c.MinFresh/time.Second), 10))
	}
	return strings.Join(parts, ", ")
}

// IsEmpty reports whether no directives are set.
func (c CacheControl) IsEmpty() bool { return c.String() == "" }
