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
	"net/textproto"
	"strings"
)

// Headers is an immutable, ordered, case-insensitive multimap of HTTP
// header fields. Insertion order is preserved for repeated names so that
// e.g. multiple Cookie fields round-trip in the order they were added.
type Headers struct {
	names  []string // canonical (textproto) names, in insertion order
	values []string
}

// HeadersBuilder accumulates header mutations before producing an
// immutable Headers value with Build.
type HeadersBuilder struct {
	names  []string
	values []string
}

// NewHeadersBuilder returns an empty builder.
func NewHeadersBuilder() *HeadersBuilder {
	return &HeadersBuilder{}
}

// newHeadersBuilderFrom seeds a builder from an existing Headers value.
// The original is not observed again after this call.
func newHeadersBuilderFrom(h Headers) *HeadersBuilder {
	b := &HeadersBuilder{
		names:  append([]string(nil), h.names...),
		values: append([]string(nil), h.values...),
	}
	return b
}

func canonicalHeaderName(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Set replaces all prior entries for name with a single entry.
func (b *HeadersBuilder) Set(name, value string) *HeadersBuilder {
	b.RemoveAll(name)
	return b.Add(name, value)
}

// Add appends a new entry for name, preserving any existing entries.
func (b *HeadersBuilder) Add(name, value string) *HeadersBuilder {
	b.names = append(b.names, canonicalHeaderName(name))
	b.values = append(b.values, strings.TrimSpace(value))
	return b
}

// RemoveAll removes every entry whose name matches, case-insensitively.
func (b *HeadersBuilder) RemoveAll(name string) *HeadersBuilder {
	canon := canonicalHeaderName(name)
	names := b.names[:0]
	values := b.values[:0]
	for i, n := range b.names {
		if n == canon {
			continue
		}
		names = append(names, n)
		values = append(values, b.values[i])
	}
	b.names, b.values = names, values
	return b
}

// Build returns the immutable Headers value.
func (b *HeadersBuilder) Build() Headers {
	return Headers{
		names:  append([]string(nil), b.names...),
		values: append([]string(nil), b.values...),
	}
}

// Get returns the first value for name, or "" if absent.
func (h Headers) Get(name string) string {
	canon := canonicalHeaderName(name)
	for i, n := range h.names {
		if n == canon {
			return h.values[i]
		}
	}
	return ""
}

// Values returns all values for name, in insertion order. Never nil;
// returns an empty (non-nil) slice when absent.
func (h Headers) Values(name string) []string {
	canon := canonicalHeaderName(name)
	out := []string{}
	for i, n := range h.names {
		if n == canon {
			out = append(out, h.values[i])
		}
	}
	return out
}

// Len returns the number of header entries (counting repeats).
func (h Headers) Len() int { return len(h.names) }

// Name returns the canonical name of the i'th entry.
func (h Headers) Name(i int) string { return h.names[i] }

// Value returns the value of the i'th entry.
func (h Headers) Value(i int) string { return h.values[i] }

// NewBuilder returns a builder seeded from h, for producing a modified copy.
func (h Headers) NewBuilder() *HeadersBuilder { return newHeadersBuilderFrom(h) }

// Equal reports whether h and o contain the same entries in the same order.
func (h Headers) Equal(o Headers) bool {
	if len(h.names) != len(o.names) {
		return false
	}
	for i := range h.names {
		if h.names[i] != o.names[i] || h.values[i] != o.values[i] {
			return false
		}
	}
	return true
}
