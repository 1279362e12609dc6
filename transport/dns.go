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
	"net"
)

// Dns is the name-resolution collaborator named but undesigned by
// spec.md §6 ("dns" client option). It exists so tests and advanced
// callers can substitute a fixed-host-table resolver without touching
// net.DefaultResolver process-wide.
type Dns interface {
	Lookup(ctx context.Context, host string) ([]net.IP, error)
}

// SystemDns resolves via net.DefaultResolver.
type SystemDns struct{}

func (SystemDns) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// dnsDialer resolves the host through a Dns before dialing, trying each
// returned address in order until one connects.
type dnsDialer struct {
	dns   Dns
	inner *net.Dialer
}

// NewDnsDialer returns a Dialer that resolves through dns before
// dialing via inner (or a zero-value *net.Dialer if inner is nil).
func NewDnsDialer(dns Dns, inner *net.Dialer) Dialer {
	if inner == nil {
		inner = &net.Dialer{}
	}
	return &dnsDialer{dns: dns, inner: inner}
}

func (d *dnsDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(host) != nil {
		return d.inner.DialContext(ctx, network, address)
	}
	ips, err := d.dns.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, ip := range ips {
		conn, err := d.inner.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &net.AddrError{Err: "no addresses found", Addr: host}
	}
	return nil, lastErr
}
