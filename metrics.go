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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheStats tracks the cache hit/network/conditional counters from
// spec §4.5, exported as prometheus counters the way the teacher
// instruments its own handlers (modules/metrics, internal/metrics).
type CacheStats struct {
	mu          sync.Mutex
	hits        int64
	network     int64
	conditional int64

	hitCounter         prometheus.Counter
	networkCounter     prometheus.Counter
	conditionalCounter prometheus.Counter
}

func newCacheStats() *CacheStats {
	return &CacheStats{
		hitCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpengine_cache_hit_total",
			Help: "Requests served entirely from the response cache.",
		}),
		networkCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpengine_cache_network_total",
			Help: "Requests that went to the network because no usable cache entry existed.",
		}),
		conditionalCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpengine_cache_conditional_total",
			Help: "Requests sent to the network with a conditional validator.",
		}),
	}
}

func (s *CacheStats) trackResponse(networkRequested, cacheCandidate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !networkRequested:
		s.hits++
		s.hitCounter.Inc()
	case networkRequested && cacheCandidate:
		s.conditional++
		s.conditionalCounter.Inc()
	default:
		s.network++
		s.networkCounter.Inc()
	}
}

// Collectors returns the prometheus.Collectors backing this cache's
// stats, for registration into an application's registry.
func (s *CacheStats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.hitCounter, s.networkCounter, s.conditionalCounter}
}

// Snapshot returns the current counts, mainly for tests.
func (s *CacheStats) Snapshot() (hits, network, conditional int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.network, s.conditional
}

// dispatcherGauges exposes the Dispatcher's running and ready queue
// sizes as gauges; per-host counts are not exported.
type dispatcherGauges struct {
	running prometheus.GaugeFunc
	ready   prometheus.GaugeFunc
}

func newDispatcherGauges(d *Dispatcher) *dispatcherGauges {
	return &dispatcherGauges{
		running: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "httpengine_dispatcher_running",
			Help: "Async calls currently running.",
		}, func() float64 { return float64(d.RunningCount()) }),
		ready: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "httpengine_dispatcher_ready",
			Help: "Async calls queued but not yet dispatched.",
		}, func() float64 { return float64(d.ReadyCount()) }),
	}
}

// Collectors returns the prometheus.Collectors for registration.
func (g *dispatcherGauges) Collectors() []prometheus.Collector {
	return []prometheus.Collector{g.running, g.ready}
}
