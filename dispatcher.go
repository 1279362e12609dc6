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
	"net/url"
	"sync"
)

// asyncCall bundles the state needed to run and report one enqueued
// Call on the Dispatcher's executor.
type asyncCall struct {
	call *Call
	rc   *realCall
	cb   Callback
}

func (a *asyncCall) host() string {
	if u := a.rc.originalRequest.URL(); u != nil {
		return u.Hostname()
	}
	return ""
}

// Dispatcher is the bounded concurrent scheduler for async calls, per
// spec §4.9: two FIFO queues for async calls (ready, running), one FIFO
// for sync calls, a maxRequests cap and a maxRequestsPerHost cap.
// Mutated only under mu.
type Dispatcher struct {
	maxRequests        int
	maxRequestsPerHost int

	mu          sync.Mutex
	ready       []*asyncCall
	running     []*asyncCall
	runningSync []*realCall

	idleCallback func()
}

// NewDispatcher returns a Dispatcher with the given caps. A zero value
// for either falls back to spec's documented defaults (64, 5).
func NewDispatcher(maxRequests, maxRequestsPerHost int) *Dispatcher {
	if maxRequests <= 0 {
		maxRequests = 64
	}
	if maxRequestsPerHost <= 0 {
		maxRequestsPerHost = 5
	}
	return &Dispatcher{maxRequests: maxRequests, maxRequestsPerHost: maxRequestsPerHost}
}

// SetIdleCallback installs a callback fired when all three queues are
// empty (spec §4.9).
func (d *Dispatcher) SetIdleCallback(f func()) {
	d.mu.Lock()
	d.idleCallback = f
	d.mu.Unlock()
}

// RunningCount returns the number of async calls currently running.
func (d *Dispatcher) RunningCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// ReadyCount returns the number of async calls queued but not dispatched.
func (d *Dispatcher) ReadyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready)
}

// RunningCountForHost returns the number of async calls currently
// running whose request targets host.
func (d *Dispatcher) RunningCountForHost(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runningForHostLocked(host)
}

func (d *Dispatcher) runningForHostLocked(host string) int {
	n := 0
	for _, a := range d.running {
		if a.host() == host {
			n++
		}
	}
	return n
}

func (d *Dispatcher) registerSync(rc *realCall) {
	d.mu.Lock()
	d.runningSync = append(d.runningSync, rc)
	d.mu.Unlock()
}

func (d *Dispatcher) finishSync(rc *realCall) {
	d.mu.Lock()
	for i, r := range d.runningSync {
		if r == rc {
			d.runningSync = append(d.runningSync[:i], d.runningSync[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	d.promote()
}

// enqueueAsync adds a call to the ready queue and runs the promotion
// rule.
func (d *Dispatcher) enqueueAsync(a *asyncCall) {
	d.mu.Lock()
	d.ready = append(d.ready, a)
	d.mu.Unlock()
	d.promote()
}

// cancelPending removes rc's async call from the ready queue, if it is
// still there (spec §5: "a call not yet dispatched removes itself from
// ready").
func (d *Dispatcher) cancelPending(rc *realCall) {
	d.mu.Lock()
	for i, a := range d.ready {
		if a.rc == rc {
			d.ready = append(d.ready[:i], d.ready[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// promote runs after every enqueue and every finish (spec §4.9): while
// running.size() < maxRequests, pop from ready the first call whose
// host currently has < maxRequestsPerHost running entries, and submit
// it; stop when ready is empty or no candidate qualifies.
func (d *Dispatcher) promote() {
	for {
		var toRun *asyncCall

		d.mu.Lock()
		if len(d.running) < d.maxRequests {
			for i, a := range d.ready {
				if d.runningForHostLocked(a.host()) < d.maxRequestsPerHost {
					toRun = a
					d.ready = append(d.ready[:i], d.ready[i+1:]...)
					d.running = append(d.running, a)
					break
				}
			}
		}
		d.mu.Unlock()

		if toRun == nil {
			break
		}
		go d.runAsync(toRun)
	}
	d.maybeFireIdle()
}

func (d *Dispatcher) runAsync(a *asyncCall) {
	resp, err := a.rc.run()
	if err == nil && a.rc.isCanceled() {
		// canceled after the network returned: report Canceled, not the response.
		resp.Body().Close()
		resp, err = nil, newCanceledError()
	}

	if err != nil {
		if a.rc.isCanceled() {
			err = newCanceledError()
		}
		a.rc.listener.CallFailed(err)
	} else {
		a.rc.listener.CallEnd(resp)
	}

	d.mu.Lock()
	for i, r := range d.running {
		if r == a {
			d.running = append(d.running[:i], d.running[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	if a.cb != nil {
		if err != nil {
			a.cb.OnFailure(a.call, err)
		} else {
			a.cb.OnResponse(a.call, resp)
		}
	}

	d.promote()
}

func (d *Dispatcher) maybeFireIdle() {
	d.mu.Lock()
	idle := len(d.ready) == 0 && len(d.running) == 0 && len(d.runningSync) == 0
	cb := d.idleCallback
	d.mu.Unlock()
	if idle && cb != nil {
		cb()
	}
}

// hostOf is a small helper so callers building asyncCall-adjacent
// bookkeeping outside this file (tests) can derive the same host key
// Dispatcher uses internally.
func hostOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Hostname()
}
