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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// EventListener observes the lifecycle of a single Call, per spec §6's
// undesigned "eventListenerFactory" option (SPEC_FULL "EventListener
// factory"). All methods are optional no-ops on the zero value of any
// embedding type; implementations should embed NoopEventListener to stay
// forward-compatible with new hooks.
type EventListener interface {
	CallStart(req *Request)
	DNSStart(host string)
	DNSEnd(host string, err error)
	ConnectStart(route string)
	ConnectEnd(route string, err error)
	RequestHeadersEnd(req *Request)
	ResponseHeadersEnd(resp *Response)
	CallEnd(resp *Response)
	CallFailed(err error)
}

// NoopEventListener implements EventListener with no-ops; embed it to
// implement only the hooks you care about.
type NoopEventListener struct{}

func (NoopEventListener) CallStart(*Request)             {}
func (NoopEventListener) DNSStart(string)                {}
func (NoopEventListener) DNSEnd(string, error)           {}
func (NoopEventListener) ConnectStart(string)            {}
func (NoopEventListener) ConnectEnd(string, error)        {}
func (NoopEventListener) RequestHeadersEnd(*Request)      {}
func (NoopEventListener) ResponseHeadersEnd(*Response)    {}
func (NoopEventListener) CallEnd(*Response)               {}
func (NoopEventListener) CallFailed(error)                {}

// EventListenerFactory produces one EventListener per Call, the way an
// http.RoundTripper wrapper would start one span per request.
type EventListenerFactory interface {
	NewListener(call *Call) EventListener
}

type noopFactory struct{}

func (noopFactory) NewListener(*Call) EventListener { return NoopEventListener{} }

// NoopEventListenerFactory returns a factory whose listeners do nothing.
func NoopEventListenerFactory() EventListenerFactory { return noopFactory{} }

// tracingEventListenerFactory emits one otel span per Call and child
// spans per connection phase, grounded on the teacher's own use of
// otelhttp instrumentation for its reverse proxy (caddyhttp/tracing).
type tracingEventListenerFactory struct {
	tracer oteltrace.Tracer
}

// NewTracingEventListenerFactory returns the default EventListenerFactory,
// which reports spans through the global otel TracerProvider.
func NewTracingEventListenerFactory() EventListenerFactory {
	return &tracingEventListenerFactory{tracer: otel.Tracer("github.com/caddyserver/httpengine")}
}

func (f *tracingEventListenerFactory) NewListener(call *Call) EventListener {
	return &tracingEventListener{tracer: f.tracer}
}

type tracingEventListener struct {
	tracer oteltrace.Tracer

	callCtx  context.Context
	callSpan oteltrace.Span

	connCtx  context.Context
	connSpan oteltrace.Span
}

func (l *tracingEventListener) CallStart(req *Request) {
	l.callCtx, l.callSpan = l.tracer.Start(context.Background(), "httpengine.Call",
		oteltrace.WithAttributes(
			attribute.String("http.method", req.Method()),
			attribute.String("http.url", req.URL().String()),
		))
}

func (l *tracingEventListener) DNSStart(host string) {}
func (l *tracingEventListener) DNSEnd(host string, err error) {}

func (l *tracingEventListener) ConnectStart(route string) {
	if l.callCtx == nil {
		return
	}
	l.connCtx, l.connSpan = l.tracer.Start(l.callCtx, "httpengine.Connect",
		oteltrace.WithAttributes(attribute.String("httpengine.route", route)))
}

func (l *tracingEventListener) ConnectEnd(route string, err error) {
	if l.connSpan == nil {
		return
	}
	if err != nil {
		l.connSpan.RecordError(err)
		l.connSpan.SetStatus(codes.Error, err.Error())
	}
	l.connSpan.End()
}

func (l *tracingEventListener) RequestHeadersEnd(req *Request) {}

func (l *tracingEventListener) ResponseHeadersEnd(resp *Response) {
	if l.callSpan == nil {
		return
	}
	l.callSpan.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
}

func (l *tracingEventListener) CallEnd(resp *Response) {
	if l.callSpan == nil {
		return
	}
	l.callSpan.End()
}

func (l *tracingEventListener) CallFailed(err error) {
	if l.callSpan == nil {
		return
	}
	l.callSpan.RecordError(err)
	l.callSpan.SetStatus(codes.Error, err.Error())
	l.callSpan.End()
}
