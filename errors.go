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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Failure kinds surfaced to callers, per spec §7. IO failures are plain
// wrapped errors; the four kinds below get a short correlation ID so a
// log line and a returned error can be matched up.

// ProtocolError reports a malformed or out-of-policy HTTP exchange: an
// unexpected 1xx sequence, too many follow-ups, a 3xx with no Location,
// and the like.
type ProtocolError struct {
	ID  string
	Msg string
	Err error
}

func newProtocolError(msg string, cause error) *ProtocolError {
	return &ProtocolError{ID: shortID(), Msg: msg, Err: cause}
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("{id=%s} protocol error: %s: %v", e.ID, e.Msg, e.Err)
	}
	return fmt.Sprintf("{id=%s} protocol error: %s", e.ID, e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// CanceledError is the IO failure reported when a Call was canceled,
// per spec §5 "Synthesized failures use the kind 'canceled'."
type CanceledError struct {
	ID string
}

func newCanceledError() *CanceledError { return &CanceledError{ID: shortID()} }

func (e *CanceledError) Error() string { return fmt.Sprintf("{id=%s} Canceled", e.ID) }

// IsCanceled reports whether err is (or wraps) a CanceledError.
func IsCanceled(err error) bool {
	var ce *CanceledError
	return errors.As(err, &ce)
}

// IllegalStateError reports caller misuse: a Call executed twice, a
// chain's proceed invoked twice, or an interceptor returning a nil body.
type IllegalStateError struct {
	ID  string
	Msg string
}

func newIllegalStateError(msg string) *IllegalStateError {
	return &IllegalStateError{ID: shortID(), Msg: msg}
}

func (e *IllegalStateError) Error() string { return fmt.Sprintf("{id=%s} illegal state: %s", e.ID, e.Msg) }

// IllegalArgumentError reports builder validation failures: a bad URL
// scheme, a method/body mismatch, a required value left nil.
type IllegalArgumentError struct {
	ID  string
	Msg string
}

func (e *IllegalArgumentError) Error() string {
	if e.ID == "" {
		e.ID = shortID()
	}
	return fmt.Sprintf("{id=%s} illegal argument: %s", e.ID, e.Msg)
}

// shortID returns a short correlation id for log/error matching, the way
// caddy's randString does for HandlerError — but grounded on a real UUID
// instead of a hand-rolled alphabet to keep one fewer hand-rolled
// primitive in the tree.
func shortID() string {
	return uuid.New().String()[:8]
}
