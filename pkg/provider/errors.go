/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	ErrTransport         ErrorKind = "transport"
	ErrAuth              ErrorKind = "auth"
	ErrRateLimited       ErrorKind = "rate_limited"
	ErrQuotaExceeded     ErrorKind = "quota_exceeded"
	ErrTimeout           ErrorKind = "timeout"
	ErrMalformedResponse ErrorKind = "malformed_response"
	ErrUpstream          ErrorKind = "upstream_error"
)

// Error is the typed failure every adapter returns. Retriable tells the
// worker whether a backoff retry could succeed without operator action.
type Error struct {
	Platform  Platform
	Kind      ErrorKind
	Retriable bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s: %s: %s", e.Platform, e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Platform, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error with retriability derived from the kind.
func NewError(platform Platform, kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Platform:  platform,
		Kind:      kind,
		Retriable: kindRetriable(kind),
		Message:   message,
		Cause:     cause,
	}
}

func kindRetriable(kind ErrorKind) bool {
	switch kind {
	case ErrTransport, ErrRateLimited, ErrTimeout, ErrUpstream:
		return true
	default:
		return false
	}
}

// AsError extracts a *Error from err, or wraps err as a transport failure
// attributed to platform.
func AsError(platform Platform, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return classify(platform, err)
}

// classify maps raw transport failures onto error kinds.
func classify(platform Platform, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(platform, ErrTimeout, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewError(platform, ErrTimeout, "request canceled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(platform, ErrTimeout, "network timeout", err)
	}

	return NewError(platform, ErrTransport, err.Error(), err)
}

// ErrorFromStatus maps an HTTP status code onto an error kind. The body
// excerpt goes into the message for operator diagnosis.
func ErrorFromStatus(platform Platform, status int, body string) *Error {
	const maxExcerpt = 200
	if len(body) > maxExcerpt {
		body = body[:maxExcerpt]
	}
	switch {
	case status == 401 || status == 403:
		return NewError(platform, ErrAuth, body, nil)
	case status == 429:
		return NewError(platform, ErrRateLimited, body, nil)
	case status == 402 || status == 413:
		return NewError(platform, ErrQuotaExceeded, body, nil)
	case status >= 500:
		return NewError(platform, ErrUpstream, fmt.Sprintf("status %d: %s", status, body), nil)
	default:
		return NewError(platform, ErrUpstream, fmt.Sprintf("unexpected status %d: %s", status, body), nil)
	}
}
