// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of failure classes the retry policy dispatches on.
type Kind int

const (
	// KindOther covers parse, validation and programming errors.
	KindOther Kind = iota
	// KindRateLimited is HTTP 429.
	KindRateLimited
	// KindServer is HTTP 5xx.
	KindServer
	// KindClient is HTTP 4xx other than 429.
	KindClient
	// KindTransport is a connection failure or timeout.
	KindTransport
	// KindMalformed is a response that arrived but does not have the expected shape.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// Error is a classified failure produced at an HTTP collaborator boundary.
type Error struct {
	Kind Kind

	// Op names the call that failed (e.g. "arxiv search").
	Op string

	// StatusCode is the HTTP status, or 0 for non-HTTP failures.
	StatusCode int

	// RetryAfter is the provider-requested wait. Only meaningful when
	// HasRetryAfter is set.
	RetryAfter    time.Duration
	HasRetryAfter bool

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// maxErrorBody bounds how much of an error response body is kept in the message.
const maxErrorBody = 512

// FromResponse classifies a non-2xx response. It reads a bounded prefix of
// the body for the error message; the caller still owns closing the body.
func FromResponse(op string, resp *http.Response) *Error {
	e := &Error{Op: op, StatusCode: resp.StatusCode}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter, e.HasRetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= 500:
		e.Kind = KindServer
	case resp.StatusCode >= 400:
		e.Kind = KindClient
	default:
		e.Kind = KindOther
	}

	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			e.Err = errors.New(msg)
		}
	}
	return e
}

// ParseRetryAfter reads a Retry-After header value as seconds (integer or
// fractional) or as an HTTP date. Negative values clamp to zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// Transport wraps an error returned by http.Client.Do. Cancellation by the
// caller is classified as KindOther so it is never retried.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindTransport
	if errors.Is(err, context.Canceled) {
		kind = KindOther
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Malformed wraps a decoding or shape error on an otherwise successful response.
func Malformed(op string, err error) error {
	return &Error{Kind: KindMalformed, Op: op, Err: err}
}

// KindOf returns the failure class of err. Unclassified network errors count
// as transport failures; everything else is KindOther.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindOther
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransport
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransport
	}
	return KindOther
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *Error
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
