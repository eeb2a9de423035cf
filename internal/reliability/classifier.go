// Package reliability classifies backend failures and computes retry delays.
package reliability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Class groups backend failures by how a caller should react.
type Class int

const (
	Permanent Class = iota
	Transient
	Throttled
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Throttled:
		return "throttled"
	default:
		return "permanent"
	}
}

// ClassifyHTTPStatus maps a backend status code to a failure class.
func ClassifyHTTPStatus(code int) Class {
	switch code {
	case http.StatusTooManyRequests:
		return Throttled
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Transient
	default:
		return Permanent
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Delay is the wait before retry attempt. Throttled failures wait at least
// retryAfter, never longer than cap.
func Delay(class Class, attempt int, base, cap, retryAfter time.Duration) time.Duration {
	d := ExponentialBackoff(attempt, base, cap)
	if class == Throttled && retryAfter > d {
		d = min(retryAfter, cap)
	}
	return d
}

// ParseRetryAfter reads a Retry-After header value in delay-seconds or
// HTTP-date form. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
