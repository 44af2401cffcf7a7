package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTransientService covers failures worth retrying: network errors, rate
	// limits, 5xx responses, timeouts and streams that end before completion.
	ErrTransientService = errors.New("generation service temporarily unavailable")

	// ErrMalformedOutput indicates the response could not be parsed into the
	// expected structured format.
	ErrMalformedOutput = errors.New("malformed generation output")

	// ErrEmptyResponse indicates a completed call that produced no text.
	ErrEmptyResponse = errors.New("empty generation response")
)

// StatusError is a non-200 answer from a provider API.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode == 408 || e.StatusCode >= 500
}

// IsTransient reports whether err should be retried. Context cancellation never is.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransientService) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "eof", "timeout", "rate limit"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// transient marks err as ErrTransientService while keeping its chain.
func transient(err error) error {
	if errors.Is(err, ErrTransientService) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientService, err)
}
