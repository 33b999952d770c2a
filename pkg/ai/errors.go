package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// UnavailableError reports that the upstream could not be reached or did not
// answer in time.
type UnavailableError struct {
	Err     error
	Timeout bool
}

func (e *UnavailableError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("llm upstream timed out: %v", e.Err)
	}
	return fmt.Sprintf("llm upstream unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StatusError reports an HTTP status >= 400 from the upstream.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm upstream returned status %d", e.Code)
	}
	return fmt.Sprintf("llm upstream returned status %d: %s", e.Code, e.Body)
}

// ProtocolError reports a response body that could not be understood.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("llm upstream protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func transportError(err error) error {
	return &UnavailableError{Err: err, Timeout: isTimeout(err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
