package app

import (
	"errors"
	"fmt"

	"llmgateway/pkg/ai"
)

// ErrAdminExists is returned when creating an admin whose username is taken,
// including the configured superadmin name.
var ErrAdminExists = errors.New("admin already exists")

// AuthError covers missing, invalid, expired or revoked credentials and
// insufficient role.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

// NotFoundError reports an absent record, or one not owned by the caller.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmptyContentError is returned when extracted text is blank after trimming.
type EmptyContentError struct {
	Name string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("extracted content is empty: %s", e.Name)
}

// UpstreamError wraps a failed LLM call. Status is the upstream HTTP status,
// or 0 when the upstream was not reached.
type UpstreamError struct {
	Status int
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm upstream returned %d: %s", e.Status, e.Detail)
	}
	return "llm upstream failed: " + e.Detail
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Timeout reports whether the upstream did not answer in time.
func (e *UpstreamError) Timeout() bool {
	return ai.IsTimeout(e.Err)
}

// PersistError is returned when a record could not be written after retries.
type PersistError struct {
	Record   string
	Attempts int
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s after %d attempts: %v", e.Record, e.Attempts, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func upstreamError(err error) error {
	var statusErr *ai.StatusError
	if errors.As(err, &statusErr) {
		return &UpstreamError{Status: statusErr.Code, Detail: statusErr.Body, Err: err}
	}
	return &UpstreamError{Detail: err.Error(), Err: err}
}
