package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTime means the text carried no recognizable time expression.
	// Callers should prompt for clarification instead of retrying.
	ErrNoTime = errors.New("no time expression found")

	ErrNotFound = errors.New("reminder not found")
	ErrNotOwner = errors.New("reminder belongs to another user")
)

// ValidationError rejects a create/edit before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QuotaError carries the counts so the transport layer can show them.
type QuotaError struct {
	Kind    string // "active" | "daily"
	Current int
	Limit   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s reminder quota exceeded (%d/%d)", e.Kind, e.Current, e.Limit)
}

// IsRejection reports whether err is a user-facing creation rejection
// (validation, quota, or unparseable time) rather than an internal failure.
func IsRejection(err error) bool {
	var ve *ValidationError
	var qe *QuotaError
	return errors.Is(err, ErrNoTime) || errors.As(err, &ve) || errors.As(err, &qe)
}
