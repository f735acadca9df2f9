package pipeline

import (
	"errors"
	"fmt"
)

// The pipeline distinguishes failures that redelivery can fix from failures
// it cannot. Stage processors translate permanent errors into a terminal
// `failed` entity status and acknowledge the job; transient errors are
// returned to the queue for backoff redelivery.

// NotFoundError marks a referenced entity as absent (or owned by another
// tenant, which reads the same). Never retried.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PreconditionError marks a referenced entity that exists but is in the
// wrong status for this stage. Never retried.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func Precondition(format string, args ...interface{}) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// Permanent reports whether err is a business-rule failure that further
// delivery attempts cannot repair.
func Permanent(err error) bool {
	var nf *NotFoundError
	var pc *PreconditionError
	return errors.As(err, &nf) || errors.As(err, &pc)
}
