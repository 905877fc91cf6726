package delivery

import (
	"errors"
	"fmt"
)

// ErrIncomplete is matched by every DeliveryError.
var ErrIncomplete = errors.New("delivery incomplete")

// DeliveryError reports how far a delivery got before it failed.
type DeliveryError struct {
	Verb   string // "uploaded" or "mirrored"
	Unit   string // "parts" or "files"
	Done   int
	Total  int
	Failed string // name of the item that failed
	Cause  error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrIncomplete, e.Note())
	if e.Failed != "" {
		msg += fmt.Sprintf(", %s failed", e.Failed)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Note is the partial-success summary shown with the failed job.
func (e *DeliveryError) Note() string {
	return fmt.Sprintf("%s %d/%d %s", e.Verb, e.Done, e.Total, e.Unit)
}

// Unwrap returns the underlying cause error
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrIncomplete) true.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrIncomplete
}
