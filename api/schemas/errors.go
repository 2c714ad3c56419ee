package schemas

import (
	"errors"
	"fmt"
)

// -- Error Kinds --

var (
	// ErrValidation marks malformed intents, actions, or plans. Runs that hit it
	// abort before any browser interaction.
	ErrValidation = errors.New("validation error")
	// ErrProviderUnresponsive is returned when neither the mailbox landmark nor a
	// login form shows up within the readiness bound.
	ErrProviderUnresponsive = errors.New("provider unresponsive")
	// ErrLoginTimeout is returned when a login form was shown and the mailbox
	// never appeared within the login bound.
	ErrLoginTimeout = errors.New("login timeout")
	// ErrStepFailure marks a single action that could not be located or
	// dispatched. It is recorded, never fatal.
	ErrStepFailure = errors.New("step failure")
	// ErrSession marks browser session open/close faults.
	ErrSession = errors.New("session error")
)

// ValidationError describes which field failed validation and why.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// StepError records the failure of one plan step.
type StepError struct {
	Index       int
	Description string
	Locator     string
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Description, e.Err)
}

func (e *StepError) Is(target error) bool { return target == ErrStepFailure }

func (e *StepError) Unwrap() error { return e.Err }
