package central

import "fmt"

// RequestState classifies why a connect or disconnect request was refused.
type RequestState string

const (
	// NotFound means the request referenced an identity with no record.
	NotFound RequestState = "not_found"
	// NotEligible means a connect was requested for a device that is
	// already connecting or connected.
	NotEligible RequestState = "not_eligible"
)

// RequestError is returned from registry request methods. It carries the
// refusal state and optionally the offending identity.
type RequestError struct {
	State    RequestState
	Identity string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Identity == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %q", e.State, e.Identity)
}

// Is allows errors.Is to compare RequestError values by State.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*RequestError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for request refusals.
var (
	ErrNotFound    = &RequestError{State: NotFound}
	ErrNotEligible = &RequestError{State: NotEligible}
)
