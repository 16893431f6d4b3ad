package auth

import "fmt"

// Error is an authentication failure for a specific account. The Cause is
// human-readable provider output, suitable for surfacing to an operator who
// has to decide whether the account needs re-authorization.
type Error struct {
	Email string
	Cause string
	Err   error
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("authentication failed for %s: %s", e.Email, e.Cause)
	}
	return fmt.Sprintf("authentication failed for %s", e.Email)
}

func (e *Error) Unwrap() error {
	return e.Err
}
