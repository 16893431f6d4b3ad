package mailbox

import "fmt"

// ConnectError reports that a protocol session could not be established
// after exhausting the attempt budget. The cause chain keeps the last
// attempt's failure, which may itself be an *auth.Error.
type ConnectError struct {
	Email    string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connection to mail server failed for %s after %d attempts: %v", e.Email, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ProtocolError reports an unexpected server response on an established
// session. Op names the command that failed.
type ProtocolError struct {
	Email string
	Op    string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Email, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an unknown account or message identifier.
// Kind is "account" or "message".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ParseError reports a structurally unreadable message. Per-part decode
// problems degrade to placeholder content instead of raising this.
type ParseError struct {
	ID  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse message %s: %v", e.ID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
