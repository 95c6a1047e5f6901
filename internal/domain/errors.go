package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateChannel = errors.New("listener already registered for channel")
	ErrRegistrySealed   = errors.New("registry is sealed")
	ErrEntityNotFound   = errors.New("entity not found")
	ErrNotImplemented   = errors.New("not implemented")
)

// Authorization codes observed by clients. They are part of the wire contract.
const (
	CodeNoAuth  = "NOAUTH"
	CodeNoStaff = "NOSTAFF"
	CodeNoSudo  = "NOSUDO"
)

// ListenerNotFoundError is returned when no listener is mapped to a channel.
type ListenerNotFoundError struct {
	Channel Channel
}

func (e *ListenerNotFoundError) Error() string {
	return fmt.Sprintf("Listener not defined for channel '%s'", e.Channel)
}

// AuthorizationError is returned when a guard rejects the caller.
// Error returns the bare code so it can be sent to clients verbatim.
type AuthorizationError struct {
	Code string
}

func (e *AuthorizationError) Error() string {
	return e.Code
}

// BackendError wraps an unexpected handler failure or panic.
//
// Origin is the first trace line (the listener that failed), Last is the final
// line (the failure itself). Cause keeps the original error for server-side logging.
type BackendError struct {
	Origin string
	Last   string
	Cause  error
	Stack  []byte
}

func (e *BackendError) Error() string {
	return "Backend Error\n" + e.Last
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Message renders the client-facing text. Verbose mode includes the origin line.
func (e *BackendError) Message(verbose bool) string {
	if verbose && e.Origin != "" {
		return fmt.Sprintf("Backend Error\n%s\n%s", e.Origin, e.Last)
	}
	return "Backend Error\n" + e.Last
}
