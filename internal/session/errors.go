package session

import (
	"errors"
	"fmt"
)

// Sentinel outcomes of platform calls. AlreadyMember is informational, not a
// failure: callers decide whether to re-resolve and register.
var (
	ErrAlreadyMember        = errors.New("already a participant")
	ErrSecondFactorRequired = errors.New("second factor required")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrInvalidPassword      = errors.New("invalid password")
)

// TransportError wraps a network or platform-unreachable failure. Onboarding
// aborts on it; a broadcast cycle skips the affected send.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResolutionError wraps a reference that could not be resolved or joined.
// Never retried automatically.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// SendError wraps a per-chat send failure inside a broadcast cycle. Other
// chats in the same cycle are unaffected.
type SendError struct {
	ChatID int64
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %d: %v", e.ChatID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsResolution reports whether err is (or wraps) a ResolutionError.
func IsResolution(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
