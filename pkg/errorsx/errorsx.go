// Package errorsx tags errors with a reason code so callers can tell a
// transport failure from a tool failure without matching on messages.
package errorsx

import "errors"

// Error carries a reason code for Err. The message is Err's message.
type Error struct {
	Reason ReasonCode
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare reason marker, so errors.Is(err, errorsx.Marker(ReasonToolRounds)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Reason == e.Reason
}

// Marker returns a message-less error for reason, usable with errors.Is.
func Marker(reason ReasonCode) error {
	return &Error{Reason: reason}
}

// Wrap tags err with reason. The innermost reason wins: an error that already
// carries one is returned as is.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

// Reason returns the reason code carried by err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries reason.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// Fields describes err as structured log fields.
func Fields(err error) map[string]any {
	if err == nil {
		return nil
	}
	return map[string]any{
		"reason": string(Reason(err)),
		"error":  err.Error(),
	}
}
