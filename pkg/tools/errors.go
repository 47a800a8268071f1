package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrNoSearcher       = errors.New("search agent is not configured")
)

// ClientError is a problem with the call itself (unknown name, bad arguments).
// It is reported back to the model as an error result so it can correct the call.
type ClientError struct {
	Reason string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool call: %s", e.Reason)
}

func (e *ClientError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
