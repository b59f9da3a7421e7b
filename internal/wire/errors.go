// internal/wire/errors.go
package wire

import (
	"errors"
	"fmt"
)

// Protocol error codes this client inspects. The hub may return others;
// they pass through untouched.
const (
	CodeNoSuchElement     = "no such element"
	CodeStaleElement      = "stale element reference"
	CodeInvalidSession    = "invalid session id"
	CodeSessionNotCreated = "session not created"
	CodeUnknownError      = "unknown error"
)

// ProtocolError is a failure reported by the remote end, decoded from
// the protocol's error document. The driver forwards these unchanged.
type ProtocolError struct {
	// Code is the machine-readable error string, e.g. "no such element".
	Code    string
	Message string
	// Status is the HTTP status the hub answered with.
	Status int
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// IsNoSuchElement reports whether err is a ProtocolError for a locator
// that matched nothing.
func IsNoSuchElement(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == CodeNoSuchElement
}
