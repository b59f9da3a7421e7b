// internal/driver/errors.go
package driver

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports that a guarded operation did not settle within
// its allotted duration. It is distinct from a failure of the
// underlying operation, so callers can tell "never answered in time"
// apart from "answered with an error".
type TimeoutError struct {
	// Op is the caller-supplied description of the bounded operation.
	Op string
	// Timeout is the duration that elapsed before the guard gave up.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ErrAlreadyRunning is returned when Run is invoked on a Poller whose
// previous session is still active. Pollers are single-session; create
// a new one per wait.
var ErrAlreadyRunning = errors.New("poller is already running")

// ConfigurationError reports a malformed condition callback. It is a
// programmer error: it is never retried and surfaces immediately.
type ConfigurationError struct {
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }
