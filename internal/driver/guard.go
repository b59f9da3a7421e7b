// internal/driver/guard.go
package driver

import (
	"time"

	"github.com/benbjohnson/clock"
)

// outcome is the settled result of a pending operation.
type outcome[T any] struct {
	value T
	err   error
}

// bound starts op and races it against a timer from clk. If op settles
// first its outcome is forwarded unchanged; if the timer fires first a
// TimeoutError carrying msg is returned instead.
//
// The guard only stops waiting. The underlying work is not cancelled
// and may still complete after the timeout; its result lands in a
// buffered channel and is discarded, so the abandoned goroutine always
// exits. Cancelling the work itself is the wire client's concern.
func bound[T any](clk clock.Clock, timeout time.Duration, msg string, op func() (T, error)) (T, error) {
	settled := make(chan outcome[T], 1)
	go func() {
		v, err := op()
		settled <- outcome[T]{value: v, err: err}
	}()

	timer := clk.Timer(timeout)
	defer timer.Stop()

	select {
	case out := <-settled:
		return out.value, out.err
	case <-timer.C:
		var zero T
		return zero, &TimeoutError{Op: msg, Timeout: timeout}
	}
}
