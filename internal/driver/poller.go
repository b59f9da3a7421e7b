// internal/driver/poller.go
package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Condition is a caller-supplied check evaluated by a Poller. A nil
// error means the condition holds and its value becomes the poll's
// result; any error re-arms the poller for the next tick.
type Condition func(ctx context.Context) (any, error)

// Poll session states. At most one evaluation is outstanding at any
// time; a tick that lands while one is in flight is a no-op.
const (
	stateIdle int32 = iota
	stateEvaluating
)

// Poller re-evaluates a condition on a fixed interval until it
// succeeds or its context is cancelled. Intermediate failures are
// swallowed and drive a retry; only the eventual success value or a
// terminal error reaches the caller. A Poller runs a single session at
// a time.
type Poller struct {
	clk    clock.Clock
	logger *zap.Logger

	running atomic.Bool

	mu       sync.Mutex
	lastFail error
}

// pollSession is the per-Run state of one conditional wait. The
// single-flight flag lives here, not on the Poller, so a check still
// in flight from a cancelled session can never re-arm a later one.
type pollSession struct {
	state atomic.Int32
}

// NewPoller returns a Poller scheduling its checks on clk.
func NewPoller(clk clock.Clock, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{clk: clk, logger: logger}
}

// Run evaluates cond immediately and then once per interval. It
// returns the first successful value, ctx.Err() if the context is
// cancelled first, or a ConfigurationError if the callback proves
// unusable. Invoking Run while a prior session is active fails with
// ErrAlreadyRunning; a nil cond or a non-positive interval fails with
// a ConfigurationError. All three are reported synchronously since
// they indicate programmer error.
func (p *Poller) Run(ctx context.Context, cond Condition, interval time.Duration) (any, error) {
	if cond == nil {
		return nil, &ConfigurationError{Reason: "condition callback is nil"}
	}
	if interval <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("check interval must be positive, got %s", interval)}
	}
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	settled := make(chan outcome[any], 1)
	var once sync.Once
	settle := func(v any, err error) {
		once.Do(func() { settled <- outcome[any]{value: v, err: err} })
	}

	ticker := p.clk.Ticker(interval)
	defer ticker.Stop()

	session := &pollSession{}
	p.evaluate(ctx, session, cond, settle)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-settled:
			return out.value, out.err
		case <-ticker.C:
			p.evaluate(ctx, session, cond, settle)
		}
	}
}

// LastFailure returns the error from the most recent failed condition
// check, or nil if none has failed. It is a diagnostic only; Run never
// surfaces intermediate failures itself.
func (p *Poller) LastFailure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFail
}

// evaluate starts one condition check for the session unless one is
// already in flight.
func (p *Poller) evaluate(ctx context.Context, session *pollSession, cond Condition, settle func(any, error)) {
	if !session.state.CompareAndSwap(stateIdle, stateEvaluating) {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				settle(nil, &ConfigurationError{
					Reason: "unable to evaluate condition",
					Cause:  fmt.Errorf("panic: %v", r),
				})
			}
		}()

		value, err := cond(ctx)
		if err != nil {
			p.mu.Lock()
			p.lastFail = err
			p.mu.Unlock()
			p.logger.Debug("Condition check failed, retrying.", zap.Error(err))
			// Back to idle so the session's next tick can try again.
			// The failure reason is swallowed here; the caller only
			// ever sees a timeout if the condition never holds.
			session.state.Store(stateIdle)
			return
		}
		settle(value, nil)
	}()
}
