// internal/driver/poller_test.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPoller() *Poller {
	return NewPoller(clock.New(), zap.NewNop())
}

func TestPollerNilConditionIsConfigurationError(t *testing.T) {
	p := newTestPoller()

	_, err := p.Run(context.Background(), nil, 20*time.Millisecond)

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestPollerRejectsConcurrentRun(t *testing.T) {
	p := newTestPoller()
	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)

	go func() {
		_, err := p.Run(ctx, func(context.Context) (any, error) {
			return nil, errors.New("not yet")
		}, 20*time.Millisecond)
		firstDone <- err
	}()

	// Give the first session time to start.
	require.Eventually(t, p.running.Load, time.Second, 5*time.Millisecond)

	_, err := p.Run(ctx, func(context.Context) (any, error) { return true, nil }, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)
}

func TestPollerRetriesUntilSuccess(t *testing.T) {
	p := newTestPoller()
	var calls atomic.Int32

	value, err := p.Run(context.Background(), func(context.Context) (any, error) {
		if n := calls.Add(1); n < 4 {
			return nil, fmt.Errorf("attempt %d failed", n)
		}
		return 42, nil
	}, 20*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, int32(4), calls.Load())
	// The swallowed reason of the last failed attempt stays inspectable.
	assert.EqualError(t, p.LastFailure(), "attempt 3 failed")
}

func TestPollerNeverOverlapsEvaluations(t *testing.T) {
	p := newTestPoller()
	var inFlight, maxInFlight, calls atomic.Int32

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx, func(context.Context) (any, error) {
		calls.Add(1)
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		// Slow check relative to the 10ms interval: ticks must be
		// skipped while this sleeps.
		time.Sleep(60 * time.Millisecond)
		return nil, errors.New("still failing")
	}, 10*time.Millisecond)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), maxInFlight.Load(), "evaluations overlapped")
	assert.GreaterOrEqual(t, calls.Load(), int32(2))

	// Let the final in-flight check drain before goleak runs.
	require.Eventually(t, func() bool { return inFlight.Load() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPollerPanicIsFatal(t *testing.T) {
	p := newTestPoller()
	var calls atomic.Int32

	start := time.Now()
	_, err := p.Run(context.Background(), func(context.Context) (any, error) {
		calls.Add(1)
		panic("condition blew up")
	}, 20*time.Millisecond)

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "unable to evaluate condition")
	assert.Contains(t, err.Error(), "condition blew up")
	assert.Less(t, time.Since(start), time.Second, "fatal errors must not wait out the schedule")

	// Fatal means no retry.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollerStopsCheckingAfterSettlement(t *testing.T) {
	p := newTestPoller()
	var calls atomic.Int32

	value, err := p.Run(context.Background(), func(context.Context) (any, error) {
		calls.Add(1)
		return "ready", nil
	}, 20*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "ready", value)

	settled := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, calls.Load(), "schedule kept firing after settlement")
}

func TestPollerStopsCheckingAfterCancellation(t *testing.T) {
	p := newTestPoller()
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	_, err := p.Run(ctx, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("never ready")
	}, 20*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)

	settled := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, calls.Load(), "schedule kept firing after cancellation")
}

func TestPollerRejectsNonPositiveInterval(t *testing.T) {
	p := newTestPoller()

	for _, interval := range []time.Duration{0, -time.Second} {
		_, err := p.Run(context.Background(), func(context.Context) (any, error) { return true, nil }, interval)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce, "interval %s", interval)
	}

	// The poller stays usable afterwards.
	value, err := p.Run(context.Background(), func(context.Context) (any, error) { return true, nil }, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestPollerSingleFlightAcrossReusedSessions(t *testing.T) {
	p := newTestPoller()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	firstRunDone := make(chan struct{})

	ctx1, cancel1 := context.WithCancel(context.Background())
	go func() {
		defer close(firstRunDone)
		_, _ = p.Run(ctx1, func(context.Context) (any, error) {
			close(firstStarted)
			<-releaseFirst
			return nil, errors.New("first session check finished late")
		}, 20*time.Millisecond)
	}()

	// Cancel the first session while its only check is still in flight.
	<-firstStarted
	cancel1()
	<-firstRunDone

	// Second session on the same Poller: slow checks at a fast
	// interval. Its overlap guard must be untouched by the first
	// session's straggler.
	var inFlight, maxInFlight atomic.Int32
	var startedOnce sync.Once
	secondStarted := make(chan struct{})
	secondRunDone := make(chan error, 1)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel2()
	go func() {
		_, err := p.Run(ctx2, func(context.Context) (any, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				prev := maxInFlight.Load()
				if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
					break
				}
			}
			startedOnce.Do(func() { close(secondStarted) })
			time.Sleep(120 * time.Millisecond)
			return nil, errors.New("still failing")
		}, 20*time.Millisecond)
		secondRunDone <- err
	}()

	// Let the stale first-session check settle while the second
	// session has a check outstanding.
	<-secondStarted
	close(releaseFirst)

	require.ErrorIs(t, <-secondRunDone, context.DeadlineExceeded)
	assert.Equal(t, int32(1), maxInFlight.Load(), "a stale session re-armed the overlap guard")

	// Let the final in-flight check drain before goleak runs.
	require.Eventually(t, func() bool { return inFlight.Load() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPollerIsReusableAfterASessionEnds(t *testing.T) {
	p := newTestPoller()

	_, err := p.Run(context.Background(), func(context.Context) (any, error) {
		return 1, nil
	}, 20*time.Millisecond)
	require.NoError(t, err)

	value, err := p.Run(context.Background(), func(context.Context) (any, error) {
		return 2, nil
	}, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
}
