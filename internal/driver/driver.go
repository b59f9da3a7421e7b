// internal/driver/driver.go
package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gridpilot/gridpilot/internal/config"
	"github.com/gridpilot/gridpilot/internal/wire"
)

// Floors applied to WaitUntil parameters so a mistyped duration cannot
// spin the poller or return before the first check.
const (
	minWaitTotal    = 500 * time.Millisecond
	minPollInterval = 100 * time.Millisecond
)

// Commands is the wire-protocol surface the driver composes over. One
// call per logical remote action; each blocks until the hub answers or
// the context is cancelled. *wire.Client implements it.
type Commands interface {
	NewSession(ctx context.Context, caps map[string]any) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	NavigateTo(ctx context.Context, sessionID, pageURL string) error
	CurrentURL(ctx context.Context, sessionID string) (string, error)
	Title(ctx context.Context, sessionID string) (string, error)
	PageSource(ctx context.Context, sessionID string) (string, error)
	FindElement(ctx context.Context, sessionID, using, value string) (wire.ElementID, error)
	ElementClick(ctx context.Context, sessionID string, el wire.ElementID) error
	ElementSendKeys(ctx context.Context, sessionID string, el wire.ElementID, text string) error
	ElementText(ctx context.Context, sessionID string, el wire.ElementID) (string, error)
	MovePointer(ctx context.Context, sessionID string, x, y int) error
	ExecuteScript(ctx context.Context, sessionID, script string, args []any) (any, error)
	TakeScreenshot(ctx context.Context, sessionID string) ([]byte, error)
}

var _ Commands = (*wire.Client)(nil)

// Driver is the caller-facing façade over the wire client. Every
// remote action follows the same shape: delegate to the wire client,
// then bound the pending work with the configured command timeout and
// an action-specific message.
type Driver struct {
	commands Commands
	clk      clock.Clock
	logger   *zap.Logger

	timeout      time.Duration
	waitTotal    time.Duration
	pollInterval time.Duration

	capabilities map[string]any

	lastPoll atomic.Pointer[Poller]

	mu        sync.Mutex
	sessionID string
}

// New creates a Driver using the wall clock.
func New(commands Commands, cfg config.DriverConfig, logger *zap.Logger) *Driver {
	return NewWithClock(commands, cfg, logger, clock.New())
}

// NewWithClock creates a Driver scheduling all deadlines and polls on
// clk. Tests inject a controlled clock here.
func NewWithClock(commands Commands, cfg config.DriverConfig, logger *zap.Logger, clk clock.Clock) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		commands:     commands,
		clk:          clk,
		logger:       logger.Named("driver"),
		timeout:      cfg.CommandTimeout,
		waitTotal:    cfg.WaitTotal,
		pollInterval: cfg.PollInterval,
	}
}

// SetCapabilities sets the capabilities requested when Start creates
// the remote session. Must be called before Start.
func (d *Driver) SetCapabilities(caps map[string]any) {
	d.capabilities = caps
}

// guarded applies the driver's command timeout to one delegated action.
func guarded[T any](d *Driver, msg string, op func() (T, error)) (T, error) {
	return bound(d.clk, d.timeout, msg, op)
}

// session returns the active session id.
func (d *Driver) session() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessionID == "" {
		return "", fmt.Errorf("no active session: call Start first")
	}
	return d.sessionID, nil
}

// Start creates the remote browser session.
func (d *Driver) Start(ctx context.Context) error {
	id, err := guarded(d, "create session", func() (string, error) {
		return d.commands.NewSession(ctx, d.capabilities)
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.sessionID = id
	d.mu.Unlock()
	d.logger.Info("Session started.", zap.String("session_id", id))
	return nil
}

// Quit releases the remote session. Safe to call when no session is
// active.
func (d *Driver) Quit(ctx context.Context) error {
	d.mu.Lock()
	id := d.sessionID
	d.sessionID = ""
	d.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := guarded(d, "delete session", func() (struct{}, error) {
		return struct{}{}, d.commands.DeleteSession(ctx, id)
	})
	return err
}

// SessionID returns the active session id, or "" when none is active.
func (d *Driver) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Navigate opens the given URL in the session.
func (d *Driver) Navigate(ctx context.Context, pageURL string) error {
	sid, err := d.session()
	if err != nil {
		return err
	}
	_, err = guarded(d, fmt.Sprintf("open %q", pageURL), func() (struct{}, error) {
		return struct{}{}, d.commands.NavigateTo(ctx, sid, pageURL)
	})
	return err
}

// CurrentURL returns the URL the session is currently on.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	sid, err := d.session()
	if err != nil {
		return "", err
	}
	return guarded(d, "read current url", func() (string, error) {
		return d.commands.CurrentURL(ctx, sid)
	})
}

// Title returns the current page title.
func (d *Driver) Title(ctx context.Context) (string, error) {
	sid, err := d.session()
	if err != nil {
		return "", err
	}
	return guarded(d, "read page title", func() (string, error) {
		return d.commands.Title(ctx, sid)
	})
}

// PageSource returns the serialized DOM of the current page.
func (d *Driver) PageSource(ctx context.Context) (string, error) {
	sid, err := d.session()
	if err != nil {
		return "", err
	}
	return guarded(d, "read page source", func() (string, error) {
		return d.commands.PageSource(ctx, sid)
	})
}

// FindElement locates a single element with the given strategy; see
// the wire.By* constants.
func (d *Driver) FindElement(ctx context.Context, using, value string) (wire.ElementID, error) {
	sid, err := d.session()
	if err != nil {
		return "", err
	}
	return guarded(d, fmt.Sprintf("find element %q", value), func() (wire.ElementID, error) {
		return d.commands.FindElement(ctx, sid, using, value)
	})
}

// Click clicks a previously located element.
func (d *Driver) Click(ctx context.Context, el wire.ElementID) error {
	sid, err := d.session()
	if err != nil {
		return err
	}
	_, err = guarded(d, "click element", func() (struct{}, error) {
		return struct{}{}, d.commands.ElementClick(ctx, sid, el)
	})
	return err
}

// SendKeys types text into a previously located element.
func (d *Driver) SendKeys(ctx context.Context, el wire.ElementID, text string) error {
	sid, err := d.session()
	if err != nil {
		return err
	}
	_, err = guarded(d, "send keys", func() (struct{}, error) {
		return struct{}{}, d.commands.ElementSendKeys(ctx, sid, el, text)
	})
	return err
}

// ElementText returns the rendered text of a located element.
func (d *Driver) ElementText(ctx context.Context, el wire.ElementID) (string, error) {
	sid, err := d.session()
	if err != nil {
		return "", err
	}
	return guarded(d, "read element text", func() (string, error) {
		return d.commands.ElementText(ctx, sid, el)
	})
}

// MovePointer moves the pointer to viewport coordinates (x, y).
func (d *Driver) MovePointer(ctx context.Context, x, y int) error {
	sid, err := d.session()
	if err != nil {
		return err
	}
	_, err = guarded(d, fmt.Sprintf("move pointer to (%d, %d)", x, y), func() (struct{}, error) {
		return struct{}{}, d.commands.MovePointer(ctx, sid, x, y)
	})
	return err
}

// ExecuteScript runs a script in the page and returns its result.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args []any) (any, error) {
	sid, err := d.session()
	if err != nil {
		return nil, err
	}
	return guarded(d, "execute script", func() (any, error) {
		return d.commands.ExecuteScript(ctx, sid, script, args)
	})
}

// Wait settles successfully after dur elapses. Pure delay: one timer,
// no condition, no sharing between concurrent calls.
func (d *Driver) Wait(ctx context.Context, dur time.Duration) error {
	timer := d.clk.Timer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntil re-evaluates cond every interval until it succeeds or
// total elapses, and returns the successful condition's value. Zero
// durations take the configured defaults; total is floored at 500ms
// and interval at 100ms. Each call owns a fresh poll session whose
// schedule is cancelled when the result settles, on every path.
//
// Failed intermediate checks are swallowed; if the condition never
// holds the caller sees only a TimeoutError. The reason for the most
// recent failed check remains available via LastWaitFailure.
func (d *Driver) WaitUntil(ctx context.Context, cond Condition, total, interval time.Duration) (any, error) {
	if cond == nil {
		return nil, &ConfigurationError{Reason: "condition callback is nil"}
	}
	if total <= 0 {
		total = d.waitTotal
	}
	if interval <= 0 {
		interval = d.pollInterval
	}
	if total < minWaitTotal {
		total = minWaitTotal
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}

	poller := NewPoller(d.clk, d.logger)
	d.lastPoll.Store(poller)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel() // tears down the poll schedule on every settle path

	return bound(d.clk, total, "condition not met", func() (any, error) {
		return poller.Run(pollCtx, cond, interval)
	})
}

// LastWaitFailure returns the error from the most recent failed
// condition check of the latest WaitUntil call, or nil. Diagnostic
// only; WaitUntil's returned error is unaffected.
func (d *Driver) LastWaitFailure() error {
	if p := d.lastPoll.Load(); p != nil {
		return p.LastFailure()
	}
	return nil
}
