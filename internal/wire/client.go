// internal/wire/client.go
package wire

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gridpilot/gridpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client speaks the hub's HTTP protocol: it builds command URLs,
// serializes JSON bodies, and decodes the value/error envelopes the
// remote end answers with. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewClient builds a Client from hub configuration.
func NewClient(cfg config.HubConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL(), "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger.Named("wire"),
		limiter: limiter,
	}
}

// NewClientForURL builds a Client against an explicit endpoint. Used
// by tests that stand up a fake hub.
func NewClientForURL(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger.Named("wire"),
	}
}

// envelope is the success wrapper every protocol response carries.
type envelope struct {
	Value jsoniter.RawMessage `json:"value"`
}

// errorValue is the protocol's error document, nested under "value".
type errorValue struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

// do performs one command exchange. A nil body on POST is sent as an
// empty JSON object since hubs reject bodyless POSTs. The decoded
// "value" member is unmarshaled into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else if method == http.MethodPost {
		payload = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("Hub command exchange.",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProtocolError(raw, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}

	if out != nil {
		if err := json.Unmarshal(env.Value, out); err != nil {
			return fmt.Errorf("decode response value: %w", err)
		}
	}
	return nil
}

// decodeProtocolError maps an error response to a ProtocolError. The
// body is decoded leniently: anything that is not the protocol's error
// document (an HTML 502 from a proxy in front of the hub, say) still
// surfaces the HTTP status instead of a decode failure.
func decodeProtocolError(raw []byte, status int) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		var ev errorValue
		if err := json.Unmarshal(env.Value, &ev); err == nil && ev.Error != "" {
			return &ProtocolError{Code: ev.Error, Message: ev.Message, Status: status}
		}
	}
	return &ProtocolError{Code: CodeUnknownError, Message: string(raw), Status: status}
}

func sessionPath(sessionID, suffix string) string {
	return "/session/" + url.PathEscape(sessionID) + suffix
}

func elementPath(sessionID string, el ElementID, suffix string) string {
	return sessionPath(sessionID, "/element/"+url.PathEscape(string(el))+suffix)
}

// Status reports whether the hub is ready to accept new sessions.
func (c *Client) Status(ctx context.Context) (bool, error) {
	var v struct {
		Ready bool `json:"ready"`
	}
	if err := c.do(ctx, http.MethodGet, "/status", nil, &v); err != nil {
		return false, err
	}
	return v.Ready, nil
}

// NewSession asks the hub for a fresh browser session and returns its id.
func (c *Client) NewSession(ctx context.Context, caps map[string]any) (string, error) {
	if caps == nil {
		caps = map[string]any{}
	}
	body := map[string]any{
		"capabilities": map[string]any{"alwaysMatch": caps},
	}
	var v struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", body, &v); err != nil {
		return "", err
	}
	if v.SessionID == "" {
		return "", &ProtocolError{Code: CodeSessionNotCreated, Message: "hub returned no session id"}
	}
	return v.SessionID, nil
}

// DeleteSession releases the remote session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID, ""), nil, nil)
}

// NavigateTo points the session at the given URL.
func (c *Client) NavigateTo(ctx context.Context, sessionID, pageURL string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/url"), map[string]string{"url": pageURL}, nil)
}

// CurrentURL returns the URL the session is currently on.
func (c *Client) CurrentURL(ctx context.Context, sessionID string) (string, error) {
	var v string
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/url"), nil, &v)
	return v, err
}

// Title returns the current page title.
func (c *Client) Title(ctx context.Context, sessionID string) (string, error) {
	var v string
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/title"), nil, &v)
	return v, err
}

// PageSource returns the serialized DOM of the current page.
func (c *Client) PageSource(ctx context.Context, sessionID string) (string, error) {
	var v string
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/source"), nil, &v)
	return v, err
}

// FindElement locates a single element with the given strategy.
func (c *Client) FindElement(ctx context.Context, sessionID, using, value string) (ElementID, error) {
	body := map[string]string{"using": using, "value": value}
	var v map[string]string
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/element"), body, &v); err != nil {
		return "", err
	}
	ref := v[w3cElementKey]
	if ref == "" {
		return "", &ProtocolError{Code: CodeNoSuchElement, Message: "response missing element reference"}
	}
	return ElementID(ref), nil
}

// ElementClick clicks the element.
func (c *Client) ElementClick(ctx context.Context, sessionID string, el ElementID) error {
	return c.do(ctx, http.MethodPost, elementPath(sessionID, el, "/click"), nil, nil)
}

// ElementSendKeys types text into the element.
func (c *Client) ElementSendKeys(ctx context.Context, sessionID string, el ElementID, text string) error {
	return c.do(ctx, http.MethodPost, elementPath(sessionID, el, "/value"), map[string]string{"text": text}, nil)
}

// ElementText returns the element's rendered text.
func (c *Client) ElementText(ctx context.Context, sessionID string, el ElementID) (string, error) {
	var v string
	err := c.do(ctx, http.MethodGet, elementPath(sessionID, el, "/text"), nil, &v)
	return v, err
}

// MovePointer dispatches a pointer-move action sequence to viewport
// coordinates (x, y).
func (c *Client) MovePointer(ctx context.Context, sessionID string, x, y int) error {
	body := map[string]any{
		"actions": []any{
			map[string]any{
				"type":       "pointer",
				"id":         "mouse",
				"parameters": map[string]string{"pointerType": "mouse"},
				"actions": []any{
					map[string]any{"type": "pointerMove", "duration": 100, "x": x, "y": y},
				},
			},
		},
	}
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/actions"), body, nil)
}

// ExecuteScript runs a script synchronously in the page and returns
// its result.
func (c *Client) ExecuteScript(ctx context.Context, sessionID, script string, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}
	body := map[string]any{"script": script, "args": args}
	var v any
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/execute/sync"), body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// TakeScreenshot captures the viewport and returns the decoded PNG bytes.
func (c *Client) TakeScreenshot(ctx context.Context, sessionID string) ([]byte, error) {
	var encoded string
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/screenshot"), nil, &encoded); err != nil {
		return nil, err
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot payload: %w", err)
	}
	return img, nil
}
