package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"netmap/internal/mapview"
)

// Transport persists node positions on the server.
type Transport interface {
	UpdatePosition(ctx context.Context, view mapview.MapView, node string, pos mapview.Position) error
}

// StatusError is a completed request the server did not accept.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// positionUpdate is the wire body. Coordinates travel as strings; the server coerces.
type positionUpdate struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type TransportOptions struct {
	BaseURL     string
	Client      *http.Client
	MaxAttempts int
	Backoff     time.Duration
}

// HTTPTransport talks to the netmap server over HTTP.
type HTTPTransport struct {
	log         zerolog.Logger
	base        string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
}

func NewHTTPTransport(log zerolog.Logger, opts TransportOptions) *HTTPTransport {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &HTTPTransport{
		log:         log,
		base:        strings.TrimSuffix(opts.BaseURL, "/"),
		client:      client,
		maxAttempts: attempts,
		backoff:     backoff,
	}
}

func (t *HTTPTransport) UpdatePosition(ctx context.Context, view mapview.MapView, node string, pos mapview.Position) error {
	path, err := view.UpdatePath(node)
	if err != nil {
		return err
	}
	body, err := json.Marshal(positionUpdate{X: strconv.Itoa(pos.X), Y: strconv.Itoa(pos.Y)})
	if err != nil {
		return err
	}
	return t.withRetry(ctx, http.MethodPost, path, func() error {
		_, err := t.do(ctx, http.MethodPost, path, body)
		return err
	})
}

// NodeList is the selectable content of one map.
type NodeList struct {
	Map      string   `json:"map"`
	Routers  []Option `json:"routers"`
	Networks []Option `json:"networks"`
}

// ListNodes fetches the routers and networks of mapID for the selectors.
func (t *HTTPTransport) ListNodes(ctx context.Context, mapID string) (NodeList, error) {
	path := "/api/v1/maps/" + url.PathEscape(mapID) + "/nodes"
	var out NodeList
	err := t.withRetry(ctx, http.MethodGet, path, func() error {
		b, err := t.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &out)
	})
	return out, err
}

func (t *HTTPTransport) withRetry(ctx context.Context, method, path string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || attempt >= t.maxAttempts || !retryable(ctx, err) {
			return err
		}
		wait := backoffDuration(t.backoff, attempt-1)
		t.log.Warn().Err(err).Str("method", method).Str("path", path).Int("attempt", attempt).Dur("retry_in", wait).Msg("request failed, retrying")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(b)}
	}
	return b, nil
}

// errorMessage extracts the message of the server's error envelope, if any.
func errorMessage(b []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return ""
	}
	return env.Error.Message
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	return true
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	if failures > 5 {
		failures = 5
	}
	d := base * time.Duration(1<<failures)
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}
