// Package api implements the typed HTTP dispatcher for the storefront
// backend: JSON request/response, multipart uploads, structured errors,
// and the one-shot 401 refresh-and-replay interceptor.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/merchkit/shopfront/internal/telemetry"
)

// TokenRefresher performs the token-refresh handshake against the backend.
// Implementations must not dispatch through the interceptor path.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// Reporter receives terminal request failures for user-visible notification.
// BadRequest and NotFound are never reported here; callers handle those
// contextually (empty states, "not found" pages).
type Reporter func(kind Kind, detail string)

// Client dispatches requests against a base URL. It is stateless per call;
// auth header attachment lives in the transport chain (session.Transport).
type Client struct {
	baseURL   string
	http      *http.Client
	refresher TokenRefresher
	onLogout  func(ctx context.Context)
	report    Reporter
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	group     singleflight.Group // coalesces concurrent token refreshes
}

// Option configures a Client.
type Option func(*Client)

// WithReporter sets the terminal-failure notification sink.
func WithReporter(r Reporter) Option {
	return func(c *Client) { c.report = r }
}

// WithMetrics enables request metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogoutHook sets the hook invoked when a token refresh fails
// (unrecoverable auth failure; the session must be cleared).
func WithLogoutHook(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.onLogout = fn }
}

// New creates a Client. The provided http.Client should carry the session
// bearer transport; a nil client falls back to http.DefaultClient settings.
func New(baseURL string, hc *http.Client, opts ...Option) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		tracer:  telemetry.Tracer("shopfront/api"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetRefresher installs the token refresher. Installed after construction
// because the refresher (the auth endpoint layer) itself depends on the
// client.
func (c *Client) SetRefresher(r TokenRefresher) {
	c.refresher = r
}

// Do dispatches a JSON request with the refresh-and-replay interceptor.
// On 401 it runs one token refresh and replays the original request exactly
// once; a second 401 is terminal. All terminal failures are reported to the
// notification sink before being returned.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.withReplay(ctx, method, path, query, body, contentTypeJSON, out)
}

// DoOnce dispatches a JSON request without the interceptor. Used by the
// token refresher itself and by callers that must not trigger a refresh.
func (c *Client) DoOnce(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.dispatch(ctx, method, path, query, body, contentTypeJSON, out)
}

// Upload sends a multipart form with one file part and optional extra
// fields. The multipart writer supplies the content type; the JSON header
// is deliberately not set so the boundary is correct.
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader, extra map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	// The body is fully buffered, so the interceptor can replay it.
	return c.withReplay(ctx, http.MethodPost, path, nil, buf.Bytes(), mw.FormDataContentType(), out)
}

const contentTypeJSON = "application/json"

// withReplay runs the 401 state machine around a single dispatch:
// Dispatched -> AuthFailed -> Refreshing -> Retried, with every other
// outcome terminal.
func (c *Client) withReplay(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	err := c.dispatch(ctx, method, path, query, body, contentType, out)
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && c.refresher != nil {
		if rerr := c.refreshToken(ctx); rerr == nil {
			// Replay once; the bearer transport reads the refreshed token.
			err = c.dispatch(ctx, method, path, query, body, contentType, out)
		}
		// Refresh failure falls through with the original 401; the logout
		// hook has already fired.
	}

	if err != nil {
		c.reportFailure(err)
	}
	return err
}

// refreshToken runs the refresher once, coalescing concurrent 401s into a
// single refresh call.
func (c *Client) refreshToken(ctx context.Context) error {
	_, err, _ := c.group.Do("token-refresh", func() (any, error) {
		err := c.refresher.Refresh(ctx)
		if c.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "failed"
			}
			c.metrics.RefreshAttempts.WithLabelValues(outcome).Inc()
		}
		if err != nil {
			// Unrecoverable: clear the session and tell the user, once.
			slog.Warn("token refresh failed, logging out", "error", err)
			if c.onLogout != nil {
				c.onLogout(ctx)
			}
			if c.report != nil {
				c.report(KindAuth, "session expired, please log in again")
			}
		}
		return nil, err
	})
	return err
}

// reportFailure surfaces a terminal failure to the notification sink.
// Contextual failures (400/404) and auth failures (already reported by the
// refresh path) are suppressed.
func (c *Client) reportFailure(err error) {
	if c.report == nil {
		return
	}
	kind := Classify(err)
	switch kind {
	case KindBadRequest, KindNotFound, KindAuth:
		return
	}
	c.report(kind, err.Error())
}

// dispatch performs one HTTP round trip.
func (c *Client) dispatch(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("X-Request-Id", uuid.Must(uuid.NewV7()).String())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.observe(method, start, 0)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.observe(method, start, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := ParseError(resp)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(method string, start time.Time, status int) {
	if c.metrics == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.metrics.RequestsTotal.WithLabelValues(method, label).Inc()
	c.metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
