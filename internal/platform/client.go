// Package platform is the TASPA API client. Every call goes through
// Client.Request, which attaches the bearer token and hides the
// refresh-and-retry protocol from callers.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/metrics"
	"github.com/taspa/console/internal/telemetry"
	"github.com/taspa/console/internal/version"
)

// DefaultTimeout bounds a single HTTP exchange when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const (
	refreshPath = "/auth/refresh"
	refreshKey  = "refresh"
)

// Request outcomes recorded in taspa_api_requests_total.
const (
	OutcomeOK       = "ok"
	OutcomeCanceled = "canceled"
)

// RequestOptions describes one logical API call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Body is JSON-encoded when non-nil.
	Body any
	// Header is merged over Content-Type: application/json.
	Header http.Header
	// SkipAuth sends the call without a bearer token and disables refresh.
	SkipAuth bool
}

// Client is the TASPA API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credential.Store
	logger     *log.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	userAgent  string

	// applied while building the default HTTP client
	timeout time.Duration
	jar     http.CookieJar
	tp      trace.TracerProvider

	refreshes singleflight.Group

	hooksMu sync.Mutex
	hooks   []func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Timeout and jar options still apply
// to a copy of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-exchange timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithJar sets the cookie jar that carries the refresh cookie.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider sets the tracer provider for client spans and the HTTP
// transport.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tp = tp }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for the API at baseURL that reads and writes the
// bearer token through store.
func NewClient(baseURL string, store credential.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		store:     store,
		timeout:   DefaultTimeout,
		userAgent: version.GetInfo().UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = log.OrDefault(c.logger).With("component", "platform")
	c.tracer = telemetry.Tracer(c.tp, telemetry.ScopePlatform)

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(c.tp)),
		}
	} else {
		hc := *c.httpClient
		c.httpClient = &hc
	}
	c.httpClient.Timeout = c.timeout
	if c.jar != nil {
		c.httpClient.Jar = c.jar
	}
	if c.httpClient.Jar == nil {
		c.httpClient.Jar = credential.NewJar("")
	}

	return c
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnUnauthorized registers fn to be called when a refresh fails and the
// credential has been cleared.
func (c *Client) OnUnauthorized(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) fireUnauthorized() {
	c.hooksMu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Request performs one logical API call. It returns the JSON body for a status
// in [200,399), nil for 204 or an empty body, and a structured error otherwise.
//
// A 401 (or transport failure) on an authenticated call triggers one token
// refresh and one retry. Concurrent refreshes are coalesced.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if opts.Body != nil {
		var err error
		body, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeHTTPEncode, "failed to encode request body", err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "platform.request", trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("api.path", path),
		attribute.Bool("api.auth", !opts.SkipAuth),
	))

	call := &call{
		method:    method,
		path:      path,
		body:      body,
		header:    opts.Header,
		auth:      !opts.SkipAuth,
		requestID: uuid.NewString(),
	}

	start := time.Now()
	result, err := c.do(ctx, call)
	c.metrics.ObserveRequest(method, outcome(err), time.Since(start))

	if err != nil {
		c.metrics.IncError(string(errors.CodeOf(err)))
		c.logger.WithContext(ctx).Debug("api call failed",
			"method", method,
			"path", path,
			"request_id", call.requestID,
			"error", err,
		)
	}
	telemetry.End(span, err, attribute.Bool("api.retried", call.retried))
	return result, err
}

type call struct {
	method    string
	path      string
	body      []byte
	header    http.Header
	auth      bool
	requestID string
	retried   bool
}

func (c *Client) do(ctx context.Context, call *call) (json.RawMessage, error) {
	var token string
	version := c.store.Version()
	if call.auth {
		token, _ = c.store.Get()
	}

	resp, err := c.send(ctx, call, token)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil && !call.auth:
		return nil, errors.NewTransportError(err)
	case err != nil:
		c.logger.WithContext(ctx).Debug("transport failure on authenticated call, refreshing",
			"path", call.path, "error", err)
	case resp.StatusCode != http.StatusUnauthorized || !call.auth:
		return readResult(resp)
	default:
		discard(resp)
	}

	fresh, err := c.refresh(ctx, token, version)
	if err != nil {
		return nil, err
	}

	call.retried = true
	c.metrics.IncRetry()
	resp, err = c.send(ctx, call, fresh)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTransportError(err)
	}
	return readResult(resp)
}

func (c *Client) send(ctx context.Context, call *call, token string) (*http.Response, error) {
	var reqBody io.Reader
	if call.body != nil {
		reqBody = bytes.NewReader(call.body)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, c.baseURL+call.path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range call.header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", call.requestID)
	if call.auth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// refresh returns a token to retry with. stale is the token the failed attempt
// carried and version the store version read before it. When the store
// already holds a different token, another caller has refreshed in the
// meantime and no new exchange is made. When it was emptied since version the
// session has ended and no exchange is made either.
func (c *Client) refresh(ctx context.Context, stale string, version uint64) (string, error) {
	current, ok := c.store.Get()
	switch {
	case ok && current != stale:
		c.metrics.IncRefresh(metrics.RefreshShared)
		return current, nil
	case !ok && c.store.Version() != version:
		return "", errors.NewUnauthorizedError()
	}

	ch := c.refreshes.DoChan(refreshKey, func() (any, error) {
		return c.exchange(context.WithoutCancel(ctx), version)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// exchange trades the refresh cookie for a new access token. The result is
// only stored if the credential is still at version; a sign-out or sign-in in
// between wins over the exchange. On failure the credential is cleared and
// unauthorized hooks fire, once per exchange.
func (c *Client) exchange(ctx context.Context, version uint64) (string, error) {
	ctx, span := c.tracer.Start(ctx, "platform.refresh")

	token, err := c.fetchToken(ctx)
	if err != nil {
		telemetry.End(span, err)
		c.metrics.IncRefresh(metrics.RefreshFailure)
		c.logger.WithContext(ctx).Warn("token refresh failed, clearing credential", "error", err)

		cleared, clearErr := c.store.SetIf(version, "")
		if clearErr != nil {
			c.logger.WithError(clearErr).Warn("failed to clear credential")
		}
		if cleared {
			c.fireUnauthorized()
		}
		return "", errors.NewUnauthorizedError()
	}

	stored, err := c.store.SetIf(version, token)
	if err != nil {
		c.logger.WithError(err).Warn("failed to persist refreshed credential")
	}
	if !stored {
		c.metrics.IncRefresh(metrics.RefreshDiscarded)
		c.logger.WithContext(ctx).Info("credential changed during refresh, discarding refreshed token")
		telemetry.End(span, nil, attribute.Bool("refresh.discarded", true))
		if current, ok := c.store.Get(); ok {
			return current, nil
		}
		return "", errors.NewUnauthorizedError()
	}
	c.metrics.IncRefresh(metrics.RefreshSuccess)
	telemetry.End(span, nil)
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, &call{
		method:    http.MethodPost,
		path:      refreshPath,
		requestID: uuid.NewString(),
	}, "")
	if err != nil {
		return "", errors.NewTransportError(err)
	}

	raw, err := readResult(resp)
	if err != nil {
		return "", err
	}

	var tr TokenResponse
	if err := Decode(raw, SchemaToken, &tr); err != nil {
		return "", err
	}
	return tr.AccessToken, nil
}

// readResult consumes resp and maps it to a result or a structured error.
func readResult(resp *http.Response) (json.RawMessage, error) {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, errors.NewStatusError(resp.StatusCode, string(data))
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errors.NewSchemaError("JSON", fmt.Errorf("status %d body is not JSON", resp.StatusCode))
	}
	return json.RawMessage(data), nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	}
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
