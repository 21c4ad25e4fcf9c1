package health

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/taspa/console/internal/config"
	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/session"
)

// ConfigChecker validates the loaded configuration.
type ConfigChecker struct {
	cfg  *config.Config
	path string
}

// NewConfigChecker checks cfg, loaded from path.
func NewConfigChecker(cfg *config.Config, path string) *ConfigChecker {
	return &ConfigChecker{cfg: cfg, path: path}
}

func (c *ConfigChecker) Name() string { return "config" }

func (c *ConfigChecker) Check(context.Context) *Result {
	if c.cfg == nil {
		return Unhealthy("no configuration loaded").WithDetail("path", c.path)
	}
	if err := c.cfg.Validate(); err != nil {
		return Unhealthy(errors.Message(err)).
			WithDetail("path", c.path).
			WithDetail("code", string(errors.CodeOf(err)))
	}

	r := Healthy("configuration is valid").
		WithDetail("api_base", c.cfg.APIBase).
		WithDetail("path", c.path)
	if _, err := os.Stat(c.path); stderrors.Is(err, os.ErrNotExist) {
		r.WithDetail("source", "defaults")
	}
	return r
}

// Pinger is the API's unauthenticated liveness endpoint.
type Pinger interface {
	Health(ctx context.Context) error
}

// APIChecker checks that the API answers.
type APIChecker struct {
	api     Pinger
	baseURL string
}

// NewAPIChecker checks api, reachable at baseURL.
func NewAPIChecker(api Pinger, baseURL string) *APIChecker {
	return &APIChecker{api: api, baseURL: baseURL}
}

func (c *APIChecker) Name() string { return "api-reachable" }

func (c *APIChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	err := c.api.Health(ctx)
	latency := time.Since(start)
	if err != nil {
		return Unhealthy("API is not reachable").
			WithDetail("api_base", c.baseURL).
			WithDetail("error", errors.Message(err)).
			WithDetail("code", string(errors.CodeOf(err))).
			WithLatency(latency)
	}
	return Healthy("API is reachable").
		WithDetail("api_base", c.baseURL).
		WithLatency(latency)
}

// CredentialChecker inspects the stored access token.
type CredentialChecker struct {
	store credential.Store
	now   func() time.Time
}

// NewCredentialChecker inspects the token held by store.
func NewCredentialChecker(store credential.Store) *CredentialChecker {
	return &CredentialChecker{store: store, now: time.Now}
}

func (c *CredentialChecker) Name() string { return "credential" }

func (c *CredentialChecker) Check(context.Context) *Result {
	token, ok := c.store.Get()
	if !ok {
		return Degraded("no stored credential").
			WithDetail("suggestion", "Run 'taspa auth login'")
	}

	claims, err := credential.Inspect(token)
	if err != nil {
		// opaque tokens are valid; only the API can judge them
		return Healthy("credential present").
			WithDetail("format", "opaque")
	}

	r := Healthy("credential present").WithDetail("subject", claims.Subject)
	if claims.ExpiresAt.IsZero() {
		return r
	}
	now := c.now()
	if claims.Expired(now) {
		return Degraded("access token expired, the next call will refresh it").
			WithDetail("subject", claims.Subject).
			WithDetail("expired_ago", now.Sub(claims.ExpiresAt).Round(time.Second).String())
	}
	return r.WithDetail("expires_in", claims.ExpiresAt.Sub(now).Round(time.Second).String())
}

// SessionChecker reports the session state.
type SessionChecker struct {
	snapshot func() session.Snapshot
}

// NewSessionChecker reports what snapshot returns, typically
// Controller.Snapshot after Init.
func NewSessionChecker(snapshot func() session.Snapshot) *SessionChecker {
	return &SessionChecker{snapshot: snapshot}
}

func (c *SessionChecker) Name() string { return "session" }

func (c *SessionChecker) Check(context.Context) *Result {
	s := c.snapshot()
	switch {
	case s.Authenticated():
		return Healthy("signed in as "+s.User.Email).
			WithDetail("roles", s.User.Roles.String())
	case s.State.Resolved():
		return Degraded("not signed in").
			WithDetail("suggestion", "Run 'taspa auth login'")
	default:
		return Degraded("session is " + s.State.String())
	}
}
