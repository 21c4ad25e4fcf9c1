package session

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/metrics"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/telemetry"
)

// DefaultLogoutTimeout bounds the detached server-side logout call.
const DefaultLogoutTimeout = 5 * time.Second

var errSignedOut = errors.New(errors.ErrCodeSessionState, "Signed out before the operation finished")

// API is the part of the platform client the controller needs.
type API interface {
	Login(ctx context.Context, email, password string) (*platform.TokenResponse, error)
	Me(ctx context.Context) (*platform.Identity, error)
	UpdateMe(ctx context.Context, update platform.ProfileUpdate) error
	Logout(ctx context.Context, token string) error
}

// CookieResetter forgets the refresh cookie after logout.
type CookieResetter interface {
	Reset() error
}

// Controller owns the session state machine.
type Controller struct {
	api           API
	store         credential.Store
	jar           CookieResetter
	logger        *log.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	tp            trace.TracerProvider
	logoutTimeout time.Duration

	// opMu serializes Init, Login, RefreshUser and UpdateProfile. Logout and
	// Expire do not take it; they end the session under mu and bump epoch,
	// and an operation that started before the bump drops its result.
	opMu sync.Mutex

	mu      sync.RWMutex
	epoch   uint64
	state   State
	user    *User
	subs    map[int]chan Snapshot
	nextSub int

	detached sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Controller) { c.tp = tp }
}

// WithCookieJar makes Logout reset jar once the server call has finished.
func WithCookieJar(jar CookieResetter) Option {
	return func(c *Controller) { c.jar = jar }
}

// WithLogoutTimeout bounds the detached logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(c *Controller) { c.logoutTimeout = d }
}

// New creates a controller in StateUnknown. Call Init to resolve it.
func New(api API, store credential.Store, opts ...Option) *Controller {
	c := &Controller{
		api:           api,
		store:         store,
		logoutTimeout: DefaultLogoutTimeout,
		subs:          make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "session")
	c.tracer = telemetry.Tracer(c.tp, telemetry.ScopeSession)
	return c
}

// Init resolves the session at start. Without a stored credential it settles
// on StateUnauthenticated with no network call. Otherwise it restores the
// identity; any failure clears the credential, except cancellation of ctx.
func (c *Controller) Init(ctx context.Context) Snapshot {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	epoch := c.currentEpoch()
	if _, ok := c.store.Get(); !ok {
		c.commit(epoch, StateUnauthenticated, nil, false)
		return c.Snapshot()
	}

	ctx, span := c.tracer.Start(ctx, "session.restore")
	c.commit(epoch, StateRestoring, nil, false)

	user, err := c.fetchUser(ctx)
	switch {
	case err == nil:
		c.commit(epoch, StateAuthenticated, user, false)
	case ctx.Err() != nil:
		c.logger.WithContext(ctx).Debug("session restore canceled")
		c.commit(epoch, StateUnauthenticated, nil, false)
	default:
		c.logger.WithContext(ctx).WithError(err).Info("session restore failed, signing out")
		c.commit(epoch, StateUnauthenticated, nil, true)
	}
	telemetry.End(span, err, attribute.String("session.state", c.Snapshot().State.String()))
	return c.Snapshot()
}

// Login signs in. On success the credential is stored, the identity fetched,
// and the caller gets the role set for its first navigation. On any failure
// the credential is cleared and the session is unauthenticated.
func (c *Controller) Login(ctx context.Context, email, password string) LoginResult {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	epoch := c.currentEpoch()
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		c.commit(epoch, StateUnauthenticated, nil, true)
		return LoginResult{Error: "Email and password are required"}
	}

	ctx, span := c.tracer.Start(ctx, "session.login")
	result, err := c.login(ctx, epoch, email, password)
	c.metrics.IncLogin(result.OK)
	telemetry.End(span, err)
	return result
}

func (c *Controller) login(ctx context.Context, epoch uint64, email, password string) (LoginResult, error) {
	fail := func(err error) (LoginResult, error) {
		c.logger.WithContext(ctx).WithError(err).Info("login failed", "email", email)
		c.commit(epoch, StateUnauthenticated, nil, true)
		return LoginResult{Error: errors.Message(err)}, err
	}

	tr, err := c.api.Login(ctx, email, password)
	if err != nil {
		return fail(err)
	}
	if !c.storeCredential(epoch, tr.AccessToken) {
		return fail(errSignedOut)
	}

	user, err := c.fetchUser(ctx)
	if err != nil {
		return fail(err)
	}

	if !c.commit(epoch, StateAuthenticated, user, false) {
		return fail(errSignedOut)
	}
	c.logger.WithContext(ctx).Info("signed in", "email", user.Email, "roles", user.Roles.String())
	return LoginResult{OK: true, Roles: append(authz.Roles(nil), user.Roles...)}, nil
}

// Logout signs out. Local state is cleared before it returns, without waiting
// for an operation in flight; that operation's result is dropped. The server
// call runs detached with its own timeout and its failure is only logged.
func (c *Controller) Logout() {
	c.mu.Lock()
	c.epoch++
	token, _ := c.store.Get()
	c.clearCredential()
	c.setLocked(StateUnauthenticated, nil)
	c.mu.Unlock()

	c.detached.Add(1)
	go func() {
		defer c.detached.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.logoutTimeout)
		defer cancel()

		if err := c.api.Logout(ctx, token); err != nil {
			c.metrics.IncDetachedFailure("logout")
			c.logger.WithError(err).Warn("server logout failed")
		}
		if c.jar != nil {
			if err := c.jar.Reset(); err != nil {
				c.logger.WithError(err).Warn("failed to reset cookie jar")
			}
		}
	}()
}

// RefreshUser re-fetches the identity and replaces the user wholesale. An
// Unauthorized failure also drops the session; any other failure leaves it as
// it was. Both are returned.
func (c *Controller) RefreshUser(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	epoch := c.currentEpoch()
	ctx, span := c.tracer.Start(ctx, "session.refresh_user")
	err := c.refreshUser(ctx, epoch)
	telemetry.End(span, err)
	return err
}

func (c *Controller) refreshUser(ctx context.Context, epoch uint64) error {
	user, err := c.fetchUser(ctx)
	if err != nil {
		if stderrors.Is(err, errors.ErrUnauthorized) {
			c.commit(epoch, StateUnauthenticated, nil, false)
		}
		return err
	}
	if !c.commit(epoch, StateAuthenticated, user, false) {
		return errSignedOut
	}
	return nil
}

// UpdateProfile saves profile fields and then refreshes the user.
func (c *Controller) UpdateProfile(ctx context.Context, update platform.ProfileUpdate) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	epoch := c.currentEpoch()
	if !c.Snapshot().Authenticated() {
		return errors.New(errors.ErrCodeSessionState, "not signed in").
			WithSuggestion("Run 'taspa auth login' first")
	}

	ctx, span := c.tracer.Start(ctx, "session.update_profile")
	err := c.api.UpdateMe(ctx, update)
	if err == nil {
		err = c.refreshUser(ctx, epoch)
	} else if stderrors.Is(err, errors.ErrUnauthorized) {
		c.commit(epoch, StateUnauthenticated, nil, false)
	}
	telemetry.End(span, err)
	return err
}

// Expire drops the session after an irrecoverable authorization failure. The
// platform client calls it once the credential is already gone.
func (c *Controller) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	if c.state == StateUnauthenticated {
		return
	}
	c.logger.Info("session expired")
	c.setLocked(StateUnauthenticated, nil)
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{State: c.state, User: c.user.clone()}
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. A slow reader only sees the latest snapshot. Call the
// returned function to unsubscribe; it closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- Snapshot{State: c.state, User: c.user.clone()}
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Wait blocks until detached calls (the server logout) have finished or ctx
// is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.detached.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) fetchUser(ctx context.Context) (*User, error) {
	id, err := c.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	return userFromIdentity(id)
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// commit applies the outcome of an operation that started at epoch, clearing
// the credential first when clear is set. It does nothing and returns false
// once Logout or Expire has ended the session since.
func (c *Controller) commit(epoch uint64, state State, user *User, clear bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	if clear {
		c.clearCredential()
	}
	c.setLocked(state, user)
	return true
}

// storeCredential writes token unless the session ended since epoch.
func (c *Controller) storeCredential(epoch uint64, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	if err := c.store.Set(token); err != nil {
		c.logger.WithError(err).Warn("failed to persist credential, session will not survive restart")
	}
	return true
}

func (c *Controller) clearCredential() {
	if err := c.store.Clear(); err != nil {
		c.logger.WithError(err).Warn("failed to clear credential")
	}
}

func (c *Controller) setLocked(state State, user *User) {
	from := c.state
	c.state = state
	c.user = user

	if from != state {
		c.metrics.IncTransition(from.String(), state.String())
	}

	snap := Snapshot{State: state, User: user.clone()}
	for _, ch := range c.subs {
		// keep only the latest snapshot for slow readers
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
