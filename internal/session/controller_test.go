package session

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/metrics"
	"github.com/taspa/console/internal/platform"
)

// fakeAPI is a scripted API. Identity is returned by Me while meErr is nil.
type fakeAPI struct {
	mu        sync.Mutex
	token     string
	loginErr  error
	identity  *platform.Identity
	meErr     error
	updateErr error
	logoutErr error

	loginGate chan struct{}
	meGate    chan struct{}

	loginCalls  atomic.Int32
	meCalls     atomic.Int32
	logoutCalls atomic.Int32
	logoutToken atomic.Value
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (*platform.TokenResponse, error) {
	f.loginCalls.Add(1)
	if f.loginGate != nil {
		<-f.loginGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &platform.TokenResponse{AccessToken: f.token}, nil
}

func (f *fakeAPI) Me(ctx context.Context) (*platform.Identity, error) {
	f.meCalls.Add(1)
	if f.meGate != nil {
		<-f.meGate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	id := *f.identity
	return &id, nil
}

func (f *fakeAPI) UpdateMe(ctx context.Context, update platform.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if update.FirstName != nil {
		f.identity.FirstName = update.FirstName
	}
	if update.LastName != nil {
		f.identity.LastName = update.LastName
	}
	return nil
}

func (f *fakeAPI) Logout(ctx context.Context, token string) error {
	f.logoutCalls.Add(1)
	f.logoutToken.Store(token)
	return f.logoutErr
}

func (f *fakeAPI) setMeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meErr = err
}

type fakeJar struct{ resets atomic.Int32 }

func (j *fakeJar) Reset() error {
	j.resets.Add(1)
	return nil
}

func newFake(roles ...string) *fakeAPI {
	return &fakeAPI{
		token:    "T1",
		identity: &platform.Identity{ID: 7, Email: "a@b.com", Roles: roles},
	}
}

func newController(api API, store credential.Store, opts ...Option) *Controller {
	return New(api, store, append([]Option{WithLogger(log.Discard())}, opts...)...)
}

func strPtr(s string) *string { return &s }

func TestNew_StartsUnknown(t *testing.T) {
	c := newController(newFake("user"), credential.NewMemoryStore())
	snap := c.Snapshot()
	assert.Equal(t, StateUnknown, snap.State)
	assert.Nil(t, snap.User)
	assert.False(t, snap.State.Resolved())
}

func TestInit_NoCredential(t *testing.T) {
	api := newFake("user")
	c := newController(api, credential.NewMemoryStore())

	snap := c.Init(context.Background())
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Zero(t, api.meCalls.Load(), "no network call without a credential")
}

func TestInit_RestoresSession(t *testing.T) {
	api := newFake("admin", "user")
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set("T0"))

	c := newController(api, store)
	snap := c.Init(context.Background())

	require.True(t, snap.Authenticated())
	assert.Equal(t, "a@b.com", snap.User.Email)
	assert.Equal(t, authz.Roles{authz.RoleUser, authz.RoleAdmin}, snap.Roles())
}

func TestInit_FailureClearsCredential(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "unauthorized", err: errors.NewUnauthorizedError()},
		{name: "server error", err: errors.NewStatusError(500, "")},
		{name: "transport", err: errors.NewTransportError(stderrors.New("refused"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFake("user")
			api.meErr = tt.err
			store := credential.NewMemoryStore()
			require.NoError(t, store.Set("T0"))

			snap := newController(api, store).Init(context.Background())
			assert.Equal(t, StateUnauthenticated, snap.State)
			_, ok := store.Get()
			assert.False(t, ok)
		})
	}
}

func TestInit_MalformedRolesClearCredential(t *testing.T) {
	api := newFake("superuser")
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set("T0"))

	snap := newController(api, store).Init(context.Background())
	assert.Equal(t, StateUnauthenticated, snap.State)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestInit_CanceledKeepsCredential(t *testing.T) {
	api := newFake("user")
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set("T0"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := newController(api, store).Init(ctx)
	assert.Equal(t, StateUnauthenticated, snap.State)
	tok, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "T0", tok)
}

func TestLogin_Success(t *testing.T) {
	api := newFake("user")
	store := credential.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	c := newController(api, store, WithMetrics(m))
	c.Init(context.Background())

	res := c.Login(context.Background(), " a@b.com ", "x")
	require.True(t, res.OK)
	assert.Empty(t, res.Error)
	assert.Equal(t, authz.Roles{authz.RoleUser}, res.Roles)
	assert.Equal(t, authz.LandingHome, authz.DefaultLandingRoute(res.Roles))

	tok, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "T1", tok)

	snap := c.Snapshot()
	require.True(t, snap.Authenticated())
	assert.Equal(t, res.Roles, snap.Roles(), "login roles match the identity")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("unauthenticated", "authenticated")))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	api := newFake("user")
	api.loginErr = errors.NewStatusError(401, `{"detail":"Invalid credentials"}`)
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set("old"))
	c := newController(api, store)

	res := c.Login(context.Background(), "a@b.com", "bad")
	assert.False(t, res.OK)
	assert.Equal(t, `{"detail":"Invalid credentials"}`, res.Error)
	assert.Nil(t, res.Roles)

	_, ok := store.Get()
	assert.False(t, ok)
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	assert.Zero(t, api.meCalls.Load())
}

func TestLogin_IdentityFailureClearsCredential(t *testing.T) {
	api := newFake("user")
	api.meErr = errors.NewStatusError(500, "boom")
	store := credential.NewMemoryStore()
	c := newController(api, store)

	res := c.Login(context.Background(), "a@b.com", "x")
	assert.False(t, res.OK)
	assert.Equal(t, "boom", res.Error)

	_, ok := store.Get()
	assert.False(t, ok)
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
}

func TestLogin_RequiresFields(t *testing.T) {
	api := newFake("user")
	c := newController(api, credential.NewMemoryStore())

	for _, tc := range [][2]string{{"", "x"}, {"  ", "x"}, {"a@b.com", ""}} {
		res := c.Login(context.Background(), tc[0], tc[1])
		assert.False(t, res.OK)
		assert.NotEmpty(t, res.Error)
	}
	assert.Zero(t, api.loginCalls.Load())
}

func TestLogout(t *testing.T) {
	api := newFake("user")
	store := credential.NewMemoryStore()
	jar := &fakeJar{}
	c := newController(api, store, WithCookieJar(jar))
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	c.Logout()

	// local state is gone before the server call is awaited
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	_, ok := store.Get()
	assert.False(t, ok)

	require.NoError(t, c.Wait(context.Background()))
	assert.EqualValues(t, 1, api.logoutCalls.Load())
	assert.Equal(t, "T1", api.logoutToken.Load(), "logout carries the token captured before clearing")
	assert.EqualValues(t, 1, jar.resets.Load())
}

func TestLogout_ServerFailureIsSwallowed(t *testing.T) {
	api := newFake("user")
	api.logoutErr = errors.NewTransportError(stderrors.New("refused"))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	c := newController(api, credential.NewMemoryStore(), WithMetrics(m))
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	c.Logout()
	require.NoError(t, c.Wait(context.Background()))

	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetachedFailures.WithLabelValues("logout")))
}

func TestWait_HonorsContext(t *testing.T) {
	api := &blockingLogout{fakeAPI: newFake("user"), release: make(chan struct{})}
	c := newController(api, credential.NewMemoryStore())
	c.Logout()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)

	close(api.release)
	assert.NoError(t, c.Wait(context.Background()))
}

type blockingLogout struct {
	*fakeAPI
	release chan struct{}
}

func (b *blockingLogout) Logout(ctx context.Context, token string) error {
	<-b.release
	return nil
}

func TestRefreshUser(t *testing.T) {
	api := newFake("user")
	c := newController(api, credential.NewMemoryStore())
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	api.mu.Lock()
	api.identity = &platform.Identity{Email: "a@b.com", Roles: []string{"admin"}, FirstName: strPtr("Ada")}
	api.mu.Unlock()

	require.NoError(t, c.RefreshUser(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, authz.Roles{authz.RoleAdmin}, snap.Roles())
	assert.Equal(t, "Ada", snap.User.DisplayName())
}

func TestRefreshUser_Failures(t *testing.T) {
	t.Run("other failure keeps session", func(t *testing.T) {
		api := newFake("user")
		c := newController(api, credential.NewMemoryStore())
		require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

		api.setMeErr(errors.NewStatusError(502, "Bad gateway"))
		err := c.RefreshUser(context.Background())
		require.Error(t, err)
		assert.Equal(t, "Bad gateway", errors.Message(err))
		assert.True(t, c.Snapshot().Authenticated())
	})

	t.Run("unauthorized drops session", func(t *testing.T) {
		api := newFake("user")
		c := newController(api, credential.NewMemoryStore())
		require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

		api.setMeErr(errors.NewUnauthorizedError())
		err := c.RefreshUser(context.Background())
		assert.True(t, stderrors.Is(err, errors.ErrUnauthorized))
		assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	})
}

func TestUpdateProfile(t *testing.T) {
	api := newFake("user")
	c := newController(api, credential.NewMemoryStore())

	err := c.UpdateProfile(context.Background(), platform.ProfileUpdate{FirstName: strPtr("Ada")})
	assert.Equal(t, errors.ErrCodeSessionState, errors.CodeOf(err))

	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)
	require.NoError(t, c.UpdateProfile(context.Background(), platform.ProfileUpdate{
		FirstName: strPtr("Ada"),
		LastName:  strPtr("Lovelace"),
	}))

	u := c.Snapshot().User
	assert.Equal(t, "Ada Lovelace", u.FullName())
	assert.Equal(t, "AL", u.Initials())
}

func TestExpire(t *testing.T) {
	api := newFake("user")
	c := newController(api, credential.NewMemoryStore())
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	c.Expire()
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	assert.Nil(t, c.Snapshot().User)

	c.Expire() // idempotent
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
}

func TestExpire_DuringOperationDoesNotDeadlock(t *testing.T) {
	var c *Controller
	api := newFake("user")
	hooked := &expiringAPI{fakeAPI: api, expire: func() { c.Expire() }}
	c = newController(hooked, credential.NewMemoryStore())
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	done := make(chan error, 1)
	go func() { done <- c.RefreshUser(context.Background()) }()

	select {
	case err := <-done:
		assert.True(t, stderrors.Is(err, errors.ErrUnauthorized))
	case <-time.After(2 * time.Second):
		t.Fatal("RefreshUser deadlocked on Expire")
	}
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
}

// expiringAPI calls expire from inside Me, as the platform client's
// unauthorized hook does.
type expiringAPI struct {
	*fakeAPI
	expire func()
}

func (e *expiringAPI) Me(ctx context.Context) (*platform.Identity, error) {
	if e.meCalls.Add(1) == 1 {
		return e.fakeAPI.Me(ctx)
	}
	e.expire()
	return nil, errors.NewUnauthorizedError()
}

func TestOperationsAreSerialized(t *testing.T) {
	api := newFake("user")
	api.loginGate = make(chan struct{})
	c := newController(api, credential.NewMemoryStore())

	loginDone := make(chan LoginResult, 1)
	go func() { loginDone <- c.Login(context.Background(), "a@b.com", "x") }()

	require.Eventually(t, func() bool { return api.loginCalls.Load() == 1 }, time.Second, time.Millisecond)

	refreshDone := make(chan error, 1)
	go func() { refreshDone <- c.RefreshUser(context.Background()) }()

	select {
	case <-refreshDone:
		t.Fatal("refresh ran while login was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(api.loginGate)
	assert.True(t, (<-loginDone).OK)
	require.NoError(t, <-refreshDone)
	assert.Equal(t, StateAuthenticated, c.Snapshot().State)
	assert.EqualValues(t, 2, api.meCalls.Load())
}

func TestLogout_DoesNotWaitForLogin(t *testing.T) {
	api := newFake("user")
	api.loginGate = make(chan struct{})
	store := credential.NewMemoryStore()
	c := newController(api, store)

	loginDone := make(chan LoginResult, 1)
	go func() { loginDone <- c.Login(context.Background(), "a@b.com", "x") }()
	require.Eventually(t, func() bool { return api.loginCalls.Load() == 1 }, time.Second, time.Millisecond)

	logoutDone := make(chan struct{})
	go func() {
		c.Logout()
		close(logoutDone)
	}()
	select {
	case <-logoutDone:
	case <-time.After(time.Second):
		t.Fatal("logout waited for the in-flight login")
	}
	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)

	close(api.loginGate)
	res := <-loginDone
	assert.False(t, res.OK, "the earlier logout wins")
	assert.Equal(t, "Signed out before the operation finished", res.Error)
	require.NoError(t, c.Wait(context.Background()))

	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	_, ok := store.Get()
	assert.False(t, ok, "the login token must not be stored after logout")
	assert.Zero(t, api.meCalls.Load())
}

func TestLogout_DropsInFlightRefreshUser(t *testing.T) {
	api := newFake("admin")
	store := credential.NewMemoryStore()
	c := newController(api, store)
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	api.meGate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.RefreshUser(context.Background()) }()
	require.Eventually(t, func() bool { return api.meCalls.Load() == 2 }, time.Second, time.Millisecond)

	c.Logout()
	close(api.meGate)

	err := <-done
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSessionState, errors.CodeOf(err))

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.User)
	_, ok := store.Get()
	assert.False(t, ok)
	require.NoError(t, c.Wait(context.Background()))
}

func TestSnapshot_DoesNotBlockOnOperations(t *testing.T) {
	api := newFake("user")
	api.loginGate = make(chan struct{})
	c := newController(api, credential.NewMemoryStore())

	go c.Login(context.Background(), "a@b.com", "x")
	require.Eventually(t, func() bool { return api.loginCalls.Load() == 1 }, time.Second, time.Millisecond)

	done := make(chan Snapshot, 1)
	go func() { done <- c.Snapshot() }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked on an in-flight login")
	}
	close(api.loginGate)
}

func TestSnapshot_IsACopy(t *testing.T) {
	api := newFake("user")
	c := newController(api, credential.NewMemoryStore())
	require.True(t, c.Login(context.Background(), "a@b.com", "x").OK)

	snap := c.Snapshot()
	snap.User.Email = "mutated"
	snap.User.Roles[0] = authz.RoleDeveloper

	again := c.Snapshot()
	assert.Equal(t, "a@b.com", again.User.Email)
	assert.Equal(t, authz.Roles{authz.RoleUser}, again.Roles())
}

func TestSubscribe(t *testing.T) {
	api := newFake("user")
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set("T0"))
	c := newController(api, store)

	ch, cancel := c.Subscribe()
	assert.Equal(t, StateUnknown, (<-ch).State, "current snapshot first")

	c.Init(context.Background())
	// restoring may have been overwritten by authenticated for a slow reader
	snap := <-ch
	if snap.State == StateRestoring {
		snap = <-ch
	}
	assert.Equal(t, StateAuthenticated, snap.State)

	c.Logout()
	assert.Equal(t, StateUnauthenticated, (<-ch).State)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, c.Wait(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "restoring", StateRestoring.String())
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "invalid", State(42).String())
}

func TestUser_Names(t *testing.T) {
	tests := []struct {
		name     string
		user     User
		display  string
		initials string
	}{
		{name: "email only", user: User{Email: "ivan@taspa.io"}, display: "ivan@taspa.io", initials: "I"},
		{name: "first name", user: User{Email: "x@y.z", FirstName: strPtr(" Ада ")}, display: "Ада", initials: "А"},
		{name: "both names", user: User{Email: "x@y.z", FirstName: strPtr("ivan"), LastName: strPtr("petrov")}, display: "ivan petrov", initials: "IP"},
		{name: "blank names", user: User{Email: "x@y.z", FirstName: strPtr(" "), LastName: strPtr("")}, display: "x@y.z", initials: "X"},
		{name: "nothing", user: User{}, display: "", initials: "U"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.display, tt.user.DisplayName())
			assert.Equal(t, tt.initials, tt.user.Initials())
		})
	}
}
