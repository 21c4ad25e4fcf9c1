package platform_test

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/platform/platformtest"
)

func strPtr(s string) *string { return &s }

// signIn logs email in against srv and returns a client holding the token.
func signIn(t *testing.T, srv *platformtest.Server, email, password string) (*platform.Client, credential.Store) {
	t.Helper()

	store := credential.NewMemoryStore()
	client := platform.NewClient(srv.URL, store, platform.WithLogger(log.Discard()))

	tr, err := client.Login(context.Background(), email, password)
	require.NoError(t, err)
	require.NoError(t, store.Set(tr.AccessToken))
	return client, store
}

func TestLogin(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")

	store := credential.NewMemoryStore()
	client := platform.NewClient(srv.URL, store, platform.WithLogger(log.Discard()))

	tr, err := client.Login(context.Background(), "a@b.com", "secret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, tr.AccessToken)
	assert.Equal(t, []string{"user"}, tr.Roles)

	_, ok := store.Get()
	assert.False(t, ok, "Login does not write the store")

	claims, err := credential.Inspect(tr.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, claims.Roles)

	_, err = client.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeHTTPStatus, errors.CodeOf(err))
	assert.Contains(t, errors.Message(err), "Invalid credentials")
	assert.Equal(t, []string{"", ""}, srv.Authorizations(http.MethodPost, "/auth/login"))
}

func TestMe(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("admin@taspa.io", "secret-pass", "admin", "user")
	client, _ := signIn(t, srv, "admin@taspa.io", "secret-pass")

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin@taspa.io", me.Email)
	assert.ElementsMatch(t, []string{"admin", "user"}, me.Roles)
	assert.Nil(t, me.FirstName)
}

func TestMe_RefreshesExpiredToken(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	client, store := signIn(t, srv, "a@b.com", "secret-pass")
	old, _ := store.Get()

	srv.ExpireTokens()

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", me.Email)
	assert.Equal(t, 1, srv.Calls(http.MethodPost, "/auth/refresh"))

	fresh, _ := store.Get()
	assert.NotEqual(t, old, fresh)
	assert.True(t, srv.ValidToken(fresh))
}

func TestMe_RevokedRefreshClearsCredential(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	client, store := signIn(t, srv, "a@b.com", "secret-pass")

	srv.ExpireTokens()
	srv.RevokeRefresh()

	_, err := client.Me(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnauthorized))

	_, ok := store.Get()
	assert.False(t, ok)
}

func TestUpdateMe(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	client, _ := signIn(t, srv, "a@b.com", "secret-pass")

	require.NoError(t, client.UpdateMe(context.Background(), platform.ProfileUpdate{FirstName: strPtr("Ada")}))

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	require.NotNil(t, me.FirstName)
	assert.Equal(t, "Ada", *me.FirstName)
	assert.Nil(t, me.LastName)
}

func TestChangePassword(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	client, _ := signIn(t, srv, "a@b.com", "secret-pass")
	ctx := context.Background()

	err := client.ChangePassword(ctx, "secret-pass", "short")
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))
	assert.Zero(t, srv.Calls(http.MethodPost, "/auth/me/password"), "rejected locally")

	err = client.ChangePassword(ctx, "", "long-enough")
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))

	err = client.ChangePassword(ctx, "wrong-pass", "long-enough")
	require.Error(t, err)
	assert.Contains(t, errors.Message(err), "Current password is incorrect")

	require.NoError(t, client.ChangePassword(ctx, "secret-pass", "long-enough"))
	_, err = client.Login(ctx, "a@b.com", "long-enough")
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	client, store := signIn(t, srv, "a@b.com", "secret-pass")
	token, _ := store.Get()

	require.NoError(t, store.Clear())
	require.NoError(t, client.Logout(context.Background(), token))

	assert.Equal(t, []string{"Bearer " + token}, srv.Authorizations(http.MethodPost, "/auth/logout"))
	assert.False(t, srv.ValidToken(token))

	// the refresh cookie is gone, so nothing can revive the session
	_, err := client.Me(context.Background())
	assert.True(t, stderrors.Is(err, errors.ErrUnauthorized))
	assert.Equal(t, 1, srv.Calls(http.MethodPost, "/auth/refresh"))
}

func TestLogout_RejectedDoesNotRefresh(t *testing.T) {
	srv := platformtest.NewServer(t)
	client := platform.NewClient(srv.URL, credential.NewMemoryStore(), platform.WithLogger(log.Discard()))

	srv.SetDown(true)
	err := client.Logout(context.Background(), "stale")
	require.Error(t, err)
	assert.Zero(t, srv.Calls(http.MethodPost, "/auth/refresh"))
}

func TestHealth(t *testing.T) {
	srv := platformtest.NewServer(t)
	client := platform.NewClient(srv.URL, credential.NewMemoryStore(), platform.WithLogger(log.Discard()))

	require.NoError(t, client.Health(context.Background()))

	srv.SetDown(true)
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, errors.Message(err), "Service unavailable")
}

func TestUsers(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("dev@taspa.io", "secret-pass", "developer")
	client, _ := signIn(t, srv, "dev@taspa.io", "secret-pass")
	ctx := context.Background()

	created, err := client.CreateUser(ctx, platform.NewAccount{
		Email:     " analyst@taspa.io ",
		Password:  "analyst-pass",
		Role:      "admin",
		FirstName: strPtr("Ann"),
	})
	require.NoError(t, err)
	assert.Equal(t, "analyst@taspa.io", created.Email)
	assert.Equal(t, []string{"admin"}, created.Roles)
	assert.True(t, created.IsActive)

	blocked, err := client.BlockUser(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, blocked.IsActive)

	unblocked, err := client.UnblockUser(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, unblocked.IsActive)

	promoted, err := client.SetUserRole(ctx, created.ID, "developer")
	require.NoError(t, err)
	assert.Equal(t, []string{"developer"}, promoted.Roles)

	renamed, err := client.UpdateUser(ctx, created.ID, platform.AccountUpdate{LastName: strPtr("Lee")})
	require.NoError(t, err)
	require.NotNil(t, renamed.LastName)
	assert.Equal(t, "Lee", *renamed.LastName)

	_, err = client.ResetUserPassword(ctx, created.ID, "new-password")
	require.NoError(t, err)

	users, err := client.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUsers_AdminRestrictions(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("admin@taspa.io", "secret-pass", "admin")
	other := srv.AddAccount("admin2@taspa.io", "secret-pass", "admin")
	client, _ := signIn(t, srv, "admin@taspa.io", "secret-pass")
	ctx := context.Background()

	_, err := client.BlockUser(ctx, other.ID)
	require.Error(t, err)
	assert.Contains(t, errors.Message(err), "Admin can manage only users")

	_, err = client.CreateUser(ctx, platform.NewAccount{Email: "x@y.z", Password: "long-enough", Role: "developer"})
	require.Error(t, err)
	assert.Contains(t, errors.Message(err), "Admin can create only users")
}

func TestUsers_LocalValidation(t *testing.T) {
	srv := platformtest.NewServer(t)
	client := platform.NewClient(srv.URL, credential.NewMemoryStore(), platform.WithLogger(log.Discard()))
	ctx := context.Background()

	_, err := client.CreateUser(ctx, platform.NewAccount{Email: "  ", Password: "long-enough", Role: "user"})
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))

	_, err = client.CreateUser(ctx, platform.NewAccount{Email: "x@y.z", Password: "short", Role: "user"})
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))

	_, err = client.ResetUserPassword(ctx, 1, "")
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))

	assert.Zero(t, srv.Calls(http.MethodPost, "/auth/users"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		code     errors.ErrorCode
	}{
		{"", errors.ErrCodeInputRequired},
		{"1234567", errors.ErrCodeInputInvalid},
		{"12345678", ""},
		{"пароль-ок", ""},
		{"пароль", errors.ErrCodeInputInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.code, errors.CodeOf(platform.ValidatePassword(tt.password)))
		})
	}
}

func TestDirectionsAndSources(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("admin@taspa.io", "secret-pass", "admin")
	client, _ := signIn(t, srv, "admin@taspa.io", "secret-pass")
	ctx := context.Background()

	d, err := client.CreateDirection(ctx, "  Applicants 2025 ")
	require.NoError(t, err)
	assert.Equal(t, "Applicants 2025", d.Name)

	d, err = client.RenameDirection(ctx, d.ID, "Applicants")
	require.NoError(t, err)
	assert.Equal(t, "Applicants", d.Name)

	src, err := client.CreateSource(ctx, d.ID, "vk_group", "club123")
	require.NoError(t, err)
	assert.Equal(t, d.ID, src.DirectionID)

	_, err = client.CreateSource(ctx, d.ID, "myspace", "x")
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))

	sources, err := client.ListSources(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "club123", sources[0].SourceIdentifier)

	require.NoError(t, client.DeleteSource(ctx, d.ID, src.ID))
	require.NoError(t, client.DeleteDirection(ctx, d.ID))

	directions, err := client.ListDirections(ctx)
	require.NoError(t, err)
	assert.Empty(t, directions)

	_, err = client.CreateDirection(ctx, " ")
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))
}

func TestJobs(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("dev@taspa.io", "secret-pass", "developer")
	dir := srv.AddDirection("Students")
	client, _ := signIn(t, srv, "dev@taspa.io", "secret-pass")
	ctx := context.Background()

	job, err := client.StartJob(ctx, "vk", dir)
	require.NoError(t, err)
	assert.Equal(t, "queued", job.Status)
	require.NotNil(t, job.DirectionID)
	assert.Equal(t, dir, *job.DirectionID)

	require.NoError(t, client.StopJob(ctx, job.ID))

	jobs, err := client.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "stopped", jobs[0].Status)

	_, err = client.StartJob(ctx, "myspace", dir)
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))
	_, err = client.StartJob(ctx, "vk", 0)
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))
}

func TestJobs_RequireDeveloper(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("admin@taspa.io", "secret-pass", "admin")
	client, store := signIn(t, srv, "admin@taspa.io", "secret-pass")

	_, err := client.ListJobs(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeHTTPStatus, errors.CodeOf(err))

	_, ok := store.Get()
	assert.True(t, ok, "403 leaves the session alone")
}
