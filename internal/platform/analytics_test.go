package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/platform/platformtest"
)

func seedStudents(srv *platformtest.Server) int {
	dir := srv.AddDirection("Students")
	srv.AddVKGroup(dir, "Physics club",
		platformtest.Member{VKUserID: "id1", FullName: "Ann Lee", Gender: "female", University: "MSU", Day: "2026-03-01"},
		platformtest.Member{VKUserID: "id2", FullName: "Bo Chen", Gender: "male", University: "MSU", Day: "2026-03-01"},
		platformtest.Member{VKUserID: "id3", FullName: "Cy Ray", Gender: "female", School: "School 57", Day: "2026-03-02"},
	)
	srv.AddVKGroup(dir, "Chess", platformtest.Member{VKUserID: "id4", Day: "2026-03-02"})
	srv.AddSocialAccount(dir, "tiktok", "physfun", 1200, "fan1", "fan2")
	srv.AddSocialAccount(dir, "instagram", "phys.daily", 0, "reader")
	return dir
}

func TestVKAnalytics(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	dir := seedStudents(srv)
	client, _ := signIn(t, srv, "a@b.com", "secret-pass")
	ctx := context.Background()

	summary, err := client.VKSummary(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, platform.VKSummary{DirectionID: dir, TotalMembers: 4, GroupCount: 2}, *summary)

	tests := []struct {
		breakdown string
		want      []platform.Bucket
	}{
		{platform.BreakdownGender, []platform.Bucket{{Key: "female", Count: 2}, {Key: "male", Count: 1}, {Key: "unknown", Count: 1}}},
		{platform.BreakdownUniversities, []platform.Bucket{{Key: "MSU", Count: 2}, {Key: "unknown", Count: 2}}},
		{platform.BreakdownSchools, []platform.Bucket{{Key: "unknown", Count: 3}, {Key: "School 57", Count: 1}}},
		{platform.BreakdownTimeline, []platform.Bucket{{Key: "2026-03-01", Count: 2}, {Key: "2026-03-02", Count: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.breakdown, func(t *testing.T) {
			got, err := client.VKBreakdown(ctx, tt.breakdown, dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	groups, err := client.VKGroups(ctx, dir)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Physics club", *groups[0].Name)
	assert.Equal(t, 3, *groups[0].MembersCount)

	members, err := client.SearchVKMembers(ctx, dir, "ann", 0)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "id1", members[0].VKUserID)
	assert.Equal(t, "MSU", *members[0].University)
	assert.Nil(t, members[0].School)

	_, err = client.VKBreakdown(ctx, "age", dir)
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))
	_, err = client.VKSummary(ctx, 0)
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))
	_, err = client.SearchVKMembers(ctx, dir, "  ", 0)
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))
}

func TestSocialAnalytics(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "admin")
	dir := seedStudents(srv)
	client, _ := signIn(t, srv, "a@b.com", "secret-pass")
	ctx := context.Background()

	accounts, err := client.SocialAccounts(ctx, "tiktok", dir)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "physfun", accounts[0].Username)
	require.NotNil(t, accounts[0].FollowersCount)
	assert.Equal(t, 1200, *accounts[0].FollowersCount)

	users, err := client.SocialUsers(ctx, "tiktok", dir)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	insta, err := client.SocialAccounts(ctx, "instagram", dir)
	require.NoError(t, err)
	require.Len(t, insta, 1)
	assert.Nil(t, insta[0].FollowersCount)

	_, err = client.SocialUsers(ctx, "myspace", dir)
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))
	assert.Zero(t, srv.Calls(http.MethodGet, "/analytics/myspace/users/1"))
}

func TestAnalyticsRequireSignIn(t *testing.T) {
	srv := platformtest.NewServer(t)
	dir := seedStudents(srv)
	client := platform.NewClient(srv.URL, credential.NewMemoryStore(), platform.WithLogger(log.Discard()))

	_, err := client.VKSummary(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestVKBreakdownRejectsRowsWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"university": "MSU", "count": 3}})
	}))
	t.Cleanup(srv.Close)
	client := platform.NewClient(srv.URL, credential.NewMemoryStore(), platform.WithLogger(log.Discard()))

	_, err := client.VKBreakdown(context.Background(), platform.BreakdownGender, 1)
	assert.Equal(t, errors.ErrCodeHTTPSchema, errors.CodeOf(err))
}

func TestExport(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("a@b.com", "secret-pass", "user")
	dir := seedStudents(srv)
	client, _ := signIn(t, srv, "a@b.com", "secret-pass")
	ctx := context.Background()

	res, err := client.Export(ctx, platform.ExportRequest{DirectionID: dir, Dataset: "vk_members", Format: "xlsx"})
	require.NoError(t, err)
	assert.Equal(t, platformtest.ExportBucket, res.Bucket)
	assert.Contains(t, res.ObjectName, "vk_members/")
	assert.Contains(t, res.ObjectName, ".xlsx")

	tests := []struct {
		name string
		req  platform.ExportRequest
		want errors.ErrorCode
	}{
		{"no direction", platform.ExportRequest{Dataset: "vk_members", Format: "pdf"}, errors.ErrCodeInputRequired},
		{"unknown dataset", platform.ExportRequest{DirectionID: dir, Dataset: "vk_posts", Format: "pdf"}, errors.ErrCodeInputInvalid},
		{"unknown format", platform.ExportRequest{DirectionID: dir, Dataset: "vk_members", Format: "csv"}, errors.ErrCodeInputInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Export(ctx, tt.req)
			assert.Equal(t, tt.want, errors.CodeOf(err))
		})
	}
	assert.Len(t, srv.Exports(), 1)
}

func TestScrapeConfig(t *testing.T) {
	srv := platformtest.NewServer(t)
	srv.AddAccount("dev@taspa.io", "secret-pass", "developer")
	client, _ := signIn(t, srv, "dev@taspa.io", "secret-pass")
	ctx := context.Background()

	cfg, err := client.ScrapeConfig(ctx, "vk")
	require.NoError(t, err)
	assert.Empty(t, cfg.Proxies)
	assert.Nil(t, cfg.APIKey)

	rpm := 120
	proxies := []string{"http://p1:8080", "http://p2:8080"}
	cfg, err = client.UpdateScrapeConfig(ctx, "vk", platform.ScrapeConfigUpdate{
		Proxies:        &proxies,
		APIKey:         strPtr("vk-key"),
		RequestsPerMin: &rpm,
	})
	require.NoError(t, err)
	assert.Equal(t, proxies, cfg.Proxies)
	assert.Equal(t, "vk-key", *cfg.APIKey)
	assert.Equal(t, 120, *cfg.RequestsPerMin)
	assert.Nil(t, cfg.Concurrency, "unset fields stay unchanged")

	none := []string{}
	cfg, err = client.UpdateScrapeConfig(ctx, "vk", platform.ScrapeConfigUpdate{Proxies: &none})
	require.NoError(t, err)
	assert.Empty(t, cfg.Proxies)
	assert.Equal(t, "vk-key", *cfg.APIKey)

	zero := 0
	_, err = client.UpdateScrapeConfig(ctx, "vk", platform.ScrapeConfigUpdate{Concurrency: &zero})
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))
	_, err = client.UpdateScrapeConfig(ctx, "vk", platform.ScrapeConfigUpdate{})
	assert.Equal(t, errors.ErrCodeInputRequired, errors.CodeOf(err))
	_, err = client.ScrapeConfig(ctx, "myspace")
	assert.Equal(t, errors.ErrCodeInputInvalid, errors.CodeOf(err))
	assert.Equal(t, 2, srv.Calls(http.MethodPut, "/scrape/config/vk"))
}
