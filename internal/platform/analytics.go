package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/taspa/console/internal/errors"
)

// Social platforms with account analytics besides VK.
var SocialPlatforms = []string{"instagram", "tiktok"}

// Export datasets and file formats accepted by POST /export.
var (
	ExportDatasets = []string{"vk_members", "instagram_users", "tiktok_users"}
	ExportFormats  = []string{"xlsx", "pdf"}
)

// VKSummary is the headline count for a direction.
type VKSummary struct {
	DirectionID  int `json:"direction_id"`
	TotalMembers int `json:"total_members"`
	GroupCount   int `json:"group_count"`
}

// Bucket is one row of a grouped count. Key is the gender, university,
// school or day the members were grouped by.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// VKGroup is a VK community attached to a direction.
type VKGroup struct {
	Name         *string `json:"name"`
	MembersCount *int    `json:"members_count"`
}

// VKMember is a member found by SearchVKMembers.
type VKMember struct {
	VKUserID   string  `json:"vk_user_id"`
	FullName   *string `json:"full_name"`
	Gender     *string `json:"gender"`
	University *string `json:"university"`
	School     *string `json:"school"`
}

// SocialAccount is an Instagram or TikTok account or follower.
// FollowersCount is only reported for TikTok.
type SocialAccount struct {
	Username       string  `json:"username"`
	URL            *string `json:"url"`
	Location       *string `json:"location"`
	FollowersCount *int    `json:"followers_count,omitempty"`
}

// ExportRequest is the body of POST /export.
type ExportRequest struct {
	DirectionID int    `json:"direction_id"`
	Format      string `json:"format"`
	Dataset     string `json:"dataset"`
}

// ExportResult names the object the export service wrote.
type ExportResult struct {
	ObjectName string `json:"object_name"`
	Bucket     string `json:"bucket"`
}

// Breakdowns of VK members the analytics service groups by.
const (
	BreakdownGender       = "gender"
	BreakdownUniversities = "universities"
	BreakdownSchools      = "schools"
	BreakdownTimeline     = "timeline"
)

// bucketKeys maps a breakdown to the field its rows are keyed by.
var bucketKeys = map[string]string{
	BreakdownGender:       "gender",
	BreakdownUniversities: "university",
	BreakdownSchools:      "school",
	BreakdownTimeline:     "day",
}

// VKSummary returns member and group totals for a direction.
func (c *Client) VKSummary(ctx context.Context, directionID int) (*VKSummary, error) {
	if directionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}
	raw, err := c.Request(ctx, fmt.Sprintf("/analytics/vk/summary/%d", directionID), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var summary VKSummary
	if err := Decode(raw, SchemaVKSummary, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// VKBreakdown returns member counts for a direction grouped by one of the
// Breakdown* dimensions, largest first (timeline: oldest day first).
func (c *Client) VKBreakdown(ctx context.Context, breakdown string, directionID int) ([]Bucket, error) {
	key, ok := bucketKeys[breakdown]
	if !ok {
		return nil, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown breakdown %q", breakdown)).
			WithSuggestion("Use one of: gender, universities, schools, timeline")
	}
	if directionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}

	raw, err := c.Request(ctx, fmt.Sprintf("/analytics/vk/%s/%d", breakdown, directionID), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var rows []map[string]json.RawMessage
	if err := Decode(raw, SchemaCountList, &rows); err != nil {
		return nil, err
	}
	buckets := make([]Bucket, 0, len(rows))
	for _, row := range rows {
		var b Bucket
		if err := json.Unmarshal(row[key], &b.Key); err != nil {
			return nil, errors.NewSchemaError(SchemaCountList, fmt.Errorf("row without %q: %w", key, err))
		}
		if err := json.Unmarshal(row["count"], &b.Count); err != nil {
			return nil, errors.NewSchemaError(SchemaCountList, err)
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// VKGroups returns the VK communities of a direction, largest first.
func (c *Client) VKGroups(ctx context.Context, directionID int) ([]VKGroup, error) {
	if directionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}
	raw, err := c.Request(ctx, fmt.Sprintf("/analytics/vk/groups/%d", directionID), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var page struct {
		Items []VKGroup `json:"items"`
	}
	if err := Decode(raw, SchemaVKGroupPage, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// SearchVKMembers finds members of a direction whose id or name contains
// query. A limit of zero uses the server default.
func (c *Client) SearchVKMembers(ctx context.Context, directionID int, query string, limit int) ([]VKMember, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewRequiredError("search query")
	}
	if directionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}

	params := url.Values{}
	params.Set("direction_id", strconv.Itoa(directionID))
	params.Set("q", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	raw, err := c.Request(ctx, "/analytics/vk/search?"+params.Encode(), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var page struct {
		Items []VKMember `json:"items"`
	}
	if err := Decode(raw, SchemaVKMemberPage, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// SocialAccounts returns the tracked Instagram or TikTok accounts of a
// direction.
func (c *Client) SocialAccounts(ctx context.Context, platform string, directionID int) ([]SocialAccount, error) {
	return c.socialList(ctx, platform, "accounts", directionID)
}

// SocialUsers returns the followers collected from a direction's Instagram or
// TikTok accounts.
func (c *Client) SocialUsers(ctx context.Context, platform string, directionID int) ([]SocialAccount, error) {
	return c.socialList(ctx, platform, "users", directionID)
}

func (c *Client) socialList(ctx context.Context, platform, kind string, directionID int) ([]SocialAccount, error) {
	if !oneOf(platform, SocialPlatforms) {
		return nil, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown platform %q", platform)).
			WithSuggestion("Use one of: " + strings.Join(SocialPlatforms, ", "))
	}
	if directionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}

	raw, err := c.Request(ctx, fmt.Sprintf("/analytics/%s/%s/%d", platform, kind, directionID), RequestOptions{})
	if err != nil {
		return nil, err
	}

	var page struct {
		Items []SocialAccount `json:"items"`
	}
	if err := Decode(raw, SchemaSocialAccountPage, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Export asks the export service to render a dataset to a file in object
// storage and returns where it was written.
func (c *Client) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if req.DirectionID <= 0 {
		return nil, errors.NewRequiredError("direction")
	}
	if !oneOf(req.Dataset, ExportDatasets) {
		return nil, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown dataset %q", req.Dataset)).
			WithSuggestion("Use one of: " + strings.Join(ExportDatasets, ", "))
	}
	if !oneOf(req.Format, ExportFormats) {
		return nil, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unsupported export format %q", req.Format)).
			WithSuggestion("Use one of: " + strings.Join(ExportFormats, ", "))
	}

	raw, err := c.Request(ctx, "/export", RequestOptions{Method: http.MethodPost, Body: req})
	if err != nil {
		return nil, err
	}

	var res ExportResult
	if err := Decode(raw, SchemaExportResult, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func oneOf(s string, allowed []string) bool {
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
