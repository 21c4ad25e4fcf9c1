package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Member is a VK community member as the analytics service stores it. Empty
// fields are reported as unknown. Day is the scrape date, YYYY-MM-DD.
type Member struct {
	VKUserID   string
	FullName   string
	Gender     string
	University string
	School     string
	Day        string
}

// ScrapeConfig is the fake's per-service scraper configuration.
type ScrapeConfig struct {
	Proxies        []string `json:"proxies"`
	APIKey         *string  `json:"api_key"`
	RequestsPerMin *int     `json:"requests_per_min"`
	Concurrency    *int     `json:"concurrency"`
}

// Export is a recorded POST /export.
type Export struct {
	DirectionID int    `json:"direction_id"`
	Format      string `json:"format"`
	Dataset     string `json:"dataset"`
	ObjectName  string `json:"-"`
}

// ExportBucket is the bucket exports are reported in.
const ExportBucket = "exports"

type vkGroup struct {
	directionID int
	name        string
	members     []Member
}

type socialAccount struct {
	directionID int
	platform    string
	username    string
	followers   int
	users       []string
}

// AddVKGroup attaches a VK community with members to a direction.
func (s *Server) AddVKGroup(directionID int, name string, members ...Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vkGroups = append(s.vkGroups, &vkGroup{directionID: directionID, name: name, members: members})
}

// AddSocialAccount attaches an Instagram or TikTok account and its followers
// to a direction.
func (s *Server) AddSocialAccount(directionID int, platform, username string, followers int, users ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.social = append(s.social, &socialAccount{
		directionID: directionID,
		platform:    platform,
		username:    username,
		followers:   followers,
		users:       users,
	})
}

// ScrapeConfigFor returns a copy of a service's configuration.
func (s *Server) ScrapeConfigFor(service string) (ScrapeConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.scrapeConfig[service]
	if !ok {
		return ScrapeConfig{}, false
	}
	return *cfg, true
}

// Exports returns the exports requested so far.
func (s *Server) Exports() []Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Export(nil), s.exports...)
}

func (s *Server) membersLocked(directionID int) []Member {
	var out []Member
	for _, g := range s.vkGroups {
		if g.directionID == directionID {
			out = append(out, g.members...)
		}
	}
	return out
}

func (s *Server) handleVKSummary(w http.ResponseWriter, r *http.Request, _ *Account) {
	id, _ := strconv.Atoi(r.PathValue("id"))

	s.mu.Lock()
	groups := 0
	for _, g := range s.vkGroups {
		if g.directionID == id {
			groups++
		}
	}
	members := len(s.membersLocked(id))
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]int{
		"direction_id":  id,
		"total_members": members,
		"group_count":   groups,
	})
}

func (s *Server) handleVKBreakdown(field string) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, _ *Account) {
		id, _ := strconv.Atoi(r.PathValue("id"))

		s.mu.Lock()
		counts := make(map[string]int)
		for _, m := range s.membersLocked(id) {
			key := map[string]string{
				"gender":     m.Gender,
				"university": m.University,
				"school":     m.School,
				"day":        m.Day,
			}[field]
			if key == "" {
				key = "unknown"
			}
			counts[key]++
		}
		s.mu.Unlock()

		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if field == "day" || counts[keys[i]] == counts[keys[j]] {
				return keys[i] < keys[j]
			}
			return counts[keys[i]] > counts[keys[j]]
		})
		if field == "university" || field == "school" {
			keys = keys[:min(len(keys), 50)]
		}

		out := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, map[string]any{field: k, "count": counts[k]})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleVKGroups(w http.ResponseWriter, r *http.Request, _ *Account) {
	id, _ := strconv.Atoi(r.PathValue("id"))

	type item struct {
		Name         string `json:"name"`
		MembersCount int    `json:"members_count"`
	}
	s.mu.Lock()
	items := []item{}
	for _, g := range s.vkGroups {
		if g.directionID == id {
			items = append(items, item{Name: g.name, MembersCount: len(g.members)})
		}
	}
	s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].MembersCount > items[j].MembersCount })
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleVKSearch(w http.ResponseWriter, r *http.Request, _ *Account) {
	q := r.URL.Query()
	id, err := strconv.Atoi(q.Get("direction_id"))
	if err != nil || q.Get("q") == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "direction_id and q are required")
		return
	}
	limit := 50
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	needle := strings.ToLower(q.Get("q"))

	type item struct {
		VKUserID   string  `json:"vk_user_id"`
		FullName   *string `json:"full_name"`
		Gender     *string `json:"gender"`
		University *string `json:"university"`
		School     *string `json:"school"`
	}
	s.mu.Lock()
	items := []item{}
	for _, m := range s.membersLocked(id) {
		if strings.Contains(strings.ToLower(m.VKUserID), needle) || strings.Contains(strings.ToLower(m.FullName), needle) {
			items = append(items, item{
				VKUserID:   m.VKUserID,
				FullName:   nonEmpty(m.FullName),
				Gender:     nonEmpty(m.Gender),
				University: nonEmpty(m.University),
				School:     nonEmpty(m.School),
			})
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].VKUserID < items[j].VKUserID })
	writeJSON(w, http.StatusOK, map[string]any{"items": items[:min(len(items), limit)]})
}

func (s *Server) handleSocial(w http.ResponseWriter, r *http.Request, _ *Account) {
	platform, kind := r.PathValue("platform"), r.PathValue("kind")
	id, _ := strconv.Atoi(r.PathValue("id"))
	if (platform != "instagram" && platform != "tiktok") || (kind != "accounts" && kind != "users") {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}

	type item struct {
		Username       string  `json:"username"`
		URL            *string `json:"url"`
		Location       *string `json:"location"`
		FollowersCount *int    `json:"followers_count,omitempty"`
	}
	s.mu.Lock()
	items := []item{}
	for _, a := range s.social {
		if a.directionID != id || a.platform != platform {
			continue
		}
		if kind == "users" {
			for _, u := range a.users {
				items = append(items, item{Username: u})
			}
			continue
		}
		it := item{Username: a.username, URL: nonEmpty(fmt.Sprintf("https://%s.com/%s", platform, a.username))}
		if platform == "tiktok" {
			followers := a.followers
			it.FollowersCount = &followers
		}
		items = append(items, it)
	}
	s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].Username < items[j].Username })
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in Export
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if in.Format != "pdf" && in.Format != "xlsx" {
		writeDetail(w, http.StatusBadRequest, "Unsupported format")
		return
	}
	if in.Dataset != "vk_members" && in.Dataset != "instagram_users" && in.Dataset != "tiktok_users" {
		writeDetail(w, http.StatusBadRequest, "Unknown dataset")
		return
	}

	in.ObjectName = fmt.Sprintf("%s/%d/%s.%s", in.Dataset, in.DirectionID,
		time.Now().UTC().Format("2006-01-02T15:04:05"), in.Format)
	s.mu.Lock()
	s.exports = append(s.exports, in)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"object_name": in.ObjectName, "bucket": ExportBucket})
}

func (s *Server) handleGetScrapeConfig(w http.ResponseWriter, r *http.Request, _ *Account) {
	cfg, ok := s.ScrapeConfigFor(r.PathValue("service"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Unknown service")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateScrapeConfig(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		Proxies        *[]string `json:"proxies"`
		APIKey         *string   `json:"api_key"`
		RequestsPerMin *int      `json:"requests_per_min"`
		Concurrency    *int      `json:"concurrency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	cfg, ok := s.scrapeConfig[r.PathValue("service")]
	if ok {
		if in.Proxies != nil {
			cfg.Proxies = append([]string{}, *in.Proxies...)
		}
		if in.APIKey != nil {
			cfg.APIKey = in.APIKey
		}
		if in.RequestsPerMin != nil {
			cfg.RequestsPerMin = in.RequestsPerMin
		}
		if in.Concurrency != nil {
			cfg.Concurrency = in.Concurrency
		}
	}
	var out ScrapeConfig
	if ok {
		out = *cfg
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Unknown service")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
