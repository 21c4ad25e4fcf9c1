// Package platformtest provides an in-process fake of the TASPA API for tests.
package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RefreshCookie is the name of the cookie holding the refresh token.
const RefreshCookie = "refresh_token"

var roleRank = map[string]int{"user": 1, "admin": 2, "developer": 3}

// Account is a user known to the fake server.
type Account struct {
	ID        int      `json:"id"`
	Email     string   `json:"email"`
	Password  string   `json:"-"`
	Roles     []string `json:"roles"`
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	IsActive  bool     `json:"is_active"`
}

type direction struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type source struct {
	ID               int    `json:"id"`
	DirectionID      int    `json:"direction_id"`
	SourceType       string `json:"source_type"`
	SourceIdentifier string `json:"source_identifier"`
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

type job struct {
	ID          int    `json:"id"`
	ServiceName string `json:"service_name"`
	DirectionID int    `json:"direction_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Server is a fake TASPA API gateway.
type Server struct {
	*httptest.Server

	secret []byte

	mu         sync.Mutex
	nextID     int
	accounts   map[int]*Account
	access     map[string]int
	refresh    map[string]int
	directions map[int]*direction
	sources    map[int]*source
	jobs       []*job
	calls      map[string]int
	auth       map[string][]string

	vkGroups     []*vkGroup
	social       []*socialAccount
	scrapeConfig map[string]*ScrapeConfig
	exports      []Export

	refreshFails bool
	refreshDelay time.Duration
	refreshHold  *hold
	loginDelay   time.Duration
	down         bool
}

// NewServer starts a fake API and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:     []byte("platformtest-secret"),
		accounts:   make(map[int]*Account),
		access:     make(map[string]int),
		refresh:    make(map[string]int),
		directions: make(map[int]*direction),
		sources:    make(map[int]*source),
		calls:      make(map[string]int),
		auth:       make(map[string][]string),
	}
	s.scrapeConfig = map[string]*ScrapeConfig{
		"vk":        {Proxies: []string{}},
		"instagram": {Proxies: []string{}},
		"tiktok":    {Proxies: []string{}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/me", s.authed(0, s.handleMe))
	mux.HandleFunc("PUT /auth/me", s.authed(0, s.handleUpdateMe))
	mux.HandleFunc("POST /auth/me/password", s.authed(0, s.handleChangePassword))
	mux.HandleFunc("GET /auth/users", s.authed(2, s.handleListUsers))
	mux.HandleFunc("POST /auth/users", s.authed(2, s.handleCreateUser))
	mux.HandleFunc("PUT /auth/users/{id}", s.authed(2, s.managed(s.handleUpdateUser)))
	mux.HandleFunc("POST /auth/users/{id}/block", s.authed(2, s.managed(s.handleSetActive(false))))
	mux.HandleFunc("POST /auth/users/{id}/unblock", s.authed(2, s.managed(s.handleSetActive(true))))
	mux.HandleFunc("PUT /auth/users/{id}/role", s.authed(2, s.managed(s.handleSetRole)))
	mux.HandleFunc("POST /auth/users/{id}/reset-password", s.authed(2, s.managed(s.handleResetPassword)))
	mux.HandleFunc("GET /directions", s.authed(1, s.handleListDirections))
	mux.HandleFunc("POST /directions", s.authed(2, s.handleCreateDirection))
	mux.HandleFunc("PUT /directions/{id}", s.authed(2, s.handleRenameDirection))
	mux.HandleFunc("DELETE /directions/{id}", s.authed(2, s.handleDeleteDirection))
	mux.HandleFunc("GET /directions/{id}/sources", s.authed(1, s.handleListSources))
	mux.HandleFunc("POST /directions/{id}/sources", s.authed(2, s.handleCreateSource))
	mux.HandleFunc("DELETE /directions/{id}/sources/{sourceId}", s.authed(2, s.handleDeleteSource))
	mux.HandleFunc("GET /scrape/jobs", s.authed(3, s.handleListJobs))
	mux.HandleFunc("POST /scrape/start", s.authed(3, s.handleStartJob))
	mux.HandleFunc("POST /scrape/jobs/{id}/stop", s.authed(3, s.handleStopJob))
	mux.HandleFunc("GET /scrape/config/{service}", s.authed(3, s.handleGetScrapeConfig))
	mux.HandleFunc("PUT /scrape/config/{service}", s.authed(3, s.handleUpdateScrapeConfig))
	mux.HandleFunc("GET /analytics/vk/summary/{id}", s.authed(1, s.handleVKSummary))
	mux.HandleFunc("GET /analytics/vk/gender/{id}", s.authed(1, s.handleVKBreakdown("gender")))
	mux.HandleFunc("GET /analytics/vk/universities/{id}", s.authed(1, s.handleVKBreakdown("university")))
	mux.HandleFunc("GET /analytics/vk/schools/{id}", s.authed(1, s.handleVKBreakdown("school")))
	mux.HandleFunc("GET /analytics/vk/timeline/{id}", s.authed(1, s.handleVKBreakdown("day")))
	mux.HandleFunc("GET /analytics/vk/groups/{id}", s.authed(1, s.handleVKGroups))
	mux.HandleFunc("GET /analytics/vk/search", s.authed(1, s.handleVKSearch))
	mux.HandleFunc("GET /analytics/{platform}/{kind}/{id}", s.authed(1, s.handleSocial))
	mux.HandleFunc("POST /export", s.authed(1, s.handleExport))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// AddAccount registers an active account and returns it.
func (s *Server) AddAccount(email, password string, roles ...string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	a := &Account{ID: s.nextID, Email: email, Password: password, Roles: roles, IsActive: true}
	s.accounts[a.ID] = a
	return a
}

// Account returns a copy of the account with email.
func (s *Server) Account(email string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.byEmail(email); a != nil {
		return *a, true
	}
	return Account{}, false
}

// AddDirection registers a direction and returns its id.
func (s *Server) AddDirection(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.directions[s.nextID] = &direction{ID: s.nextID, Name: name}
	return s.nextID
}

// IssueToken mints an access token for email as if it had logged in, without
// a refresh cookie.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.byEmail(email)
	if a == nil {
		return ""
	}
	return s.mintLocked(a)
}

// ExpireTokens invalidates every issued access token. Refresh cookies stay
// valid.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]int)
}

// RevokeRefresh invalidates every refresh cookie.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]int)
}

// FailRefresh makes /auth/refresh answer 401.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFails = fail
}

// SlowRefresh delays /auth/refresh responses by d.
func (s *Server) SlowRefresh(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// HoldRefresh makes the next successful /auth/refresh mint its token and then
// wait for release before answering. entered is closed once the token exists.
func (s *Server) HoldRefresh() (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.refreshHold = h
	s.mu.Unlock()

	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

// SlowLogin delays /auth/login responses by d.
func (s *Server) SlowLogin(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginDelay = d
}

// SetDown makes every endpoint answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Calls returns how many times method path was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// Authorizations returns the Authorization headers seen for method path, in order.
func (s *Server) Authorizations(method, path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth[method+" "+path]...)
}

// ValidToken reports whether token is a live access token.
func (s *Server) ValidToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.access[token]
	return ok
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		s.calls[key]++
		s.auth[key] = append(s.auth[key], r.Header.Get("Authorization"))
		down := s.down
		s.mu.Unlock()

		if down {
			writeDetail(w, http.StatusServiceUnavailable, "Service unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) mintLocked(a *Account) string {
	claims := jwt.MapClaims{
		"sub":   strconv.Itoa(a.ID),
		"email": a.Email,
		"roles": a.Roles,
		"exp":   time.Now().Add(15 * time.Minute).Unix(),
		"iat":   time.Now().Unix(),
		"jti":   uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("platformtest: sign token: %v", err))
	}
	s.access[token] = a.ID
	return token
}

func (s *Server) byEmail(email string) *Account {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a
		}
	}
	return nil
}

type authedHandler func(w http.ResponseWriter, r *http.Request, caller *Account)

// authed rejects requests without a live bearer token or below minRank.
func (s *Server) authed(minRank int, next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if _, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		s.mu.Lock()
		id, live := s.access[token]
		caller := s.accounts[id]
		s.mu.Unlock()

		if !live || caller == nil || !caller.IsActive {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if level(caller.Roles) < minRank {
			writeDetail(w, http.StatusForbidden, "Insufficient role")
			return
		}
		next(w, r, caller)
	}
}

// managed resolves {id} and applies the "admins manage only users" rule.
func (s *Server) managed(next func(w http.ResponseWriter, r *http.Request, caller, target *Account)) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, caller *Account) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid id")
			return
		}

		s.mu.Lock()
		target := s.accounts[id]
		s.mu.Unlock()

		if target == nil {
			writeDetail(w, http.StatusNotFound, "User not found")
			return
		}
		if !hasRole(caller.Roles, "developer") && (hasRole(target.Roles, "admin") || hasRole(target.Roles, "developer")) {
			writeDetail(w, http.StatusForbidden, "Admin can manage only users")
			return
		}
		next(w, r, caller, target)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	delay := s.loginDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	a := s.byEmail(in.Email)
	if a == nil || a.Password != in.Password {
		s.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !a.IsActive {
		s.mu.Unlock()
		writeDetail(w, http.StatusForbidden, "User is blocked")
		return
	}
	token := s.mintLocked(a)
	refresh := uuid.NewString()
	s.refresh[refresh] = a.ID
	roles := a.Roles
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   7 * 24 * 3600,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"roles":        roles,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fails, delay := s.refreshFails, s.refreshDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fails {
		writeDetail(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Missing refresh token")
		return
	}

	s.mu.Lock()
	id, ok := s.refresh[cookie.Value]
	a := s.accounts[id]
	if !ok || a == nil || !a.IsActive {
		s.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	token := s.mintLocked(a)
	roles := a.Roles
	h := s.refreshHold
	s.refreshHold = nil
	s.mu.Unlock()

	if h != nil {
		close(h.entered)
		<-h.release
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"roles":        roles,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		delete(s.refresh, cookie.Value)
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		delete(s.access, token)
	}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, caller *Account) {
	s.mu.Lock()
	out := *caller
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, caller *Account) {
	var in struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	if in.FirstName != nil {
		caller.FirstName = in.FirstName
	}
	if in.LastName != nil {
		caller.LastName = in.LastName
	}
	out := *caller
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, caller *Account) {
	var in struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if caller.Password != in.Current {
		writeDetail(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if len(in.New) < 8 {
		writeDetail(w, http.StatusBadRequest, "Password too short")
		return
	}
	caller.Password = in.New
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request, _ *Account) {
	s.mu.Lock()
	out := make([]Account, 0, len(s.accounts))
	for id := 1; id <= s.nextID; id++ {
		if a, ok := s.accounts[id]; ok {
			out = append(out, *a)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, caller *Account) {
	var in struct {
		Email     string  `json:"email"`
		Password  string  `json:"password"`
		Role      string  `json:"role"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if _, ok := roleRank[in.Role]; !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if !hasRole(caller.Roles, "developer") && in.Role != "user" {
		writeDetail(w, http.StatusForbidden, "Admin can create only users")
		return
	}

	s.mu.Lock()
	if s.byEmail(in.Email) != nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "User already exists")
		return
	}
	s.nextID++
	a := &Account{
		ID: s.nextID, Email: in.Email, Password: in.Password, Roles: []string{in.Role},
		FirstName: in.FirstName, LastName: in.LastName, IsActive: true,
	}
	s.accounts[a.ID] = a
	out := *a
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, _ *Account, target *Account) {
	var in struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	if in.FirstName != nil {
		target.FirstName = in.FirstName
	}
	if in.LastName != nil {
		target.LastName = in.LastName
	}
	if in.Email != nil {
		target.Email = *in.Email
	}
	out := *target
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetActive(active bool) func(http.ResponseWriter, *http.Request, *Account, *Account) {
	return func(w http.ResponseWriter, _ *http.Request, _ *Account, target *Account) {
		s.mu.Lock()
		target.IsActive = active
		out := *target
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request, caller *Account, target *Account) {
	var in struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if _, ok := roleRank[in.Role]; !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if !hasRole(caller.Roles, "developer") && in.Role != "user" {
		writeDetail(w, http.StatusForbidden, "Admin can assign only user role")
		return
	}

	s.mu.Lock()
	target.Roles = []string{in.Role}
	out := *target
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request, _ *Account, target *Account) {
	var in struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	if len(in.Password) < 8 {
		writeDetail(w, http.StatusBadRequest, "Password too short")
		return
	}

	s.mu.Lock()
	target.Password = in.Password
	out := *target
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListDirections(w http.ResponseWriter, _ *http.Request, _ *Account) {
	s.mu.Lock()
	out := make([]direction, 0, len(s.directions))
	for id := 1; id <= s.nextID; id++ {
		if d, ok := s.directions[id]; ok {
			out = append(out, *d)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDirection(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	s.nextID++
	d := &direction{ID: s.nextID, Name: in.Name}
	s.directions[d.ID] = d
	out := *d
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRenameDirection(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}
	id, _ := strconv.Atoi(r.PathValue("id"))

	s.mu.Lock()
	d, ok := s.directions[id]
	if ok {
		d.Name = in.Name
	}
	var out direction
	if ok {
		out = *d
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Direction not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteDirection(w http.ResponseWriter, r *http.Request, _ *Account) {
	id, _ := strconv.Atoi(r.PathValue("id"))

	s.mu.Lock()
	_, ok := s.directions[id]
	delete(s.directions, id)
	for sid, src := range s.sources {
		if src.DirectionID == id {
			delete(s.sources, sid)
		}
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Direction not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request, _ *Account) {
	id, _ := strconv.Atoi(r.PathValue("id"))

	s.mu.Lock()
	out := []source{}
	for sid := 1; sid <= s.nextID; sid++ {
		if src, ok := s.sources[sid]; ok && src.DirectionID == id {
			out = append(out, *src)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request, _ *Account) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	var in struct {
		SourceType       string `json:"source_type"`
		SourceIdentifier string `json:"source_identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	if _, ok := s.directions[id]; !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Direction not found")
		return
	}
	s.nextID++
	src := &source{ID: s.nextID, DirectionID: id, SourceType: in.SourceType, SourceIdentifier: in.SourceIdentifier}
	s.sources[src.ID] = src
	out := *src
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request, _ *Account) {
	sid, _ := strconv.Atoi(r.PathValue("sourceId"))

	s.mu.Lock()
	_, ok := s.sources[sid]
	delete(s.sources, sid)
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Source not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request, _ *Account) {
	s.mu.Lock()
	out := make([]job, 0, len(s.jobs))
	for i := len(s.jobs) - 1; i >= 0; i-- {
		out = append(out, *s.jobs[i])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request, _ *Account) {
	var in struct {
		ServiceName string `json:"service_name"`
		DirectionID int    `json:"direction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	s.mu.Lock()
	j := &job{
		ID:          len(s.jobs) + 1,
		ServiceName: in.ServiceName,
		DirectionID: in.DirectionID,
		Status:      "queued",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	s.jobs = append(s.jobs, j)
	out := *j
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request, _ *Account) {
	id, _ := strconv.Atoi(r.PathValue("id"))

	s.mu.Lock()
	var found bool
	for _, j := range s.jobs {
		if j.ID == id {
			j.Status = "stopped"
			found = true
		}
	}
	s.mu.Unlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func level(roles []string) int {
	best := 0
	for _, r := range roles {
		if roleRank[r] > best {
			best = roleRank[r]
		}
	}
	return best
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
