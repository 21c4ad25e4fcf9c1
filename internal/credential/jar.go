package credential

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/taspa/console/internal/errors"
)

// Jar is an http.CookieJar that remembers cookies across process restarts.
// The API keeps its refresh credential in an HttpOnly cookie; persisting the
// jar is what lets a later process refresh an expired access token.
//
// Cookie matching is delegated to net/http/cookiejar. Jar records every cookie
// it is given, together with the URL that set it, and replays them into a
// fresh cookiejar on load.
type Jar struct {
	mu      sync.Mutex
	path    string
	inner   *cookiejar.Jar
	entries map[string]storedCookie
	now     func() time.Time
	lastErr error
}

type storedCookie struct {
	URL      string        `json:"url"`
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Expires  time.Time     `json:"expires,omitempty"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"http_only,omitempty"`
	SameSite http.SameSite `json:"same_site,omitempty"`
}

// NewJar loads the jar persisted at path. An empty path gives a jar that is
// never written to disk. A missing or corrupt file loads as empty.
func NewJar(path string) *Jar {
	j := &Jar{
		path:    path,
		entries: make(map[string]storedCookie),
		now:     time.Now,
	}
	j.inner = newInnerJar()
	j.load()
	return j
}

func newInnerJar() *cookiejar.Jar {
	// cookiejar.New only fails on a bad PublicSuffixList; none is passed.
	jar, _ := cookiejar.New(nil)
	return jar
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar. Persistence is best effort; the last
// write error is available from Err.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)

	now := j.now()
	for _, c := range cookies {
		key := cookieKey(u, c)
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = storedCookie{
			URL:      (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
		}
	}
	j.lastErr = j.save()
}

// Reset forgets every cookie, in memory and on disk.
func (j *Jar) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner = newInnerJar()
	j.entries = make(map[string]storedCookie)
	j.lastErr = j.save()
	return j.lastErr
}

// Len returns the number of live cookies held.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Err returns the last persistence error, if any.
func (j *Jar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

func (j *Jar) load() {
	if j.path == "" {
		return
	}
	data, err := os.ReadFile(j.path)
	if err != nil {
		return
	}
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return
	}

	now := j.now()
	for _, sc := range stored {
		if !sc.Expires.IsZero() && !sc.Expires.After(now) {
			continue
		}
		u, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}
		c := &http.Cookie{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Domain:   sc.Domain,
			Expires:  sc.Expires,
			Secure:   sc.Secure,
			HttpOnly: sc.HttpOnly,
			SameSite: sc.SameSite,
		}
		j.inner.SetCookies(u, []*http.Cookie{c})
		j.entries[cookieKey(u, c)] = sc
	}
}

func (j *Jar) save() error {
	if j.path == "" {
		return nil
	}
	stored := make([]storedCookie, 0, len(j.entries))
	for _, sc := range j.entries {
		stored = append(stored, sc)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to encode cookies", err)
	}
	return writeFileAtomic(j.path, data)
}

func cookieKey(u *url.URL, c *http.Cookie) string {
	domain := c.Domain
	if domain == "" {
		domain = u.Hostname()
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return domain + ";" + path + ";" + c.Name
}
