package nav

import (
	"fmt"
	"strings"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/metrics"
	"github.com/taspa/console/internal/session"
)

// Route is a console location.
type Route string

const (
	RouteRoot               Route = "/"
	RouteLogin              Route = "/login"
	RouteHome               Route = "/home"
	RouteUser               Route = "/user"
	RouteAnalytics          Route = "/analytics"
	RouteAnalyticsVK        Route = "/analytics/vk"
	RouteAnalyticsInstagram Route = "/analytics/instagram"
	RouteAnalyticsTikTok    Route = "/analytics/tiktok"
	RouteProfile            Route = "/profile"
	RouteAdmin              Route = "/admin"
	RouteAdminUsers         Route = "/admin/users"
	RouteDeveloper          Route = "/developer"
)

// Screen names rendered by the default route table.
const (
	ScreenLogin      = "login"
	ScreenHome       = "home"
	ScreenAnalytics  = "analytics"
	ScreenProfile    = "profile"
	ScreenDirections = "directions"
	ScreenUsers      = "users"
	ScreenJobs       = "jobs"
	ScreenNotFound   = "not-found"
)

// MaxRedirects bounds how many redirects Navigate follows.
const MaxRedirects = 8

// Clean normalizes a typed-in route: leading slash, no trailing slash.
func Clean(s string) Route {
	s = strings.TrimSpace(s)
	s = "/" + strings.Trim(s, "/")
	return Route(s)
}

// AnalyticsPlatform returns the platform of an analytics route ("vk",
// "instagram", "tiktok"), or "".
func AnalyticsPlatform(r Route) string {
	p, ok := strings.CutPrefix(string(r), string(RouteAnalytics)+"/")
	if !ok {
		return ""
	}
	return p
}

type entry struct {
	handler  Handler
	required authz.Role
}

// Router maps routes to handler chains.
type Router struct {
	routes   map[Route]entry
	fallback Handler
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used for redirect traces.
func WithRouterLogger(l *log.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// WithRouterMetrics counts guard decisions.
func WithRouterMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates an empty router. Unknown routes render fallback.
func NewRouter(fallback Handler, opts ...RouterOption) *Router {
	r := &Router{routes: make(map[Route]entry), fallback: fallback}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.OrDefault(r.logger).With("component", "nav")
	return r
}

// Handle registers h for route. required names the role the chain demands,
// for menus and error messages; "" means no role is needed.
func (r *Router) Handle(route Route, required authz.Role, h Handler) {
	r.routes[route] = entry{handler: h, required: required}
}

// Public registers a route open to everyone.
func (r *Router) Public(route Route, h Handler) {
	r.Handle(route, "", h)
}

// Authenticated registers a route for any signed-in user.
func (r *Router) Authenticated(route Route, h Handler) {
	r.Handle(route, "", RequireAuthenticated(h))
}

// Restricted registers a route for sessions reaching role.
func (r *Router) Restricted(route Route, role authz.Role, h Handler) {
	r.Handle(route, role, RequireAuthenticated(RequireRole(role, h)))
}

// DefaultRouter returns the console's route table.
func DefaultRouter(opts ...RouterOption) *Router {
	r := NewRouter(Screen(ScreenNotFound), opts...)

	r.Public(RouteLogin, Screen(ScreenLogin))
	r.Public(RouteRoot, RedirectTo(RouteAnalyticsVK))

	r.Authenticated(RouteHome, Screen(ScreenHome))
	r.Authenticated(RouteUser, RedirectTo(RouteAnalyticsVK))
	r.Authenticated(RouteAnalytics, RedirectTo(RouteAnalyticsVK))
	for _, route := range []Route{RouteAnalyticsVK, RouteAnalyticsInstagram, RouteAnalyticsTikTok} {
		r.Authenticated(route, Screen(ScreenAnalytics))
	}
	r.Authenticated(RouteProfile, Screen(ScreenProfile))

	r.Restricted(RouteAdmin, authz.RoleAdmin, Screen(ScreenDirections))
	r.Restricted(RouteAdminUsers, authz.RoleAdmin, Screen(ScreenUsers))
	r.Restricted(RouteDeveloper, authz.RoleDeveloper, Screen(ScreenJobs))
	return r
}

// Known reports whether route is registered.
func (r *Router) Known(route Route) bool {
	_, ok := r.routes[route]
	return ok
}

// Required returns the role a route demands, or "" when none is.
func (r *Router) Required(route Route) authz.Role {
	return r.routes[route].required
}

// Resolve runs the handler chain for a single route without following
// redirects.
func (r *Router) Resolve(route Route, s session.Snapshot) Decision {
	e, ok := r.routes[route]
	if !ok {
		return r.fallback.Resolve(s)
	}
	return e.handler.Resolve(s)
}

// Navigate resolves route, following redirects, and returns the route that
// was finally reached together with its decision. A Pending decision is
// returned unchanged at the route that produced it. A redirect loop or a chain
// longer than MaxRedirects is an error.
func (r *Router) Navigate(route Route, s session.Snapshot) (Route, Decision, error) {
	seen := map[Route]bool{}
	current := route
	for hop := 0; ; hop++ {
		d := r.Resolve(current, s)
		r.metrics.IncGuard(string(current), d.Outcome.String())
		if d.Outcome != Redirect {
			return current, d, nil
		}

		seen[current] = true
		if seen[d.Target] {
			return current, d, fmt.Errorf("redirect loop at %s -> %s", current, d.Target)
		}
		if hop+1 >= MaxRedirects {
			return current, d, fmt.Errorf("too many redirects from %s", route)
		}
		r.logger.Debug("redirect", "from", current, "to", d.Target)
		current = d.Target
	}
}

// Authorize checks whether a non-interactive caller may act on route. A
// redirect to login means the session is gone; any other redirect means the
// roles are insufficient.
func (r *Router) Authorize(route Route, s session.Snapshot) error {
	d := r.Resolve(route, s)
	switch d.Outcome {
	case Render:
		return nil
	case Pending:
		return errors.New(errors.ErrCodeSessionState, "session is not resolved yet")
	}
	if d.Target == RouteLogin {
		return errors.NewUnauthorizedError()
	}
	return errors.NewForbiddenError(fmt.Sprintf("%s requires role %s", route, r.Required(route)))
}

// MenuItem is an entry of the main navigation.
type MenuItem struct {
	Label string
	Route Route
}

var menu = []MenuItem{
	{Label: "Home", Route: RouteHome},
	{Label: "VK", Route: RouteAnalyticsVK},
	{Label: "Instagram", Route: RouteAnalyticsInstagram},
	{Label: "TikTok", Route: RouteAnalyticsTikTok},
	{Label: "Directions", Route: RouteAdmin},
	{Label: "Users", Route: RouteAdminUsers},
	{Label: "Scraping", Route: RouteDeveloper},
	{Label: "Profile", Route: RouteProfile},
}

// Menu returns the navigation entries the roles can open.
func (r *Router) Menu(roles authz.Roles) []MenuItem {
	var out []MenuItem
	for _, item := range menu {
		if req := r.Required(item.Route); req == "" || authz.Satisfies(roles, req) {
			out = append(out, item)
		}
	}
	return out
}
