// Package nav gates navigation between console screens on the session state
// and the signed-in roles.
//
// A route resolves through a chain of Handlers. Guards either pass through to
// the wrapped handler, redirect, or report Pending while the session is still
// being restored. The Router follows redirects until a screen renders.
package nav

import (
	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/session"
)

// Outcome is what a handler decided to do with a navigation.
type Outcome int

const (
	// Render shows Decision.Screen.
	Render Outcome = iota
	// Redirect moves to Decision.Target.
	Redirect
	// Pending shows nothing until the session resolves.
	Pending
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Pending:
		return "pending"
	default:
		return "invalid"
	}
}

// Decision is the result of resolving a route.
type Decision struct {
	Outcome Outcome
	Screen  string
	Target  Route
}

// Handler resolves a route against a session snapshot.
type Handler interface {
	Resolve(s session.Snapshot) Decision
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s session.Snapshot) Decision

// Resolve calls f(s).
func (f HandlerFunc) Resolve(s session.Snapshot) Decision {
	return f(s)
}

// Screen renders the named screen unconditionally.
func Screen(name string) Handler {
	return HandlerFunc(func(session.Snapshot) Decision {
		return Decision{Outcome: Render, Screen: name}
	})
}

// RedirectTo always moves to another route.
func RedirectTo(to Route) Handler {
	return HandlerFunc(func(session.Snapshot) Decision {
		return Decision{Outcome: Redirect, Target: to}
	})
}

// RequireAuthenticated renders next for a signed-in session. While the session
// is unknown or restoring it is Pending, so the login screen never flashes
// before a restore finishes.
func RequireAuthenticated(next Handler) Handler {
	return HandlerFunc(func(s session.Snapshot) Decision {
		if !s.State.Resolved() {
			return Decision{Outcome: Pending}
		}
		if !s.Authenticated() {
			return Decision{Outcome: Redirect, Target: RouteLogin}
		}
		return next.Resolve(s)
	})
}

// RequireRole renders next when the session's roles reach required and
// otherwise redirects to home. It is meant to sit inside RequireAuthenticated
// but stays total on its own: without a user it redirects to login.
func RequireRole(required authz.Role, next Handler) Handler {
	return HandlerFunc(func(s session.Snapshot) Decision {
		if !s.State.Resolved() {
			return Decision{Outcome: Pending}
		}
		if !s.Authenticated() {
			return Decision{Outcome: Redirect, Target: RouteLogin}
		}
		if !authz.Satisfies(s.Roles(), required) {
			return Decision{Outcome: Redirect, Target: RouteHome}
		}
		return next.Resolve(s)
	})
}
