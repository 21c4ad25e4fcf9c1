// Package session owns the signed-in identity.
//
// A Controller is the single source of truth for "who is using the console".
// It restores a persisted credential at start, performs login and logout,
// and tells subscribers about every state change. Operations that change the
// session run one at a time; reads never wait for them.
package session

import (
	"strings"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/platform"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateUnknown is the state before Init has run.
	StateUnknown State = iota
	// StateRestoring means a persisted credential is being checked.
	StateRestoring
	// StateUnauthenticated means nobody is signed in.
	StateUnauthenticated
	// StateAuthenticated means User holds the signed-in identity.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateRestoring:
		return "restoring"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "invalid"
	}
}

// Resolved reports whether the state is final enough to act on.
func (s State) Resolved() bool {
	return s == StateUnauthenticated || s == StateAuthenticated
}

// User is the authenticated identity.
type User struct {
	ID        int
	Email     string
	Roles     authz.Roles
	FirstName *string
	LastName  *string
}

// FullName joins the non-empty name fields, or returns "".
func (u *User) FullName() string {
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	return strings.Join(parts, " ")
}

// DisplayName is the full name when known, otherwise the email.
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

// Initials are the first letters of the names, or of the email.
func (u *User) Initials() string {
	var b strings.Builder
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p == nil {
			continue
		}
		if r := []rune(strings.TrimSpace(*p)); len(r) > 0 {
			b.WriteRune(r[0])
		}
	}
	if b.Len() == 0 {
		if r := []rune(u.Email); len(r) > 0 {
			b.WriteRune(r[0])
		} else {
			b.WriteRune('U')
		}
	}
	return strings.ToUpper(b.String())
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append(authz.Roles(nil), u.Roles...)
	if u.FirstName != nil {
		v := *u.FirstName
		c.FirstName = &v
	}
	if u.LastName != nil {
		v := *u.LastName
		c.LastName = &v
	}
	return &c
}

// userFromIdentity converts a validated identity response.
func userFromIdentity(id *platform.Identity) (*User, error) {
	roles := make(authz.Roles, 0, len(id.Roles))
	for _, name := range id.Roles {
		r, err := authz.ParseRole(name)
		if err != nil {
			return nil, errors.NewSchemaError("identity", err)
		}
		roles = append(roles, r)
	}
	return &User{
		ID:        id.ID,
		Email:     id.Email,
		Roles:     roles.Normalize(),
		FirstName: id.FirstName,
		LastName:  id.LastName,
	}, nil
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	State State
	User  *User
}

// Authenticated reports whether a user is signed in.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Roles returns the signed-in user's roles, or nil.
func (s Snapshot) Roles() authz.Roles {
	if s.User == nil {
		return nil
	}
	return s.User.Roles
}

// LoginResult is the outcome of Login. Failures are values, not errors, so
// screens can show Error inline without error handling.
type LoginResult struct {
	OK    bool
	Error string
	Roles authz.Roles
}
