package platform

import (
	"context"
	"net/http"

	"github.com/taspa/console/internal/errors"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh. The refresh token itself
// travels as an HttpOnly cookie and never appears here.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Identity is the caller's own account as returned by /auth/me.
type Identity struct {
	ID        int      `json:"id,omitempty"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	IsActive  *bool    `json:"is_active,omitempty"`
}

// ProfileUpdate is the body of PUT /auth/me. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// PasswordChange is the body of POST /auth/me/password.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login exchanges credentials for an access token. It does not touch the
// credential store; the caller decides what to keep.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	raw, err := c.Request(ctx, "/auth/login", RequestOptions{
		Method:   http.MethodPost,
		Body:     LoginRequest{Email: email, Password: password},
		SkipAuth: true,
	})
	if err != nil {
		return nil, err
	}

	var tr TokenResponse
	if err := Decode(raw, SchemaToken, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Me returns the identity behind the current credential.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	raw, err := c.Request(ctx, "/auth/me", RequestOptions{})
	if err != nil {
		return nil, err
	}

	var id Identity
	if err := Decode(raw, SchemaIdentity, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UpdateMe updates the caller's profile fields.
func (c *Client) UpdateMe(ctx context.Context, update ProfileUpdate) error {
	_, err := c.Request(ctx, "/auth/me", RequestOptions{
		Method: http.MethodPut,
		Body:   update,
	})
	return err
}

// ChangePassword changes the caller's own password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" {
		return errors.NewRequiredError("current password")
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	_, err := c.Request(ctx, "/auth/me/password", RequestOptions{
		Method: http.MethodPost,
		Body:   PasswordChange{CurrentPassword: current, NewPassword: next},
	})
	return err
}

// Logout revokes the refresh cookie server-side. token is sent explicitly and
// refresh is disabled, so a rejected logout can never revive a session that
// the caller has already cleared locally.
func (c *Client) Logout(ctx context.Context, token string) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	_, err := c.Request(ctx, "/auth/logout", RequestOptions{
		Method:   http.MethodPost,
		Header:   header,
		SkipAuth: true,
	})
	return err
}

// Health checks that the API gateway is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Request(ctx, "/health", RequestOptions{SkipAuth: true})
	return err
}
