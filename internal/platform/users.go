package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/taspa/console/internal/errors"
)

// MinPasswordLength is the shortest password the API accepts.
const MinPasswordLength = 8

// Account is a user as seen by the administration endpoints.
type Account struct {
	ID        int      `json:"id"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	IsActive  bool     `json:"is_active"`
}

// NewAccount is the body of POST /auth/users.
type NewAccount struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      string  `json:"role"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// AccountUpdate is the body of PUT /auth/users/{id}. Nil fields are sent as
// null and left unchanged by the server.
type AccountUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

// ValidatePassword applies the API's password rule locally so the user gets
// the error before a round trip.
func ValidatePassword(password string) error {
	if password == "" {
		return errors.NewRequiredError("password")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errors.New(errors.ErrCodeInputInvalid,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// ListUsers returns every account.
func (c *Client) ListUsers(ctx context.Context) ([]Account, error) {
	raw, err := c.Request(ctx, "/auth/users", RequestOptions{})
	if err != nil {
		return nil, err
	}

	var accounts []Account
	if err := Decode(raw, SchemaAccountList, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateUser creates an account with a single role.
func (c *Client) CreateUser(ctx context.Context, in NewAccount) (*Account, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		return nil, errors.NewRequiredError("email")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	return c.accountCall(ctx, http.MethodPost, "/auth/users", in)
}

// UpdateUser changes an account's name or email.
func (c *Client) UpdateUser(ctx context.Context, id int, in AccountUpdate) (*Account, error) {
	return c.accountCall(ctx, http.MethodPut, userPath(id, ""), in)
}

// BlockUser deactivates an account.
func (c *Client) BlockUser(ctx context.Context, id int) (*Account, error) {
	return c.accountCall(ctx, http.MethodPost, userPath(id, "block"), nil)
}

// UnblockUser reactivates an account.
func (c *Client) UnblockUser(ctx context.Context, id int) (*Account, error) {
	return c.accountCall(ctx, http.MethodPost, userPath(id, "unblock"), nil)
}

// SetUserRole replaces an account's roles with role.
func (c *Client) SetUserRole(ctx context.Context, id int, role string) (*Account, error) {
	return c.accountCall(ctx, http.MethodPut, userPath(id, "role"), map[string]string{"role": role})
}

// ResetUserPassword sets a new password on another account.
func (c *Client) ResetUserPassword(ctx context.Context, id int, password string) (*Account, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	return c.accountCall(ctx, http.MethodPost, userPath(id, "reset-password"), map[string]string{"password": password})
}

func (c *Client) accountCall(ctx context.Context, method, path string, body any) (*Account, error) {
	raw, err := c.Request(ctx, path, RequestOptions{Method: method, Body: body})
	if err != nil {
		return nil, err
	}

	var account Account
	if err := Decode(raw, SchemaAccount, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func userPath(id int, action string) string {
	if action == "" {
		return fmt.Sprintf("/auth/users/%d", id)
	}
	return fmt.Sprintf("/auth/users/%d/%s", id, action)
}
