package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/yourorg/labtrack/internal/domain"
)

// envelope is the {success, data|message} shape the auth endpoints return
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// SignupRequest carries the fields of a self-service signup
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company,omitempty"`
}

// Me fetches the current identity. Returns *Error with status 401 when the
// session cookie is missing or expired.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshSession rotates the session cookie. The refresh path is exempt from
// the 401 interceptor, so a dead refresh token surfaces directly.
func (c *Client) RefreshSession(ctx context.Context) (*domain.User, error) {
	return c.authPost(ctx, "/auth/refresh", nil)
}

// Login authenticates with credentials. Rejected credentials come back as
// *Error carrying the backend's message.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authPost(ctx, "/auth/login", body)
}

// Signup registers a new account
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*domain.User, error) {
	return c.authPost(ctx, "/auth/signup", req)
}

// AcceptInvite completes an invited user's signup
func (c *Client) AcceptInvite(ctx context.Context, token, name, password string) (*domain.User, error) {
	body := map[string]string{"token": token, "name": name, "password": password}
	return c.authPost(ctx, "/auth/invite/accept", body)
}

// NotifyLogout tells the backend to drop the session. Best effort; the
// caller clears local state regardless of the outcome.
func (c *Client) NotifyLogout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// MyPermissions fetches the full permission list for the current identity
func (c *Client) MyPermissions(ctx context.Context) (*domain.PermissionList, error) {
	var list domain.PermissionList
	if err := c.do(ctx, http.MethodGet, "/auth/me/permissions", nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// authPost posts to an auth endpoint and unwraps the response envelope
func (c *Client) authPost(ctx context.Context, path string, body any) (*domain.User, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, path, nil, body, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &Error{Status: http.StatusUnauthorized, Message: msg}
	}
	if len(env.Data) == 0 {
		return nil, errors.New("auth response carried no identity")
	}
	var user domain.User
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &user, nil
}
