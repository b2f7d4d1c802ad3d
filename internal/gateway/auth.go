package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SignInWithPassword exchanges credentials for a session using the password grant.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (AuthSession, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return AuthSession{}, errors.New("email is required")
	}
	if password == "" {
		return AuthSession{}, errors.New("password is required")
	}
	raw, err := c.do(ctx, call{
		operation: "auth.token",
		method:    http.MethodPost,
		path:      "/auth/v1/token",
		query:     url.Values{"grant_type": {"password"}},
		body:      map[string]string{"email": email, "password": password},
		anonymous: true,
	})
	if err != nil {
		return AuthSession{}, err
	}
	var session AuthSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return AuthSession{}, fmt.Errorf("decode token grant: %w", err)
	}
	if session.AccessToken == "" {
		return AuthSession{}, errors.New("token grant returned no access token")
	}
	if session.TokenType == "" {
		session.TokenType = "bearer"
	}
	return session, nil
}

// SendMagicLink asks the auth service to email a one-time sign-in link.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	body := map[string]any{
		"email":       email,
		"create_user": true,
	}
	if redirectTo = strings.TrimSpace(redirectTo); redirectTo != "" {
		body["options"] = map[string]string{"emailRedirectTo": redirectTo}
	}
	_, err := c.do(ctx, call{
		operation: "auth.otp",
		method:    http.MethodPost,
		path:      "/auth/v1/otp",
		body:      body,
		anonymous: true,
	})
	return err
}

// GetUser fetches the profile of the bound access token.
func (c *Client) GetUser(ctx context.Context) (User, error) {
	raw, err := c.do(ctx, call{
		operation: "auth.user",
		method:    http.MethodGet,
		path:      "/auth/v1/user",
	})
	if err != nil {
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

// Health checks that the auth service answers. It needs only the anon key.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, call{
		operation: "auth.health",
		method:    http.MethodGet,
		path:      "/auth/v1/health",
		anonymous: true,
	})
	return err
}
