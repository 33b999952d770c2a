package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"llmgateway/internal/usertoken"
	"llmgateway/pkg/auth"
	"llmgateway/pkg/domain"
)

const invalidCredentials = "invalid username or password"

// Session is the result of a successful login.
type Session struct {
	Token     string          `json:"token"`
	Identity  domain.Identity `json:"identity"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Login checks the configured superadmin first, then stored admins.
func (a *App) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, &AuthError{Reason: invalidCredentials}
	}
	if a.isSuperadmin(username, password) {
		return a.issue(domain.Identity{Principal: username, Role: domain.RoleSuperAdmin})
	}
	admin, ok, err := a.store.GetAdmin(ctx, username)
	if err != nil {
		return Session{}, fmt.Errorf("load admin: %w", err)
	}
	if !ok || !auth.CheckPassword(password, admin.PasswordHash) {
		return Session{}, &AuthError{Reason: invalidCredentials}
	}
	return a.issue(domain.Identity{Principal: admin.Username, Role: domain.RoleAdmin})
}

func (a *App) isSuperadmin(username, password string) bool {
	if a.superadminUsername == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.superadminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.superadminPassword)) == 1
	return userOK && passOK
}

func (a *App) issue(identity domain.Identity) (Session, error) {
	token, expires, err := a.tokens.Issue(identity)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, Identity: identity, ExpiresAt: expires}, nil
}

// Logout revokes the token until it would have expired.
func (a *App) Logout(token string) error {
	if err := a.tokens.Revoke(token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token into an identity. The identity is
// derived fresh on every call.
func (a *App) Authenticate(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, &AuthError{Reason: "missing token"}
	}
	identity, err := a.tokens.Verify(token)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, usertoken.ErrRevoked):
		return domain.Identity{}, &AuthError{Reason: "token revoked"}
	default:
		return domain.Identity{}, &AuthError{Reason: "invalid token"}
	}
}

// RequireSuperAdmin rejects any other role.
func RequireSuperAdmin(identity domain.Identity) error {
	if !identity.IsSuperAdmin() {
		return &AuthError{Reason: "superadmin role required"}
	}
	return nil
}
