package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llmgateway/internal/util"
	"llmgateway/pkg/auth"
	"llmgateway/pkg/domain"
	"llmgateway/pkg/store"
)

// CreateAdmin adds an admin account. Superadmin only.
func (a *App) CreateAdmin(ctx context.Context, caller domain.Identity, username, password string) (domain.Admin, error) {
	if err := RequireSuperAdmin(caller); err != nil {
		return domain.Admin{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Admin{}, &ValidationError{Field: "username", Reason: "required"}
	}
	if a.superadminUsername != "" && strings.EqualFold(username, a.superadminUsername) {
		return domain.Admin{}, ErrAdminExists
	}
	hash, err := hashValidPassword(password)
	if err != nil {
		return domain.Admin{}, err
	}
	now := a.now().UTC()
	admin := domain.Admin{
		ID:           util.NewID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.InsertAdmin(ctx, admin); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Admin{}, ErrAdminExists
		}
		return domain.Admin{}, fmt.Errorf("insert admin: %w", err)
	}
	return admin, nil
}

// ListAdmins returns every admin. Superadmin only.
func (a *App) ListAdmins(ctx context.Context, caller domain.Identity) ([]domain.Admin, error) {
	if err := RequireSuperAdmin(caller); err != nil {
		return nil, err
	}
	admins, err := a.store.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// DeleteAdmin removes an admin and revokes every token issued to it. Superadmin only.
func (a *App) DeleteAdmin(ctx context.Context, caller domain.Identity, username string) error {
	if err := RequireSuperAdmin(caller); err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	deleted, err := a.store.DeleteAdmin(ctx, username)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if !deleted {
		return &NotFoundError{Kind: "admin", Key: username}
	}
	return a.revokeSessions(username)
}

// UpdateAdminPassword replaces an admin's password and revokes its existing
// tokens. Superadmin only.
func (a *App) UpdateAdminPassword(ctx context.Context, caller domain.Identity, username, password string) error {
	if err := RequireSuperAdmin(caller); err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	hash, err := hashValidPassword(password)
	if err != nil {
		return err
	}
	updated, err := a.store.UpdateAdminPassword(ctx, username, hash, a.now().UTC())
	if err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	if !updated {
		return &NotFoundError{Kind: "admin", Key: username}
	}
	return a.revokeSessions(username)
}

func (a *App) revokeSessions(username string) error {
	if err := a.tokens.RevokePrincipal(username); err != nil {
		return fmt.Errorf("revoke sessions for %s: %w", username, err)
	}
	return nil
}

func hashValidPassword(password string) (string, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return "", &ValidationError{Field: "password", Reason: err.Error()}
	}
	return auth.HashPassword(password)
}
