package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/countryauth/internal/config"
	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/geocoder89/countryauth/internal/security"
)

// EnsureAdminUser creates the bootstrap admin from ADMIN_EMAIL/ADMIN_PASSWORD
// when both are set and no account with that email exists. An existing
// account is left untouched. It reports whether an account was created.
func EnsureAdminUser(ctx context.Context, store user.Store, cfg config.Config) (bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	// check if the user exists

	_, err := store.GetByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return false, fmt.Errorf("seed admin: lookup: %w", err)
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return false, fmt.Errorf("seed admin: hash: %w", err)
	}

	now := time.Now().UTC()

	_, err = store.Create(ctx, user.User{
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Name:         cfg.AdminName,
		Role:         user.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	// another replica won the race
	if errors.Is(err, user.ErrEmailTaken) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("seed admin: create: %w", err)
	}

	return true, nil
}
