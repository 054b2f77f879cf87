// Package bootstrap seeds the initial account on startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/medev213/darksmart/internal/config"
	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/password"
	"github.com/medev213/darksmart/internal/repository"
)

// EnsureOwner creates the home owner account on startup when
// OWNER_EMAIL and OWNER_PASSWORD are configured. Without them the hook
// is a no-op; accounts are then expected to exist already.
func EnsureOwner(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureOwner(ctx, cfg, users, logger)
		},
	})
}

func ensureOwner(ctx context.Context, cfg config.Config, users repository.UserRepository, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.OwnerEmail))
	if email == "" || cfg.OwnerPassword == "" {
		return nil
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup owner: %w", err)
	}

	hashed, err := password.Hash(cfg.OwnerPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := users.Create(ctx, domain.User{
		Email:        email,
		PasswordHash: hashed,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create owner: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap owner account created",
			zap.String("email", created.Email),
			zap.String("user_id", created.ID),
		)
	}
	return nil
}
