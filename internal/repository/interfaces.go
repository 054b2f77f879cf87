package repository

import (
	"context"
	"errors"
	"time"

	"github.com/medev213/darksmart/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row. Postgres
// implementations translate pgx.ErrNoRows into it so callers never
// depend on the driver.
var ErrNotFound = errors.New("repository: not found")

// ErrCodeConsumed is returned when an authorization code exists but has
// already been redeemed or has expired.
var ErrCodeConsumed = errors.New("repository: authorization code consumed or expired")

// UserRepository exposes persistence for user accounts.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}

// DeviceRepository is the device persistence port consumed by the
// fulfillment layer and the scheduler. The fulfillment layer never
// creates devices; it only reads and mutates status.
type DeviceRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Device, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (domain.Device, error)
	UpdateStatus(ctx context.Context, id, userID string, status domain.DeviceStatus) error
}

// AutomationRepository is consumed read-only by the scheduler.
type AutomationRepository interface {
	ListEnabled(ctx context.Context) ([]domain.Automation, error)
	GetByID(ctx context.Context, id string) (domain.Automation, error)
}

// TokenRepository persists the per-user token pair.
type TokenRepository interface {
	// Upsert stores a fresh token pair, overwriting any prior pair for
	// the user.
	Upsert(ctx context.Context, token domain.OAuthToken) error
	// GetByRefreshToken resolves an unexpired refresh token to its row.
	GetByRefreshToken(ctx context.Context, refreshToken string) (domain.OAuthToken, error)
	// SetAccessToken swaps the stored access token while keeping the
	// refresh token (the refresh grant does not rotate).
	SetAccessToken(ctx context.Context, id int64, accessToken string) error
	// ClearByValue blanks both token columns of any row matching value
	// as either token. Clearing nothing is not an error.
	ClearByValue(ctx context.Context, value string) error
	// ClearByUser blanks both token columns for every row of the user.
	ClearByUser(ctx context.Context, userID string) error
}

// CodeRepository manages single-use authorization codes.
type CodeRepository interface {
	Create(ctx context.Context, code domain.AuthCode) error
	// Consume atomically marks the code used and returns it. Exactly one
	// concurrent caller wins; the rest get ErrCodeConsumed (known code,
	// already used or expired) or ErrNotFound.
	Consume(ctx context.Context, code string, now time.Time) (domain.AuthCode, error)
}
