package repository

import (
	"context"

	"github.com/medev213/darksmart/internal/domain"
)

// SessionStore holds authorization handshake sessions between the
// GET /authorize prompt and the credential POST. Implementations must
// expire entries on their own and make Consume atomic: two concurrent
// consumers of one session id see at most one success.
type SessionStore interface {
	Save(ctx context.Context, session domain.AuthSession) error
	// Consume removes and returns the session in one step. A missing or
	// expired session returns (nil, nil).
	Consume(ctx context.Context, id string) (*domain.AuthSession, error)
}
