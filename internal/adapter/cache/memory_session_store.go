package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/repository"
)

// MemorySessionStore keeps handshake sessions in process memory. Meant
// for single-instance deployments and tests; Redis is the default.
type MemorySessionStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

var _ repository.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore constructs an in-process session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, session domain.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(session.ID, session, time.Until(session.ExpiresAt))
	return nil
}

// Consume deletes under the store lock so double submissions of the same
// session race to a single winner.
func (s *MemorySessionStore) Consume(_ context.Context, id string) (*domain.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, found := s.cache.Get(id)
	if !found {
		return nil, nil
	}
	s.cache.Delete(id)
	session, ok := value.(domain.AuthSession)
	if !ok {
		return nil, nil
	}
	return &session, nil
}
