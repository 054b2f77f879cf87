package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/medev213/darksmart/internal/domain"
	"github.com/medev213/darksmart/internal/repository"
)

func testSession(id string, ttl time.Duration) domain.AuthSession {
	return domain.AuthSession{
		ID:          id,
		ClientID:    "client-1",
		RedirectURI: "https://example.com/cb",
		State:       "xyz",
		Scope:       "openid email profile",
		ExpiresAt:   time.Now().Add(ttl),
	}
}

func runSessionStoreTests(t *testing.T, store repository.SessionStore) {
	ctx := context.Background()

	t.Run("consume returns the saved session once", func(t *testing.T) {
		session := testSession("s1", time.Minute)
		require.NoError(t, store.Save(ctx, session))

		got, err := store.Consume(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, session.ClientID, got.ClientID)
		require.Equal(t, session.State, got.State)

		// The second consume races to nothing.
		again, err := store.Consume(ctx, "s1")
		require.NoError(t, err)
		require.Nil(t, again)
	})

	t.Run("consume of unknown id yields nil", func(t *testing.T) {
		got, err := store.Consume(ctx, "never-saved")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestMemorySessionStore(t *testing.T) {
	runSessionStoreTests(t, NewMemorySessionStore())
}

func TestRedisSessionStore(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	runSessionStoreTests(t, NewRedisSessionStore(client))
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisSessionStore(client)
	require.NoError(t, store.Save(context.Background(), testSession("s1", 10*time.Minute)))

	srv.FastForward(11 * time.Minute)

	got, err := store.Consume(context.Background(), "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisSessionStoreRejectsExpiredSave(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisSessionStore(client)
	err := store.Save(context.Background(), testSession("s1", -time.Second))
	require.Error(t, err)
}
