package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/grantd"
)

func newTestStore(t *testing.T) *MemoryTokenStore {
	t.Helper()
	s := NewMemoryTokenStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryTokenStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	err := s.StoreToken(context.Background(), &grantd.Token{
		Value:     "tok-1",
		ClientID:  "web-app",
		Subject:   "user-1",
		Scope:     "profile/read",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())

	got, err := s.GetToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "web-app", got.ClientID)
	assert.Equal(t, "profile/read", got.Scope)

	_, err = s.GetToken(context.Background(), "tok-2")
	assert.Error(t, err)
}

func TestMemoryTokenStoreRejectsExpired(t *testing.T) {
	s := newTestStore(t)

	err := s.StoreToken(context.Background(), &grantd.Token{
		Value:     "tok-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestMemoryTokenStoreEvicts(t *testing.T) {
	s := newTestStore(t)

	err := s.StoreToken(context.Background(), &grantd.Token{
		Value:     "tok-1",
		ExpiresAt: time.Now().Add(20 * time.Millisecond),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := s.GetToken(context.Background(), "tok-1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestHashTokenStable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
