// Package cache provides the shipped token-store collaborators: an
// in-memory implementation for single-node deployments and a Redis one for
// shared ones.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/grantd"
)

// MemoryTokenStore implements grantd.TokenStore on top of ttlcache. Entries
// evict themselves at token expiry.
type MemoryTokenStore struct {
	cache *ttlcache.Cache[string, *grantd.Token]
}

// NewMemoryTokenStore creates an in-memory token store with automatic
// eviction of expired tokens.
func NewMemoryTokenStore() *MemoryTokenStore {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *grantd.Token](),
	)

	go c.Start()

	return &MemoryTokenStore{cache: c}
}

// StoreToken implements grantd.TokenStore.
func (s *MemoryTokenStore) StoreToken(_ context.Context, token *grantd.Token) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}

	s.cache.Set(HashToken(token.Value), token, ttl)

	return nil
}

// GetToken retrieves a stored token by its raw value.
func (s *MemoryTokenStore) GetToken(_ context.Context, value string) (*grantd.Token, error) {
	item := s.cache.Get(HashToken(value))
	if item == nil {
		return nil, fmt.Errorf("token not found")
	}

	return item.Value(), nil
}

// Count returns the number of live tokens.
func (s *MemoryTokenStore) Count() int {
	return s.cache.Len()
}

// Close stops the eviction loop.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}

var _ grantd.TokenStore = (*MemoryTokenStore)(nil)
