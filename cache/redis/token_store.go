// Package redis provides a Redis-backed token store for deployments where
// issued tokens must be visible to more than one node.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/grantd"
	"go.pilab.hu/grantd/cache"
)

// TokenStore implements grantd.TokenStore using Redis. Each token is a hash
// keyed by the hashed token value, with the key TTL set to the token expiry.
type TokenStore struct {
	client *redis.Client
	prefix string
}

// NewTokenStore creates a Redis token store. prefix namespaces the keys.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
	}
}

func (r *TokenStore) key(token string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, cache.HashToken(token))
}

// StoreToken implements grantd.TokenStore.
func (r *TokenStore) StoreToken(ctx context.Context, token *grantd.Token) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}

	key := r.key(token.Value)
	entry := map[string]interface{}{
		"client_id":  token.ClientID,
		"subject":    token.Subject,
		"scope":      token.Scope,
		"expires_at": token.ExpiresAt.Unix(),
		"created_at": token.CreatedAt.Unix(),
	}

	if _, err := r.client.HSet(ctx, key, entry).Result(); err != nil {
		return fmt.Errorf("failed to store token in redis: %w", err)
	}
	if _, err := r.client.Expire(ctx, key, ttl).Result(); err != nil {
		return fmt.Errorf("failed to set token expiry in redis: %w", err)
	}

	return nil
}

// GetToken retrieves a stored token by its raw value.
func (r *TokenStore) GetToken(ctx context.Context, value string) (*grantd.Token, error) {
	res, err := r.client.HGetAll(ctx, r.key(value)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read token from redis: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("token not found")
	}

	token := &grantd.Token{
		Value:    value,
		ClientID: res["client_id"],
		Subject:  res["subject"],
		Scope:    res["scope"],
	}
	if sec, err := strconv.ParseInt(res["expires_at"], 10, 64); err == nil {
		token.ExpiresAt = time.Unix(sec, 0)
	}
	if sec, err := strconv.ParseInt(res["created_at"], 10, 64); err == nil {
		token.CreatedAt = time.Unix(sec, 0)
	}

	return token, nil
}

// Close releases the underlying client connection.
func (r *TokenStore) Close() error {
	return r.client.Close()
}

var _ grantd.TokenStore = (*TokenStore)(nil)
