package grantd

import (
	"context"
	"io"
	"time"
)

// Token is an issued bearer access token, constructed by the token exchange
// and persisted by the token store collaborator.
type Token struct {
	Value     string    `json:"token_value"`
	ClientID  string    `json:"client_id"`
	Subject   string    `json:"subject"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenStore is the access-token persistence collaborator. Durable storage
// lives outside this module; implementations in the cache package cover the
// in-memory and Redis cases.
type TokenStore interface {
	io.Closer

	// StoreToken persists an issued access token.
	StoreToken(ctx context.Context, token *Token) error
}
