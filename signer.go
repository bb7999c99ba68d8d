package grantd

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSigner signs identity-token claim sets with RS256 and publishes the
// matching verification key as a JWKS document.
type TokenSigner struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewTokenSigner creates a signer around the given RSA private key. The key
// id is generated once and stamped into every token header.
func NewTokenSigner(key *rsa.PrivateKey) *TokenSigner {
	return &TokenSigner{
		key:   key,
		keyID: uuid.NewString(),
	}
}

// Sign serializes and signs the claim set, returning the compact JWT.
func (s *TokenSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign claims: %w", err)
	}

	return signed, nil
}

// KeyID returns the key id stamped into signed token headers.
func (s *TokenSigner) KeyID() string { return s.keyID }

// PublicKey returns the verification key for tokens signed by this signer.
func (s *TokenSigner) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS returns the JSON Web Key Set containing the signer's public key.
func (s *TokenSigner) JWKS() JWKS {
	pub := s.key.Public().(*rsa.PublicKey)

	exp := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	mod := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())

	return JWKS{
		Keys: []JWK{
			{
				Kid: s.keyID,
				Kty: "RSA",
				Alg: "RS256",
				Use: "sig",
				N:   mod,
				E:   exp,
			},
		},
	}
}
