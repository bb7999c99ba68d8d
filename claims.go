package grantd

import (
	"crypto/md5" //nolint:gosec // gravatar addressing, not integrity
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserProfile carries the optional display claims of a resource owner,
// captured once when the authorization code is created.
type UserProfile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Identity is the result of resource-owner authentication.
type Identity struct {
	Subject string
	UserProfile
}

// IDTokenClaims is the claim set of the identity token issued alongside the
// access token. It is built fresh per token exchange and never persisted.
type IDTokenClaims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// NewIDTokenClaims assembles the identity claim set for a redeemed
// authorization. The audience is the redeeming client, the subject the
// resource owner who approved the authorization. A picture claim is derived
// from the email when one is present.
func NewIDTokenClaims(issuer, subject, clientID string, profile UserProfile, now time.Time, ttl time.Duration) *IDTokenClaims {
	claims := &IDTokenClaims{
		Name:  profile.Name,
		Email: profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if profile.Email != "" {
		claims.Picture = gravatarURL(profile.Email)
	}
	return claims
}

func gravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email)))) //nolint:gosec
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:])
}
