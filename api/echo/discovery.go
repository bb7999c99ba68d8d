package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// OpenIDConfiguration is the subset of the OpenID Connect discovery
// document this server publishes.
//
//nolint:tagliatelle
type OpenIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JwksURI                          string   `json:"jwks_uri"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// JWKSHandler publishes the identity-token verification key.
func (oa *OAuth2API) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, oa.signer.JWKS())
}

// OpenIDConfigurationHandler serves the discovery document.
func (oa *OAuth2API) OpenIDConfigurationHandler(c echo.Context) error {
	cfg := OpenIDConfiguration{
		Issuer:                           oa.issuer,
		AuthorizationEndpoint:            oa.issuer + oa.mount + "/authorize",
		TokenEndpoint:                    oa.issuer + oa.mount + "/access-token",
		JwksURI:                          oa.issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"code"},
		GrantTypesSupported:              []string{"authorization_code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
	}

	return c.JSON(http.StatusOK, cfg)
}
