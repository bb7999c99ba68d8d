// Package echo exposes the authorization code grant over HTTP using the
// echo framework.
package echo

import (
	goerrors "errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/grantd"
	serrors "go.pilab.hu/grantd/errors"
)

// DefaultMountPath is where the OAuth endpoints live unless configured
// otherwise.
const DefaultMountPath = "/login/oauth"

// Authn groups the authentication collaborators the HTTP surface consumes.
type Authn interface {
	grantd.Authenticator
	grantd.SessionStore

	// Login verifies resource-owner credentials.
	Login(email, password string) (*grantd.Identity, error)

	// IssueSession binds a fresh session to the response and returns its id.
	IssueSession(w http.ResponseWriter, identity *grantd.Identity) string
}

// OAuth2API holds the handler dependencies.
type OAuth2API struct {
	flow    *grantd.FlowService
	authn   Authn
	signer  *grantd.TokenSigner
	consent ConsentRenderer
	mount   string
	issuer  string
}

// NewOAuth2API initializes the OAuth2 API. A nil renderer selects the
// built-in template pages.
func NewOAuth2API(flow *grantd.FlowService, authn Authn, signer *grantd.TokenSigner, issuer, mount string, consent ConsentRenderer) *OAuth2API {
	if mount == "" {
		mount = DefaultMountPath
	}
	if consent == nil {
		consent = NewTemplateRenderer()
	}
	return &OAuth2API{
		flow:    flow,
		authn:   authn,
		signer:  signer,
		consent: consent,
		mount:   strings.TrimSuffix(mount, "/"),
		issuer:  issuer,
	}
}

// MountPath returns the configured mount point.
func (oa *OAuth2API) MountPath() string { return oa.mount }

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	g := e.Group(oa.mount)
	g.GET("/authorize", oa.AuthorizeHandler)
	g.POST("/permit-client", oa.PermitHandler)
	g.POST("/access-token", oa.AccessTokenHandler)
	g.GET("/login", oa.LoginFormHandler)
	g.POST("/login", oa.LoginHandler)

	e.GET("/.well-known/jwks.json", oa.JWKSHandler)
	e.GET("/.well-known/openid-configuration", oa.OpenIDConfigurationHandler)
}

// AuthorizeHandler handles GET authorize requests. Unauthenticated callers
// are handed to the authentication handshake untouched; authenticated ones
// get either a consent page or an immediate redirect carrying the fresh
// authorization code.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	r := c.Request()

	user, err := oa.authn.Authenticate(r)
	if err != nil {
		log.Error().Err(err).Msg("authentication collaborator failed")
		return c.JSON(http.StatusServiceUnavailable, serrors.NewTemporarilyUnavailable("authentication unavailable"))
	}
	if user == nil {
		return oa.authn.InitiateHandshake(c.Response(), r)
	}

	req := grantd.AuthorizeRequest{
		ResponseType: c.QueryParam("response_type"),
		ClientID:     c.QueryParam("client_id"),
		Scope:        c.QueryParam("scope"),
		State:        c.QueryParam("state"),
	}

	authz, err := oa.flow.BeginAuthorization(r.Context(), req, user)
	if err != nil {
		return oa.errorResponse(c, err, req.State)
	}

	if authz.ConsentRequired {
		return oa.consent.RenderConsent(c, ConsentPage{
			ClientName:  authz.Client.Name,
			Description: authz.Client.Description,
			Scopes:      authz.RequestedScopes.List(),
			Code:        authz.Code,
			State:       authz.State,
			ActionURL:   oa.mount + "/permit-client",
		})
	}

	return c.Redirect(http.StatusFound, authz.RedirectURI)
}

// PermitHandler handles the consent form submission. The form carries the
// approved scopes as repeated scope fields plus the code and state the
// consent page embedded.
func (oa *OAuth2API) PermitHandler(c echo.Context) error {
	r := c.Request()

	user, err := oa.authn.Authenticate(r)
	if err != nil {
		log.Error().Err(err).Msg("authentication collaborator failed")
		return c.JSON(http.StatusServiceUnavailable, serrors.NewTemporarilyUnavailable("authentication unavailable"))
	}
	if user == nil {
		return c.JSON(http.StatusUnauthorized, serrors.NewAccessDenied("authentication required"))
	}

	if err := r.ParseForm(); err != nil {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("malformed form body"))
	}

	code := r.PostForm.Get("code")
	state := r.PostForm.Get("state")
	permitted := grantd.NewScopeSet(r.PostForm["scope"]...)

	redirect, err := oa.flow.FinalizeConsent(r.Context(), user, code, permitted, state)
	if err != nil {
		return oa.errorResponse(c, err, state)
	}

	return c.Redirect(http.StatusFound, redirect)
}

// AccessTokenHandler exchanges an authorization code for the access and
// identity tokens. The redeemed token is attached to the caller's session,
// which is then closed; callers without a session are served all the same.
func (oa *OAuth2API) AccessTokenHandler(c echo.Context) error {
	code := c.FormValue("code")
	clientID := c.FormValue("client_id")
	clientSecret := c.FormValue("client_secret")

	r := c.Request()

	tokenResponse, err := oa.flow.Exchange(r.Context(), code, clientID, clientSecret)
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("token exchange failed")
		return oa.errorResponse(c, err, "")
	}

	if err := oa.authn.Attach(r, tokenResponse.AccessToken); err == nil {
		if err := oa.authn.Close(r); err != nil {
			log.Warn().Err(err).Msg("failed to close session after token exchange")
		}
	}

	log.Info().
		Str("client_id", clientID).
		Str("scope", tokenResponse.Scope).
		Int("expires_in", tokenResponse.ExpiresIn).
		Msg("token issued")

	return c.JSON(http.StatusOK, tokenResponse)
}

// LoginFormHandler serves the login page that completes the authentication
// handshake.
func (oa *OAuth2API) LoginFormHandler(c echo.Context) error {
	return oa.consent.RenderLogin(c, LoginPage{
		ActionURL: oa.mount + "/login",
		ReturnTo:  c.QueryParam("return_to"),
	})
}

// LoginHandler verifies credentials, issues a session cookie and resumes
// the original authorize request.
func (oa *OAuth2API) LoginHandler(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")
	returnTo := c.FormValue("return_to")

	identity, err := oa.authn.Login(email, password)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, serrors.NewAccessDenied("invalid credentials"))
	}

	oa.authn.IssueSession(c.Response(), identity)

	if !safeReturnPath(returnTo) {
		returnTo = oa.mount + "/authorize"
	}

	return c.Redirect(http.StatusFound, returnTo)
}

// safeReturnPath accepts only server-relative paths, closing the open
// redirect hole a raw return_to would be.
func safeReturnPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//")
}

// errorResponse translates the protocol error taxonomy into HTTP statuses
// with the standard OAuth2 error body.
func (oa *OAuth2API) errorResponse(c echo.Context, err error, state string) error {
	var oauthErr *serrors.OAuth2Error
	if goerrors.As(err, &oauthErr) {
		return c.JSON(http.StatusBadRequest, oauthErr.WithState(state))
	}

	switch {
	case goerrors.Is(err, grantd.ErrClientNotFound):
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidClient("unknown client_id").WithState(state))
	case goerrors.Is(err, grantd.ErrClientAuthentication):
		return c.JSON(http.StatusForbidden, serrors.NewInvalidClient("Client could not be authenticated"))
	case goerrors.Is(err, grantd.ErrInvalidCode):
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidGrant("invalid or consumed authorization code").WithState(state))
	case goerrors.Is(err, grantd.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, serrors.NewAccessDenied("authentication required"))
	case goerrors.Is(err, grantd.ErrCollaboratorUnavailable):
		return c.JSON(http.StatusServiceUnavailable, serrors.NewTemporarilyUnavailable("a dependency did not answer in time"))
	default:
		log.Error().Err(err).Msg("unexpected failure")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("internal error"))
	}
}
