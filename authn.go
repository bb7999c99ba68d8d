package grantd

import "net/http"

// Authenticator resolves the resource owner behind an incoming request.
// Authentication itself (login, session creation) is a collaborator concern;
// the authorization endpoint only consumes its result.
type Authenticator interface {
	// Authenticate returns the identity bound to the request, or nil when
	// the request carries no valid authentication.
	Authenticate(r *http.Request) (*Identity, error)

	// InitiateHandshake writes the response that starts authentication for
	// an unauthenticated request, typically a redirect to a login page that
	// returns to the original URL.
	InitiateHandshake(w http.ResponseWriter, r *http.Request) error
}

// SessionStore is the session collaborator consumed by the token exchange:
// the issued access token is attached to the caller's session, which is then
// closed as a one-time consumption of the authentication context.
type SessionStore interface {
	// Current returns the session bound to the request, or ErrUnauthorized
	// when there is none.
	Current(r *http.Request) (*Session, error)

	// Attach associates data (the issued access token) with the request's
	// session.
	Attach(r *http.Request, data string) error

	// Close terminates the request's session.
	Close(r *http.Request) error
}

// Session is an authenticated resource-owner session as seen by this module.
type Session struct {
	ID          string
	Subject     string
	AccessToken string
}
