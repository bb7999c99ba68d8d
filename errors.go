package grantd

import "errors"

var (
	// ErrClientNotFound is returned when the client_id of a request does not
	// match any registered client.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientAuthentication is returned when the presented client_secret
	// does not match the registered secret.
	ErrClientAuthentication = errors.New("invalid client credentials")

	// ErrCodeNotFound is returned by the code store when a code was never
	// issued, or on redemption of a code that has already been consumed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeConsumed is returned by GrantScopes when the code has already
	// been redeemed.
	ErrCodeConsumed = errors.New("authorization code already consumed")

	// ErrCodeAlreadyGranted is returned by GrantScopes when consent has
	// already resolved for the code; the granted set is written once and
	// never changes afterwards.
	ErrCodeAlreadyGranted = errors.New("authorization code already granted")

	// ErrCodeExpired is returned when a code is past its validity window.
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrInvalidCode is the protocol-level failure for a token exchange with
	// an unknown, consumed or expired code.
	ErrInvalidCode = errors.New("invalid or consumed authorization code")

	// ErrUnauthorized is returned when an operation requires an
	// authenticated session and none is present.
	ErrUnauthorized = errors.New("no authenticated session")

	// ErrCollaboratorUnavailable is returned when a downstream collaborator
	// (client registry, token store) does not answer within its deadline.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
