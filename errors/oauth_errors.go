package errors

import "fmt"

// OAuth2Error is the standard OAuth 2.0 error-response shape (RFC 6749 §5.2).
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the client's state value.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	out := *e
	out.State = state
	return &out
}

// Standard OAuth2 error codes
const (
	InvalidRequest          = "invalid_request"
	UnauthorizedClient      = "unauthorized_client"
	AccessDenied            = "access_denied"
	UnsupportedResponseType = "unsupported_response_type"
	InvalidScope            = "invalid_scope"
	InvalidClient           = "invalid_client"
	InvalidGrant            = "invalid_grant"
	ServerError             = "server_error"
	TemporarilyUnavailable  = "temporarily_unavailable"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
	}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
	}
}

func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        AccessDenied,
		Description: description,
	}
}

func NewUnsupportedResponseType(responseType string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedResponseType,
		Description: fmt.Sprintf("unsupported response_type %q", responseType),
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}

func NewTemporarilyUnavailable(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        TemporarilyUnavailable,
		Description: description,
	}
}
