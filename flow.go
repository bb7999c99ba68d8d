package grantd

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	serrors "go.pilab.hu/grantd/errors"
)

// ResponseType is the response_type parameter of an authorization request,
// decided once when the request is parsed.
type ResponseType string

// ResponseTypeCode is the only supported response type.
const ResponseTypeCode ResponseType = "code"

// ParseResponseType classifies the raw parameter value.
func ParseResponseType(raw string) ResponseType {
	return ResponseType(raw)
}

// Supported reports whether this module implements the response type.
func (t ResponseType) Supported() bool {
	return t == ResponseTypeCode
}

// Defaults for the flow service.
const (
	DefaultCodeTTL             = 10 * time.Minute
	DefaultAccessTokenTTL      = time.Hour
	DefaultIDTokenTTL          = 24 * time.Hour
	DefaultCollaboratorTimeout = 5 * time.Second

	// expiresInSeconds is the literal expires_in of the token response.
	expiresInSeconds = 3600
)

// TokenResponse is the JSON body of a successful token exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
}

// AuthorizeRequest is a parsed GET /authorize request.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	Scope        string
	State        string
}

// Authorization is the outcome of a successful authorization request. When
// ConsentRequired is set the caller must obtain explicit user acceptance and
// finalize through FinalizeConsent; otherwise RedirectURI is ready to serve.
type Authorization struct {
	Code            string
	Client          *Client
	RequestedScopes ScopeSet
	State           string
	ConsentRequired bool
	RedirectURI     string
}

// FlowService drives the authorization code lifecycle: request validation,
// consent negotiation, scope reconciliation and one-time code redemption.
type FlowService struct {
	codes   *CodeStore
	clients ClientStore
	tokens  TokenStore
	signer  *TokenSigner
	issuer  string
	tracer  trace.Tracer

	accessTokenTTL time.Duration
	idTokenTTL     time.Duration
	callTimeout    time.Duration
}

// NewFlowService wires the protocol core to its collaborators.
func NewFlowService(codes *CodeStore, clients ClientStore, tokens TokenStore, signer *TokenSigner, issuer string) *FlowService {
	return &FlowService{
		codes:          codes,
		clients:        clients,
		tokens:         tokens,
		signer:         signer,
		issuer:         issuer,
		tracer:         otel.Tracer("go.pilab.hu/grantd"),
		accessTokenTTL: DefaultAccessTokenTTL,
		idTokenTTL:     DefaultIDTokenTTL,
		callTimeout:    DefaultCollaboratorTimeout,
	}
}

// WithTTLs overrides the access-token and identity-token lifetimes.
func (s *FlowService) WithTTLs(accessTokenTTL, idTokenTTL time.Duration) *FlowService {
	s.accessTokenTTL = accessTokenTTL
	s.idTokenTTL = idTokenTTL
	return s
}

// WithCollaboratorTimeout overrides the per-call deadline applied to
// collaborator lookups and writes.
func (s *FlowService) WithCollaboratorTimeout(timeout time.Duration) *FlowService {
	s.callTimeout = timeout
	return s
}

// BeginAuthorization validates an authorize request for an authenticated
// resource owner and creates the authorization code. Exactly one code is
// created per successful call; the invalid-response_type and unknown-client
// branches create none.
func (s *FlowService) BeginAuthorization(ctx context.Context, req AuthorizeRequest, user *Identity) (*Authorization, error) {
	ctx, span := s.tracer.Start(ctx, "flow.BeginAuthorization")
	defer span.End()

	if user == nil {
		return nil, ErrUnauthorized
	}

	if rt := ParseResponseType(req.ResponseType); !rt.Supported() {
		return nil, serrors.NewUnsupportedResponseType(req.ResponseType)
	}

	cli, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	requested := ParseScopes(req.Scope)

	code, err := s.codes.Create(AuthorizationCode{
		ClientID:        cli.ID,
		Subject:         user.Subject,
		Profile:         user.UserProfile,
		RequestedScopes: requested,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization code: %w", err)
	}

	authz := &Authorization{
		Code:            code,
		Client:          cli,
		RequestedScopes: requested,
		State:           req.State,
		ConsentRequired: cli.RequireConsent,
	}

	if !cli.RequireConsent {
		// No acceptance step: the client's required scopes are granted
		// outright. The store clamps the grant to the requested set.
		if _, err := s.codes.GrantScopes(code, NewScopeSet(cli.RequiredScopes...)); err != nil {
			return nil, fmt.Errorf("failed to grant scopes: %w", err)
		}
		authz.RedirectURI = redirectURL(cli.RedirectURI, code, req.State)
	}

	log.Debug().
		Str("client_id", cli.ID).
		Str("subject", user.Subject).
		Bool("consent_required", cli.RequireConsent).
		Str("scope", requested.String()).
		Msg("authorization code created")

	return authz, nil
}

// FinalizeConsent reconciles the user's approved scopes with the requested
// ones and finalizes the code's granted set. Scopes the user was never asked
// about are discarded, and consent resolves at most once: a replayed
// submission fails with ErrInvalidCode rather than rewriting the grant. It
// returns the redirect URI carrying code and state.
func (s *FlowService) FinalizeConsent(ctx context.Context, user *Identity, code string, permitted ScopeSet, state string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "flow.FinalizeConsent")
	defer span.End()

	if user == nil {
		return "", ErrUnauthorized
	}

	pending, err := s.codes.Lookup(code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeExpired) {
			return "", ErrInvalidCode
		}
		return "", err
	}
	if pending.Subject != user.Subject {
		// Consent must come from the resource owner who initiated the
		// authorize request.
		return "", ErrUnauthorized
	}

	rec, err := s.codes.GrantScopes(code, permitted)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeConsumed) ||
			errors.Is(err, ErrCodeExpired) || errors.Is(err, ErrCodeAlreadyGranted) {
			return "", ErrInvalidCode
		}
		return "", err
	}

	cli, err := s.lookupClient(ctx, rec.ClientID)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("client_id", cli.ID).
		Str("granted", rec.GrantedScopes.String()).
		Msg("consent finalized")

	return redirectURL(cli.RedirectURI, code, state), nil
}

// Exchange authenticates the client, redeems the code exactly once and
// issues the access and identity tokens. Once the code is redeemed the
// sequence is irreversible: a failure while persisting the token does not
// resurrect the code.
func (s *FlowService) Exchange(ctx context.Context, code, clientID, clientSecret string) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "flow.Exchange")
	defer span.End()

	cli, err := s.lookupClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(cli.Secret), []byte(clientSecret)) != 1 {
		return nil, ErrClientAuthentication
	}

	rec, err := s.codes.Redeem(code)
	if err != nil {
		return nil, ErrInvalidCode
	}
	if rec.ClientID != clientID {
		// Code was issued to a different client. It is already consumed;
		// that is accepted, not rolled back.
		return nil, ErrInvalidCode
	}

	now := time.Now()
	accessToken := uuid.NewString()
	granted := rec.GrantedScopes

	claims := NewIDTokenClaims(s.issuer, rec.Subject, clientID, rec.Profile, now, s.idTokenTTL)
	idToken, err := s.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign identity token: %w", err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	err = s.tokens.StoreToken(storeCtx, &Token{
		Value:     accessToken,
		ClientID:  clientID,
		Subject:   rec.Subject,
		Scope:     granted.String(),
		ExpiresAt: now.Add(s.accessTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCollaboratorUnavailable
		}
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	log.Info().
		Str("client_id", clientID).
		Str("subject", rec.Subject).
		Str("scope", granted.String()).
		Msg("authorization code redeemed")

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresInSeconds,
		Scope:       granted.String(),
		IDToken:     idToken,
	}, nil
}

func (s *FlowService) lookupClient(ctx context.Context, clientID string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	cli, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrCollaboratorUnavailable
		}
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("client lookup failed: %w", err)
	}

	return cli, nil
}

// redirectURL appends code and state to the client's redirection URI with
// standard percent-encoding.
func redirectURL(base, code, state string) string {
	u, err := url.Parse(base)
	if err != nil {
		// Registered URIs are validated at registration time; fall back to
		// the raw base rather than dropping the redirect.
		return base
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
