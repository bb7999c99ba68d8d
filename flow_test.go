package grantd

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	serrors "go.pilab.hu/grantd/errors"
)

// --- Mock ClientStore ---

type MockClientStore struct {
	mock.Mock
}

func (m *MockClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Client), args.Error(1)
}

// --- Mock TokenStore ---

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) StoreToken(ctx context.Context, token *Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Fixtures ---

func testClient() *Client {
	return &Client{
		ID:             "test-client",
		Secret:         "test-secret",
		Name:           "Test App",
		RedirectURI:    "https://app.example.com/callback",
		RequireConsent: true,
		RequiredScopes: []string{"profile/read"},
	}
}

func testIdentity() *Identity {
	return &Identity{
		Subject: "user-1",
		UserProfile: UserProfile{
			Name:  "Alice",
			Email: "alice@example.com",
		},
	}
}

type flowFixture struct {
	flow    *FlowService
	codes   *CodeStore
	clients *MockClientStore
	tokens  *MockTokenStore
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	codes := NewCodeStore(10 * time.Minute)
	t.Cleanup(func() { _ = codes.Close() })

	clients := new(MockClientStore)
	tokens := new(MockTokenStore)

	flow := NewFlowService(codes, clients, tokens, newTestSigner(t), "https://issuer.test")

	return &flowFixture{flow: flow, codes: codes, clients: clients, tokens: tokens}
}

// --- BeginAuthorization ---

func TestBeginAuthorizationUnsupportedResponseType(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "token",
		ClientID:     "test-client",
	}, testIdentity())

	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.UnsupportedResponseType, oauthErr.Code)
	assert.Contains(t, oauthErr.Description, `"token"`)

	assert.Equal(t, 0, f.codes.Len(), "no code may be created on the invalid branch")
	f.clients.AssertNotCalled(t, "GetClient", mock.Anything, mock.Anything)
}

func TestBeginAuthorizationUnauthenticated(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
	}, nil)

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, f.codes.Len())
}

func TestBeginAuthorizationUnknownClient(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "ghost").Return(nil, ErrClientNotFound).Once()

	_, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "ghost",
	}, testIdentity())

	assert.ErrorIs(t, err, ErrClientNotFound)
	assert.Equal(t, 0, f.codes.Len())
	f.clients.AssertExpectations(t)
}

func TestBeginAuthorizationConsentRequired(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil).Once()

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        "profile/read email",
		State:        "xyz",
	}, testIdentity())
	require.NoError(t, err)

	assert.True(t, authz.ConsentRequired)
	assert.Empty(t, authz.RedirectURI)
	assert.NotEmpty(t, authz.Code)
	assert.Equal(t, "xyz", authz.State)
	assert.True(t, authz.RequestedScopes.Contains("email"))
	assert.Equal(t, 1, f.codes.Len())

	// No granted scopes until consent resolves.
	rec, err := f.codes.Lookup(authz.Code)
	require.NoError(t, err)
	assert.Nil(t, rec.GrantedScopes)
}

func TestBeginAuthorizationAutoGrant(t *testing.T) {
	f := newFlowFixture(t)

	cli := testClient()
	cli.RequireConsent = false
	f.clients.On("GetClient", mock.Anything, "test-client").Return(cli, nil).Once()

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        "profile/read email",
		State:        "abc",
	}, testIdentity())
	require.NoError(t, err)

	assert.False(t, authz.ConsentRequired)

	u, err := url.Parse(authz.RedirectURI)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, authz.Code, u.Query().Get("code"))
	assert.Equal(t, "abc", u.Query().Get("state"))

	rec, err := f.codes.Lookup(authz.Code)
	require.NoError(t, err)
	assert.Equal(t, "profile/read", rec.GrantedScopes.String())
}

// --- FinalizeConsent ---

func TestFinalizeConsentIntersectsScopes(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        "profile/read email",
		State:        "xyz",
	}, testIdentity())
	require.NoError(t, err)

	// "admin" was never requested and must not survive.
	redirect, err := f.flow.FinalizeConsent(context.Background(), testIdentity(),
		authz.Code, NewScopeSet("profile/read", "admin"), "xyz")
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, authz.Code, u.Query().Get("code"))
	assert.Equal(t, "xyz", u.Query().Get("state"))

	rec, err := f.codes.Lookup(authz.Code)
	require.NoError(t, err)
	assert.Equal(t, "profile/read", rec.GrantedScopes.String())
	assert.True(t, rec.GrantedScopes.SubsetOf(rec.RequestedScopes))
}

func TestFinalizeConsentReplayed(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        "profile/read email",
		State:        "xyz",
	}, testIdentity())
	require.NoError(t, err)

	_, err = f.flow.FinalizeConsent(context.Background(), testIdentity(),
		authz.Code, NewScopeSet("email"), "xyz")
	require.NoError(t, err)

	// Resubmitting the consent form with a wider selection is refused and
	// the first grant stands.
	_, err = f.flow.FinalizeConsent(context.Background(), testIdentity(),
		authz.Code, NewScopeSet("profile/read", "email"), "xyz")
	assert.ErrorIs(t, err, ErrInvalidCode)

	rec, err := f.codes.Lookup(authz.Code)
	require.NoError(t, err)
	assert.Equal(t, "email", rec.GrantedScopes.String())
}

func TestFinalizeConsentUnauthenticated(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.FinalizeConsent(context.Background(), nil, "some-code", NewScopeSet("email"), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFinalizeConsentWrongSubject(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        "profile/read",
	}, testIdentity())
	require.NoError(t, err)

	intruder := &Identity{Subject: "user-2"}
	_, err = f.flow.FinalizeConsent(context.Background(), intruder, authz.Code, NewScopeSet("profile/read"), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFinalizeConsentUnknownCode(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.FinalizeConsent(context.Background(), testIdentity(), "no-such-code", NewScopeSet("email"), "")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

// --- Exchange ---

func (f *flowFixture) authorizedCode(t *testing.T, scope string) string {
	t.Helper()

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        scope,
		State:        "s",
	}, testIdentity())
	require.NoError(t, err)

	_, err = f.flow.FinalizeConsent(context.Background(), testIdentity(), authz.Code, ParseScopes(scope), "s")
	require.NoError(t, err)

	return authz.Code
}

func TestExchangeIssuesTokens(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	code := f.authorizedCode(t, "profile/read")

	var stored *Token
	f.tokens.On("StoreToken", mock.Anything, mock.MatchedBy(func(tok *Token) bool {
		stored = tok
		return tok.ClientID == "test-client" && tok.Subject == "user-1"
	})).Return(nil).Once()

	resp, err := f.flow.Exchange(context.Background(), code, "test-client", "test-secret")
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "profile/read", resp.Scope)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, code, resp.AccessToken)
	assert.Equal(t, resp.AccessToken, stored.Value)
	assert.Equal(t, "profile/read", stored.Scope)

	// The id_token verifies against the signer key and carries the identity.
	claims := &IDTokenClaims{}
	_, err = jwt.ParseWithClaims(resp.IDToken, claims, func(*jwt.Token) (interface{}, error) {
		return f.flow.signer.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.test", claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"test-client"}, claims.Audience)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.NotEmpty(t, claims.Picture)

	f.tokens.AssertExpectations(t)
}

func TestExchangeWrongSecretLeavesCodeRedeemable(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	code := f.authorizedCode(t, "profile/read")

	_, err := f.flow.Exchange(context.Background(), code, "test-client", "wrong")
	assert.ErrorIs(t, err, ErrClientAuthentication)
	f.tokens.AssertNotCalled(t, "StoreToken", mock.Anything, mock.Anything)

	// A later attempt with the correct secret still succeeds.
	f.tokens.On("StoreToken", mock.Anything, mock.Anything).Return(nil).Once()
	_, err = f.flow.Exchange(context.Background(), code, "test-client", "test-secret")
	assert.NoError(t, err)
}

func TestExchangeConsumedCode(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)
	f.tokens.On("StoreToken", mock.Anything, mock.Anything).Return(nil).Once()

	code := f.authorizedCode(t, "profile/read")

	_, err := f.flow.Exchange(context.Background(), code, "test-client", "test-secret")
	require.NoError(t, err)

	_, err = f.flow.Exchange(context.Background(), code, "test-client", "test-secret")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestExchangeUnknownCode(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	_, err := f.flow.Exchange(context.Background(), "never-issued", "test-client", "test-secret")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestExchangeClientMismatch(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)

	other := &Client{ID: "other-client", Secret: "other-secret", RedirectURI: "https://other.example.com/cb"}
	f.clients.On("GetClient", mock.Anything, "other-client").Return(other, nil)

	code := f.authorizedCode(t, "profile/read")

	_, err := f.flow.Exchange(context.Background(), code, "other-client", "other-secret")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestExchangeTokenStoreFailureIsTerminal(t *testing.T) {
	f := newFlowFixture(t)
	f.clients.On("GetClient", mock.Anything, "test-client").Return(testClient(), nil)
	f.tokens.On("StoreToken", mock.Anything, mock.Anything).Return(fmt.Errorf("backend down")).Once()

	code := f.authorizedCode(t, "profile/read")

	_, err := f.flow.Exchange(context.Background(), code, "test-client", "test-secret")
	require.Error(t, err)

	// The code was consumed before the failure; that is accepted, not
	// rolled back.
	_, err = f.flow.Exchange(context.Background(), code, "test-client", "test-secret")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestFlowOperationsEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFlowFixture(t)

	cli := testClient()
	cli.RequireConsent = false
	f.clients.On("GetClient", mock.Anything, "test-client").Return(cli, nil)
	f.tokens.On("StoreToken", mock.Anything, mock.Anything).Return(nil).Once()

	authz, err := f.flow.BeginAuthorization(context.Background(), AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "test-client",
		Scope:        "profile/read",
	}, testIdentity())
	require.NoError(t, err)

	_, err = f.flow.Exchange(context.Background(), authz.Code, "test-client", "test-secret")
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "flow.BeginAuthorization")
	assert.Contains(t, names, "flow.Exchange")
}
