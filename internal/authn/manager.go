// Package authn provides the default resource-owner authentication
// collaborators: a cookie-bound in-memory session store and a password
// checked user registry. Deployments with their own identity layer replace
// this package behind the grantd.Authenticator and grantd.SessionStore
// interfaces.
package authn

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/grantd"
)

// SessionCookieName is the cookie carrying the session id.
const SessionCookieName = "grantd_session"

// DefaultSessionTTL bounds how long a login stays valid.
const DefaultSessionTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already registered")
)

// Ensure the collaborator interfaces stay implemented.
var (
	_ grantd.Authenticator = (*Manager)(nil)
	_ grantd.SessionStore  = (*Manager)(nil)
)

type session struct {
	id          string
	identity    grantd.Identity
	accessToken string
	expiresAt   time.Time
}

type user struct {
	Subject      string `json:"subject"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	PasswordHash string `json:"password_hash"`
}

// Manager implements grantd.Authenticator and grantd.SessionStore on top of
// in-memory session and user registries.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	users    map[string]*user // keyed by email

	hasher     *PasswordHasher
	sessionTTL time.Duration
	loginPath  string
	done       chan struct{}
}

// NewManager creates a manager whose sessions expire after sessionTTL
// (DefaultSessionTTL when zero). loginPath is where unauthenticated
// authorize requests are sent to complete the handshake.
func NewManager(sessionTTL time.Duration, loginPath string) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	m := &Manager{
		sessions:   make(map[string]*session),
		users:      make(map[string]*user),
		hasher:     NewPasswordHasher(0),
		sessionTTL: sessionTTL,
		loginPath:  loginPath,
		done:       make(chan struct{}),
	}

	go m.janitor()

	return m
}

// Shutdown stops the session janitor.
func (m *Manager) Shutdown() error {
	close(m.done)
	return nil
}

// AddUser registers a user, hashing the plaintext password.
func (m *Manager) AddUser(subject, email, name, password string) error {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return err
	}
	return m.addUser(&user{Subject: subject, Email: email, Name: name, PasswordHash: hash})
}

func (m *Manager) addUser(u *user) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[u.Email]; exists {
		return ErrUserExists
	}
	m.users[u.Email] = u

	return nil
}

// LoadUsersFile registers users from a JSON array of records carrying
// bcrypt password hashes.
func (m *Manager) LoadUsersFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read users file: %w", err)
	}

	var users []*user
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("failed to parse users file: %w", err)
	}

	for _, u := range users {
		if err := m.addUser(u); err != nil {
			return err
		}
	}

	return nil
}

// Login verifies credentials and returns the identity on success.
func (m *Manager) Login(email, password string) (*grantd.Identity, error) {
	m.mu.RLock()
	u, ok := m.users[email]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := m.hasher.Verify(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &grantd.Identity{
		Subject: u.Subject,
		UserProfile: grantd.UserProfile{
			Name:  u.Name,
			Email: u.Email,
		},
	}, nil
}

// IssueSession creates a session for the identity and sets the session
// cookie on the response.
func (m *Manager) IssueSession(w http.ResponseWriter, identity *grantd.Identity) string {
	sess := &session{
		id:        uuid.NewString(),
		identity:  *identity,
		expiresAt: time.Now().Add(m.sessionTTL),
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return sess.id
}

// Authenticate implements grantd.Authenticator.
func (m *Manager) Authenticate(r *http.Request) (*grantd.Identity, error) {
	sess := m.sessionFor(r)
	if sess == nil {
		return nil, nil
	}

	identity := sess.identity
	return &identity, nil
}

// InitiateHandshake implements grantd.Authenticator: it redirects to the
// login page, preserving the original URL so the flow can resume.
func (m *Manager) InitiateHandshake(w http.ResponseWriter, r *http.Request) error {
	target := m.loginPath + "?return_to=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// Current implements grantd.SessionStore.
func (m *Manager) Current(r *http.Request) (*grantd.Session, error) {
	sess := m.sessionFor(r)
	if sess == nil {
		return nil, grantd.ErrUnauthorized
	}

	return &grantd.Session{
		ID:          sess.id,
		Subject:     sess.identity.Subject,
		AccessToken: sess.accessToken,
	}, nil
}

// Attach implements grantd.SessionStore.
func (m *Manager) Attach(r *http.Request, data string) error {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return grantd.ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[cookie.Value]
	if !ok || time.Now().After(sess.expiresAt) {
		return grantd.ErrUnauthorized
	}
	sess.accessToken = data

	return nil
}

// Close implements grantd.SessionStore: it terminates the request's session.
func (m *Manager) Close(r *http.Request) error {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return grantd.ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, cookie.Value)

	return nil
}

func (m *Manager) sessionFor(r *http.Request) *session {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[cookie.Value]
	if !ok || time.Now().After(sess.expiresAt) {
		return nil
	}

	return sess
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, sess := range m.sessions {
		if now.After(sess.expiresAt) {
			delete(m.sessions, id)
		}
	}
}
