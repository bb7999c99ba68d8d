package grantd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// AuthorizationCode is a pending or granted authorization decision, keyed by
// its opaque code value. GrantedScopes stays nil until consent resolves;
// once set it never changes. Consumed flips to true exactly once, at
// redemption.
type AuthorizationCode struct {
	Code            string
	ClientID        string
	Subject         string
	Profile         UserProfile
	RequestedScopes ScopeSet
	GrantedScopes   ScopeSet
	Consumed        bool
	CreatedAt       time.Time
}

const codeEntropyBytes = 32

// CodeStore is the in-memory registry of authorization codes. All operations
// on a single code are serialized by the store mutex, which is what makes
// redemption exactly-once under concurrent callers.
type CodeStore struct {
	mu    sync.RWMutex
	codes map[string]*AuthorizationCode
	ttl   time.Duration
	done  chan struct{}
}

// NewCodeStore creates a code store whose entries expire ttl after creation.
// A janitor goroutine evicts expired entries until Close is called.
func NewCodeStore(ttl time.Duration) *CodeStore {
	store := &CodeStore{
		codes: make(map[string]*AuthorizationCode),
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	go store.janitor()

	return store
}

// Create inserts a new pending record and returns its generated code value.
// The caller's scope set is copied, so later mutation of the argument cannot
// leak into the record.
func (s *CodeStore) Create(rec AuthorizationCode) (string, error) {
	buf := make([]byte, codeEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	code := base64.RawURLEncoding.EncodeToString(buf)

	rec.Code = code
	rec.CreatedAt = time.Now()
	rec.RequestedScopes = rec.RequestedScopes.Clone()
	rec.GrantedScopes = nil
	rec.Consumed = false

	s.mu.Lock()
	defer s.mu.Unlock()

	// 256 bits of entropy makes a collision negligible; the check is still
	// cheap under the lock we already hold.
	if _, exists := s.codes[code]; exists {
		return "", fmt.Errorf("authorization code collision")
	}
	s.codes[code] = &rec

	return code, nil
}

// GrantScopes attaches the granted scope set to an existing, unconsumed
// record and returns a copy of the updated record. The grant is clamped to
// the requested set, so granted scopes can never exceed requested ones no
// matter what the caller passes, and resolves at most once: a replayed grant
// fails with ErrCodeAlreadyGranted instead of rewriting the finalized set.
func (s *CodeStore) GrantScopes(code string, scopes ScopeSet) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if rec.Consumed {
		return nil, ErrCodeConsumed
	}
	if s.expired(rec) {
		return nil, ErrCodeExpired
	}
	if rec.GrantedScopes != nil {
		return nil, ErrCodeAlreadyGranted
	}

	rec.GrantedScopes = scopes.Intersect(rec.RequestedScopes)

	return rec.snapshot(), nil
}

// Lookup returns a copy of an unconsumed, unexpired record without touching
// its state.
func (s *CodeStore) Lookup(code string) (*AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.codes[code]
	if !ok || rec.Consumed {
		return nil, ErrCodeNotFound
	}
	if s.expired(rec) {
		return nil, ErrCodeExpired
	}

	return rec.snapshot(), nil
}

// Redeem atomically retrieves the record and marks it consumed. A code that
// was never issued, was already redeemed, or has expired is reported as not
// found; under concurrent redemption of the same code exactly one caller
// gets the record.
func (s *CodeStore) Redeem(code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.codes[code]
	if !ok || rec.Consumed {
		return nil, ErrCodeNotFound
	}
	if s.expired(rec) {
		return nil, ErrCodeExpired
	}

	rec.Consumed = true

	return rec.snapshot(), nil
}

// Len reports the number of records currently held, consumed ones included.
func (s *CodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

// Close stops the janitor goroutine.
func (s *CodeStore) Close() error {
	close(s.done)
	return nil
}

func (s *CodeStore) expired(rec *AuthorizationCode) bool {
	return s.ttl > 0 && time.Now().After(rec.CreatedAt.Add(s.ttl))
}

func (s *CodeStore) janitor() {
	interval := s.ttl
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.done:
			return
		}
	}
}

func (s *CodeStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, rec := range s.codes {
		if rec.Consumed || s.expired(rec) {
			delete(s.codes, code)
		}
	}
}

func (c *AuthorizationCode) snapshot() *AuthorizationCode {
	out := *c
	out.RequestedScopes = c.RequestedScopes.Clone()
	if c.GrantedScopes != nil {
		out.GrantedScopes = c.GrantedScopes.Clone()
	}
	return &out
}
