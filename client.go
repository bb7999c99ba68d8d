package grantd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Client is a registered OAuth2 client application. RequiredScopes is the
// set granted automatically when the client does not require explicit user
// acceptance.
type Client struct {
	ID             string   `json:"client_id"`
	Secret         string   `json:"client_secret,omitempty"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	RedirectURI    string   `json:"redirect_uri"`
	RequireConsent bool     `json:"require_consent"`
	RequiredScopes []string `json:"required_scopes,omitempty"`
}

// ClientStore is the client registry collaborator. Lookup of an unknown id
// returns ErrClientNotFound.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// InMemoryClientStore holds registered clients in a mutex-guarded map.
type InMemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{
		clients: make(map[string]*Client),
	}
}

// Register adds or replaces a client.
func (s *InMemoryClientStore) Register(cli *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[cli.ID] = cli
}

// GetClient implements ClientStore.
func (s *InMemoryClientStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cli, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}

	out := *cli
	return &out, nil
}

// LoadClientsFile registers every client from a JSON file holding an array
// of Client records.
func (s *InMemoryClientStore) LoadClientsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read clients file: %w", err)
	}

	var clients []*Client
	if err := json.Unmarshal(data, &clients); err != nil {
		return fmt.Errorf("failed to parse clients file: %w", err)
	}

	for _, cli := range clients {
		s.Register(cli)
	}

	return nil
}
