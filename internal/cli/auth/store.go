package auth

import (
	"errors"
	"sync"
)

// TokenStore defines the interface for token storage operations
// This allows us to swap the keyring out in tests
type TokenStore interface {
	SaveToken(server, token string) error
	LoadToken(server string) (string, error)
	DeleteToken(server string) error
}

// defaultTokenStore implements TokenStore using the OS keyring
type defaultTokenStore struct{}

var Default TokenStore = &defaultTokenStore{}

func (d *defaultTokenStore) SaveToken(server, token string) error {
	return SaveToken(server, token)
}

func (d *defaultTokenStore) LoadToken(server string) (string, error) {
	return LoadToken(server)
}

func (d *defaultTokenStore) DeleteToken(server string) error {
	return DeleteToken(server)
}

// Slot is the single persisted bearer-token entry for one server. Writes
// are last-write-wins and deleting an empty slot succeeds.
type Slot struct {
	mu     sync.Mutex
	store  TokenStore
	server string
}

// NewSlot binds store to server
func NewSlot(store TokenStore, server string) *Slot {
	return &Slot{store: store, server: server}
}

// Server returns the server key the slot is bound to
func (s *Slot) Server() string {
	return s.server
}

// Load returns the stored token, or "" when the slot is empty
func (s *Slot) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.store.LoadToken(s.server)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// Save replaces the stored token
func (s *Slot) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SaveToken(s.server, token)
}

// Delete empties the slot
func (s *Slot) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.DeleteToken(s.server)
}
