package auth

import (
	"context"
	"sync"
)

// CredentialStore caches each logged-in user's bus password. It is written at
// login, read when a category consumer starts, and purged when the user's
// last connection closes. This lookup is the only path from an identity to a
// bus credential.
type CredentialStore interface {
	// Password returns the cached bus password for the user, if any
	Password(ctx context.Context, username string) (string, bool)
	// Store caches the user's bus password
	Store(ctx context.Context, username, password string) error
	// Purge removes the user's cached password
	Purge(ctx context.Context, username string) error
}

// MemoryCredentialStore is the default single-process CredentialStore.
type MemoryCredentialStore struct {
	mu        sync.RWMutex
	passwords map[string]string
}

// NewMemoryCredentialStore creates an empty in-memory credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{passwords: make(map[string]string)}
}

// Password implements CredentialStore
func (s *MemoryCredentialStore) Password(_ context.Context, username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pw, ok := s.passwords[username]
	return pw, ok
}

// Store implements CredentialStore
func (s *MemoryCredentialStore) Store(_ context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[username] = password
	return nil
}

// Purge implements CredentialStore
func (s *MemoryCredentialStore) Purge(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passwords, username)
	return nil
}
